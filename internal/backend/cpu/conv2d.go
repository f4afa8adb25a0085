package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fusedcheck/internal/tensor"
)

// convGeometry holds every extent a channel-last convolution needs.
type convGeometry struct {
	n, h, w, c     int // input [N, H, W, C]
	k, kh, kw      int // weight [K, C, kH, kW]
	oh, ow         int // output spatial extent
	stride, pad    [2]int
	dilation       [2]int
	rows, colWidth int // im2col matrix: [N*OH*OW, C*kH*kW]
}

func newConvGeometry(op string, input, weight tensor.Shape, params tensor.Conv2DParams) convGeometry {
	out, err := params.OutputShape(input, weight)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	n, h, w, c := input.NHWC()
	g := convGeometry{
		n: n, h: h, w: w, c: c,
		k: weight[0], kh: weight[2], kw: weight[3],
		oh: out[1], ow: out[2],
		stride:   params.Strides,
		pad:      params.Paddings,
		dilation: params.Dilations,
	}
	g.rows = n * g.oh * g.ow
	g.colWidth = c * g.kh * g.kw
	return g
}

func (g convGeometry) outputShape() tensor.Shape {
	return tensor.Shape{g.n, g.oh, g.ow, g.k}
}

// inputIndex maps an output position and a kernel tap to the flat NHWC index of
// the input pixel at channel 0, or -1 when the tap falls into padding.
func (g convGeometry) inputIndex(n, oy, ox, ky, kx int) int {
	iy := oy*g.stride[0] - g.pad[0] + ky*g.dilation[0]
	ix := ox*g.stride[1] - g.pad[1] + kx*g.dilation[1]
	if iy < 0 || iy >= g.h || ix < 0 || ix >= g.w {
		return -1
	}
	return ((n*g.h+iy)*g.w + ix) * g.c
}

// Conv2D performs a channel-last 2D convolution using the im2col algorithm.
//
// Input shape: [N, H, W, C]
// Weight shape: [K, C, kH, kW]
// Output shape: [N, OH, OW, K]
//
// Algorithm: Im2col
//  1. Transform input patches into rows: [N*OH*OW, C*kH*kW]
//  2. View the weight as a matrix [K, C*kH*kW]
//  3. Multiply: cols @ weight^T -> [N*OH*OW, K], which is already NHWC
//
// Reference: "High Performance Convolutional Neural Networks for Document Processing"
// (Chellapilla et al., 2006).
func (cpu *CPUBackend) Conv2D(input, weight *tensor.RawTensor, params tensor.Conv2DParams) *tensor.RawTensor {
	g := newConvGeometry("conv2d", input.Shape(), weight.Shape(), params)

	cols := mat.NewDense(g.rows, g.colWidth, im2col(input.Float64s(), g))
	kernel := mat.NewDense(g.k, g.colWidth, weight.Float64s())

	out := mat.NewDense(g.rows, g.k, nil)
	out.Mul(cols, kernel.T())

	return cpu.result("conv2d", out.RawMatrix().Data, g.outputShape(), input.DType())
}

// im2col transforms an NHWC input into its patch matrix.
//
// Each row corresponds to one output position (n, oy, ox); each column to one
// weight tap in [C, kH, kW] order, so the weight needs no reshuffling.
// Taps that fall into padding stay zero.
func im2col(x []float64, g convGeometry) []float64 {
	buf := make([]float64, g.rows*g.colWidth)
	row := 0
	for n := 0; n < g.n; n++ {
		for oy := 0; oy < g.oh; oy++ {
			for ox := 0; ox < g.ow; ox++ {
				base := row * g.colWidth
				for ky := 0; ky < g.kh; ky++ {
					for kx := 0; kx < g.kw; kx++ {
						src := g.inputIndex(n, oy, ox, ky, kx)
						if src < 0 {
							continue
						}
						tap := ky*g.kw + kx
						for c := 0; c < g.c; c++ {
							buf[base+c*g.kh*g.kw+tap] = x[src+c]
						}
					}
				}
				row++
			}
		}
	}
	return buf
}

// col2im is the adjoint of im2col: it scatter-adds patch rows back into an
// NHWC buffer. Pixels shared by several patches accumulate.
func col2im(cols []float64, g convGeometry) []float64 {
	x := make([]float64, g.n*g.h*g.w*g.c)
	row := 0
	for n := 0; n < g.n; n++ {
		for oy := 0; oy < g.oh; oy++ {
			for ox := 0; ox < g.ow; ox++ {
				base := row * g.colWidth
				for ky := 0; ky < g.kh; ky++ {
					for kx := 0; kx < g.kw; kx++ {
						dst := g.inputIndex(n, oy, ox, ky, kx)
						if dst < 0 {
							continue
						}
						tap := ky*g.kw + kx
						for c := 0; c < g.c; c++ {
							x[dst+c] += cols[base+c*g.kh*g.kw+tap]
						}
					}
				}
				row++
			}
		}
	}
	return x
}
