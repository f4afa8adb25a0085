package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fusedcheck/internal/tensor"
)

// Conv2DInputBackward computes the gradient w.r.t. the input (data gradient).
//
// Algorithm: transposed convolution expressed on the patch matrix.
//   - dCols = grad @ weight          [N*OH*OW, K] @ [K, C*kH*kW]
//   - dInput = col2im(dCols)         every input pixel sums the taps that read it
//
// References:
//   - "A guide to convolution arithmetic for deep learning" (Dumoulin & Visin, 2016)
func (cpu *CPUBackend) Conv2DInputBackward(input, weight, grad *tensor.RawTensor, params tensor.Conv2DParams) *tensor.RawTensor {
	g := newConvGeometry("Conv2DInputBackward", input.Shape(), weight.Shape(), params)
	if !grad.Shape().Equal(g.outputShape()) {
		panic(fmt.Sprintf("Conv2DInputBackward: grad shape %v, want %v", grad.Shape(), g.outputShape()))
	}

	dy := mat.NewDense(g.rows, g.k, grad.Float64s())
	kernel := mat.NewDense(g.k, g.colWidth, weight.Float64s())

	dCols := mat.NewDense(g.rows, g.colWidth, nil)
	dCols.Mul(dy, kernel)

	return cpu.result("Conv2DInputBackward", col2im(dCols.RawMatrix().Data, g), input.Shape(), grad.DType())
}

// Conv2DKernelBackward computes the gradient w.r.t. the weight.
//
// Algorithm: correlation of the input patches with the output gradient.
//   - dWeight = grad^T @ cols        [K, N*OH*OW] @ [N*OH*OW, C*kH*kW]
//
// The [K, C*kH*kW] result is already in [K, C, kH, kW] layout. The result takes
// the weight's dtype.
func (cpu *CPUBackend) Conv2DKernelBackward(input, weight, grad *tensor.RawTensor, params tensor.Conv2DParams) *tensor.RawTensor {
	g := newConvGeometry("Conv2DKernelBackward", input.Shape(), weight.Shape(), params)
	if !grad.Shape().Equal(g.outputShape()) {
		panic(fmt.Sprintf("Conv2DKernelBackward: grad shape %v, want %v", grad.Shape(), g.outputShape()))
	}

	dy := mat.NewDense(g.rows, g.k, grad.Float64s())
	cols := mat.NewDense(g.rows, g.colWidth, im2col(input.Float64s(), g))

	dw := mat.NewDense(g.k, g.colWidth, nil)
	dw.Mul(dy.T(), cols)

	return cpu.result("Conv2DKernelBackward", dw.RawMatrix().Data, weight.Shape(), weight.DType())
}
