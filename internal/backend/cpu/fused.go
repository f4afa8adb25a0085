package cpu

import (
	"fmt"

	"github.com/born-ml/fusedcheck/internal/fused"
	"github.com/born-ml/fusedcheck/internal/parallel"
	"github.com/born-ml/fusedcheck/internal/tensor"
)

// FusedKernel is a host implementation of the fused dconv/drelu/dbn backward
// operator. It sees only the named contract inputs, never the layers or the
// reference graph, and accumulates in float32 the way a device kernel would.
//
// Stages:
//  1. Recover the convolution input: Conv_X, or relu(eqscale*BN1_X + eqbias).
//     The ReLU mask is Conv_X > 0, or in the plain topology the sign of the
//     batch-norm output rebuilt from the Float32 mean, inv_std, scale and bias.
//  2. dgrad of dY through W, plus dY_branch, masked by the ReLU.
//  3. wgrad of dY against the recovered convolution input.
//  4. Per-channel sums of the masked gradient (dBeta) and of gradient*xhat (dGamma).
//  5. Batch-norm input gradients from the saved mean and inv_std.
type FusedKernel struct {
	cfg parallel.Config
}

// NewFusedKernel creates a host fused kernel using the default worker pool.
func NewFusedKernel() *FusedKernel {
	return &FusedKernel{cfg: parallel.DefaultConfig()}
}

// WithParallel returns a copy of the kernel using cfg.
func (k *FusedKernel) WithParallel(cfg parallel.Config) *FusedKernel {
	return &FusedKernel{cfg: cfg}
}

// Name returns the kernel name.
func (k *FusedKernel) Name() string {
	return "cpu"
}

var _ fused.Kernel = (*FusedKernel)(nil)

// bnSide holds the per-channel inputs of one batch-norm branch.
type bnSide struct {
	x      []float32
	mean   []float32
	invStd []float32
	gamma  []float32
}

func loadBN(feed fused.Feed, x, mean, invStd, scale string) bnSide {
	return bnSide{
		x:      feed[x].Float32s(),
		mean:   feed[mean].Float32s(),
		invStd: feed[invStd].Float32s(),
		gamma:  feed[scale].Float32s(),
	}
}

// Run executes the fused backward pass.
func (k *FusedKernel) Run(attrs fused.Attributes, feed fused.Feed) (fused.Fetch, error) {
	topo, err := attrs.Topology()
	if err != nil {
		return nil, err
	}
	geom, err := fused.ValidateFeed(attrs, feed)
	if err != nil {
		return nil, fmt.Errorf("cpu fused kernel: %w", err)
	}
	g := newConvGeometry("fused", geom.Input, geom.Weight, attrs.Conv())

	dy := feed[fused.InDY].Float32s()
	w := feed[fused.InW].Float32s()
	bn1 := loadBN(feed, fused.InBN1X, fused.InBN1Mean, fused.InBN1InvStd, fused.InBN1Scale)

	// Stage 1.
	var convX []float32
	var active []bool
	if topo.HasSecondInput() {
		convX = feed[fused.InConvX].Float32s()
		active = make([]bool, len(convX))
		for i, v := range convX {
			active[i] = v > 0
		}
	} else {
		convX = recomputeConvInput(bn1.x, feed[fused.InBN1EqScale].Float32s(), feed[fused.InBN1EqBias].Float32s(), g.c)
		active = bn1.positive(feed[fused.InBN1Bias].Float32s())
	}

	// Stage 2.
	var branch []float32
	if topo.FuseAdd() {
		branch = feed[fused.InDYBranch].Float32s()
	}
	grad := k.dgradRelu(dy, w, active, branch, g)

	// Stage 3.
	dw := k.wgrad(dy, convX, g)

	fetch := fused.Fetch{
		fused.OutDW: tensor.MustFromFloat32s(dw, geom.Weight, tensor.Float16, tensor.CPU),
	}

	// Stages 4 and 5.
	dx1, dGamma1, dBeta1 := k.bnBackward(bn1, grad, g.c)
	channel := tensor.Shape{g.c}
	fetch[fused.OutBN1DX] = tensor.MustFromFloat32s(dx1, geom.Input, tensor.Float16, tensor.CPU)
	fetch[fused.OutBN1DGamma] = tensor.MustFromFloat32s(dGamma1, channel, tensor.Float32, tensor.CPU)
	fetch[fused.OutBN1DBeta] = tensor.MustFromFloat32s(dBeta1, channel, tensor.Float32, tensor.CPU)

	switch topo.Variant() {
	case fused.Shortcut:
		// The raw shortcut input receives the masked gradient unchanged.
		fetch[fused.OutBN2DX] = tensor.MustFromFloat32s(grad, geom.Input, tensor.Float16, tensor.CPU)
	case fused.Dual:
		bn2 := loadBN(feed, fused.InBN2X, fused.InBN2Mean, fused.InBN2InvStd, fused.InBN2Scale)
		dx2, dGamma2, dBeta2 := k.bnBackward(bn2, grad, g.c)
		fetch[fused.OutBN2DX] = tensor.MustFromFloat32s(dx2, geom.Input, tensor.Float16, tensor.CPU)
		fetch[fused.OutBN2DGamma] = tensor.MustFromFloat32s(dGamma2, channel, tensor.Float32, tensor.CPU)
		fetch[fused.OutBN2DBeta] = tensor.MustFromFloat32s(dBeta2, channel, tensor.Float32, tensor.CPU)
	}

	return fetch, nil
}

// recomputeConvInput applies the fused affine coefficients and the ReLU.
func recomputeConvInput(x, eqScale, eqBias []float32, channels int) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		c := i % channels
		if y := eqScale[c]*v + eqBias[c]; y > 0 {
			out[i] = y
		}
	}
	return out
}

// positive reports, per element, whether the batch-norm output is above zero.
func (bn bnSide) positive(beta []float32) []bool {
	channels := len(bn.mean)
	out := make([]bool, len(bn.x))
	for i, v := range bn.x {
		c := i % channels
		out[i] = (v-bn.mean[c])*bn.invStd[c]*bn.gamma[c]+beta[c] > 0
	}
	return out
}

// dgradRelu computes, for every input pixel, the sum of the output gradients
// whose receptive field covers it, adds the branch gradient, and applies the
// ReLU mask. Work is split by pixel.
func (k *FusedKernel) dgradRelu(dy, w []float32, active []bool, branch []float32, g convGeometry) []float32 {
	grad := make([]float32, g.n*g.h*g.w*g.c)
	taps := g.kh * g.kw

	parallel.For(g.n*g.h*g.w, func(p int) {
		n := p / (g.h * g.w)
		iy := (p / g.w) % g.h
		ix := p % g.w
		out := grad[p*g.c : (p+1)*g.c]

		for ky := 0; ky < g.kh; ky++ {
			oy, ok := outputCoord(iy, ky, g.stride[0], g.pad[0], g.dilation[0], g.oh)
			if !ok {
				continue
			}
			for kx := 0; kx < g.kw; kx++ {
				ox, ok := outputCoord(ix, kx, g.stride[1], g.pad[1], g.dilation[1], g.ow)
				if !ok {
					continue
				}
				dyRow := dy[((n*g.oh+oy)*g.ow+ox)*g.k:]
				tap := ky*g.kw + kx
				for oc := 0; oc < g.k; oc++ {
					d := dyRow[oc]
					wk := w[oc*g.c*taps+tap:]
					for c := range out {
						out[c] += d * wk[c*taps]
					}
				}
			}
		}

		for c := range out {
			i := p*g.c + c
			if branch != nil {
				out[c] += branch[i]
			}
			if !active[i] {
				out[c] = 0
			}
		}
	}, k.cfg)

	return grad
}

// outputCoord inverts in = out*stride - pad + tap*dilation for one axis.
func outputCoord(in, tap, stride, pad, dilation, extent int) (int, bool) {
	num := in + pad - tap*dilation
	if num < 0 || num%stride != 0 {
		return 0, false
	}
	out := num / stride
	return out, out < extent
}

// wgrad correlates dY with the convolution input; one output channel per item.
func (k *FusedKernel) wgrad(dy, convX []float32, g convGeometry) []float32 {
	dw := make([]float32, g.k*g.colWidth)
	taps := g.kh * g.kw

	parallel.For(g.k, func(oc int) {
		row := dw[oc*g.colWidth : (oc+1)*g.colWidth]
		for n := 0; n < g.n; n++ {
			for oy := 0; oy < g.oh; oy++ {
				for ox := 0; ox < g.ow; ox++ {
					d := dy[((n*g.oh+oy)*g.ow+ox)*g.k+oc]
					if d == 0 {
						continue
					}
					for ky := 0; ky < g.kh; ky++ {
						for kx := 0; kx < g.kw; kx++ {
							src := g.inputIndex(n, oy, ox, ky, kx)
							if src < 0 {
								continue
							}
							tap := ky*g.kw + kx
							for c := 0; c < g.c; c++ {
								row[c*taps+tap] += d * convX[src+c]
							}
						}
					}
				}
			}
		}
	}, k.cfg)

	return dw
}

// bnBackward reduces the masked gradient per channel and forms the batch-norm
// input gradient. One channel per item.
func (k *FusedKernel) bnBackward(bn bnSide, grad []float32, channels int) (dx, dGamma, dBeta []float32) {
	rows := len(grad) / channels
	m := float32(rows)
	dx = make([]float32, len(grad))
	dGamma = make([]float32, channels)
	dBeta = make([]float32, channels)

	parallel.For(channels, func(c int) {
		mean, inv := bn.mean[c], bn.invStd[c]
		var sumG, sumGX float32
		for r := 0; r < rows; r++ {
			i := r*channels + c
			sumG += grad[i]
			sumGX += grad[i] * (bn.x[i] - mean) * inv
		}
		dBeta[c] = sumG
		dGamma[c] = sumGX

		coef := bn.gamma[c] * inv / m
		for r := 0; r < rows; r++ {
			i := r*channels + c
			xhat := (bn.x[i] - mean) * inv
			dx[i] = coef * (m*grad[i] - sumG - xhat*sumGX)
		}
	}, k.cfg)

	return dx, dGamma, dBeta
}
