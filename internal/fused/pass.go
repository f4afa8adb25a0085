package fused

import (
	"fmt"

	"github.com/born-ml/fusedcheck/internal/stats"
	"github.com/born-ml/fusedcheck/internal/tensor"
)

// Norm is one batch-norm parameterization as the kernel sees it.
type Norm struct {
	Scale   *tensor.RawTensor // [C] Float32
	Bias    *tensor.RawTensor // [C] Float32
	Epsilon float64
}

// PassInputs are the tensors shared with the reference pass.
type PassInputs struct {
	X1  *tensor.RawTensor // BN1 input, [N,H,W,C] Float16
	X2  *tensor.RawTensor // second input; ignored by Plain
	DY1 *tensor.RawTensor // upstream gradient of the conv output
	DY2 *tensor.RawTensor // upstream gradient of the post-ReLU output; add only
	W   *tensor.RawTensor // conv weight, [K,C,kH,kW] Float16

	// ConvX is the post-ReLU activation produced by the reference pass.
	// Required by Shortcut and Dual.
	ConvX *tensor.RawTensor

	BN1 Norm
	BN2 Norm // Dual only
}

// BuildFeed assembles the named kernel inputs for topo. Batch statistics are
// recomputed from the current inputs with stats.Estimate.
func BuildFeed(topo Topology, in PassInputs) (Feed, error) {
	bn1, err := stats.Estimate(in.X1, in.BN1.Scale, in.BN1.Bias, in.BN1.Epsilon)
	if err != nil {
		return nil, fmt.Errorf("fused: BN1 statistics: %w", err)
	}

	feed := Feed{
		InDY:        in.DY1,
		InW:         in.W,
		InBN1Mean:   bn1.Mean,
		InBN1InvStd: bn1.InvStd,
		InBN1Scale:  in.BN1.Scale,
		InBN1Bias:   in.BN1.Bias,
		InBN1X:      in.X1,
	}

	if topo.FuseAdd() {
		feed[InDYBranch] = in.DY2
	}
	if topo.FuseShortcut() {
		feed[InReluX] = in.X2
	}
	if topo.FuseDual() {
		bn2, err := stats.Estimate(in.X2, in.BN2.Scale, in.BN2.Bias, in.BN2.Epsilon)
		if err != nil {
			return nil, fmt.Errorf("fused: BN2 statistics: %w", err)
		}
		feed[InBN2Mean] = bn2.Mean
		feed[InBN2InvStd] = bn2.InvStd
		feed[InBN2Scale] = in.BN2.Scale
		feed[InBN2Bias] = in.BN2.Bias
		feed[InBN2X] = in.X2
	}
	if topo.HasSecondInput() {
		feed[InConvX] = in.ConvX
	} else {
		feed[InBN1EqScale] = bn1.EqScale
		feed[InBN1EqBias] = bn1.EqBias
	}

	for name, t := range feed {
		if t == nil {
			return nil, fmt.Errorf("%w: input %q not provided for %s", ErrSchema, name, topo)
		}
	}
	return feed, nil
}

// Pass runs one fused backward pass through a Kernel and checks both sides of
// the contract.
type Pass struct {
	kernel Kernel
}

// NewPass creates a pass bound to kernel.
func NewPass(kernel Kernel) *Pass {
	return &Pass{kernel: kernel}
}

// Kernel returns the kernel the pass runs.
func (p *Pass) Kernel() Kernel {
	return p.kernel
}

// Run builds the feed, invokes the kernel and returns its outputs in
// canonical gradient order.
func (p *Pass) Run(attrs Attributes, in PassInputs) (GradientSet, error) {
	topo, err := attrs.Topology()
	if err != nil {
		return nil, err
	}
	feed, err := BuildFeed(topo, in)
	if err != nil {
		return nil, err
	}
	geom, err := ValidateFeed(attrs, feed)
	if err != nil {
		return nil, err
	}

	fetch, err := p.kernel.Run(attrs, feed)
	if err != nil {
		return nil, fmt.Errorf("fused: kernel %s: %w", p.kernel.Name(), err)
	}
	if err := ValidateFetch(attrs, geom, fetch); err != nil {
		return nil, fmt.Errorf("fused: kernel %s: %w", p.kernel.Name(), err)
	}
	return CollectGradients(topo, fetch)
}
