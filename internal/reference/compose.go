// Package reference computes the expected gradients of the
// BN -> (add) -> ReLU -> Conv block by chaining the standard backward rule of
// every primitive. It is the unfused side of the equivalence check.
package reference

import (
	"fmt"

	"github.com/born-ml/fusedcheck/internal/autodiff/ops"
	"github.com/born-ml/fusedcheck/internal/fused"
	"github.com/born-ml/fusedcheck/internal/nn"
	"github.com/born-ml/fusedcheck/internal/tensor"
)

// Inputs bundles the layers and tensors of one reference pass.
type Inputs struct {
	Topology fused.Topology

	X1  *tensor.RawTensor // [N,H,W,C] Float16
	X2  *tensor.RawTensor // shortcut input or BN2 input; ignored by Plain
	DY1 *tensor.RawTensor // gradient of the conv output
	DY2 *tensor.RawTensor // gradient of the post-ReLU output; add only

	BN1  *nn.BatchNorm
	BN2  *nn.BatchNorm // Dual only
	Conv *nn.Conv2D
}

// Result is the outcome of a reference pass.
type Result struct {
	// Gradients in canonical order.
	Gradients fused.GradientSet

	// ConvX is the post-ReLU activation the convolution consumed.
	ConvX *tensor.RawTensor

	// Output is the convolution output.
	Output *tensor.RawTensor
}

// Compose runs the forward pass in training mode and then the backward rules in
// reverse order:
//
//  1. BN1(X1); Dual adds BN2(X2), Shortcut adds X2
//  2. ReLU, exposed as ConvX
//  3. Conv -> Y1; with add, ConvX is also the second output
//  4. conv backward, + dY2 at ConvX, ReLU backward, add backward, BN backward(s)
//
// Every layer's running statistics are updated once. Parameter gradients are
// also stored on the layers' parameters. Inputs whose shapes disagree with the
// layers panic.
func Compose(backend tensor.Backend, in Inputs) Result {
	topo := in.Topology
	if topo.FuseAdd() && in.DY2 == nil {
		panic("reference: dY2 is required when add is fused")
	}
	if topo.HasSecondInput() && in.X2 == nil {
		panic(fmt.Sprintf("reference: X2 is required for %s", topo))
	}

	// Forward.
	bn1Out, bn1Op := in.BN1.Forward(in.X1)

	preRelu := bn1Out
	var addOp *ops.AddOp
	var bn2Op *ops.BatchNormOp
	switch topo.Variant() {
	case fused.Dual:
		var bn2Out *tensor.RawTensor
		bn2Out, bn2Op = in.BN2.Forward(in.X2)
		preRelu = backend.Add(bn1Out, bn2Out)
		addOp = ops.NewAddOp(bn1Out, bn2Out, preRelu)
	case fused.Shortcut:
		preRelu = backend.Add(bn1Out, in.X2)
		addOp = ops.NewAddOp(bn1Out, in.X2, preRelu)
	}

	convX := backend.ReLU(preRelu)
	reluOp := ops.NewReLUOp(preRelu, convX)

	y1, convOp := in.Conv.Forward(convX)

	// Backward.
	convGrads := convOp.Backward(in.DY1, backend)
	dConvX, dW := convGrads[0], convGrads[1]
	if topo.FuseAdd() {
		dConvX = backend.Add(dConvX, in.DY2)
	}
	dPreRelu := reluOp.Backward(dConvX, backend)[0]

	dBN1Out, dBranch := dPreRelu, (*tensor.RawTensor)(nil)
	if addOp != nil {
		addGrads := addOp.Backward(dPreRelu, backend)
		dBN1Out, dBranch = addGrads[0], addGrads[1]
	}

	bn1Grads := bn1Op.Backward(dBN1Out, backend)
	grads := fused.GradientSet{
		{Name: fused.OutDW, Tensor: dW},
		{Name: fused.OutBN1DX, Tensor: bn1Grads[0]},
		{Name: fused.OutBN1DGamma, Tensor: bn1Grads[1]},
		{Name: fused.OutBN1DBeta, Tensor: bn1Grads[2]},
	}
	in.Conv.Weight().SetGrad(dW)
	in.BN1.Gamma.SetGrad(bn1Grads[1])
	in.BN1.Beta.SetGrad(bn1Grads[2])

	switch topo.Variant() {
	case fused.Shortcut:
		grads = append(grads, fused.Gradient{Name: fused.OutBN2DX, Tensor: dBranch})
	case fused.Dual:
		bn2Grads := bn2Op.Backward(dBranch, backend)
		grads = append(grads,
			fused.Gradient{Name: fused.OutBN2DX, Tensor: bn2Grads[0]},
			fused.Gradient{Name: fused.OutBN2DGamma, Tensor: bn2Grads[1]},
			fused.Gradient{Name: fused.OutBN2DBeta, Tensor: bn2Grads[2]},
		)
		in.BN2.Gamma.SetGrad(bn2Grads[1])
		in.BN2.Beta.SetGrad(bn2Grads[2])
	}

	return Result{Gradients: grads, ConvX: convX, Output: y1}
}
