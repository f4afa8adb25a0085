package ops

import (
	"github.com/born-ml/fusedcheck/internal/tensor"
)

// Conv2DOp records a channel-last 2D convolution.
//
// Forward: output = Conv2D(input, kernel, params)
//
// Backward (gradients):
//   - d_input:  "transposed convolution" of d_output with kernel
//   - d_kernel: correlation of input with d_output
//
// References:
//   - "A guide to convolution arithmetic for deep learning" (Dumoulin & Visin, 2016)
//   - CS231n: Convolutional Neural Networks for Visual Recognition
type Conv2DOp struct {
	input  *tensor.RawTensor
	kernel *tensor.RawTensor
	output *tensor.RawTensor
	params tensor.Conv2DParams
}

// NewConv2DOp creates a new Conv2D operation.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, params tensor.Conv2DParams) *Conv2DOp {
	return &Conv2DOp{
		input:  input,
		kernel: kernel,
		output: output,
		params: params,
	}
}

// Inputs returns the input tensors.
func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

// Output returns the output tensor.
func (op *Conv2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Params returns the convolution geometry.
func (op *Conv2DOp) Params() tensor.Conv2DParams {
	return op.params
}

// Backward computes gradients for Conv2D.
//
// Given:
//   - outputGrad: ∂L/∂output [N, H_out, W_out, C_out]
//
// Compute:
//   - inputGrad:  ∂L/∂input  [N, H, W, C_in]
//   - kernelGrad: ∂L/∂kernel [C_out, C_in, K_h, K_w]
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.Conv2DInputBackward(op.input, op.kernel, outputGrad, op.params)
	kernelGrad := backend.Conv2DKernelBackward(op.input, op.kernel, outputGrad, op.params)

	return []*tensor.RawTensor{inputGrad, kernelGrad}
}
