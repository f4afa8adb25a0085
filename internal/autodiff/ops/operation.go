// Package ops defines the differentiable primitives of the reference pass.
//
// Each operation records its forward inputs and output, and provides:
//   - Backward: input gradients given the output gradient, computed by the backend
//
// Supported operations:
//   - AddOp: element-wise addition (d(a+b)/da = 1, d(a+b)/db = 1)
//   - ReLUOp: rectified linear unit (d(ReLU(x))/dx = 1 if x > 0, else 0)
//   - Conv2DOp: channel-last convolution (data and weight gradients)
//   - BatchNormOp: training-mode batch norm (input, scale and bias gradients)
package ops

import "github.com/born-ml/fusedcheck/internal/tensor"

// Operation represents a differentiable operation.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor.
	//
	// Example for AddOp:
	//   inputs: [a, b]
	//   outputGrad: dL/d(a+b)
	//   returns: [dL/d(a+b), dL/d(a+b)] (gradient flows equally to both inputs)
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}
