package tensor

// BatchNormStats are the per-channel batch statistics a batch-norm forward
// pass saves for its backward pass. All tensors are Float32 of shape [C].
type BatchNormStats struct {
	Mean     *RawTensor // batch mean
	Variance *RawTensor // biased batch variance
	InvStd   *RawTensor // 1 / sqrt(variance + epsilon)
}

// Backend defines the primitive operators the reference pass is composed of.
// Backends handle the actual computation; activations are channel-last (NHWC).
//
// Implementations:
//   - CPU: pure Go, float64 accumulation, results rounded to the input dtype
type Backend interface {
	// Element-wise operations
	Add(a, b *RawTensor) *RawTensor

	// Activation functions
	ReLU(x *RawTensor) *RawTensor
	ReLUBackward(input, grad *RawTensor) *RawTensor

	// Convolutional operations (NHWC input, [K, C, kH, kW] weight)
	Conv2D(input, weight *RawTensor, params Conv2DParams) *RawTensor
	Conv2DInputBackward(input, weight, grad *RawTensor, params Conv2DParams) *RawTensor
	Conv2DKernelBackward(input, weight, grad *RawTensor, params Conv2DParams) *RawTensor

	// Normalization (training mode: batch statistics over N*H*W per channel)
	BatchNormForward(x, scale, bias *RawTensor, epsilon float64) (*RawTensor, BatchNormStats)
	BatchNormBackward(x, scale, grad *RawTensor, stats BatchNormStats) (dx, dscale, dbias *RawTensor)

	// Metadata
	Name() string
	Device() Device
}
