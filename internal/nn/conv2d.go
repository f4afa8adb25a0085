package nn

import (
	"fmt"

	"github.com/born-ml/fusedcheck/internal/autodiff/ops"
	"github.com/born-ml/fusedcheck/internal/tensor"
)

// Conv2D is a bias-free 2D convolutional layer over channel-last input.
//
// Input shape:  [batch, height, width, in_channels]
// Weight shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_h, out_w, out_channels]
//
// Where:
//
//	out_h = (height + 2*pad_h - (dil_h*(kernel_h-1) + 1)) / stride_h + 1
//	out_w = (width + 2*pad_w - (dil_w*(kernel_w-1) + 1)) / stride_w + 1
//
// Example:
//
//	conv := nn.NewConv2D(16, 32, 1, 1, tensor.DefaultConv2DParams(), sampler, backend)
//	out, op := conv.Forward(x) // [2,5,5,16] -> [2,5,5,32]
type Conv2D struct {
	inChannels  int
	outChannels int
	kernelSize  [2]int
	params      tensor.Conv2DParams

	weight *Parameter // [out_channels, in_channels, kernel_h, kernel_w], Float16

	backend tensor.Backend
}

// NewConv2D creates a new convolution layer with Kaiming normal weights
// stored in half precision.
//
// Parameters:
//   - inChannels: Number of input channels
//   - outChannels: Number of output channels (number of filters)
//   - kernelH, kernelW: Kernel dimensions
//   - params: Strides, paddings and dilations
//   - sampler: Seeded source for the weight initialization
//   - backend: Backend for computation
func NewConv2D(
	inChannels, outChannels int,
	kernelH, kernelW int,
	params tensor.Conv2DParams,
	sampler *tensor.Sampler,
	backend tensor.Backend,
) *Conv2D {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv2d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernelH <= 0 || kernelW <= 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel size h=%d, w=%d", kernelH, kernelW))
	}
	if err := params.Validate(); err != nil {
		panic(err.Error())
	}

	weightShape := tensor.Shape{outChannels, inChannels, kernelH, kernelW}
	fanIn := inChannels * kernelH * kernelW
	weight := KaimingNormal(fanIn, weightShape, sampler, tensor.Float16, backend.Device())

	return &Conv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  [2]int{kernelH, kernelW},
		params:      params,
		weight:      NewParameter("conv2d.weight", weight),
		backend:     backend,
	}
}

// Forward performs the forward pass and returns the recorded operation.
func (c *Conv2D) Forward(input *tensor.RawTensor) (*tensor.RawTensor, *ops.Conv2DOp) {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,H,W,C], got %dD", len(inputShape)))
	}
	if inputShape.Channels() != c.inChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", inputShape.Channels(), c.inChannels))
	}

	w := c.weight.Tensor()
	out := c.backend.Conv2D(input, w, c.params)
	return out, ops.NewConv2DOp(input, w, out, c.params)
}

// Weight returns the weight parameter.
func (c *Conv2D) Weight() *Parameter {
	return c.weight
}

// Parameters returns all trainable parameters.
func (c *Conv2D) Parameters() []*Parameter {
	return []*Parameter{c.weight}
}

// Params returns the convolution geometry.
func (c *Conv2D) Params() tensor.Conv2DParams {
	return c.params
}

// String returns a string representation of the layer.
func (c *Conv2D) String() string {
	return fmt.Sprintf("Conv2D(in_channels=%d, out_channels=%d, kernel_size=(%d, %d), stride=%v, padding=%v, dilation=%v)",
		c.inChannels, c.outChannels,
		c.kernelSize[0], c.kernelSize[1],
		c.params.Strides, c.params.Paddings, c.params.Dilations)
}

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int {
	return c.outChannels
}

// InChannels returns the number of input channels.
func (c *Conv2D) InChannels() int {
	return c.inChannels
}

// KernelSize returns the kernel size [height, width].
func (c *Conv2D) KernelSize() [2]int {
	return c.kernelSize
}
