package tensor

import "fmt"

// Conv2DParams describes the geometry of a 2-D convolution.
// Index 0 refers to the height axis, index 1 to the width axis.
type Conv2DParams struct {
	Strides   [2]int
	Paddings  [2]int
	Dilations [2]int
}

// DefaultConv2DParams returns unit stride, zero padding and unit dilation.
func DefaultConv2DParams() Conv2DParams {
	return Conv2DParams{
		Strides:   [2]int{1, 1},
		Paddings:  [2]int{0, 0},
		Dilations: [2]int{1, 1},
	}
}

// Validate checks that strides and dilations are positive and paddings non-negative.
func (p Conv2DParams) Validate() error {
	for i := 0; i < 2; i++ {
		if p.Strides[i] <= 0 {
			return fmt.Errorf("conv2d: stride[%d] must be > 0, got %d", i, p.Strides[i])
		}
		if p.Dilations[i] <= 0 {
			return fmt.Errorf("conv2d: dilation[%d] must be > 0, got %d", i, p.Dilations[i])
		}
		if p.Paddings[i] < 0 {
			return fmt.Errorf("conv2d: padding[%d] must be >= 0, got %d", i, p.Paddings[i])
		}
	}
	return nil
}

// OutputSize computes the spatial output extent along one axis:
//
//	out = (in + 2*pad - (dil*(k-1) + 1)) / stride + 1
func (p Conv2DParams) OutputSize(axis, in, kernel int) int {
	effective := p.Dilations[axis]*(kernel-1) + 1
	return (in+2*p.Paddings[axis]-effective)/p.Strides[axis] + 1
}

// OutputShape returns the NHWC output shape for an NHWC input and a
// [K, C, kH, kW] weight. Only single-group convolution is supported.
func (p Conv2DParams) OutputShape(input, weight Shape) (Shape, error) {
	if len(input) != 4 {
		return nil, fmt.Errorf("conv2d: input must be 4D [N,H,W,C], got %dD", len(input))
	}
	if len(weight) != 4 {
		return nil, fmt.Errorf("conv2d: weight must be 4D [K,C,kH,kW], got %dD", len(weight))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n, h, w, c := input.NHWC()
	if weight[1] != c {
		return nil, fmt.Errorf("conv2d: input channels %d != weight channels %d", c, weight[1])
	}
	outH := p.OutputSize(0, h, weight[2])
	outW := p.OutputSize(1, w, weight[3])
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", outH, outW)
	}
	return Shape{n, outH, outW, weight[0]}, nil
}
