// Package nn implements the layers of the reference pass.
//
// This package provides:
//   - Module interface: Base interface for layers with trainable state
//   - Parameter: Trainable parameters with gradient slots
//   - BatchNorm: Training-mode batch normalization with running statistics
//   - Conv2D: Bias-free channel-last convolution
//
// Forward methods return the recorded operation next to the output, so the
// caller decides how backward rules are chained.
package nn

// Module is the base interface for all layers with trainable parameters.
type Module interface {
	// Parameters returns all trainable parameters of this module.
	Parameters() []*Parameter

	// String returns a short description of the layer.
	String() string
}

var (
	_ Module = (*BatchNorm)(nil)
	_ Module = (*Conv2D)(nil)
)
