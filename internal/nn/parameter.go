package nn

import (
	"github.com/born-ml/fusedcheck/internal/tensor"
)

// Parameter represents a trainable parameter of a layer.
//
// Example:
//
//	// Create a weight parameter
//	weight := nn.NewParameter("weight", weightTensor)
//
//	// Access the tensor
//	w := weight.Tensor()
//
//	// Get gradient after a backward pass
//	grad := weight.Grad()
type Parameter struct {
	name   string            // Parameter name (e.g., "conv.weight", "bn1.scale")
	tensor *tensor.RawTensor // The parameter tensor
	grad   *tensor.RawTensor // Gradient tensor (set by a backward pass)
}

// NewParameter creates a new trainable parameter.
//
// The parameter tensor should be initialized before creating the Parameter.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// Grad returns the gradient tensor.
//
// Returns nil if no gradient has been computed yet (before backward pass).
func (p *Parameter) Grad() *tensor.RawTensor {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter) SetGrad(grad *tensor.RawTensor) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}
