package fused

import (
	"fmt"

	"github.com/born-ml/fusedcheck/internal/tensor"
)

// Gradient is one named entry of a GradientSet.
type Gradient struct {
	Name   string
	Tensor *tensor.RawTensor
}

// GradientSet is an ordered list of gradients in canonical order:
// dW, BN1_dX, BN1_dGamma, BN1_dBeta, [BN2_dX], [BN2_dGamma, BN2_dBeta].
type GradientSet []Gradient

// Names returns the gradient names in order.
func (g GradientSet) Names() []string {
	names := make([]string, len(g))
	for i, grad := range g {
		names[i] = grad.Name
	}
	return names
}

// Get returns the tensor stored under name, or nil.
func (g GradientSet) Get(name string) *tensor.RawTensor {
	for _, grad := range g {
		if grad.Name == name {
			return grad.Tensor
		}
	}
	return nil
}

// CollectGradients orders a kernel fetch into the canonical GradientSet.
func CollectGradients(topo Topology, fetch Fetch) (GradientSet, error) {
	names := topo.OutputNames()
	set := make(GradientSet, 0, len(names))
	for _, name := range names {
		t, ok := fetch[name]
		if !ok || t == nil {
			return nil, fmt.Errorf("%w: missing output %q", ErrSchema, name)
		}
		set = append(set, Gradient{Name: name, Tensor: t})
	}
	return set, nil
}
