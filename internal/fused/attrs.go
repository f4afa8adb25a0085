package fused

import "github.com/born-ml/fusedcheck/internal/tensor"

// Attributes are the kernel attributes: convolution geometry plus topology flags.
type Attributes struct {
	Strides      [2]int
	Paddings     [2]int
	Dilations    [2]int
	FuseShortcut bool
	FuseDual     bool
	FuseAdd      bool
}

// NewAttributes combines a convolution geometry with a validated topology.
func NewAttributes(conv tensor.Conv2DParams, topo Topology) Attributes {
	return Attributes{
		Strides:      conv.Strides,
		Paddings:     conv.Paddings,
		Dilations:    conv.Dilations,
		FuseShortcut: topo.FuseShortcut(),
		FuseDual:     topo.FuseDual(),
		FuseAdd:      topo.FuseAdd(),
	}
}

// Topology validates the flags and returns the topology they select.
func (a Attributes) Topology() (Topology, error) {
	return NewTopology(a.FuseShortcut, a.FuseDual, a.FuseAdd)
}

// Conv returns the convolution geometry.
func (a Attributes) Conv() tensor.Conv2DParams {
	return tensor.Conv2DParams{
		Strides:   a.Strides,
		Paddings:  a.Paddings,
		Dilations: a.Dilations,
	}
}
