// Package config describes equivalence test cases and loads them from YAML.
package config

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/fusedcheck/internal/fused"
	"github.com/born-ml/fusedcheck/internal/tensor"
)

// ErrInvalidCase is returned when a case violates a precondition.
var ErrInvalidCase = errors.New("config: invalid case")

// Case configures one equivalence check.
type Case struct {
	// Name identifies the case in logs and reports.
	Name string `yaml:"name"`

	// InputSize is [N, H, W, C]; FilterSize is [K, C/groups, kH, kW].
	InputSize  []int `yaml:"input_size"`
	FilterSize []int `yaml:"filter_size"`

	// Convolution geometry, [height, width].
	Strides   []int `yaml:"strides"`
	Paddings  []int `yaml:"paddings"`
	Dilations []int `yaml:"dilations"`
	Groups    int   `yaml:"groups"`

	// Batch-norm hyperparameters shared by both normalization layers.
	Momentum float64 `yaml:"momentum"`
	Epsilon  float64 `yaml:"epsilon"`

	// Topology flags. FuseShortcut and FuseDual are mutually exclusive.
	FuseShortcut bool `yaml:"fuse_shortcut"`
	FuseDual     bool `yaml:"fuse_dual"`
	FuseAdd      bool `yaml:"fuse_add"`

	// Seed drives every random draw of the case.
	Seed uint64 `yaml:"seed"`

	// Comparison tolerance: |actual - expected| <= ATol + RTol*|expected|.
	RTol float64 `yaml:"rtol"`
	ATol float64 `yaml:"atol"`
}

// DefaultCase returns the plain topology on a [2,5,5,16] input with a
// 32-filter 1x1 convolution.
func DefaultCase() Case {
	return Case{
		Name:       "plain",
		InputSize:  []int{2, 5, 5, 16},
		FilterSize: []int{32, 16, 1, 1},
		Strides:    []int{1, 1},
		Paddings:   []int{0, 0},
		Dilations:  []int{1, 1},
		Groups:     1,
		Momentum:   0.9,
		Epsilon:    1e-5,
		RTol:       1e-5,
		ATol:       2e-2,
	}
}

// UnmarshalYAML fills fields missing from the document with DefaultCase values.
func (c *Case) UnmarshalYAML(value *yaml.Node) error {
	type plain Case
	p := plain(DefaultCase())
	p.Name = ""
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = Case(p)
	return nil
}

func (c Case) invalid(format string, args ...any) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidCase, c.Name, fmt.Sprintf(format, args...))
}

// Validate checks shapes, geometry and topology flags.
func (c Case) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCase)
	}
	if len(c.InputSize) != 4 {
		return c.invalid("input_size must have 4 dimensions [N,H,W,C], got %v", c.InputSize)
	}
	if len(c.FilterSize) != 4 {
		return c.invalid("filter_size must have 4 dimensions [K,C,kH,kW], got %v", c.FilterSize)
	}
	if err := tensor.Shape(c.InputSize).Validate(); err != nil {
		return c.invalid("input_size: %v", err)
	}
	if err := tensor.Shape(c.FilterSize).Validate(); err != nil {
		return c.invalid("filter_size: %v", err)
	}
	for name, v := range map[string][]int{"strides": c.Strides, "paddings": c.Paddings, "dilations": c.Dilations} {
		if len(v) != 2 {
			return c.invalid("%s must have 2 entries, got %v", name, v)
		}
	}

	channels := c.InputSize[3]
	if c.Groups <= 0 || channels%c.Groups != 0 {
		return c.invalid("channels %d not divisible by groups %d", channels, c.Groups)
	}
	if c.Groups != 1 {
		return c.invalid("grouped convolution (groups=%d) is not supported", c.Groups)
	}
	if c.FilterSize[1] != channels/c.Groups {
		return c.invalid("filter in-channels %d, want %d", c.FilterSize[1], channels/c.Groups)
	}

	if _, err := c.Topology(); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidCase, c.Name, err)
	}
	if _, err := c.Conv().OutputShape(c.InputShape(), c.FilterShape()); err != nil {
		return c.invalid("%v", err)
	}

	if c.Momentum < 0 || c.Momentum > 1 {
		return c.invalid("momentum %g outside [0, 1]", c.Momentum)
	}
	if c.Epsilon <= 0 {
		return c.invalid("epsilon must be positive, got %g", c.Epsilon)
	}
	if c.RTol < 0 || c.ATol < 0 {
		return c.invalid("tolerances must be non-negative, got rtol=%g atol=%g", c.RTol, c.ATol)
	}
	return nil
}

// Topology returns the topology selected by the flags.
func (c Case) Topology() (fused.Topology, error) {
	return fused.NewTopology(c.FuseShortcut, c.FuseDual, c.FuseAdd)
}

// Conv returns the convolution geometry. Call Validate first.
func (c Case) Conv() tensor.Conv2DParams {
	return tensor.Conv2DParams{
		Strides:   [2]int{c.Strides[0], c.Strides[1]},
		Paddings:  [2]int{c.Paddings[0], c.Paddings[1]},
		Dilations: [2]int{c.Dilations[0], c.Dilations[1]},
	}
}

// InputShape returns the activation shape [N, H, W, C].
func (c Case) InputShape() tensor.Shape {
	return tensor.Shape(c.InputSize).Clone()
}

// FilterShape returns the weight shape [K, C, kH, kW].
func (c Case) FilterShape() tensor.Shape {
	return tensor.Shape(c.FilterSize).Clone()
}

// OutputShape returns the convolution output shape [N, OH, OW, K].
func (c Case) OutputShape() (tensor.Shape, error) {
	return c.Conv().OutputShape(c.InputShape(), c.FilterShape())
}
