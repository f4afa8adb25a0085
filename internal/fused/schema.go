package fused

import (
	"errors"
	"fmt"
	"sort"

	"github.com/born-ml/fusedcheck/internal/tensor"
)

// ErrSchema is returned when a feed or fetch does not match the contract.
var ErrSchema = errors.New("fused: schema violation")

// Feed maps kernel input names to tensors.
type Feed map[string]*tensor.RawTensor

// Fetch maps kernel output names to tensors.
type Fetch map[string]*tensor.RawTensor

// Geometry holds the shapes every slot role resolves to.
type Geometry struct {
	Input  tensor.Shape // [N, H, W, C]
	Weight tensor.Shape // [K, C, kH, kW]
	Output tensor.Shape // [N, OH, OW, K]
}

// ResolveGeometry derives slot shapes from the feed's BN1_X and W.
func ResolveGeometry(attrs Attributes, feed Feed) (Geometry, error) {
	x, w := feed[InBN1X], feed[InW]
	if x == nil || w == nil {
		return Geometry{}, fmt.Errorf("%w: %s and %s are required", ErrSchema, InBN1X, InW)
	}
	out, err := attrs.Conv().OutputShape(x.Shape(), w.Shape())
	if err != nil {
		return Geometry{}, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return Geometry{Input: x.Shape(), Weight: w.Shape(), Output: out}, nil
}

func (g Geometry) shapeOf(r role) tensor.Shape {
	switch r {
	case roleActivation:
		return g.Input
	case roleConvOut:
		return g.Output
	case roleWeight:
		return g.Weight
	default:
		return tensor.Shape{g.Input.Channels()}
	}
}

// ValidateFeed checks that feed holds exactly the inputs the topology requires,
// each with the prescribed dtype and shape.
func ValidateFeed(attrs Attributes, feed Feed) (Geometry, error) {
	topo, err := attrs.Topology()
	if err != nil {
		return Geometry{}, err
	}
	geom, err := ResolveGeometry(attrs, feed)
	if err != nil {
		return Geometry{}, err
	}
	if err := checkSlots(topo.InputNames(), map[string]*tensor.RawTensor(feed), geom, "input"); err != nil {
		return Geometry{}, err
	}
	return geom, nil
}

// ValidateFetch checks that fetch holds exactly the outputs the topology produces.
func ValidateFetch(attrs Attributes, geom Geometry, fetch Fetch) error {
	topo, err := attrs.Topology()
	if err != nil {
		return err
	}
	return checkSlots(topo.OutputNames(), map[string]*tensor.RawTensor(fetch), geom, "output")
}

func checkSlots(required []string, got map[string]*tensor.RawTensor, geom Geometry, kind string) error {
	want := make(map[string]bool, len(required))
	for _, name := range required {
		want[name] = true
		t := got[name]
		if t == nil {
			return fmt.Errorf("%w: missing %s %q", ErrSchema, kind, name)
		}
		s := slots[name]
		if t.DType() != s.dtype {
			return fmt.Errorf("%w: %s %q has dtype %s, want %s", ErrSchema, kind, name, t.DType(), s.dtype)
		}
		if shape := geom.shapeOf(s.role); !t.Shape().Equal(shape) {
			return fmt.Errorf("%w: %s %q has shape %v, want %v", ErrSchema, kind, name, t.Shape(), shape)
		}
	}

	var extra []string
	for name := range got {
		if !want[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("%w: unexpected %ss %v", ErrSchema, kind, extra)
	}
	return nil
}
