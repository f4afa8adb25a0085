// Package fused describes the contract of the fused dconv/drelu/dbn backward
// kernel: which topology it runs, which named tensors it consumes and produces,
// and how those outputs line up with the canonical gradient order.
package fused

import (
	"errors"
	"fmt"
)

// ErrConflictingTopology is returned when both the shortcut and the dual
// branch are requested. The two are mutually exclusive.
var ErrConflictingTopology = errors.New("fused: fuse_shortcut and fuse_dual are mutually exclusive")

// Variant selects what is combined with the first batch-norm output before ReLU.
type Variant uint8

// Supported variants.
const (
	// Plain: X1 -> BN1 -> ReLU -> Conv -> Y1.
	Plain Variant = iota
	// Dual: BN1(X1) + BN2(X2) -> ReLU -> Conv -> Y1.
	Dual
	// Shortcut: BN1(X1) + X2 -> ReLU -> Conv -> Y1.
	Shortcut
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case Plain:
		return "plain"
	case Dual:
		return "dual"
	case Shortcut:
		return "shortcut"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// Topology is a validated variant plus the orthogonal add flag. With add set,
// the post-ReLU activation is also emitted as Y2 and receives its own upstream
// gradient.
//
// The zero value is the Plain topology without add.
type Topology struct {
	variant Variant
	add     bool
}

// NewTopology builds a topology from the three kernel flags.
// It fails with ErrConflictingTopology when fuseShortcut and fuseDual are both set.
func NewTopology(fuseShortcut, fuseDual, fuseAdd bool) (Topology, error) {
	switch {
	case fuseShortcut && fuseDual:
		return Topology{}, ErrConflictingTopology
	case fuseDual:
		return Topology{variant: Dual, add: fuseAdd}, nil
	case fuseShortcut:
		return Topology{variant: Shortcut, add: fuseAdd}, nil
	default:
		return Topology{variant: Plain, add: fuseAdd}, nil
	}
}

// MustTopology is like NewTopology but panics on conflicting flags.
func MustTopology(fuseShortcut, fuseDual, fuseAdd bool) Topology {
	t, err := NewTopology(fuseShortcut, fuseDual, fuseAdd)
	if err != nil {
		panic(err)
	}
	return t
}

// Topologies returns every valid topology in a stable order.
func Topologies() []Topology {
	var out []Topology
	for _, add := range []bool{false, true} {
		for _, v := range []Variant{Plain, Shortcut, Dual} {
			out = append(out, Topology{variant: v, add: add})
		}
	}
	return out
}

// Variant returns the branch variant.
func (t Topology) Variant() Variant { return t.variant }

// FuseShortcut reports whether raw X2 is added before ReLU.
func (t Topology) FuseShortcut() bool { return t.variant == Shortcut }

// FuseDual reports whether BN2(X2) is added before ReLU.
func (t Topology) FuseDual() bool { return t.variant == Dual }

// FuseAdd reports whether the post-ReLU activation is a second output.
func (t Topology) FuseAdd() bool { return t.add }

// HasSecondInput reports whether X2 participates (shortcut or dual).
func (t Topology) HasSecondInput() bool { return t.variant != Plain }

// String returns e.g. "plain", "dual+add".
func (t Topology) String() string {
	if t.add {
		return t.variant.String() + "+add"
	}
	return t.variant.String()
}

// InputNames lists the named kernel inputs this topology requires.
func (t Topology) InputNames() []string {
	names := []string{InDY, InW, InBN1Mean, InBN1InvStd, InBN1Scale, InBN1Bias, InBN1X}
	if t.add {
		names = append(names, InDYBranch)
	}
	if t.FuseShortcut() {
		names = append(names, InReluX)
	}
	if t.FuseDual() {
		names = append(names, InBN2Mean, InBN2InvStd, InBN2Scale, InBN2Bias, InBN2X)
	}
	if t.HasSecondInput() {
		names = append(names, InConvX)
	} else {
		names = append(names, InBN1EqScale, InBN1EqBias)
	}
	return names
}

// OutputNames lists the kernel outputs in canonical gradient order.
func (t Topology) OutputNames() []string {
	names := []string{OutDW, OutBN1DX, OutBN1DGamma, OutBN1DBeta}
	if t.HasSecondInput() {
		names = append(names, OutBN2DX)
	}
	if t.FuseDual() {
		names = append(names, OutBN2DGamma, OutBN2DBeta)
	}
	return names
}
