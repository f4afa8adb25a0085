package fused

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTopology_RejectsShortcutAndDual(t *testing.T) {
	for _, add := range []bool{false, true} {
		_, err := NewTopology(true, true, add)
		require.ErrorIs(t, err, ErrConflictingTopology)
	}
	assert.Panics(t, func() { MustTopology(true, true, false) })
}

func TestNewTopology_Variants(t *testing.T) {
	tests := []struct {
		shortcut, dual, add bool
		want                string
	}{
		{false, false, false, "plain"},
		{false, false, true, "plain+add"},
		{true, false, false, "shortcut"},
		{true, false, true, "shortcut+add"},
		{false, true, false, "dual"},
		{false, true, true, "dual+add"},
	}
	for _, tt := range tests {
		topo, err := NewTopology(tt.shortcut, tt.dual, tt.add)
		require.NoError(t, err)
		assert.Equal(t, tt.want, topo.String())
		assert.Equal(t, tt.shortcut, topo.FuseShortcut())
		assert.Equal(t, tt.dual, topo.FuseDual())
		assert.Equal(t, tt.add, topo.FuseAdd())
	}
}

func TestTopologies_AllDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, topo := range Topologies() {
		assert.False(t, seen[topo.String()])
		seen[topo.String()] = true
	}
	assert.Len(t, seen, 6)
}

func TestTopology_OutputNames(t *testing.T) {
	assert.Equal(t,
		[]string{OutDW, OutBN1DX, OutBN1DGamma, OutBN1DBeta},
		MustTopology(false, false, true).OutputNames())
	assert.Equal(t,
		[]string{OutDW, OutBN1DX, OutBN1DGamma, OutBN1DBeta, OutBN2DX},
		MustTopology(true, false, false).OutputNames())
	assert.Equal(t,
		[]string{OutDW, OutBN1DX, OutBN1DGamma, OutBN1DBeta, OutBN2DX, OutBN2DGamma, OutBN2DBeta},
		MustTopology(false, true, true).OutputNames())
}

func TestTopology_AddChangesInputsOnly(t *testing.T) {
	for _, v := range []struct{ shortcut, dual bool }{{false, false}, {true, false}, {false, true}} {
		without := MustTopology(v.shortcut, v.dual, false)
		with := MustTopology(v.shortcut, v.dual, true)

		assert.Equal(t, without.OutputNames(), with.OutputNames())
		assert.NotContains(t, without.InputNames(), InDYBranch)
		assert.Contains(t, with.InputNames(), InDYBranch)
		assert.Len(t, with.InputNames(), len(without.InputNames())+1)
	}
}

func TestTopology_InputNames(t *testing.T) {
	plain := MustTopology(false, false, false).InputNames()
	assert.Contains(t, plain, InBN1EqScale)
	assert.Contains(t, plain, InBN1EqBias)
	assert.NotContains(t, plain, InConvX)

	shortcut := MustTopology(true, false, false).InputNames()
	assert.Contains(t, shortcut, InReluX)
	assert.Contains(t, shortcut, InConvX)
	assert.NotContains(t, shortcut, InBN1EqScale)
	assert.NotContains(t, shortcut, InBN2X)

	dual := MustTopology(false, true, false).InputNames()
	for _, name := range []string{InBN2Mean, InBN2InvStd, InBN2Scale, InBN2Bias, InBN2X, InConvX} {
		assert.Contains(t, dual, name)
	}
	assert.NotContains(t, dual, InReluX)
}

func TestAttributes_Topology(t *testing.T) {
	attrs := Attributes{FuseShortcut: true, FuseDual: true}
	_, err := attrs.Topology()
	require.ErrorIs(t, err, ErrConflictingTopology)

	attrs = NewAttributes(defaultConv(), MustTopology(false, true, true))
	topo, err := attrs.Topology()
	require.NoError(t, err)
	assert.Equal(t, "dual+add", topo.String())
	assert.Equal(t, defaultConv(), attrs.Conv())
}
