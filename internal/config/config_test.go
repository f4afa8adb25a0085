package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fusedcheck/internal/fused"
	"github.com/born-ml/fusedcheck/internal/tensor"
)

func TestDefaultSuite(t *testing.T) {
	cases := DefaultSuite()
	require.Len(t, cases, 6)

	names := map[string]bool{}
	for _, c := range cases {
		require.NoError(t, c.Validate(), c.Name)
		topo, err := c.Topology()
		require.NoError(t, err)
		assert.Equal(t, c.Name, topo.String())
		names[c.Name] = true
	}
	assert.Len(t, names, 6)

	out, err := cases[0].OutputShape()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 5, 5, 32}, out)
}

func TestCase_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Case)
	}{
		{"no name", func(c *Case) { c.Name = "" }},
		{"3d input", func(c *Case) { c.InputSize = []int{5, 5, 16} }},
		{"zero dim", func(c *Case) { c.InputSize = []int{2, 0, 5, 16} }},
		{"filter channels", func(c *Case) { c.FilterSize = []int{32, 8, 1, 1} }},
		{"groups", func(c *Case) { c.Groups = 2; c.FilterSize = []int{32, 8, 1, 1} }},
		{"indivisible groups", func(c *Case) { c.Groups = 3 }},
		{"shortcut and dual", func(c *Case) { c.FuseShortcut, c.FuseDual = true, true }},
		{"stride entries", func(c *Case) { c.Strides = []int{1} }},
		{"zero stride", func(c *Case) { c.Strides = []int{0, 1} }},
		{"kernel too large", func(c *Case) { c.FilterSize = []int{32, 16, 7, 7} }},
		{"epsilon", func(c *Case) { c.Epsilon = 0 }},
		{"momentum", func(c *Case) { c.Momentum = 1.5 }},
		{"tolerance", func(c *Case) { c.ATol = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultCase()
			tt.modify(&c)
			require.ErrorIs(t, c.Validate(), ErrInvalidCase)
		})
	}
}

func TestCase_ConflictingFlagsWrapTopologyError(t *testing.T) {
	c := DefaultCase()
	c.FuseShortcut, c.FuseDual = true, true
	err := c.Validate()
	require.ErrorIs(t, err, ErrInvalidCase)
	require.ErrorIs(t, err, fused.ErrConflictingTopology)
}

func TestParseSuite_AppliesDefaults(t *testing.T) {
	cases, err := ParseSuite([]byte(`
cases:
  - name: dual+add
    fuse_dual: true
    fuse_add: true
    seed: 7
  - name: strided
    input_size: [1, 9, 9, 8]
    filter_size: [4, 8, 3, 3]
    strides: [2, 2]
    paddings: [1, 1]
    dilations: [1, 2]
    atol: 0.05
`))
	require.NoError(t, err)
	require.Len(t, cases, 2)

	dual := cases[0]
	assert.True(t, dual.FuseDual)
	assert.True(t, dual.FuseAdd)
	assert.Equal(t, uint64(7), dual.Seed)
	assert.Equal(t, []int{2, 5, 5, 16}, dual.InputSize)
	assert.Equal(t, 0.9, dual.Momentum)
	assert.Equal(t, 1e-5, dual.Epsilon)
	assert.Equal(t, 2e-2, dual.ATol)

	strided := cases[1]
	assert.Equal(t, tensor.Conv2DParams{
		Strides:   [2]int{2, 2},
		Paddings:  [2]int{1, 1},
		Dilations: [2]int{1, 2},
	}, strided.Conv())
	assert.Equal(t, 0.05, strided.ATol)
	assert.Equal(t, 1e-5, strided.RTol)
}

func TestParseSuite_Errors(t *testing.T) {
	_, err := ParseSuite([]byte("cases: []"))
	require.ErrorIs(t, err, ErrInvalidCase)

	_, err = ParseSuite([]byte("cases:\n  - fuse_add: true\n"))
	require.ErrorIs(t, err, ErrInvalidCase, "name is required")

	_, err = ParseSuite([]byte("cases:\n  - name: a\n  - name: a\n"))
	require.ErrorIs(t, err, ErrInvalidCase)

	_, err = ParseSuite([]byte("cases: {"))
	require.Error(t, err)
}

func TestLoadSuite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cases:\n  - name: shortcut\n    fuse_shortcut: true\n"), 0o600))

	cases, err := LoadSuite(path)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.True(t, cases[0].FuseShortcut)

	_, err = LoadSuite(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSelect(t *testing.T) {
	c, err := Select(DefaultSuite(), "dual")
	require.NoError(t, err)
	assert.True(t, c.FuseDual)

	_, err = Select(DefaultSuite(), "triple")
	require.Error(t, err)
}
