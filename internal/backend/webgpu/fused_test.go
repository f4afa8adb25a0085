package webgpu_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fusedcheck/internal/backend/webgpu"
	"github.com/born-ml/fusedcheck/internal/config"
	"github.com/born-ml/fusedcheck/internal/fused"
	"github.com/born-ml/fusedcheck/internal/oracle"
)

func newKernel(t *testing.T) *webgpu.FusedKernel {
	t.Helper()
	kernel, err := webgpu.NewFusedKernel()
	if err != nil {
		require.ErrorIs(t, err, fused.ErrUnsupported)
		t.Skipf("WebGPU not available: %v", err)
	}
	t.Cleanup(kernel.Release)
	return kernel
}

func TestIsAvailable(t *testing.T) {
	t.Logf("WebGPU available: %v", webgpu.IsAvailable())
}

func TestFusedKernel_UnsupportedIsSkippable(t *testing.T) {
	_, err := webgpu.NewFusedKernel()
	if err == nil {
		t.Skip("WebGPU is available")
	}
	assert.True(t, errors.Is(err, fused.ErrUnsupported))
}

func TestFusedKernel_DefaultSuite(t *testing.T) {
	kernel := newKernel(t)
	o := oracle.New(kernel)

	for _, c := range config.DefaultSuite() {
		t.Run(c.Name, func(t *testing.T) {
			require.NoError(t, o.Check(c))
		})
	}
}

func TestFusedKernel_StridedGeometry(t *testing.T) {
	kernel := newKernel(t)

	c := config.DefaultCase()
	c.Name = "strided"
	c.InputSize = []int{2, 9, 9, 8}
	c.FilterSize = []int{16, 8, 3, 3}
	c.Strides = []int{2, 2}
	c.Paddings = []int{1, 1}
	c.Dilations = []int{1, 2}
	c.FuseDual = true
	c.FuseAdd = true
	c.Seed = 11

	require.NoError(t, oracle.New(kernel).Check(c))
}
