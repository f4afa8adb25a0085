//go:build !windows

package webgpu

import (
	"fmt"
	"runtime"

	"github.com/born-ml/fusedcheck/internal/fused"
)

// FusedKernel is unavailable on this platform.
type FusedKernel struct{}

// NewFusedKernel always fails with fused.ErrUnsupported.
func NewFusedKernel() (*FusedKernel, error) {
	return nil, fmt.Errorf("%w: webgpu is not built for %s", fused.ErrUnsupported, runtime.GOOS)
}

// Name returns the kernel name.
func (k *FusedKernel) Name() string {
	return "webgpu"
}

// Release is a no-op.
func (k *FusedKernel) Release() {}

// Run always fails with fused.ErrUnsupported.
func (k *FusedKernel) Run(fused.Attributes, fused.Feed) (fused.Fetch, error) {
	return nil, fused.ErrUnsupported
}

var _ fused.Kernel = (*FusedKernel)(nil)

// IsAvailable reports false.
func IsAvailable() bool {
	return false
}
