package fused

import "errors"

// ErrUnsupported is returned by kernels that cannot run in the current
// environment (no adapter, missing native library). Callers skip, not fail.
var ErrUnsupported = errors.New("fused: kernel not supported in this environment")

// Kernel is the opaque fused dconv/drelu/dbn backward operator.
//
// Run blocks until every output has been computed and is readable on the host.
// Implementations must honor the named input/output schema of the topology
// selected by attrs; a Pass validates both sides.
type Kernel interface {
	Name() string
	Run(attrs Attributes, feed Feed) (Fetch, error)
}
