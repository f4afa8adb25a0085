// Package cpu implements the host backend: the primitive operators of the
// reference pass and a host implementation of the fused backward kernel.
//
// Primitives widen their inputs to float64, compute, and round the result
// back to the storage type of the corresponding input. Shape misuse is a
// programming error and panics.
package cpu

import (
	"fmt"

	"github.com/born-ml/fusedcheck/internal/tensor"
)

// CPUBackend implements tensor.Backend on the host.
type CPUBackend struct {
	device tensor.Device
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Compile-time check that CPUBackend implements tensor.Backend.
var _ tensor.Backend = (*CPUBackend)(nil)

// result rounds data to dtype and wraps it into a tensor on this backend.
func (cpu *CPUBackend) result(op string, data []float64, shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	out, err := tensor.FromFloat64s(data, shape, dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return out
}

func mustSameShape(op string, a, b *tensor.RawTensor) {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch: %v vs %v", op, a.Shape(), b.Shape()))
	}
}
