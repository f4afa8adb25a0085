package cpu

import "github.com/born-ml/fusedcheck/internal/tensor"

// Add performs element-wise addition of two tensors of identical shape.
// The result takes the dtype of a.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	mustSameShape("add", a, b)

	x := a.Float64s()
	y := b.Float64s()
	for i := range x {
		x[i] += y[i]
	}
	return cpu.result("add", x, a.Shape(), a.DType())
}
