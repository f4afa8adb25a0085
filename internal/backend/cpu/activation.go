package cpu

import "github.com/born-ml/fusedcheck/internal/tensor"

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	data := x.Float64s()
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
	return cpu.result("relu", data, x.Shape(), x.DType())
}

// ReLUBackward passes grad through where input > 0 and zeroes it elsewhere.
// d(ReLU(x))/dx is taken as 0 at x == 0.
func (cpu *CPUBackend) ReLUBackward(input, grad *tensor.RawTensor) *tensor.RawTensor {
	mustSameShape("relu backward", input, grad)

	in := input.Float64s()
	g := grad.Float64s()
	for i, v := range in {
		if v <= 0 {
			g[i] = 0
		}
	}
	return cpu.result("relu backward", g, grad.Shape(), grad.DType())
}
