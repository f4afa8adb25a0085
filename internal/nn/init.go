package nn

import (
	"math"

	"github.com/born-ml/fusedcheck/internal/tensor"
)

// KaimingNormal initializes weights from N(0, sqrt(2/fan_in)).
//
// This is the He initialization for layers followed by a ReLU; it keeps the
// variance of activations roughly constant across layers.
//
// Parameters:
//   - fanIn: Number of input units (in_channels * kernel_h * kernel_w for Conv2D)
//   - shape: Shape of the weight tensor
//   - sampler: Seeded source of randomness
//   - dtype: Storage type of the weight
//
// Returns a tensor initialized with the Kaiming normal distribution.
func KaimingNormal(fanIn int, shape tensor.Shape, sampler *tensor.Sampler, dtype tensor.DataType, device tensor.Device) *tensor.RawTensor {
	return sampler.Normal(shape, 0, math.Sqrt(2.0/float64(fanIn)), dtype, device)
}

// Zeros creates a Float32 tensor filled with zeros.
//
// This is commonly used for bias and running mean initialization.
func Zeros(shape tensor.Shape, device tensor.Device) *tensor.RawTensor {
	return tensor.Full(shape, 0, tensor.Float32, device)
}

// Ones creates a Float32 tensor filled with ones.
func Ones(shape tensor.Shape, device tensor.Device) *tensor.RawTensor {
	return tensor.Full(shape, 1, tensor.Float32, device)
}
