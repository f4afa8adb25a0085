package nn

import (
	"fmt"

	"github.com/born-ml/fusedcheck/internal/autodiff/ops"
	"github.com/born-ml/fusedcheck/internal/tensor"
)

// BatchNorm applies per-channel batch normalization to channel-last input.
//
// Formula (training mode): Y = gamma * (X - mean_B) / sqrt(var_B + eps) + beta
//
// Where:
//   - mean_B and var_B are the batch mean and biased variance over N*H*W
//   - gamma is the learnable scale parameter [C], Float32
//   - beta is the learnable shift parameter [C], Float32
//
// Each training forward also updates the running estimates:
//
//	running = momentum*running + (1-momentum)*batch
//
// Running statistics never feed back into a training forward.
type BatchNorm struct {
	Gamma       *Parameter        // learnable scale [C]
	Beta        *Parameter        // learnable shift [C]
	RunningMean *tensor.RawTensor // [C] Float32
	RunningVar  *tensor.RawTensor // [C] Float32
	Momentum    float64
	Epsilon     float64

	channels int
	backend  tensor.Backend
}

// NewBatchNorm creates a new BatchNorm layer. Gamma and the running variance
// start at ones, beta and the running mean at zeros.
func NewBatchNorm(channels int, momentum, epsilon float64, backend tensor.Backend) *BatchNorm {
	if channels <= 0 {
		panic(fmt.Sprintf("batchnorm: invalid channels %d", channels))
	}
	shape := tensor.Shape{channels}
	device := backend.Device()
	return &BatchNorm{
		Gamma:       NewParameter("scale", Ones(shape, device)),
		Beta:        NewParameter("bias", Zeros(shape, device)),
		RunningMean: Zeros(shape, device),
		RunningVar:  Ones(shape, device),
		Momentum:    momentum,
		Epsilon:     epsilon,
		channels:    channels,
		backend:     backend,
	}
}

// Forward normalizes x with its own batch statistics, updates the running
// estimates and returns the output with the recorded operation.
//
// Shapes:
//   - input: [N, H, W, C]
//   - output: [N, H, W, C], same dtype as input
func (b *BatchNorm) Forward(x *tensor.RawTensor) (*tensor.RawTensor, *ops.BatchNormOp) {
	if len(x.Shape()) != 4 || x.Shape().Channels() != b.channels {
		panic(fmt.Sprintf("batchnorm: expected [N,H,W,%d] input, got %v", b.channels, x.Shape()))
	}

	scale, bias := b.Gamma.Tensor(), b.Beta.Tensor()
	out, stats := b.backend.BatchNormForward(x, scale, bias, b.Epsilon)

	b.RunningMean = b.blend(b.RunningMean, stats.Mean)
	b.RunningVar = b.blend(b.RunningVar, stats.Variance)

	return out, ops.NewBatchNormOp(x, scale, bias, out, stats)
}

func (b *BatchNorm) blend(running, batch *tensor.RawTensor) *tensor.RawTensor {
	r := running.Float64s()
	v := batch.Float64s()
	for i := range r {
		r[i] = b.Momentum*r[i] + (1-b.Momentum)*v[i]
	}
	return tensor.MustFromFloat64s(r, running.Shape(), running.DType(), running.Device())
}

// Channels returns the number of normalized channels.
func (b *BatchNorm) Channels() int {
	return b.channels
}

// Parameters returns the learnable parameters (gamma and beta).
func (b *BatchNorm) Parameters() []*Parameter {
	return []*Parameter{b.Gamma, b.Beta}
}

// String returns a string representation of the layer.
func (b *BatchNorm) String() string {
	return fmt.Sprintf("BatchNorm(channels=%d, momentum=%g, eps=%g)", b.channels, b.Momentum, b.Epsilon)
}
