// Package stats derives per-channel batch statistics for a batch-norm layer
// independently of the layer itself, so they can be handed to a fused kernel
// as plain tensors.
package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/fusedcheck/internal/tensor"
)

// BatchStatistics are derived from the current input batch, never from
// running estimates. Mean and InvStd are Float32; EqScale and EqBias are
// the fused affine coefficients cast to Float16.
type BatchStatistics struct {
	Mean    *tensor.RawTensor
	InvStd  *tensor.RawTensor
	EqScale *tensor.RawTensor // scale * invstd
	EqBias  *tensor.RawTensor // bias - scale * invstd * mean
}

// Estimate computes batch statistics of an NHWC input for one normalization
// layer with the given per-channel scale and bias.
//
// The reduction runs over N*H*W in float64 with the biased (population)
// variance. Estimate is pure: repeated calls on the same inputs return
// identical results.
func Estimate(x, scale, bias *tensor.RawTensor, epsilon float64) (BatchStatistics, error) {
	if len(x.Shape()) != 4 {
		return BatchStatistics{}, fmt.Errorf("stats: input must be 4D [N,H,W,C], got %v", x.Shape())
	}
	channels := x.Shape().Channels()
	for name, p := range map[string]*tensor.RawTensor{"scale": scale, "bias": bias} {
		if !p.Shape().Equal(tensor.Shape{channels}) {
			return BatchStatistics{}, fmt.Errorf("stats: %s has shape %v, want [%d]", name, p.Shape(), channels)
		}
	}

	rows := x.Shape().Rows()
	values := x.Float64s()
	gamma := scale.Float64s()
	beta := bias.Float64s()

	mean := make([]float64, channels)
	invStd := make([]float64, channels)
	eqScale := make([]float64, channels)
	eqBias := make([]float64, channels)

	column := make([]float64, rows)
	for c := 0; c < channels; c++ {
		for r := 0; r < rows; r++ {
			column[r] = values[r*channels+c]
		}
		m, v := stat.PopMeanVariance(column, nil)
		mean[c] = m
		invStd[c] = 1 / math.Sqrt(v+epsilon)
		eqScale[c] = gamma[c] * invStd[c]
		eqBias[c] = beta[c] - gamma[c]*invStd[c]*m
	}

	shape := tensor.Shape{channels}
	return BatchStatistics{
		Mean:    tensor.MustFromFloat64s(mean, shape, tensor.Float32, x.Device()),
		InvStd:  tensor.MustFromFloat64s(invStd, shape, tensor.Float32, x.Device()),
		EqScale: tensor.MustFromFloat64s(eqScale, shape, tensor.Float16, x.Device()),
		EqBias:  tensor.MustFromFloat64s(eqBias, shape, tensor.Float16, x.Device()),
	}, nil
}
