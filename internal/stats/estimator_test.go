package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fusedcheck/internal/tensor"
)

// syntheticBatch builds a [2,1,2,C] batch whose channel c alternates
// means[c] ± spreads[c], giving mean means[c] and biased variance spreads[c]².
func syntheticBatch(means, spreads []float64) *tensor.RawTensor {
	channels := len(means)
	rows := 4
	data := make([]float64, rows*channels)
	for r := 0; r < rows; r++ {
		sign := 1.0
		if r%2 == 1 {
			sign = -1
		}
		for c := 0; c < channels; c++ {
			data[r*channels+c] = means[c] + sign*spreads[c]
		}
	}
	return tensor.MustFromFloat64s(data, tensor.Shape{2, 1, 2, channels}, tensor.Float16, tensor.CPU)
}

func TestEstimate_KnownMoments(t *testing.T) {
	means := []float64{0.25, -1, 0}
	spreads := []float64{0.5, 0.125, 1}
	gamma := []float64{2, 0.5, 1}
	beta := []float64{0.1, -0.2, 0}
	const eps = 1e-5

	x := syntheticBatch(means, spreads)
	scale := tensor.MustFromFloat64s(gamma, tensor.Shape{3}, tensor.Float32, tensor.CPU)
	bias := tensor.MustFromFloat64s(beta, tensor.Shape{3}, tensor.Float32, tensor.CPU)

	got, err := Estimate(x, scale, bias, eps)
	require.NoError(t, err)

	assert.Equal(t, tensor.Float32, got.Mean.DType())
	assert.Equal(t, tensor.Float32, got.InvStd.DType())
	assert.Equal(t, tensor.Float16, got.EqScale.DType())
	assert.Equal(t, tensor.Float16, got.EqBias.DType())

	mean := got.Mean.Float64s()
	invStd := got.InvStd.Float64s()
	eqScale := got.EqScale.Float64s()
	eqBias := got.EqBias.Float64s()

	for c := range means {
		wantInvStd := 1 / math.Sqrt(spreads[c]*spreads[c]+eps)
		wantScale := gamma[c] * wantInvStd
		wantBias := beta[c] - wantScale*means[c]

		assert.InDelta(t, means[c], mean[c], 1e-7, "mean[%d]", c)
		assert.InEpsilon(t, wantInvStd, invStd[c], 1e-6, "invstd[%d]", c)
		// Half precision keeps ~11 significant bits.
		assert.InDelta(t, wantScale, eqScale[c], math.Abs(wantScale)*1e-3, "eqscale[%d]", c)
		assert.InDelta(t, wantBias, eqBias[c], math.Abs(wantBias)*1e-3+1e-6, "eqbias[%d]", c)
	}
}

func TestEstimate_Idempotent(t *testing.T) {
	s := tensor.NewSampler(3)
	x := s.Uniform(tensor.Shape{2, 5, 5, 16}, -0.5, 0.5, tensor.Float16, tensor.CPU)
	scale := s.Uniform(tensor.Shape{16}, 0.5, 1.5, tensor.Float32, tensor.CPU)
	bias := s.Uniform(tensor.Shape{16}, -0.1, 0.1, tensor.Float32, tensor.CPU)
	before := x.Clone()

	first, err := Estimate(x, scale, bias, 1e-5)
	require.NoError(t, err)
	second, err := Estimate(x, scale, bias, 1e-5)
	require.NoError(t, err)

	assert.Equal(t, first.Mean.Data(), second.Mean.Data())
	assert.Equal(t, first.InvStd.Data(), second.InvStd.Data())
	assert.Equal(t, first.EqScale.Data(), second.EqScale.Data())
	assert.Equal(t, first.EqBias.Data(), second.EqBias.Data())
	assert.Equal(t, before.Data(), x.Data(), "input must not be mutated")
}

func TestEstimate_ShapeErrors(t *testing.T) {
	x := tensor.MustNewRaw(tensor.Shape{2, 5, 5, 4}, tensor.Float16, tensor.CPU)
	good := tensor.MustNewRaw(tensor.Shape{4}, tensor.Float32, tensor.CPU)
	bad := tensor.MustNewRaw(tensor.Shape{3}, tensor.Float32, tensor.CPU)

	_, err := Estimate(x, bad, good, 1e-5)
	assert.Error(t, err)

	_, err = Estimate(tensor.MustNewRaw(tensor.Shape{4, 4}, tensor.Float16, tensor.CPU), good, good, 1e-5)
	assert.Error(t, err)
}
