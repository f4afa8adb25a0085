package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fusedcheck/internal/backend/cpu"
	"github.com/born-ml/fusedcheck/internal/fused"
	"github.com/born-ml/fusedcheck/internal/nn"
	"github.com/born-ml/fusedcheck/internal/stats"
	"github.com/born-ml/fusedcheck/internal/tensor"
)

var (
	inputShape = tensor.Shape{2, 5, 5, 16}
	convShape  = tensor.Shape{2, 5, 5, 32}
)

func newInputs(topo fused.Topology, seed uint64) Inputs {
	backend := cpu.New()
	s := tensor.NewSampler(seed)
	uniform := func(shape tensor.Shape) *tensor.RawTensor {
		return s.Uniform(shape, -0.5, 0.5, tensor.Float16, tensor.CPU)
	}
	return Inputs{
		Topology: topo,
		X1:       uniform(inputShape),
		X2:       uniform(inputShape),
		DY1:      uniform(convShape),
		DY2:      uniform(inputShape),
		BN1:      nn.NewBatchNorm(16, 0.9, 1e-5, backend),
		BN2:      nn.NewBatchNorm(16, 0.9, 1e-5, backend),
		Conv:     nn.NewConv2D(16, 32, 1, 1, tensor.DefaultConv2DParams(), s, backend),
	}
}

func TestCompose_OutputsFollowTopology(t *testing.T) {
	for _, topo := range fused.Topologies() {
		t.Run(topo.String(), func(t *testing.T) {
			res := Compose(cpu.New(), newInputs(topo, 1))

			assert.Equal(t, topo.OutputNames(), res.Gradients.Names())
			assert.Equal(t, inputShape, res.ConvX.Shape())
			assert.Equal(t, convShape, res.Output.Shape())
			for _, g := range res.Gradients {
				want, ok := fused.DType(g.Name)
				require.True(t, ok)
				assert.Equal(t, want, g.Tensor.DType(), g.Name)
			}
		})
	}
}

func TestCompose_GradientCounts(t *testing.T) {
	counts := map[fused.Variant]int{fused.Plain: 4, fused.Shortcut: 5, fused.Dual: 7}
	for _, topo := range fused.Topologies() {
		res := Compose(cpu.New(), newInputs(topo, 2))
		assert.Len(t, res.Gradients, counts[topo.Variant()], topo.String())
	}
}

func TestCompose_ConvXIsNonNegative(t *testing.T) {
	res := Compose(cpu.New(), newInputs(fused.MustTopology(false, true, false), 3))
	for _, v := range res.ConvX.Float64s() {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestCompose_ShortcutGradientFeedsBias(t *testing.T) {
	// In shortcut mode both addends receive the masked gradient, so BN1's
	// bias gradient is the channel sum of the shortcut gradient.
	res := Compose(cpu.New(), newInputs(fused.MustTopology(true, false, true), 4))

	dx2 := res.Gradients.Get(fused.OutBN2DX).Float64s()
	dBeta := res.Gradients.Get(fused.OutBN1DBeta).Float64s()
	sums := make([]float64, 16)
	for i, v := range dx2 {
		sums[i%16] += v
	}
	assert.InDeltaSlice(t, sums, dBeta, 1e-3)
}

func TestCompose_SetsParameterGradients(t *testing.T) {
	in := newInputs(fused.MustTopology(false, true, false), 5)
	res := Compose(cpu.New(), in)

	assert.Same(t, res.Gradients.Get(fused.OutDW), in.Conv.Weight().Grad())
	assert.Same(t, res.Gradients.Get(fused.OutBN1DGamma), in.BN1.Gamma.Grad())
	assert.Same(t, res.Gradients.Get(fused.OutBN2DBeta), in.BN2.Beta.Grad())
}

func TestCompose_UpdatesRunningStatisticsOnce(t *testing.T) {
	in := newInputs(fused.MustTopology(false, false, false), 6)
	Compose(cpu.New(), in)

	est, err := stats.Estimate(in.X1, in.BN1.Gamma.Tensor(), in.BN1.Beta.Tensor(), in.BN1.Epsilon)
	require.NoError(t, err)
	want := est.Mean.Float64s()
	for i := range want {
		want[i] *= 1 - in.BN1.Momentum
	}
	assert.InDeltaSlice(t, want, in.BN1.RunningMean.Float64s(), 1e-6)
	// BN2 is not part of the plain block.
	assert.Equal(t, nn.Zeros(tensor.Shape{16}, tensor.CPU).Float64s(), in.BN2.RunningMean.Float64s())
}

func TestCompose_MissingBranchGradientPanics(t *testing.T) {
	in := newInputs(fused.MustTopology(false, false, true), 7)
	in.DY2 = nil
	assert.Panics(t, func() { Compose(cpu.New(), in) })
}

func TestEstimator_MatchesLayerStatistics(t *testing.T) {
	in := newInputs(fused.MustTopology(false, false, false), 8)

	_, op := in.BN1.Forward(in.X1)
	est, err := stats.Estimate(in.X1, in.BN1.Gamma.Tensor(), in.BN1.Beta.Tensor(), in.BN1.Epsilon)
	require.NoError(t, err)

	saved := op.Stats()
	assert.InDeltaSlice(t, saved.Mean.Float64s(), est.Mean.Float64s(), 1e-6)
	assert.InDeltaSlice(t, saved.InvStd.Float64s(), est.InvStd.Float64s(), 1e-4)
}
