package fused

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fusedcheck/internal/tensor"
)

func defaultConv() tensor.Conv2DParams {
	return tensor.DefaultConv2DParams()
}

func passInputs(seed uint64) PassInputs {
	s := tensor.NewSampler(seed)
	act := tensor.Shape{2, 3, 3, 4}
	half := func(shape tensor.Shape) *tensor.RawTensor {
		return s.Uniform(shape, -0.5, 0.5, tensor.Float16, tensor.CPU)
	}
	norm := Norm{
		Scale:   tensor.Full(tensor.Shape{4}, 1, tensor.Float32, tensor.CPU),
		Bias:    tensor.Full(tensor.Shape{4}, 0, tensor.Float32, tensor.CPU),
		Epsilon: 1e-5,
	}
	return PassInputs{
		X1:    half(act),
		X2:    half(act),
		DY1:   half(tensor.Shape{2, 3, 3, 8}),
		DY2:   half(act),
		W:     half(tensor.Shape{8, 4, 1, 1}),
		ConvX: half(act),
		BN1:   norm,
		BN2:   norm,
	}
}

// zeroKernel returns zero tensors for every output the topology declares.
type zeroKernel struct {
	calls int
	drop  string
}

func (k *zeroKernel) Name() string { return "zero" }

func (k *zeroKernel) Run(attrs Attributes, feed Feed) (Fetch, error) {
	k.calls++
	topo, err := attrs.Topology()
	if err != nil {
		return nil, err
	}
	geom, err := ValidateFeed(attrs, feed)
	if err != nil {
		return nil, err
	}
	fetch := Fetch{}
	for _, name := range topo.OutputNames() {
		if name == k.drop {
			continue
		}
		s := slots[name]
		fetch[name] = tensor.Full(geom.shapeOf(s.role), 0, s.dtype, tensor.CPU)
	}
	return fetch, nil
}

type failingKernel struct{}

func (failingKernel) Name() string { return "failing" }

func (failingKernel) Run(Attributes, Feed) (Fetch, error) { return nil, ErrUnsupported }

func sortedKeys(feed Feed) []string {
	keys := make([]string, 0, len(feed))
	for k := range feed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestBuildFeed_MatchesInputNames(t *testing.T) {
	for _, topo := range Topologies() {
		feed, err := BuildFeed(topo, passInputs(1))
		require.NoError(t, err, topo.String())

		want := append([]string(nil), topo.InputNames()...)
		sort.Strings(want)
		assert.Equal(t, want, sortedKeys(feed), topo.String())

		_, err = ValidateFeed(NewAttributes(defaultConv(), topo), feed)
		assert.NoError(t, err, topo.String())
	}
}

func TestBuildFeed_StatisticsTypes(t *testing.T) {
	feed, err := BuildFeed(MustTopology(false, false, false), passInputs(2))
	require.NoError(t, err)

	assert.Equal(t, tensor.Float32, feed[InBN1Mean].DType())
	assert.Equal(t, tensor.Float32, feed[InBN1InvStd].DType())
	assert.Equal(t, tensor.Float16, feed[InBN1EqScale].DType())
	assert.Equal(t, tensor.Float16, feed[InBN1EqBias].DType())
}

func TestBuildFeed_MissingInput(t *testing.T) {
	in := passInputs(3)
	in.ConvX = nil
	_, err := BuildFeed(MustTopology(true, false, false), in)
	require.ErrorIs(t, err, ErrSchema)

	// Plain never reads ConvX.
	_, err = BuildFeed(MustTopology(false, false, false), in)
	require.NoError(t, err)
}

func TestValidateFeed_Violations(t *testing.T) {
	attrs := NewAttributes(defaultConv(), MustTopology(false, true, false))
	feed, err := BuildFeed(MustTopology(false, true, false), passInputs(4))
	require.NoError(t, err)

	extra := Feed{}
	for k, v := range feed {
		extra[k] = v
	}
	extra[InBN1EqScale] = feed[InBN1Mean]
	_, err = ValidateFeed(attrs, extra)
	require.ErrorIs(t, err, ErrSchema)

	wrongType := Feed{}
	for k, v := range feed {
		wrongType[k] = v
	}
	wrongType[InBN2Mean] = feed[InBN2Mean].Cast(tensor.Float16)
	_, err = ValidateFeed(attrs, wrongType)
	require.ErrorIs(t, err, ErrSchema)

	delete(wrongType, InBN2Mean)
	_, err = ValidateFeed(attrs, wrongType)
	require.ErrorIs(t, err, ErrSchema)
}

func TestPass_Run(t *testing.T) {
	for _, topo := range Topologies() {
		k := &zeroKernel{}
		grads, err := NewPass(k).Run(NewAttributes(defaultConv(), topo), passInputs(5))
		require.NoError(t, err, topo.String())

		assert.Equal(t, 1, k.calls)
		assert.Equal(t, topo.OutputNames(), grads.Names())
		assert.Equal(t, tensor.Shape{8, 4, 1, 1}, grads.Get(OutDW).Shape())
		assert.Nil(t, grads.Get("missing"))
	}
}

func TestPass_ConflictingFlagsNeverReachKernel(t *testing.T) {
	k := &zeroKernel{}
	attrs := Attributes{Strides: [2]int{1, 1}, Dilations: [2]int{1, 1}, FuseShortcut: true, FuseDual: true}
	_, err := NewPass(k).Run(attrs, passInputs(6))
	require.ErrorIs(t, err, ErrConflictingTopology)
	assert.Zero(t, k.calls)
}

func TestPass_MissingOutput(t *testing.T) {
	k := &zeroKernel{drop: OutBN2DBeta}
	_, err := NewPass(k).Run(NewAttributes(defaultConv(), MustTopology(false, true, false)), passInputs(7))
	require.ErrorIs(t, err, ErrSchema)
}

func TestPass_KernelError(t *testing.T) {
	p := NewPass(failingKernel{})
	_, err := p.Run(NewAttributes(defaultConv(), MustTopology(false, false, false)), passInputs(8))
	require.True(t, errors.Is(err, ErrUnsupported))
	assert.Equal(t, "failing", p.Kernel().Name())
}

func TestDType(t *testing.T) {
	dt, ok := DType(OutBN1DGamma)
	require.True(t, ok)
	assert.Equal(t, tensor.Float32, dt)

	_, ok = DType("BN3_dX")
	assert.False(t, ok)
}
