package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawTensorAsFloat16(t *testing.T) {
	raw, err := NewRaw(Shape{3, 2}, Float16, CPU)
	require.NoError(t, err)

	data := raw.AsFloat16()
	assert.Len(t, data, 6)
	assert.Equal(t, 12, raw.ByteSize())

	// Zero-copy view.
	data[0] = 0x3c00 // 1.0 in IEEE half
	assert.Equal(t, float32(1), raw.AsFloat16()[0].Float32())
}

func TestRawTensorWrongDTypePanics(t *testing.T) {
	raw := MustNewRaw(Shape{2}, Float32, CPU)
	assert.Panics(t, func() { raw.AsFloat16() })
	assert.Panics(t, func() { raw.AsFloat64() })
}

func TestNewRawInvalidShape(t *testing.T) {
	_, err := NewRaw(Shape{2, 0, 3}, Float32, CPU)
	require.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	raw := MustFromFloat64s([]float64{1, 2, 3}, Shape{3}, Float32, CPU)
	clone := raw.Clone()
	clone.AsFloat32()[0] = 42

	assert.Equal(t, float32(1), raw.AsFloat32()[0])
	assert.True(t, raw.Shape().Equal(clone.Shape()))
}

func TestCastRoundsToHalf(t *testing.T) {
	// 1 + 2^-12 is not representable in half precision and rounds to 1.
	raw := MustFromFloat64s([]float64{1 + math.Pow(2, -12), -2.5, 65504}, Shape{3}, Float64, CPU)
	half := raw.Cast(Float16)

	require.Equal(t, Float16, half.DType())
	assert.Equal(t, []float64{1, -2.5, 65504}, half.Float64s())

	back := half.Cast(Float32)
	assert.Equal(t, []float32{1, -2.5, 65504}, back.AsFloat32())
}

func TestFromFloat64sLengthMismatch(t *testing.T) {
	_, err := FromFloat64s([]float64{1, 2}, Shape{3}, Float32, CPU)
	require.Error(t, err)
}

func TestShapeNHWC(t *testing.T) {
	s := Shape{2, 5, 5, 16}
	n, h, w, c := s.NHWC()
	assert.Equal(t, []int{2, 5, 5, 16}, []int{n, h, w, c})
	assert.Equal(t, 16, s.Channels())
	assert.Equal(t, 50, s.Rows())
	assert.Equal(t, []int{400, 80, 16, 1}, s.ComputeStrides())
	assert.Panics(t, func() { Shape{2, 3}.NHWC() })
}

func TestSamplerIsReproducible(t *testing.T) {
	a := NewSampler(7).Uniform(Shape{4, 4}, -0.5, 0.5, Float16, CPU)
	b := NewSampler(7).Uniform(Shape{4, 4}, -0.5, 0.5, Float16, CPU)
	c := NewSampler(8).Uniform(Shape{4, 4}, -0.5, 0.5, Float16, CPU)

	assert.Equal(t, a.Data(), b.Data())
	assert.NotEqual(t, a.Data(), c.Data())

	for _, v := range a.Float64s() {
		assert.GreaterOrEqual(t, v, -0.5)
		assert.LessOrEqual(t, v, 0.5)
	}
}
