package tensor

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler draws reproducible random tensors from an explicit seed.
//
// Every sampler owns its source, so two samplers built from the same seed
// produce identical sequences regardless of what else runs in the process.
type Sampler struct {
	src rand.Source
}

// NewSampler creates a sampler seeded with seed.
func NewSampler(seed uint64) *Sampler {
	return &Sampler{src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
}

// Uniform returns a tensor with values drawn from U[lo, hi), rounded to dtype.
func (s *Sampler) Uniform(shape Shape, lo, hi float64, dtype DataType, device Device) *RawTensor {
	dist := distuv.Uniform{Min: lo, Max: hi, Src: s.src}
	data := make([]float64, shape.NumElements())
	for i := range data {
		data[i] = dist.Rand()
	}
	return MustFromFloat64s(data, shape, dtype, device)
}

// Normal returns a tensor with values drawn from N(mu, sigma²), rounded to dtype.
func (s *Sampler) Normal(shape Shape, mu, sigma float64, dtype DataType, device Device) *RawTensor {
	dist := distuv.Normal{Mu: mu, Sigma: sigma, Src: s.src}
	data := make([]float64, shape.NumElements())
	for i := range data {
		data[i] = dist.Rand()
	}
	return MustFromFloat64s(data, shape, dtype, device)
}
