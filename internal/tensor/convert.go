package tensor

import (
	"fmt"

	"github.com/x448/float16"
)

// Float64s returns a widened copy of the tensor's elements.
// Works for every supported dtype; half precision is widened exactly.
func (r *RawTensor) Float64s() []float64 {
	out := make([]float64, r.NumElements())
	switch r.dtype {
	case Float16:
		for i, v := range r.AsFloat16() {
			out[i] = float64(v.Float32())
		}
	case Float32:
		for i, v := range r.AsFloat32() {
			out[i] = float64(v)
		}
	case Float64:
		copy(out, r.AsFloat64())
	default:
		panic(fmt.Sprintf("Float64s: unsupported dtype %s", r.dtype))
	}
	return out
}

// Float32s returns a copy of the tensor's elements as float32.
func (r *RawTensor) Float32s() []float32 {
	out := make([]float32, r.NumElements())
	switch r.dtype {
	case Float16:
		for i, v := range r.AsFloat16() {
			out[i] = v.Float32()
		}
	case Float32:
		copy(out, r.AsFloat32())
	case Float64:
		for i, v := range r.AsFloat64() {
			out[i] = float32(v)
		}
	default:
		panic(fmt.Sprintf("Float32s: unsupported dtype %s", r.dtype))
	}
	return out
}

// FromFloat64s creates a tensor of the given dtype, rounding each value
// to the storage precision (round-to-nearest-even).
func FromFloat64s(data []float64, shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	r, err := NewRaw(shape, dtype, device)
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Float16:
		dst := r.AsFloat16()
		for i, v := range data {
			dst[i] = float16.Fromfloat32(float32(v))
		}
	case Float32:
		dst := r.AsFloat32()
		for i, v := range data {
			dst[i] = float32(v)
		}
	case Float64:
		copy(r.AsFloat64(), data)
	}
	return r, nil
}

// FromFloat32s is the float32 counterpart of FromFloat64s.
func FromFloat32s(data []float32, shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	r, err := NewRaw(shape, dtype, device)
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Float16:
		dst := r.AsFloat16()
		for i, v := range data {
			dst[i] = float16.Fromfloat32(v)
		}
	case Float32:
		copy(r.AsFloat32(), data)
	case Float64:
		dst := r.AsFloat64()
		for i, v := range data {
			dst[i] = float64(v)
		}
	}
	return r, nil
}

// MustFromFloat64s is like FromFloat64s but panics on a shape mismatch.
func MustFromFloat64s(data []float64, shape Shape, dtype DataType, device Device) *RawTensor {
	r, err := FromFloat64s(data, shape, dtype, device)
	if err != nil {
		panic(err)
	}
	return r
}

// MustFromFloat32s is like FromFloat32s but panics on a shape mismatch.
func MustFromFloat32s(data []float32, shape Shape, dtype DataType, device Device) *RawTensor {
	r, err := FromFloat32s(data, shape, dtype, device)
	if err != nil {
		panic(err)
	}
	return r
}

// Cast converts the tensor to another dtype, returning a new tensor.
// Casting to the same dtype returns a deep copy.
func (r *RawTensor) Cast(dtype DataType) *RawTensor {
	if dtype == r.dtype {
		return r.Clone()
	}
	return MustFromFloat64s(r.Float64s(), r.shape, dtype, r.device)
}

// Full creates a tensor filled with a single value.
func Full(shape Shape, value float64, dtype DataType, device Device) *RawTensor {
	data := make([]float64, shape.NumElements())
	for i := range data {
		data[i] = value
	}
	return MustFromFloat64s(data, shape, dtype, device)
}
