// Package tensor provides the raw tensor runtime used by the fused-gradient oracle.
package tensor

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
//
// Float16 holds activations, weights and activation gradients.
// Float32 holds normalization parameters, statistics and parameter gradients.
// Float64 is only used for host-side intermediate results.
const (
	Float16 DataType = iota
	Float32
	Float64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float16:
		return 2
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}
