package serialization

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fusedcheck/internal/tensor"
)

func TestSafeTensors_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grads.safetensors")
	dw := tensor.MustFromFloat64s([]float64{0.5, -1, 2, 0.25, 3, -0.125}, tensor.Shape{2, 3, 1, 1}, tensor.Float16, tensor.CPU)
	beta := tensor.MustFromFloat64s([]float64{1.5, -2.75, 1e-3}, tensor.Shape{3}, tensor.Float32, tensor.CPU)

	err := WriteSafeTensors(path, map[string]*tensor.RawTensor{
		"expected/dW":      dw,
		"actual/BN1_dBeta": beta,
	}, map[string]string{"case": "plain"})
	require.NoError(t, err)

	tensors, metadata, err := ReadSafeTensors(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"case": "plain"}, metadata)
	require.Len(t, tensors, 2)

	got := tensors["expected/dW"]
	assert.Equal(t, tensor.Float16, got.DType())
	assert.Equal(t, dw.Shape(), got.Shape())
	assert.Equal(t, dw.Float64s(), got.Float64s())
	assert.Equal(t, beta.Float32s(), tensors["actual/BN1_dBeta"].Float32s())
}

func TestEncode_HeaderLayout(t *testing.T) {
	var buf bytes.Buffer
	x := tensor.Full(tensor.Shape{2}, 1, tensor.Float32, tensor.CPU)
	require.NoError(t, Encode(&buf, map[string]*tensor.RawTensor{"x": x}, nil))

	data := buf.Bytes()
	size := binary.LittleEndian.Uint64(data[:8])
	assert.JSONEq(t, `{"x":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}}`, string(data[8:8+size]))
	assert.Len(t, data, 8+int(size)+8)
}

func encodeHeader(t *testing.T, header string, body int) []byte {
	t.Helper()
	data := make([]byte, 8, 8+len(header)+body)
	binary.LittleEndian.PutUint64(data, uint64(len(header)))
	data = append(data, header...)
	return append(data, make([]byte, body)...)
}

func TestDecode_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"truncated", []byte{1, 2, 3}, ErrOutOfBounds},
		{"header past end", append([]byte{0xff, 0xff, 0, 0, 0, 0, 0, 0}, '{', '}'), ErrHeaderTooLarge},
		{"out of bounds", encodeHeader(t, `{"a":{"dtype":"F32","shape":[4],"data_offsets":[0,16]}}`, 8), ErrOutOfBounds},
		{"overlap", encodeHeader(t, `{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},"b":{"dtype":"F32","shape":[2],"data_offsets":[4,12]}}`, 12), ErrOffsetOverlap},
		{"size mismatch", encodeHeader(t, `{"a":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`, 8), ErrOutOfBounds},
		{"dtype", encodeHeader(t, `{"a":{"dtype":"I8","shape":[8],"data_offsets":[0,8]}}`, 8), ErrUnsupportedDType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.data)
			require.ErrorIs(t, err, tt.want)
		})
	}
}
