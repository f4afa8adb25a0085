// Package serialization reads and writes tensors in the SafeTensors format,
// used to dump the gradients of failing cases for offline inspection.
//
//	[8 bytes: header size (uint64 LE)]
//	[header: JSON, tensor name -> {dtype, shape, data_offsets}, plus __metadata__]
//	[tensor data: raw little-endian bytes, in name order]
package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/fusedcheck/internal/tensor"
)

// Validation limits.
const (
	MaxHeaderSize  = 100 * 1024 * 1024
	MaxTensorCount = 100_000
)

const metadataKey = "__metadata__"

// Errors returned for malformed files.
var (
	ErrHeaderTooLarge   = errors.New("serialization: header exceeds maximum size")
	ErrTooManyTensors   = errors.New("serialization: too many tensors in file")
	ErrUnsupportedDType = errors.New("serialization: unsupported dtype")
	ErrOffsetOverlap    = errors.New("serialization: tensor offsets overlap")
	ErrOutOfBounds      = errors.New("serialization: tensor extends beyond data section")
)

// SafeTensorHeader describes one tensor in the header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// WriteSafeTensors writes tensors and metadata to path.
func WriteSafeTensors(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	//nolint:gosec // G304: dump paths are chosen by the caller
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("serialization: failed to create file: %w", err)
	}
	if err := Encode(file, tensors, metadata); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// Encode writes tensors in SafeTensors layout, in alphabetical name order.
func Encode(w io.Writer, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var offset int64
	for _, name := range names {
		raw := tensors[name]
		dtype, err := dtypeName(raw.DType())
		if err != nil {
			return fmt.Errorf("%w: tensor %q", err, name)
		}
		shape := make([]int64, len(raw.Shape()))
		for i, d := range raw.Shape() {
			shape[i] = int64(d)
		}
		size := int64(raw.ByteSize())
		header[name] = SafeTensorHeader{
			DType:       dtype,
			Shape:       shape,
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("serialization: failed to marshal header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("serialization: failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("serialization: failed to write header: %w", err)
	}
	for _, name := range names {
		if _, err := w.Write(tensors[name].Data()); err != nil {
			return fmt.Errorf("serialization: failed to write tensor %s: %w", name, err)
		}
	}
	return nil
}

// ReadSafeTensors reads every tensor and the metadata from path.
func ReadSafeTensors(path string) (map[string]*tensor.RawTensor, map[string]string, error) {
	//nolint:gosec // G304: dump paths are chosen by the caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("serialization: failed to read file: %w", err)
	}
	return Decode(data)
}

type entry struct {
	name   string
	header SafeTensorHeader
}

// Decode parses a SafeTensors image, validating sizes and offsets before
// copying any tensor data.
func Decode(data []byte) (map[string]*tensor.RawTensor, map[string]string, error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("%w: file shorter than header size", ErrOutOfBounds)
	}
	headerSize := binary.LittleEndian.Uint64(data[:8])
	if headerSize > MaxHeaderSize || headerSize > uint64(len(data)-8) {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	body := data[8+headerSize:]

	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data[8 : 8+headerSize]))
	if err := dec.Decode(&fields); err != nil {
		return nil, nil, fmt.Errorf("serialization: failed to parse header: %w", err)
	}

	var metadata map[string]string
	entries := make([]entry, 0, len(fields))
	for name, raw := range fields {
		if name == metadataKey {
			if err := json.Unmarshal(raw, &metadata); err != nil {
				return nil, nil, fmt.Errorf("serialization: failed to parse metadata: %w", err)
			}
			continue
		}
		var h SafeTensorHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, nil, fmt.Errorf("serialization: tensor %q: %w", name, err)
		}
		entries = append(entries, entry{name: name, header: h})
	}
	if len(entries) > MaxTensorCount {
		return nil, nil, fmt.Errorf("%w: %d", ErrTooManyTensors, len(entries))
	}
	if err := validateOffsets(entries, int64(len(body))); err != nil {
		return nil, nil, err
	}

	tensors := make(map[string]*tensor.RawTensor, len(entries))
	for _, e := range entries {
		dtype, err := parseDType(e.header.DType)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: tensor %q", err, e.name)
		}
		shape := make(tensor.Shape, len(e.header.Shape))
		for i, d := range e.header.Shape {
			shape[i] = int(d)
		}
		raw, err := tensor.NewRaw(shape, dtype, tensor.CPU)
		if err != nil {
			return nil, nil, fmt.Errorf("serialization: tensor %q: %w", e.name, err)
		}
		lo, hi := e.header.DataOffsets[0], e.header.DataOffsets[1]
		if int64(raw.ByteSize()) != hi-lo {
			return nil, nil, fmt.Errorf("%w: tensor %q holds %d bytes, shape needs %d", ErrOutOfBounds, e.name, hi-lo, raw.ByteSize())
		}
		copy(raw.Data(), body[lo:hi])
		tensors[e.name] = raw
	}
	return tensors, metadata, nil
}

// validateOffsets rejects negative, overlapping and out-of-range offsets.
func validateOffsets(entries []entry, dataSize int64) error {
	sorted := append([]entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].header.DataOffsets[0] < sorted[j].header.DataOffsets[0]
	})

	var end int64
	for i, e := range sorted {
		lo, hi := e.header.DataOffsets[0], e.header.DataOffsets[1]
		if lo < 0 || hi < lo || hi > dataSize {
			return fmt.Errorf("%w: tensor %q spans [%d, %d) of %d", ErrOutOfBounds, e.name, lo, hi, dataSize)
		}
		if i > 0 && lo < end {
			return fmt.Errorf("%w: %q and %q", ErrOffsetOverlap, sorted[i-1].name, e.name)
		}
		end = hi
	}
	return nil
}

func dtypeName(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float16:
		return "F16", nil
	case tensor.Float32:
		return "F32", nil
	case tensor.Float64:
		return "F64", nil
	default:
		return "", ErrUnsupportedDType
	}
}

func parseDType(name string) (tensor.DataType, error) {
	switch name {
	case "F16":
		return tensor.Float16, nil
	case "F32":
		return tensor.Float32, nil
	case "F64":
		return tensor.Float64, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnsupportedDType, name)
	}
}
