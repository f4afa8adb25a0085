// Package webgpu runs the fused dconv/drelu/dbn backward operator as a chain
// of WGSL compute passes through go-webgpu (github.com/go-webgpu/webgpu).
//
// The device is only driven on Windows, where the native wgpu library ships
// with the bindings. Elsewhere NewFusedKernel reports fused.ErrUnsupported and
// callers skip the kernel.
package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/born-ml/fusedcheck/internal/fused"
	"github.com/born-ml/fusedcheck/internal/tensor"
)

// workgroupSize is the number of threads per workgroup in every shader.
const workgroupSize = 256

// maxWorkgroups is the per-dimension dispatch limit WebGPU guarantees.
const maxWorkgroups = 65535

// Topology bits of dispatchParams.flags; the shaders declare the same values.
const (
	flagShortcut uint32 = 1 << iota
	flagDual
	flagAdd
)

// paramsSize is the byte size of the Params uniform: 20 u32 words.
const paramsSize = 80

// dispatchParams mirrors the Params struct shared by all shaders.
type dispatchParams struct {
	n, h, w, c           uint32
	oh, ow, k            uint32
	kh, kw               uint32
	strideH, strideW     uint32
	padH, padW           uint32
	dilationH, dilationW uint32
	flags                uint32
	m                    uint32 // N*H*W, rows of a per-channel reduction
}

// newDispatchParams derives the uniform block from a validated geometry. It
// fails with fused.ErrUnsupported when a pass would need more workgroups than
// a single dispatch dimension allows.
func newDispatchParams(geom fused.Geometry, conv tensor.Conv2DParams, topo fused.Topology) (dispatchParams, error) {
	in, wt, out := geom.Input, geom.Weight, geom.Output
	p := dispatchParams{
		n: u32(in[0]), h: u32(in[1]), w: u32(in[2]), c: u32(in[3]),
		oh: u32(out[1]), ow: u32(out[2]), k: u32(wt[0]),
		kh: u32(wt[2]), kw: u32(wt[3]),
		strideH: u32(conv.Strides[0]), strideW: u32(conv.Strides[1]),
		padH: u32(conv.Paddings[0]), padW: u32(conv.Paddings[1]),
		dilationH: u32(conv.Dilations[0]), dilationW: u32(conv.Dilations[1]),
		m: u32(in[0] * in[1] * in[2]),
	}
	switch topo.Variant() {
	case fused.Shortcut:
		p.flags |= flagShortcut
	case fused.Dual:
		p.flags |= flagDual
	}
	if topo.FuseAdd() {
		p.flags |= flagAdd
	}

	for _, total := range []int{in.NumElements(), wt.NumElements()} {
		if groups := workgroups(total); groups > maxWorkgroups {
			return dispatchParams{}, fmt.Errorf("%w: %d workgroups exceed the dispatch limit", fused.ErrUnsupported, groups)
		}
	}
	return p, nil
}

// bytes encodes the uniform block in little-endian order.
func (p dispatchParams) bytes() []byte {
	words := []uint32{
		p.n, p.h, p.w, p.c,
		p.oh, p.ow, p.k, p.kh,
		p.kw, p.strideH, p.strideW, p.padH,
		p.padW, p.dilationH, p.dilationW, p.flags,
		p.m, 0, 0, 0,
	}
	buf := make([]byte, paramsSize)
	for i, v := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

// Rows of the per-channel coefficient buffer, each C wide.
const (
	chanMean1 = iota
	chanInvStd1
	chanGamma1
	chanBeta1
	chanEqScale
	chanEqBias
	chanMean2
	chanInvStd2
	chanGamma2
	chanRows
)

// packChannels lays the per-channel inputs out row by row. Rows the topology
// does not feed stay zero.
func packChannels(feed fused.Feed, topo fused.Topology, channels int) []float32 {
	out := make([]float32, chanRows*channels)
	put := func(row int, name string) {
		copy(out[row*channels:(row+1)*channels], feed[name].Float32s())
	}

	put(chanMean1, fused.InBN1Mean)
	put(chanInvStd1, fused.InBN1InvStd)
	put(chanGamma1, fused.InBN1Scale)
	put(chanBeta1, fused.InBN1Bias)
	if !topo.HasSecondInput() {
		put(chanEqScale, fused.InBN1EqScale)
		put(chanEqBias, fused.InBN1EqBias)
	}
	if topo.FuseDual() {
		put(chanMean2, fused.InBN2Mean)
		put(chanInvStd2, fused.InBN2InvStd)
		put(chanGamma2, fused.InBN2Scale)
	}
	return out
}

// float32Bytes encodes values as little-endian IEEE 754 words, the layout of
// array<f32> in a storage buffer.
func float32Bytes(values []float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// bytesFloat32 is the inverse of float32Bytes.
func bytesFloat32(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

func workgroups(total int) int {
	return (total + workgroupSize - 1) / workgroupSize
}

//nolint:gosec // G115: dimensions are validated positive and far below 2^32
func u32(v int) uint32 {
	return uint32(v)
}
