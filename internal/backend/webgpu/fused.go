//go:build windows

package webgpu

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/fusedcheck/internal/fused"
)

// FusedKernel runs the fused backward operator on a WebGPU device as four
// passes recorded into one command buffer: masked dgrad, wgrad, per-channel
// reduction and batch-norm dx.
type FusedKernel struct {
	backend *Backend
}

// NewFusedKernel acquires a device. Any failure is reported as
// fused.ErrUnsupported.
func NewFusedKernel() (*FusedKernel, error) {
	b, err := New()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fused.ErrUnsupported, err)
	}
	return &FusedKernel{backend: b}, nil
}

// Name returns the kernel name.
func (k *FusedKernel) Name() string {
	return "webgpu"
}

// Release releases the device.
func (k *FusedKernel) Release() {
	k.backend.Release()
}

var _ fused.Kernel = (*FusedKernel)(nil)

// Run executes the fused backward pass and blocks until the outputs are
// copied back to the host.
func (k *FusedKernel) Run(attrs fused.Attributes, feed fused.Feed) (fused.Fetch, error) {
	topo, err := attrs.Topology()
	if err != nil {
		return nil, err
	}
	geom, err := fused.ValidateFeed(attrs, feed)
	if err != nil {
		return nil, fmt.Errorf("webgpu fused kernel: %w", err)
	}
	params, err := newDispatchParams(geom, attrs.Conv(), topo)
	if err != nil {
		return nil, err
	}

	b := k.backend
	channels := geom.Input.Channels()
	activations := geom.Input.NumElements()
	activationBytes := uint64(activations) * 4

	var owned []gpuBuffer
	defer func() {
		for _, buf := range owned {
			buf.Release()
		}
	}()
	keep := func(buf gpuBuffer) gpuBuffer {
		owned = append(owned, buf)
		return buf
	}
	input := func(name string) gpuBuffer {
		if t := feed[name]; t != nil {
			return keep(b.upload(float32Bytes(t.Float32s())))
		}
		// Bindings the topology does not feed still need a buffer.
		return keep(b.storage(4))
	}

	dy := input(fused.InDY)
	w := input(fused.InW)
	x1 := input(fused.InBN1X)
	x2 := input(fused.InBN2X)
	branch := input(fused.InDYBranch)
	convXIn := input(fused.InConvX)
	chans := keep(b.upload(float32Bytes(packChannels(feed, topo, channels))))
	uniform := keep(b.uploadUniform(params.bytes()))

	grad := keep(b.storage(activationBytes))
	convXOut := keep(b.storage(activationBytes))
	dw := keep(b.storage(uint64(geom.Weight.NumElements()) * 4))
	sums := keep(b.storage(uint64(3*channels) * 4))
	dx1 := keep(b.storage(activationBytes))
	dx2Size := uint64(4)
	if topo.FuseDual() {
		dx2Size = activationBytes
	}
	dx2 := keep(b.storage(dx2Size))

	encoder := b.device.CreateCommandEncoder(nil)
	groups := []*wgpu.BindGroup{
		b.dispatch(encoder, "dgrad_relu", dgradReluShader, activations,
			dy, w, x1, chans, branch, convXIn, grad, convXOut, uniform),
		b.dispatch(encoder, "wgrad", wgradShader, geom.Weight.NumElements(),
			dy, convXOut, dw, uniform),
		b.dispatch(encoder, "reduce", reduceShader, channels,
			grad, x1, x2, chans, sums, uniform),
		b.dispatch(encoder, "dx", dxShader, activations,
			grad, x1, x2, chans, sums, dx1, dx2, uniform),
	}
	defer func() {
		for _, g := range groups {
			g.Release()
		}
	}()

	staged := map[string]gpuBuffer{
		fused.OutDW:    keep(b.staging(encoder, dw)),
		fused.OutBN1DX: keep(b.staging(encoder, dx1)),
		sumsKey:        keep(b.staging(encoder, sums)),
	}
	switch topo.Variant() {
	case fused.Shortcut:
		staged[fused.OutBN2DX] = keep(b.staging(encoder, grad))
	case fused.Dual:
		staged[fused.OutBN2DX] = keep(b.staging(encoder, dx2))
	}
	b.queue.Submit(encoder.Finish(nil))

	host := make(map[string][]float32, len(staged))
	for name, buf := range staged {
		data, err := b.read(buf)
		if err != nil {
			return nil, fmt.Errorf("webgpu fused kernel: read %s: %w", name, err)
		}
		host[name] = bytesFloat32(data)
	}
	return buildFetch(topo, geom, host), nil
}
