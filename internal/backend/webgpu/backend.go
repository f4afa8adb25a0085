//go:build windows

package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

// Backend owns a WebGPU device and caches compiled pipelines.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex
}

// New creates a WebGPU backend on the high-performance adapter.
func New() (backend *Backend, err error) {
	// The bindings panic when the wgpu_native library cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", err)
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", err)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Backend{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}, nil
}

// Release releases all WebGPU resources.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pipelines {
		p.Release()
	}
	b.pipelines = nil
	for _, s := range b.shaders {
		s.Release()
	}
	b.shaders = nil

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// IsAvailable reports whether an adapter can be acquired on this system.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// pipeline compiles code once per name and returns the cached pipeline.
func (b *Backend) pipeline(name, code string) *wgpu.ComputePipeline {
	b.mu.RLock()
	if p, ok := b.pipelines[name]; ok {
		b.mu.RUnlock()
		return p
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pipelines[name]; ok {
		return p
	}
	shader := b.device.CreateShaderModuleWGSL(code)
	b.shaders[name] = shader
	p := b.device.CreateComputePipelineSimple(nil, shader, "main")
	b.pipelines[name] = p
	return p
}

// gpuBuffer pairs a buffer with its binding size.
type gpuBuffer struct {
	buf  *wgpu.Buffer
	size uint64
}

func (g gpuBuffer) Release() {
	g.buf.Release()
}

// upload creates a storage buffer holding data.
func (b *Backend) upload(data []byte) gpuBuffer {
	size := uint64(len(data))
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := buf.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mapped), size), data)
	buf.Unmap()
	return gpuBuffer{buf: buf, size: size}
}

// uploadUniform creates a uniform buffer rounded up to 16-byte alignment.
func (b *Backend) uploadUniform(data []byte) gpuBuffer {
	size := (uint64(len(data)) + 15) &^ 15
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := buf.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mapped), size), data)
	buf.Unmap()
	return gpuBuffer{buf: buf, size: size}
}

// storage creates a zeroed read-write storage buffer of size bytes.
func (b *Backend) storage(size uint64) gpuBuffer {
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	return gpuBuffer{buf: buf, size: size}
}

// staging creates a host-mappable buffer that src is copied into by encoder.
func (b *Backend) staging(encoder *wgpu.CommandEncoder, src gpuBuffer) gpuBuffer {
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  src.size,
	})
	encoder.CopyBufferToBuffer(src.buf, 0, buf, 0, src.size)
	return gpuBuffer{buf: buf, size: src.size}
}

// read maps a staging buffer after submission and copies its contents out.
func (b *Backend) read(staged gpuBuffer) ([]byte, error) {
	if err := staged.buf.MapAsync(b.device, wgpu.MapModeRead, 0, staged.size); err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}
	mapped := staged.buf.GetMappedRange(0, staged.size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	out := append([]byte(nil), unsafe.Slice((*byte)(mapped), staged.size)...)
	staged.buf.Unmap()
	return out, nil
}

// dispatch records one compute pass binding buffers in order. The returned
// bind group must outlive the submission.
func (b *Backend) dispatch(encoder *wgpu.CommandEncoder, name, code string, invocations int, buffers ...gpuBuffer) *wgpu.BindGroup {
	p := b.pipeline(name, code)

	entries := make([]wgpu.BindGroupEntry, len(buffers))
	for i, buf := range buffers {
		entries[i] = wgpu.BufferBindingEntry(u32(i), buf.buf, 0, buf.size)
	}
	bindGroup := b.device.CreateBindGroupSimple(p.GetBindGroupLayout(0), entries)

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(u32(workgroups(invocations)), 1, 1)
	pass.End()
	return bindGroup
}
