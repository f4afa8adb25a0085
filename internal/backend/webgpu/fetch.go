package webgpu

import (
	"github.com/born-ml/fusedcheck/internal/fused"
	"github.com/born-ml/fusedcheck/internal/tensor"
)

// sumsKey names the host copy of the 3*C reduction buffer in buildFetch.
const sumsKey = "sums"

// buildFetch converts host copies of the device outputs into the contract's
// dtypes. host holds dW, BN1_dX, BN2_dX when present, and the 3*C reduction under sumsKey.
func buildFetch(topo fused.Topology, geom fused.Geometry, host map[string][]float32) fused.Fetch {
	channels := geom.Input.Channels()
	channel := tensor.Shape{channels}
	sums := host[sumsKey]
	sumG := sums[:channels]

	fetch := fused.Fetch{
		fused.OutDW:        tensor.MustFromFloat32s(host[fused.OutDW], geom.Weight, tensor.Float16, tensor.WebGPU),
		fused.OutBN1DX:     tensor.MustFromFloat32s(host[fused.OutBN1DX], geom.Input, tensor.Float16, tensor.WebGPU),
		fused.OutBN1DGamma: tensor.MustFromFloat32s(sums[channels:2*channels], channel, tensor.Float32, tensor.WebGPU),
		fused.OutBN1DBeta:  tensor.MustFromFloat32s(sumG, channel, tensor.Float32, tensor.WebGPU),
	}
	if topo.HasSecondInput() {
		fetch[fused.OutBN2DX] = tensor.MustFromFloat32s(host[fused.OutBN2DX], geom.Input, tensor.Float16, tensor.WebGPU)
	}
	if topo.FuseDual() {
		fetch[fused.OutBN2DGamma] = tensor.MustFromFloat32s(sums[2*channels:], channel, tensor.Float32, tensor.WebGPU)
		fetch[fused.OutBN2DBeta] = tensor.MustFromFloat32s(sumG, channel, tensor.Float32, tensor.WebGPU)
	}
	return fetch
}
