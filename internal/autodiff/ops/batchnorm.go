package ops

import "github.com/born-ml/fusedcheck/internal/tensor"

// BatchNormOp records a training-mode batch normalization over the N*H*W rows
// of an NHWC input.
//
// Backward pass, with xhat = (x - mean) * invstd and M rows per channel:
//   - dbias  = sum(g)
//   - dscale = sum(g * xhat)
//   - dx     = scale * invstd / M * (M*g - dbias - xhat*dscale)
//
// The statistics saved by the forward pass are reused; nothing is recomputed.
type BatchNormOp struct {
	input  *tensor.RawTensor
	scale  *tensor.RawTensor
	bias   *tensor.RawTensor
	output *tensor.RawTensor
	stats  tensor.BatchNormStats
}

// NewBatchNormOp creates a new BatchNormOp.
func NewBatchNormOp(input, scale, bias, output *tensor.RawTensor, stats tensor.BatchNormStats) *BatchNormOp {
	return &BatchNormOp{
		input:  input,
		scale:  scale,
		bias:   bias,
		output: output,
		stats:  stats,
	}
}

// Backward returns [dx, dscale, dbias].
func (op *BatchNormOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	dx, dscale, dbias := backend.BatchNormBackward(op.input, op.scale, outputGrad, op.stats)
	return []*tensor.RawTensor{dx, dscale, dbias}
}

// Inputs returns [x, scale, bias].
func (op *BatchNormOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.scale, op.bias}
}

// Output returns the normalized tensor.
func (op *BatchNormOp) Output() *tensor.RawTensor {
	return op.output
}

// Stats returns the batch statistics saved by the forward pass.
func (op *BatchNormOp) Stats() tensor.BatchNormStats {
	return op.stats
}
