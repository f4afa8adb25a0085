package cpu

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/fusedcheck/internal/tensor"
)

// BatchNormForward normalizes an NHWC tensor with its own batch statistics.
//
// Formula (per channel c, over the N*H*W rows):
//
//	mean   = sum(x) / M
//	var    = sum((x - mean)^2) / M
//	invstd = 1 / sqrt(var + eps)
//	y      = (x - mean) * invstd * scale + bias
//
// The output keeps the input dtype; the saved statistics are Float32.
func (cpu *CPUBackend) BatchNormForward(x, scale, bias *tensor.RawTensor, epsilon float64) (*tensor.RawTensor, tensor.BatchNormStats) {
	rows, channels := bnDims("batchnorm", x, scale, bias)

	in := x.Float64s()
	gamma := scale.Float64s()
	beta := bias.Float64s()

	mean := make([]float64, channels)
	variance := make([]float64, channels)
	invStd := make([]float64, channels)

	for r := 0; r < rows; r++ {
		floats.Add(mean, in[r*channels:(r+1)*channels])
	}
	floats.Scale(1/float64(rows), mean)

	for r := 0; r < rows; r++ {
		row := in[r*channels : (r+1)*channels]
		for c, v := range row {
			d := v - mean[c]
			variance[c] += d * d
		}
	}
	floats.Scale(1/float64(rows), variance)

	for c := range invStd {
		invStd[c] = 1 / math.Sqrt(variance[c]+epsilon)
	}

	out := make([]float64, len(in))
	for i, v := range in {
		c := i % channels
		out[i] = (v-mean[c])*invStd[c]*gamma[c] + beta[c]
	}

	shape := tensor.Shape{channels}
	stats := tensor.BatchNormStats{
		Mean:     cpu.result("batchnorm", mean, shape, tensor.Float32),
		Variance: cpu.result("batchnorm", variance, shape, tensor.Float32),
		InvStd:   cpu.result("batchnorm", invStd, shape, tensor.Float32),
	}
	return cpu.result("batchnorm", out, x.Shape(), x.DType()), stats
}

// BatchNormBackward computes input, scale and bias gradients of a training-mode
// batch norm from the statistics saved by the forward pass.
//
// With xhat = (x - mean) * invstd and M rows per channel:
//
//	dbias  = sum(g)
//	dscale = sum(g * xhat)
//	dx     = scale * invstd / M * (M*g - dbias - xhat*dscale)
//
// dx keeps the input dtype; dscale and dbias take the scale dtype.
func (cpu *CPUBackend) BatchNormBackward(x, scale, grad *tensor.RawTensor, stats tensor.BatchNormStats) (dx, dscale, dbias *tensor.RawTensor) {
	rows, channels := bnDims("batchnorm backward", x, scale, scale)
	mustSameShape("batchnorm backward", x, grad)

	in := x.Float64s()
	g := grad.Float64s()
	gamma := scale.Float64s()
	mean := stats.Mean.Float64s()
	invStd := stats.InvStd.Float64s()

	xhat := make([]float64, len(in))
	for i, v := range in {
		c := i % channels
		xhat[i] = (v - mean[c]) * invStd[c]
	}

	sumG := make([]float64, channels)
	sumGX := make([]float64, channels)
	for r := 0; r < rows; r++ {
		lo, hi := r*channels, (r+1)*channels
		floats.Add(sumG, g[lo:hi])
		floats.AddTo(sumGX, sumGX, mulRow(g[lo:hi], xhat[lo:hi]))
	}

	m := float64(rows)
	out := make([]float64, len(in))
	for i := range in {
		c := i % channels
		out[i] = gamma[c] * invStd[c] / m * (m*g[i] - sumG[c] - xhat[i]*sumGX[c])
	}

	shape := tensor.Shape{channels}
	return cpu.result("batchnorm backward", out, x.Shape(), x.DType()),
		cpu.result("batchnorm backward", sumGX, shape, scale.DType()),
		cpu.result("batchnorm backward", sumG, shape, scale.DType())
}

func mulRow(a, b []float64) []float64 {
	out := make([]float64, len(a))
	floats.MulTo(out, a, b)
	return out
}

func bnDims(op string, x, scale, bias *tensor.RawTensor) (rows, channels int) {
	if len(x.Shape()) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,H,W,C], got %v", op, x.Shape()))
	}
	channels = x.Shape().Channels()
	want := tensor.Shape{channels}
	if !scale.Shape().Equal(want) || !bias.Shape().Equal(want) {
		panic(fmt.Sprintf("%s: scale/bias must be [%d], got %v and %v", op, channels, scale.Shape(), bias.Shape()))
	}
	return x.Shape().Rows(), channels
}
