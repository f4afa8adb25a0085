package oracle

import (
	"github.com/born-ml/fusedcheck/internal/config"
	"github.com/born-ml/fusedcheck/internal/fused"
	"github.com/born-ml/fusedcheck/internal/nn"
	"github.com/born-ml/fusedcheck/internal/reference"
	"github.com/born-ml/fusedcheck/internal/tensor"
)

// Problem is one sampled instance of a case: the random inputs and freshly
// initialized layers, shared by the reference and the fused pass.
//
// All randomness comes from the case seed, drawn in a fixed order:
// X1, X2, dY1, dY2, then the convolution weight.
type Problem struct {
	Case     config.Case
	Topology fused.Topology

	X1, X2   *tensor.RawTensor
	DY1, DY2 *tensor.RawTensor

	BN1, BN2 *nn.BatchNorm
	Conv     *nn.Conv2D
}

// NewProblem validates c and samples its inputs on backend.
func NewProblem(c config.Case, backend tensor.Backend) (*Problem, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	topo, err := c.Topology()
	if err != nil {
		return nil, err
	}
	out, err := c.OutputShape()
	if err != nil {
		return nil, err
	}

	in := c.InputShape()
	sampler := tensor.NewSampler(c.Seed)
	uniform := func(shape tensor.Shape) *tensor.RawTensor {
		return sampler.Uniform(shape, -0.5, 0.5, tensor.Float16, backend.Device())
	}

	p := &Problem{Case: c, Topology: topo}
	p.X1 = uniform(in)
	p.X2 = uniform(in)
	p.DY1 = uniform(out)
	p.DY2 = uniform(in)

	channels := in.Channels()
	filter := c.FilterShape()
	p.BN1 = nn.NewBatchNorm(channels, c.Momentum, c.Epsilon, backend)
	p.BN2 = nn.NewBatchNorm(channels, c.Momentum, c.Epsilon, backend)
	p.Conv = nn.NewConv2D(filter[1], filter[0], filter[2], filter[3], c.Conv(), sampler, backend)
	return p, nil
}

// Attributes returns the kernel attributes of the problem.
func (p *Problem) Attributes() fused.Attributes {
	return fused.NewAttributes(p.Case.Conv(), p.Topology)
}

// Reference runs the unfused pass. It updates the layers' running statistics,
// so it must run once per problem.
func (p *Problem) Reference(backend tensor.Backend) reference.Result {
	return reference.Compose(backend, reference.Inputs{
		Topology: p.Topology,
		X1:       p.X1,
		X2:       p.X2,
		DY1:      p.DY1,
		DY2:      p.DY2,
		BN1:      p.BN1,
		BN2:      p.BN2,
		Conv:     p.Conv,
	})
}

// PassInputs returns the inputs of the fused pass; convX comes from the
// reference pass.
func (p *Problem) PassInputs(convX *tensor.RawTensor) fused.PassInputs {
	return fused.PassInputs{
		X1:    p.X1,
		X2:    p.X2,
		DY1:   p.DY1,
		DY2:   p.DY2,
		W:     p.Conv.Weight().Tensor(),
		ConvX: convX,
		BN1:   fused.Norm{Scale: p.BN1.Gamma.Tensor(), Bias: p.BN1.Beta.Tensor(), Epsilon: p.BN1.Epsilon},
		BN2:   fused.Norm{Scale: p.BN2.Gamma.Tensor(), Bias: p.BN2.Beta.Tensor(), Epsilon: p.BN2.Epsilon},
	}
}
