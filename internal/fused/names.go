package fused

import "github.com/born-ml/fusedcheck/internal/tensor"

// Kernel input names.
const (
	InDY         = "dY"
	InW          = "W"
	InBN1Mean    = "BN1_mean"
	InBN1InvStd  = "BN1_inv_std"
	InBN1Scale   = "BN1_scale"
	InBN1Bias    = "BN1_bias"
	InBN1X       = "BN1_X"
	InDYBranch   = "dY_branch"
	InReluX      = "Relu_X"
	InBN2Mean    = "BN2_mean"
	InBN2InvStd  = "BN2_inv_std"
	InBN2Scale   = "BN2_scale"
	InBN2Bias    = "BN2_bias"
	InBN2X       = "BN2_X"
	InConvX      = "Conv_X"
	InBN1EqScale = "BN1_eqscale"
	InBN1EqBias  = "BN1_eqbias"
)

// Kernel output names.
const (
	OutBN1DX     = "BN1_dX"
	OutBN1DGamma = "BN1_dGamma"
	OutBN1DBeta  = "BN1_dBeta"
	OutDW        = "dW"
	OutBN2DX     = "BN2_dX"
	OutBN2DGamma = "BN2_dGamma"
	OutBN2DBeta  = "BN2_dBeta"
)

// role ties a slot to the shape it must have.
type role uint8

const (
	roleActivation role = iota // [N, H, W, C]
	roleConvOut                // [N, OH, OW, K]
	roleWeight                 // [K, C, kH, kW]
	roleChannel                // [C]
)

type slot struct {
	dtype tensor.DataType
	role  role
}

var slots = map[string]slot{
	InDY:         {tensor.Float16, roleConvOut},
	InW:          {tensor.Float16, roleWeight},
	InBN1Mean:    {tensor.Float32, roleChannel},
	InBN1InvStd:  {tensor.Float32, roleChannel},
	InBN1Scale:   {tensor.Float32, roleChannel},
	InBN1Bias:    {tensor.Float32, roleChannel},
	InBN1X:       {tensor.Float16, roleActivation},
	InDYBranch:   {tensor.Float16, roleActivation},
	InReluX:      {tensor.Float16, roleActivation},
	InBN2Mean:    {tensor.Float32, roleChannel},
	InBN2InvStd:  {tensor.Float32, roleChannel},
	InBN2Scale:   {tensor.Float32, roleChannel},
	InBN2Bias:    {tensor.Float32, roleChannel},
	InBN2X:       {tensor.Float16, roleActivation},
	InConvX:      {tensor.Float16, roleActivation},
	InBN1EqScale: {tensor.Float16, roleChannel},
	InBN1EqBias:  {tensor.Float16, roleChannel},

	OutBN1DX:     {tensor.Float16, roleActivation},
	OutBN1DGamma: {tensor.Float32, roleChannel},
	OutBN1DBeta:  {tensor.Float32, roleChannel},
	OutDW:        {tensor.Float16, roleWeight},
	OutBN2DX:     {tensor.Float16, roleActivation},
	OutBN2DGamma: {tensor.Float32, roleChannel},
	OutBN2DBeta:  {tensor.Float32, roleChannel},
}

// DType returns the element type the contract prescribes for a named slot.
func DType(name string) (tensor.DataType, bool) {
	s, ok := slots[name]
	return s.dtype, ok
}
