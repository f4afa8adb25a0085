// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package oracle is the public API of the fused backward-kernel oracle.
//
// A Case describes one convolution geometry and fusion topology. The oracle
// samples the case, runs the unfused reference and the fused kernel on the
// same inputs, and compares every gradient under a fixed tolerance.
//
// Example:
//
//	o := oracle.New(oracle.CPUKernel())
//	for _, c := range oracle.DefaultSuite() {
//	    if err := o.Check(c); err != nil {
//	        log.Fatal(err)
//	    }
//	}
package oracle

import (
	"github.com/born-ml/fusedcheck/internal/backend/cpu"
	"github.com/born-ml/fusedcheck/internal/backend/webgpu"
	"github.com/born-ml/fusedcheck/internal/config"
	"github.com/born-ml/fusedcheck/internal/fused"
	"github.com/born-ml/fusedcheck/internal/oracle"
)

// Oracle runs equivalence checks for one fused kernel.
type Oracle = oracle.Oracle

// Option configures an Oracle.
type Option = oracle.Option

// Report is the outcome of one case.
type Report = oracle.Report

// Mismatch describes the first offending element of one gradient.
type Mismatch = oracle.Mismatch

// Tolerance is the element-wise acceptance rule.
type Tolerance = oracle.Tolerance

// Case is one oracle case.
type Case = config.Case

// Kernel is the opaque fused backward operator under test.
type Kernel = fused.Kernel

// Errors.
var (
	ErrMismatch            = oracle.ErrMismatch
	ErrUnsupported         = fused.ErrUnsupported
	ErrInvalidCase         = config.ErrInvalidCase
	ErrConflictingTopology = fused.ErrConflictingTopology
)

// Options.
var (
	WithLogger    = oracle.WithLogger
	WithTolerance = oracle.WithTolerance
	WithDumpDir   = oracle.WithDumpDir
)

// New creates an oracle for kernel.
func New(kernel Kernel, opts ...Option) *Oracle {
	return oracle.New(kernel, opts...)
}

// DefaultTolerance returns rtol 1e-5, atol 2e-2.
func DefaultTolerance() Tolerance {
	return oracle.DefaultTolerance()
}

// DefaultCase returns the plain case on the default geometry.
func DefaultCase() Case {
	return config.DefaultCase()
}

// DefaultSuite returns one case per topology.
func DefaultSuite() []Case {
	return config.DefaultSuite()
}

// LoadSuite reads a YAML suite file.
func LoadSuite(path string) ([]Case, error) {
	return config.LoadSuite(path)
}

// CPUKernel returns the host fused kernel.
func CPUKernel() Kernel {
	return cpu.NewFusedKernel()
}

// WebGPUKernel acquires a WebGPU device. It returns ErrUnsupported when no
// device is available. Call release when done.
func WebGPUKernel() (kernel Kernel, release func(), err error) {
	k, err := webgpu.NewFusedKernel()
	if err != nil {
		return nil, nil, err
	}
	return k, k.Release, nil
}
