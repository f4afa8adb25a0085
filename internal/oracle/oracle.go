// Package oracle checks a fused backward kernel against the unfused reference:
// both passes run on the same sampled inputs and their gradients are compared
// element-wise under a fixed tolerance.
package oracle

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/fusedcheck/internal/backend/cpu"
	"github.com/born-ml/fusedcheck/internal/config"
	"github.com/born-ml/fusedcheck/internal/fused"
	"github.com/born-ml/fusedcheck/internal/serialization"
	"github.com/born-ml/fusedcheck/internal/tensor"
)

// Report is the outcome of one case.
type Report struct {
	RunID      string
	Case       string
	Kernel     string
	Topology   string
	Tolerance  Tolerance
	Gradients  []string // canonical names, in order
	Mismatches []Mismatch
	Elapsed    time.Duration
	DumpPath   string // gradient dump of a failed case, if enabled
}

// Passed reports whether every gradient matched.
func (r *Report) Passed() bool {
	return len(r.Mismatches) == 0
}

// Err returns nil when the case passed, or ErrMismatch wrapped with the
// details of every offending gradient.
func (r *Report) Err() error {
	if r.Passed() {
		return nil
	}
	details := make([]string, len(r.Mismatches))
	for i, m := range r.Mismatches {
		details[i] = m.String()
	}
	return fmt.Errorf("%w: case %s on %s: %s", ErrMismatch, r.Case, r.Kernel, strings.Join(details, "; "))
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Oracle) {
		o.logger = logger
	}
}

// WithTolerance overrides the per-case tolerance.
func WithTolerance(tol Tolerance) Option {
	return func(o *Oracle) {
		o.tolerance = &tol
	}
}

// WithBackend sets the backend of the reference pass. The default is the
// host backend.
func WithBackend(backend tensor.Backend) Option {
	return func(o *Oracle) {
		o.backend = backend
	}
}

// WithDumpDir makes the oracle write the expected and actual gradients of
// every failed case to a SafeTensors file in dir.
func WithDumpDir(dir string) Option {
	return func(o *Oracle) {
		o.dumpDir = dir
	}
}

// Oracle runs equivalence checks for one fused kernel.
type Oracle struct {
	pass      *fused.Pass
	backend   tensor.Backend
	logger    *slog.Logger
	tolerance *Tolerance
	dumpDir   string
}

// New creates an oracle for kernel.
func New(kernel fused.Kernel, opts ...Option) *Oracle {
	o := &Oracle{
		pass:    fused.NewPass(kernel),
		backend: cpu.New(),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run samples the case, computes the expected gradients, runs the fused pass
// and compares the two. Numeric differences are recorded in the report, not
// returned; the error covers invalid cases, unsupported kernels and schema
// violations.
func (o *Oracle) Run(c config.Case) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := o.logger.With(
		slog.String("run_id", runID),
		slog.String("case", c.Name),
		slog.String("kernel", o.pass.Kernel().Name()),
	)

	tol := Tolerance{RTol: c.RTol, ATol: c.ATol}
	if o.tolerance != nil {
		tol = *o.tolerance
	}

	problem, err := NewProblem(c, o.backend)
	if err != nil {
		log.Error("invalid case", slog.Any("error", err))
		return nil, err
	}
	log.Debug("sampled inputs",
		slog.String("topology", problem.Topology.String()),
		slog.Any("input", c.InputSize),
		slog.Any("filter", c.FilterSize),
		slog.Uint64("seed", c.Seed),
	)

	ref := problem.Reference(o.backend)
	log.Debug("reference pass done", slog.Int("gradients", len(ref.Gradients)))

	actual, err := o.pass.Run(problem.Attributes(), problem.PassInputs(ref.ConvX))
	if err != nil {
		if errors.Is(err, fused.ErrUnsupported) {
			log.Warn("kernel unsupported", slog.Any("error", err))
		} else {
			log.Error("fused pass failed", slog.Any("error", err))
		}
		return nil, err
	}

	mismatches, err := Compare(ref.Gradients, actual, tol)
	if err != nil {
		log.Error("gradient sets differ", slog.Any("error", err))
		return nil, err
	}

	report := &Report{
		RunID:      runID,
		Case:       c.Name,
		Kernel:     o.pass.Kernel().Name(),
		Topology:   problem.Topology.String(),
		Tolerance:  tol,
		Gradients:  ref.Gradients.Names(),
		Mismatches: mismatches,
		Elapsed:    time.Since(start),
	}
	for _, m := range mismatches {
		log.Error("gradient mismatch",
			slog.String("gradient", m.Name),
			slog.Int("position", m.Position),
			slog.Int("index", m.Index),
			slog.Float64("expected", m.Expected),
			slog.Float64("actual", m.Actual),
			slog.Float64("deviation", m.Deviation),
			slog.Float64("allowed", m.Allowed),
			slog.Int("violations", m.Violations),
		)
	}
	if !report.Passed() && o.dumpDir != "" {
		path, err := o.dump(report, c, ref.Gradients, actual)
		if err != nil {
			log.Error("gradient dump failed", slog.Any("error", err))
			return nil, err
		}
		report.DumpPath = path
		log.Info("gradients dumped", slog.String("path", path))
	}
	log.Info("case finished",
		slog.Bool("passed", report.Passed()),
		slog.Int("gradients", len(report.Gradients)),
		slog.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// Check is Run followed by Report.Err.
func (o *Oracle) Check(c config.Case) error {
	report, err := o.Run(c)
	if err != nil {
		return err
	}
	return report.Err()
}

// dump writes both gradient sets as "expected/<name>" and "actual/<name>".
func (o *Oracle) dump(report *Report, c config.Case, expected, actual fused.GradientSet) (string, error) {
	if err := os.MkdirAll(o.dumpDir, 0o750); err != nil {
		return "", fmt.Errorf("oracle: %w", err)
	}
	tensors := make(map[string]*tensor.RawTensor, 2*len(expected))
	for i := range expected {
		tensors["expected/"+expected[i].Name] = expected[i].Tensor
		tensors["actual/"+actual[i].Name] = actual[i].Tensor
	}
	name := strings.ReplaceAll(c.Name, "+", "_") + "-" + report.RunID + ".safetensors"
	path := filepath.Join(o.dumpDir, name)
	err := serialization.WriteSafeTensors(path, tensors, map[string]string{
		"run_id":   report.RunID,
		"case":     report.Case,
		"kernel":   report.Kernel,
		"topology": report.Topology,
		"seed":     strconv.FormatUint(c.Seed, 10),
	})
	if err != nil {
		return "", err
	}
	return path, nil
}
