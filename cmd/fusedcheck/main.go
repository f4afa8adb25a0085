// Package main provides the fusedcheck CLI: it runs the fused backward
// kernel against the unfused reference for a suite of cases.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/born-ml/fusedcheck/internal/backend/cpu"
	"github.com/born-ml/fusedcheck/internal/backend/webgpu"
	"github.com/born-ml/fusedcheck/internal/config"
	"github.com/born-ml/fusedcheck/internal/fused"
	"github.com/born-ml/fusedcheck/internal/oracle"
)

const version = "v0.1.0-dev"

// Exit codes.
const (
	exitOK       = 0
	exitMismatch = 1
	exitSetup    = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fusedcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	suitePath := fs.String("suite", "", "YAML suite file (default: built-in suite)")
	kernelName := fs.String("kernel", "cpu", "fused kernel: cpu or webgpu")
	caseName := fs.String("case", "", "run only the named case")
	dumpDir := fs.String("dump", "", "write gradients of failed cases to this directory")
	verbose := fs.Bool("v", false, "debug logging")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return exitSetup
	}

	if *showVersion {
		fmt.Fprintf(stdout, "fusedcheck %s\n", version)
		return exitOK
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cases, err := loadCases(*suitePath, *caseName)
	if err != nil {
		logger.Error("cannot load cases", slog.Any("error", err))
		return exitSetup
	}

	kernel, release, err := newKernel(*kernelName)
	if errors.Is(err, fused.ErrUnsupported) {
		logger.Warn("kernel unsupported, skipping", slog.String("kernel", *kernelName), slog.Any("error", err))
		return exitOK
	}
	if err != nil {
		logger.Error("cannot create kernel", slog.Any("error", err))
		return exitSetup
	}
	defer release()

	opts := []oracle.Option{oracle.WithLogger(logger)}
	if *dumpDir != "" {
		opts = append(opts, oracle.WithDumpDir(*dumpDir))
	}
	o := oracle.New(kernel, opts...)
	code := exitOK
	for _, c := range cases {
		report, err := o.Run(c)
		switch {
		case errors.Is(err, fused.ErrUnsupported):
			fmt.Fprintf(stdout, "SKIP %s\n", c.Name)
		case err != nil:
			fmt.Fprintf(stdout, "ERROR %s: %v\n", c.Name, err)
			return exitSetup
		case report.Passed():
			fmt.Fprintf(stdout, "PASS %s (%s)\n", c.Name, report.Elapsed)
		default:
			fmt.Fprintf(stdout, "FAIL %s: %v\n", c.Name, report.Err())
			if report.DumpPath != "" {
				fmt.Fprintf(stdout, "  gradients written to %s\n", report.DumpPath)
			}
			code = exitMismatch
		}
	}
	return code
}

func loadCases(path, name string) ([]config.Case, error) {
	cases := config.DefaultSuite()
	if path != "" {
		var err error
		if cases, err = config.LoadSuite(path); err != nil {
			return nil, err
		}
	}
	if name == "" {
		return cases, nil
	}
	c, err := config.Select(cases, name)
	if err != nil {
		return nil, err
	}
	return []config.Case{c}, nil
}

// newKernel returns the named kernel and a function releasing its resources.
func newKernel(name string) (fused.Kernel, func(), error) {
	switch name {
	case "cpu":
		return cpu.NewFusedKernel(), func() {}, nil
	case "webgpu":
		k, err := webgpu.NewFusedKernel()
		if err != nil {
			return nil, nil, err
		}
		return k, k.Release, nil
	default:
		return nil, nil, fmt.Errorf("unknown kernel %q", name)
	}
}
