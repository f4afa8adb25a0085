package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_DefaultSuitePasses(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(nil, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 6)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "PASS "), line)
	}
	assert.Contains(t, stderr.String(), "case finished")
}

func TestRun_SelectsCase(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-case", "dual+add", "-v"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	assert.True(t, strings.HasPrefix(stdout.String(), "PASS dual+add"))
	assert.Contains(t, stderr.String(), "level=DEBUG")
}

func TestRun_SuiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cases:
  - name: strided
    input_size: [1, 7, 7, 8]
    filter_size: [8, 8, 3, 3]
    strides: [2, 2]
    paddings: [1, 1]
    fuse_shortcut: true
    seed: 5
`), 0o600))

	var stdout, stderr bytes.Buffer
	code := run([]string{"-suite", path}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.True(t, strings.HasPrefix(stdout.String(), "PASS strided"))
}

func TestRun_SetupErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-nope"}},
		{"unknown kernel", []string{"-kernel", "tpu"}},
		{"unknown case", []string{"-case", "triple"}},
		{"missing suite", []string{"-suite", filepath.Join(t.TempDir(), "missing.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, exitSetup, run(tt.args, &stdout, &stderr))
		})
	}
}

func TestRun_WebGPUSkipsOrPasses(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-kernel", "webgpu", "-case", "plain"}, &stdout, &stderr)
	assert.Equal(t, exitOK, code, stderr.String())
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run([]string{"-version"}, &stdout, &stderr))
	assert.Equal(t, "fusedcheck "+version+"\n", stdout.String())
}
