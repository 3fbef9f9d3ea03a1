package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const convGraph = "../../internal/graphio/testdata/conv.yaml"

func compileConv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := run([]string{"compile", "--log-level", "disabled", "-o", dir, "--workers", "2", convGraph}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	out := filepath.Join(dir, "conv.blob")
	assert.Equal(t, out, strings.TrimSpace(stdout.String()))
	return out
}

func TestVersion(t *testing.T) {
	var stdout bytes.Buffer
	assert.Equal(t, 0, run([]string{"version"}, &stdout, &bytes.Buffer{}))
	assert.Equal(t, "npusched "+version+"\n", stdout.String())
}

func TestUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 2, run([]string{"train"}, &bytes.Buffer{}, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "train"`)
}

func TestCompileInspectRoundtrip(t *testing.T) {
	artifact := compileConv(t)

	var stdout bytes.Buffer
	require.Equal(t, 0, run([]string{"inspect", artifact}, &stdout, &bytes.Buffer{}))
	var info inspection
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &info))
	assert.Equal(t, "conv-softmax", info.Name)
	assert.Equal(t, "3b0c4f7e-6a11-4f2e-9a4b-2f8f6f7d1c55", info.ID)
	assert.Equal(t, "VPUX37XX", info.Arch)
	assert.Equal(t, 512, info.Weights)
	assert.Equal(t, 3, info.Barriers)

	stdout.Reset()
	require.Equal(t, 0, run([]string{"inspect", "--graph", artifact}, &stdout, &bytes.Buffer{}))
	assert.Contains(t, stdout.String(), "name: conv-softmax")

	stdout.Reset()
	require.Equal(t, 0, run([]string{"roundtrip", artifact}, &stdout, &bytes.Buffer{}))
	assert.Contains(t, stdout.String(), "identical")
}

func TestCompileFailures(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: bad\nitems:\n  - task: t\n"), 0o600))

	var stderr bytes.Buffer
	code := run([]string{"compile", "--log-level", "disabled", "-o", dir, convGraph, bad}, &bytes.Buffer{}, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "1 of 2 programs failed")
	assert.FileExists(t, filepath.Join(dir, "conv.blob"))
	assert.NoFileExists(t, filepath.Join(dir, "bad.blob"))
}

func TestCompileNoInput(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{"compile"}, &bytes.Buffer{}, &stderr))
	assert.Contains(t, stderr.String(), "no graph description")
}

func TestInspectCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.blob")
	require.NoError(t, os.WriteFile(path, []byte("not an artifact"), 0o600))

	var stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{"inspect", path}, &bytes.Buffer{}, &stderr))
	assert.Contains(t, stderr.String(), "error:")
}

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, filepath.Join("models", "net.blob"), artifactPath(filepath.Join("models", "net.yaml"), ""))
	assert.Equal(t, filepath.Join("out", "net.blob"), artifactPath(filepath.Join("models", "net.yaml"), "out"))
}
