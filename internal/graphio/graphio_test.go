package graphio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/lowering"
	"github.com/born-ml/npusched/internal/tensor"
)

func TestLoad(t *testing.T) {
	g, err := Load(filepath.Join("testdata", "conv.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "conv-softmax", g.Name)
	assert.Equal(t, "3b0c4f7e-6a11-4f2e-9a4b-2f8f6f7d1c55", g.ID.String())
	assert.Equal(t, arch.VPUX37XX, g.Arch)
	assert.Len(t, g.Weights, 512)
	require.Len(t, g.Inputs, 1)
	assert.Equal(t, graph.ExternalInput, g.Inputs[0].Buffer.Space)

	barriers := g.Barriers()
	require.Len(t, barriers, 3)
	assert.Equal(t, 0, barriers[0].RealID)
	assert.Equal(t, 1, barriers[1].RealID)
	assert.Equal(t, 0, barriers[2].RealID)

	tasks := g.Tasks()
	require.Len(t, tasks, 5)
	assert.Equal(t, "permute", tasks[1].Name)
	perm, ok := tasks[1].Ops[0].(*graph.CopyOp)
	require.True(t, ok)
	assert.Equal(t, graph.CopyPermute, perm.Flavor)
	assert.Equal(t, graph.StagingPool, perm.Input.Space)
	assert.Equal(t, tensor.OrderHWC, perm.Output.Order)
	require.NotNil(t, perm.Descriptor)
	assert.Equal(t, uint32(4), perm.Descriptor.NumPlanes)

	conv, ok := tasks[2].Ops[0].(*graph.ComputeOp)
	require.True(t, ok)
	assert.Equal(t, []graph.BarrierID{0}, tasks[2].Wait)
	assert.Equal(t, graph.PPELeakyReLU, conv.PPE.Mode)
	require.NotNil(t, conv.Output.Distribution)
	assert.Equal(t, graph.DistDuplicated, conv.Output.Distribution.Mode)
	assert.Len(t, conv.Variants, 2)

	softmax, ok := tasks[3].Ops[0].(*graph.KernelOp)
	require.True(t, ok)
	assert.Equal(t, []graph.KernelArg{graph.IntArg(1), graph.FloatArg(0.5)}, softmax.Args)

	desc, err := arch.Preset(arch.VPUX37XX)
	require.NoError(t, err)
	_, err = lowering.Lower(g, desc)
	require.NoError(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	g, err := Load(filepath.Join("testdata", "conv.yaml"))
	require.NoError(t, err)

	data, err := Marshal(FromGraph(g))
	require.NoError(t, err)

	again, err := LoadFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, g, again)
}

func TestLoadWeightsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "w.bin"), []byte{1, 2, 3, 4}, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "g.yaml"), []byte("name: w\nweights_file: w.bin\nitems: []\n"), 0o600))

	g, err := Load(filepath.Join(dir, "g.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, g.Weights)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		malformed bool
	}{
		{"empty", "", false},
		{"unknown field", "name: x\ncolour: red\nitems: []\n", false},
		{"bad order", "name: x\ninputs: [{name: a, buffer: {name: a, shape: [1], dtype: f16, order: ZYX, space: cmx}}]\nitems: []\n", false},
		{"bad arch", "name: x\narch: GPU\nitems: []\n", true},
		{"bad id", "name: x\nid: nope\nitems: []\n", true},
		{"empty item", "name: x\nitems: [{}]\n", true},
		{"barrier and task", "name: x\nitems: [{barrier: b, task: t}]\n", true},
		{"duplicate barrier", "name: x\nitems: [{barrier: b}, {barrier: b}]\n", true},
		{"undeclared barrier", "name: x\nitems:\n  - task: t\n    wait: [b]\n", true},
		{"two ops in one entry", `
name: x
items:
  - task: t
    ops:
      - copy: {port: 0, input: {name: a, shape: [1], dtype: f16, space: ddr}, output: {name: b, shape: [1], dtype: f16, space: cmx}}
        kernel: {entry: k, instances: [0]}
`, true},
		{"bad dtype", `
name: x
items:
  - task: t
    ops:
      - copy: {port: 0, input: {name: a, shape: [1], dtype: f17, space: ddr}, output: {name: b, shape: [1], dtype: f16, space: cmx}}
`, true},
		{"ambiguous arg", `
name: x
items:
  - task: t
    ops:
      - kernel: {entry: k, instances: [0], args: [{int: 1, float: 2}]}
`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.doc))
			require.Error(t, err)
			assert.Equal(t, tt.malformed, errors.Is(err, diag.ErrMalformedGraph), "got %v", err)
		})
	}
}

func TestBuildTaskDetail(t *testing.T) {
	doc := `
name: x
items:
  - barrier: b
  - task: first
    update: [b]
    ops:
      - copy: {port: 0, input: {name: a, shape: [1], dtype: f16, space: ddr}, output: {name: b, shape: [1], dtype: f16, space: cmx}}
  - task: second
    wait: [missing]
`
	_, err := LoadFromBytes([]byte(doc))
	var de *diag.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, de.Details[diag.KeyTask])
}

func TestOrderYAML(t *testing.T) {
	d, err := Parse([]byte("name: x\ninputs: [{name: a, buffer: {name: a, shape: [2, 3, 4], dtype: f32, order: [2, 0, 1], space: cmx}}]\nitems: []\n"))
	require.NoError(t, err)
	require.NotNil(t, d.Inputs[0].Buffer.Order)
	assert.Equal(t, Order{2, 0, 1}, *d.Inputs[0].Buffer.Order)

	v, err := Order{2, 0, 1}.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1}, v)

	v, err = Order(tensor.OrderNHWC).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "NHWC", v)
}
