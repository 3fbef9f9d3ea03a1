package barrier

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/logging"
	"github.com/born-ml/npusched/internal/lowering"
	"github.com/born-ml/npusched/internal/mapped"
	"github.com/born-ml/npusched/internal/tensor"
)

func ref(name string, space graph.MemorySpace) graph.BufferRef {
	return graph.BufferRef{
		Name:  name,
		Shape: tensor.Shape{1, 16, 4, 4},
		DType: tensor.Uint8,
		Order: tensor.OrderNHWC,
		Space: space,
	}
}

func dma() *graph.CopyOp {
	return &graph.CopyOp{Input: ref("a", graph.StagingPool), Output: ref("b", graph.ClusterScratch)}
}

func conv(variants int) *graph.ComputeOp {
	op := &graph.ComputeOp{Input: ref("b", graph.ClusterScratch), Output: ref("c", graph.ClusterScratch)}
	for range variants {
		op.Variants = append(op.Variants, graph.DPUTask{MPEMode: graph.MPEVector})
	}
	return op
}

func lower(t *testing.T, g *graph.Graph) *mapped.Program {
	t.Helper()
	desc, err := arch.Preset(arch.VPUX37XX)
	require.NoError(t, err)
	p, err := lowering.Lower(g, desc)
	require.NoError(t, err)
	return p
}

func TestFinalizeCounts(t *testing.T) {
	g := graph.New("net")
	b := g.DeclareBarrier(0)
	require.NoError(t, g.AddTask(graph.Task{Update: []graph.BarrierID{b}, Ops: []graph.Op{dma()}}))
	require.NoError(t, g.AddTask(graph.Task{Update: []graph.BarrierID{b}, Ops: []graph.Op{dma()}}))
	require.NoError(t, g.AddTask(graph.Task{Wait: []graph.BarrierID{b}, Ops: []graph.Op{conv(1)}}))

	p := lower(t, g)
	diags, err := Finalize(p, nil)
	require.NoError(t, err)
	assert.Empty(t, diags)

	assert.Equal(t, 2, p.Barriers[0].Producers)
	assert.Equal(t, 1, p.Barriers[0].Consumers)
	assert.Equal(t, mapped.BarrierFinalized, p.Barriers[0].State)
	assert.True(t, p.Finalized)
}

func TestInvariantHitsCountPerVariant(t *testing.T) {
	g := graph.New("net")
	b := g.DeclareBarrier(0)
	require.NoError(t, g.AddTask(graph.Task{Update: []graph.BarrierID{b}, Ops: []graph.Op{conv(3)}}))
	require.NoError(t, g.AddTask(graph.Task{Wait: []graph.BarrierID{b}, Ops: []graph.Op{dma()}}))

	p := lower(t, g)
	_, err := Finalize(p, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Barriers[0].Producers)
	assert.Equal(t, 1, p.Barriers[0].Consumers)
}

func TestNextSameID(t *testing.T) {
	g := graph.New("net")
	b0 := g.DeclareBarrier(0)
	b1 := g.DeclareBarrier(1)
	b2 := g.DeclareBarrier(0)
	require.NoError(t, g.AddTask(graph.Task{Update: []graph.BarrierID{b0, b1}, Ops: []graph.Op{dma()}}))
	require.NoError(t, g.AddTask(graph.Task{Wait: []graph.BarrierID{b0, b1}, Update: []graph.BarrierID{b2}, Ops: []graph.Op{dma()}}))
	require.NoError(t, g.AddTask(graph.Task{Wait: []graph.BarrierID{b2}, Ops: []graph.Op{dma()}}))

	p := lower(t, g)
	_, err := Finalize(p, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Barriers[0].NextSameID)
	assert.Equal(t, -1, p.Barriers[1].NextSameID)
	assert.Equal(t, -1, p.Barriers[2].NextSameID)
}

func TestDeadBarrier(t *testing.T) {
	g := graph.New("net")
	g.DeclareBarrier(0)
	used := g.DeclareBarrier(1)
	require.NoError(t, g.AddTask(graph.Task{Update: []graph.BarrierID{used}, Ops: []graph.Op{dma()}}))

	var buf bytes.Buffer
	log := logging.NewWithWriter(logging.Config{Level: "warn", Format: "json"}, &buf)

	p := lower(t, g)
	diags, err := Finalize(p, log)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeDeadBarrier, diags[0].Code)
	assert.Equal(t, 0, diags[0].Barrier)
	assert.Contains(t, buf.String(), `"barrier":0`)
	assert.Equal(t, mapped.BarrierFinalized, p.Barriers[0].State)
}

func TestFinalizeTwice(t *testing.T) {
	p := lower(t, graph.New("empty"))
	_, err := Finalize(p, nil)
	require.NoError(t, err)

	_, err = Finalize(p, nil)
	assert.ErrorIs(t, err, diag.ErrMalformedGraph)
}

func TestCountOverflow(t *testing.T) {
	p := mapped.NewProgram("big", arch.Descriptor{})
	cfg := p.Append(mapped.Operation{Kind: mapped.KindBarrierConfig, BarrierConfig: &mapped.BarrierConfigPayload{}})
	p.AddBarrier(0, cfg)
	p.Append(mapped.Operation{Kind: mapped.KindComputeInvariant, Update: []int{0}, Hits: MaxCount + 1, Invariant: &mapped.InvariantPayload{}})

	_, err := Finalize(p, nil)
	assert.ErrorIs(t, err, diag.ErrBarrierCountOverflow)
	assert.False(t, p.Finalized)
	assert.Equal(t, mapped.BarrierDeclared, p.Barriers[0].State)
}

func TestUnknownBarrier(t *testing.T) {
	p := mapped.NewProgram("bad", arch.Descriptor{})
	p.Append(mapped.Operation{Kind: mapped.KindMemoryCopy, Wait: []int{3}, Hits: 1, Copy: &mapped.CopyPayload{}})

	_, err := Finalize(p, nil)
	assert.ErrorIs(t, err, diag.ErrMalformedGraph)
}
