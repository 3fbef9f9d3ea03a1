package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/barrier"
	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/lowering"
	"github.com/born-ml/npusched/internal/mapped"
	"github.com/born-ml/npusched/internal/tensor"
)

func buf(name string, space graph.MemorySpace) graph.BufferRef {
	return graph.BufferRef{Name: name, Shape: tensor.Shape{64}, DType: tensor.Uint8, Space: space}
}

func program(t *testing.T) *mapped.Program {
	t.Helper()
	g := graph.New("net")
	b := g.DeclareBarrier(0)
	require.NoError(t, g.AddTask(graph.Task{
		Update: []graph.BarrierID{b},
		Ops: []graph.Op{
			&graph.CopyOp{Port: 1, Input: buf("a", graph.StagingPool), Output: buf("b", graph.ClusterScratch)},
			&graph.CopyOp{Port: 1, Input: buf("c", graph.StagingPool), Output: buf("d", graph.ClusterScratch)},
		},
	}))
	require.NoError(t, g.AddTask(graph.Task{
		Wait: []graph.BarrierID{b},
		Ops: []graph.Op{&graph.KernelOp{
			Entry:     "relu",
			Inputs:    []graph.BufferRef{buf("b", graph.ClusterScratch)},
			Outputs:   []graph.BufferRef{buf("e", graph.ClusterScratch)},
			Instances: []int{0, 1, 1},
		}},
	}))

	desc, err := arch.Preset(arch.VPUX37XX)
	require.NoError(t, err)
	p, err := lowering.Lower(g, desc)
	require.NoError(t, err)
	return p
}

func TestAssemble(t *testing.T) {
	p := program(t)
	_, err := Assemble(p)
	require.ErrorIs(t, err, diag.ErrMalformedGraph)

	_, err = barrier.Finalize(p, nil)
	require.NoError(t, err)
	s, err := Assemble(p)
	require.NoError(t, err)

	require.Equal(t, 2, s.NumDMAPorts())
	assert.Equal(t, List{Head: mapped.NoOperation}, s.DMA(0))
	assert.Equal(t, 2, s.DMA(1).Count)
	assert.Equal(t, mapped.KindMemoryCopy, s.Op(s.DMA(1).Head).Kind)
	assert.Equal(t, List{Head: mapped.NoOperation}, s.DMA(7))

	assert.Equal(t, 0, s.Invariants().Count)
	assert.Equal(t, mapped.NoOperation, s.Variants().Head)
	assert.Equal(t, 1, s.KernelRanges().Count)
	assert.Equal(t, 3, s.KernelInvocations().Count)
	assert.Equal(t, 1, s.BarrierList().Count)
	assert.Equal(t, 3, s.Barriers()[0].Consumers)
	assert.Len(t, s.Operations(mapped.KindKernelInvocation, 0), 3)
}

func TestSummary(t *testing.T) {
	p := program(t)
	_, err := barrier.Finalize(p, nil)
	require.NoError(t, err)
	s, err := Assemble(p)
	require.NoError(t, err)

	sum := s.Summary()
	assert.Equal(t, "net", sum.Name)
	assert.Equal(t, "VPUX37XX", sum.Arch)
	assert.Equal(t, []int{0, 2}, sum.DMA)
	assert.Equal(t, 3, sum.KernelInvocations)
	assert.Equal(t, uint64(64), sum.Resources["cmx"])
	assert.Equal(t, uint64(64), sum.Resources["ddr"])
}
