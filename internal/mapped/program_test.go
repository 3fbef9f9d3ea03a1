package mapped

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/npusched/internal/arch"
)

func TestAppendCreatesQueues(t *testing.T) {
	desc, err := arch.Preset(arch.VPUX37XX)
	require.NoError(t, err)
	p := NewProgram("net", desc)

	a := p.Append(Operation{Kind: KindMemoryCopy, Port: 1, Previous: NoOperation, Copy: &CopyPayload{}})
	b := p.Append(Operation{Kind: KindMemoryCopy, Port: 0, Previous: NoOperation, Copy: &CopyPayload{}})
	c := p.Append(Operation{Kind: KindMemoryCopy, Port: 1, Index: 1, Previous: a, Copy: &CopyPayload{}})

	assert.Equal(t, OperationID(0), a)
	assert.Equal(t, OperationID(2), c)
	assert.Equal(t, a, p.Queue(QueueKey{KindMemoryCopy, 1}).Head())
	assert.Equal(t, 2, p.Queue(QueueKey{KindMemoryCopy, 1}).Count())
	assert.Equal(t, b, p.Queue(QueueKey{KindMemoryCopy, 0}).Head())
	assert.Equal(t, []QueueKey{{KindMemoryCopy, 0}, {KindMemoryCopy, 1}}, p.QueueKeys())

	ops := p.Operations(QueueKey{KindMemoryCopy, 1})
	require.Len(t, ops, 2)
	assert.Equal(t, "dma/1#1", ops[1].String())
	assert.Equal(t, a, ops[1].Previous)
}

func TestEmptyQueue(t *testing.T) {
	p := NewProgram("net", arch.Descriptor{})
	q := p.Queue(QueueKey{KindComputeInvariant, 0})
	assert.Nil(t, q)
	assert.Equal(t, NoOperation, q.Head())
	assert.Zero(t, q.Count())
	assert.Nil(t, p.Op(5))
	assert.Nil(t, p.Operations(QueueKey{KindKernelRange, 0}))
}

func TestAddBarrier(t *testing.T) {
	p := NewProgram("net", arch.Descriptor{})
	cfg := p.Append(Operation{Kind: KindBarrierConfig, Previous: NoOperation, BarrierConfig: &BarrierConfigPayload{}})
	idx := p.AddBarrier(3, cfg)

	assert.Equal(t, 0, idx)
	assert.Equal(t, -1, p.Barriers[0].NextSameID)
	assert.Equal(t, BarrierDeclared, p.Barriers[0].State)
	assert.Equal(t, cfg, p.Barriers[0].Config)
}
