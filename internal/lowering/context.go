package lowering

import (
	"errors"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/logging"
	"github.com/born-ml/npusched/internal/mapped"
)

// Default limits.
const (
	// MaxDMAPlanes is the largest plane count a DMA descriptor can encode.
	MaxDMAPlanes = 256
	// DefaultParamBufferSize bounds kernel parameter blocks when a kernel op leaves
	// ParamBufferSize at zero.
	DefaultParamBufferSize = 256
)

type options struct {
	log             *logging.Logger
	maxDMAPlanes    uint32
	paramBufferSize int
}

// Option configures Lower.
type Option func(*options)

// WithLogger sets the logger used for per-task tracing.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMaxDMAPlanes overrides the DMA plane limit.
func WithMaxDMAPlanes(n uint32) Option {
	return func(o *options) { o.maxDMAPlanes = n }
}

// WithParamBufferSize overrides the default kernel parameter block bound.
func WithParamBufferSize(n int) Option {
	return func(o *options) { o.paramBufferSize = n }
}

// Context carries the state of one lowering run. It is created by Lower and never
// shared between runs.
type Context struct {
	prog *mapped.Program
	desc arch.Descriptor
	opts options
	log  *logging.Logger

	next     map[mapped.QueueKey]int
	last     map[mapped.QueueKey]mapped.OperationID
	barriers map[graph.BarrierID]int

	task    int
	cmxUsed uint64
	ddrUsed uint64
}

func newContext(prog *mapped.Program, desc arch.Descriptor, opts options) *Context {
	return &Context{
		prog:     prog,
		desc:     desc,
		opts:     opts,
		log:      logging.OrNop(opts.log).WithComponent("lowering"),
		next:     make(map[mapped.QueueKey]int),
		last:     make(map[mapped.QueueKey]mapped.OperationID),
		barriers: make(map[graph.BarrierID]int),
		task:     -1,
	}
}

// emit assigns the queue index and previous link of op and appends it to the program.
func (c *Context) emit(op mapped.Operation) mapped.OperationID {
	key := op.Key()
	op.Index = c.next[key]
	op.Previous = mapped.NoOperation
	if prev, ok := c.last[key]; ok {
		op.Previous = prev
	}
	id := c.prog.Append(op)
	c.next[key]++
	c.last[key] = id
	return id
}

// declareBarrier lowers a barrier declaration into a configuration entry.
func (c *Context) declareBarrier(decl graph.BarrierDecl) error {
	if decl.RealID >= c.desc.MaxBarriers {
		return diag.Malformed("barrier %d uses real id %d, architecture has %d slots",
			decl.ID, decl.RealID, c.desc.MaxBarriers).WithDetail(diag.KeyBarrier, int(decl.ID))
	}
	idx := len(c.prog.Barriers)
	cfg := c.emit(mapped.Operation{
		Kind:          mapped.KindBarrierConfig,
		Task:          -1,
		BarrierConfig: &mapped.BarrierConfigPayload{Barrier: idx},
	})
	c.barriers[decl.ID] = c.prog.AddBarrier(decl.RealID, cfg)
	return nil
}

// barrierIndices rewrites graph barrier ids into the program's barrier index space.
func (c *Context) barrierIndices(ids []graph.BarrierID) ([]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		idx, ok := c.barriers[id]
		if !ok {
			return nil, c.malformed("barrier %d is not declared before use", id).WithDetail(diag.KeyBarrier, int(id))
		}
		out[i] = idx
	}
	return out, nil
}

// track records the extent of a buffer in its memory pool.
func (c *Context) track(ref graph.BufferRef) error {
	end := ref.Offset + uint64(ref.ByteSize())
	switch {
	case ref.Space == graph.ClusterScratch || ref.Space == graph.ClusterScratchAux:
		if end > c.desc.CMXSize {
			return c.malformed("buffer %q [%d, %d) exceeds %d bytes of cluster scratch",
				ref.Name, ref.Offset, end, c.desc.CMXSize)
		}
		c.cmxUsed = max(c.cmxUsed, end)
	case ref.Space.IsExternalDRAM():
		if end > c.desc.DDRSize {
			return c.malformed("buffer %q [%d, %d) exceeds %d bytes of external memory",
				ref.Name, ref.Offset, end, c.desc.DDRSize)
		}
		c.ddrUsed = max(c.ddrUsed, end)
	}
	return nil
}

// malformed returns a MalformedGraph error located at the current task.
func (c *Context) malformed(format string, args ...any) *diag.Error {
	err := diag.Malformed(format, args...)
	if c.task >= 0 {
		err.WithDetail(diag.KeyTask, c.task)
	}
	return err
}

// locate attaches the current task to a diag error that does not name one yet.
func (c *Context) locate(err error) error {
	var de *diag.Error
	if errors.As(err, &de) && c.task >= 0 {
		if _, set := de.Details[diag.KeyTask]; !set {
			de.WithDetail(diag.KeyTask, c.task)
		}
	}
	return err
}
