// Package lowering converts a synchronized graph into per-engine instruction queues.
//
// Lower walks the graph items in order. Barrier declarations become configuration
// entries in the barrier lane, and each task is lowered op by op:
//
//	copy    -> one MemoryCopy per output replica on the op's DMA port
//	compute -> one ComputeInvariant plus one ComputeVariant per DPU task
//	kernel  -> one KernelRange plus one KernelInvocation per instance
//
// Every emitted operation gets a sequential index within its (kind, port) queue and a
// link to the previous operation of that queue. Barrier counts are left at zero; the
// barrier package finalizes them once lowering is complete.
package lowering

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/distribution"
	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/logging"
	"github.com/born-ml/npusched/internal/mapped"
)

// Lower lowers g for the architecture described by desc. A graph that names a target
// architecture must match the descriptor's kind; either side left Unknown (custom
// descriptors, hand-built graphs) is accepted.
func Lower(g *graph.Graph, desc arch.Descriptor, opts ...Option) (*mapped.Program, error) {
	if g == nil {
		return nil, fmt.Errorf("lowering: nil graph")
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("lowering: %w", err)
	}
	if g.Arch != arch.Unknown && desc.Kind != arch.Unknown && g.Arch != desc.Kind {
		return nil, diag.Malformed("graph %q targets %s, descriptor is %s", g.Name, g.Arch, desc.Kind)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	o := options{maxDMAPlanes: MaxDMAPlanes, paramBufferSize: DefaultParamBufferSize}
	for _, opt := range opts {
		opt(&o)
	}

	prog := mapped.NewProgram(g.Name, desc)
	prog.ID = g.ID
	prog.Inputs = g.Inputs
	prog.Outputs = g.Outputs
	prog.Weights = g.Weights

	ctx := newContext(prog, desc, o)
	for _, it := range g.Items() {
		if it.Barrier != nil {
			if err := ctx.declareBarrier(*it.Barrier); err != nil {
				return nil, err
			}
			continue
		}
		ctx.task++
		if err := ctx.lowerTask(it.Task); err != nil {
			return nil, ctx.locate(err)
		}
	}

	prog.Resources = []mapped.Resource{
		{Kind: mapped.ScratchCMX, Size: ctx.cmxUsed},
		{Kind: mapped.ExternalDRAM, Size: ctx.ddrUsed},
	}
	ctx.log.Debug("program lowered", map[string]any{
		logging.FieldProgram: g.Name,
		"operations":         len(prog.Ops),
		"barriers":           len(prog.Barriers),
	})
	return prog, nil
}

func (c *Context) lowerTask(t *graph.Task) error {
	wait, err := c.barrierIndices(t.Wait)
	if err != nil {
		return err
	}
	update, err := c.barrierIndices(t.Update)
	if err != nil {
		return err
	}
	sync := taskSync{wait: wait, update: update}

	for i, op := range t.Ops {
		for _, ref := range graph.Refs(op) {
			if err := c.track(ref); err != nil {
				return err
			}
		}

		var err error
		switch o := op.(type) {
		case *graph.CopyOp:
			err = c.lowerCopy(o, sync)
		case *graph.ComputeOp:
			err = c.lowerCompute(o, sync)
		case *graph.KernelOp:
			err = c.lowerKernel(o, sync)
		default:
			err = c.malformed("unsupported operation type %T", op)
		}
		if err != nil {
			return err
		}
		if c.log.Enabled(zerolog.DebugLevel) {
			c.log.Debug("lowered operation", map[string]any{
				logging.FieldTask: c.task,
				"name":            t.Name,
				"op":              i,
				"family":          op.Family().String(),
			})
		}
	}
	return nil
}

// taskSync is the barrier sets of a task in program index space.
type taskSync struct {
	wait   []int
	update []int
}

func (s taskSync) clone() ([]int, []int) {
	return cloneInts(s.wait), cloneInts(s.update)
}

func cloneInts(v []int) []int {
	if v == nil {
		return nil
	}
	return append([]int(nil), v...)
}

// collapse prepares an operand read by an operation. A replicated buffer is
// unrolled and folded back into a single reference listing every section. Segmented
// and overlapped buffers stay logically single and keep their distribution.
func (c *Context) collapse(ref graph.BufferRef) (graph.BufferRef, error) {
	if !ref.IsDistributed() {
		return ref, nil
	}
	if !ref.Distribution.Mode.IsReplicated() {
		if err := distribution.Check(ref, c.desc.NumClusters); err != nil {
			return graph.BufferRef{}, err
		}
		return ref.Clone(), nil
	}
	return c.fold(ref)
}

// fold unrolls a distributed buffer and folds the replicas into one reference.
// Only replicated buffers can be unrolled.
func (c *Context) fold(ref graph.BufferRef) (graph.BufferRef, error) {
	if !ref.IsDistributed() {
		return ref, nil
	}
	replicas, err := distribution.Unroll(ref, c.desc.NumClusters)
	if err != nil {
		return graph.BufferRef{}, err
	}
	out := replicas[0].Clone()
	out.Sections = distribution.Sections(replicas)
	out.Distribution = &graph.Distribution{Mode: ref.Distribution.Mode, NumClusters: len(replicas)}
	return out, nil
}

func (c *Context) mapRefs(refs []graph.BufferRef, f func(graph.BufferRef) (graph.BufferRef, error)) ([]graph.BufferRef, error) {
	out := make([]graph.BufferRef, len(refs))
	for i, r := range refs {
		var err error
		if out[i], err = f(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}
