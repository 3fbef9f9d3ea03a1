package blob

import (
	"errors"
	"fmt"
	"io"

	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/graph"
)

// TaskEntry is a decoded task ready to be appended to a graph.
type TaskEntry struct {
	Name   string
	Wait   []int
	Update []int
	Op     graph.Op
	Offset int64
}

// Entry is one item yielded by TaskIterator. Exactly one field is set.
type Entry struct {
	Barrier *BarrierEntry
	Task    *TaskEntry
}

// TaskIterator yields the decoded entries in an order that respects barrier
// dependencies.
//
// Task entries are kept in one FIFO per engine queue. The head of a queue is yielded
// once every barrier it references has been yielded and each barrier it waits on has
// seen all of its producing entries. Barriers are yielded in creation order, and only
// when no task can be yielded.
type TaskIterator struct {
	queues    [][]*TaskEntry
	barriers  []BarrierEntry
	declared  int
	pending   []int // producing entries not yet yielded, per barrier
	remaining int
}

// NewTaskIterator folds the lists of c into task entries and prepares the iteration.
func NewTaskIterator(c *Contents) (*TaskIterator, error) {
	it := &TaskIterator{
		barriers: c.Barriers,
		pending:  make([]int, len(c.Barriers)),
	}

	for port, entries := range c.DMA {
		q := make([]*TaskEntry, 0, len(entries))
		for _, e := range entries {
			q = append(q, &TaskEntry{
				Name:   fmt.Sprintf("dma%d.%d", port, e.Index),
				Wait:   e.Wait,
				Update: e.Update,
				Offset: e.Offset,
				Op: &graph.CopyOp{
					Flavor:     e.Payload.Flavor,
					Port:       port,
					Input:      e.Input,
					Output:     e.Output,
					OutOfOrder: e.Payload.OutOfOrder,
					Critical:   e.Payload.Critical,
					Descriptor: e.Payload.Descriptor,
				},
			})
		}
		it.queues = append(it.queues, q)
	}

	compute, err := foldCompute(c)
	if err != nil {
		return nil, err
	}
	kernels, err := foldKernels(c)
	if err != nil {
		return nil, err
	}
	it.queues = append(it.queues, compute, kernels)

	for _, q := range it.queues {
		for _, t := range q {
			for _, ids := range [][]int{t.Wait, t.Update} {
				for _, b := range ids {
					if b < 0 || b >= len(it.barriers) {
						return nil, corrupt(t.Offset, nil, "entry %s references unknown barrier %d", t.Name, b)
					}
				}
			}
			for _, b := range t.Update {
				it.pending[b]++
			}
			it.remaining++
		}
	}
	return it, nil
}

// Next returns the next entry, or io.EOF once every entry has been yielded.
func (it *TaskIterator) Next() (Entry, error) {
	for qi, q := range it.queues {
		if len(q) == 0 || !it.ready(q[0]) {
			continue
		}
		t := q[0]
		it.queues[qi] = q[1:]
		for _, b := range t.Update {
			it.pending[b]--
		}
		it.remaining--
		return Entry{Task: t}, nil
	}

	if it.declared < len(it.barriers) {
		b := &it.barriers[it.declared]
		it.declared++
		return Entry{Barrier: b}, nil
	}
	if it.remaining == 0 {
		return Entry{}, io.EOF
	}

	for _, q := range it.queues {
		if len(q) > 0 {
			return Entry{}, diag.New(diag.CodeCyclicDependency,
				"%d entries remain and none can be scheduled, first blocked entry is %s", it.remaining, q[0].Name).
				WithDetail(diag.KeyOffset, q[0].Offset)
		}
	}
	return Entry{}, io.EOF
}

func (it *TaskIterator) ready(t *TaskEntry) bool {
	for _, b := range t.Update {
		if b >= it.declared {
			return false
		}
	}
	for _, b := range t.Wait {
		if b >= it.declared || it.pending[b] > 0 {
			return false
		}
	}
	return true
}

// foldCompute merges each invariant with its variants into one compute op.
func foldCompute(c *Contents) ([]*TaskEntry, error) {
	out := make([]*TaskEntry, 0, len(c.Invariants))
	next := 0
	for i, inv := range c.Invariants {
		p := inv.Payload
		if p.NumVariants < 1 || next+p.NumVariants > len(c.Variants) {
			return nil, corrupt(inv.Offset, nil, "invariant %d declares %d variants, %d left", i, p.NumVariants, len(c.Variants)-next)
		}
		if len(inv.Outputs) == 0 {
			return nil, corrupt(inv.Offset, nil, "invariant %d has no outputs", i)
		}

		op := &graph.ComputeOp{
			TaskType:         p.TaskType,
			Input:            inv.Input,
			Weights:          p.Weights,
			WeightTable:      p.WeightTable,
			Output:           inv.Outputs[0].Clone(),
			KernelSize:       p.KernelSize,
			KernelStrides:    p.KernelStrides,
			KernelPadding:    p.KernelPadding,
			PPE:              p.PPE,
			IsSegmented:      p.IsSegmented,
			OutChannelOffset: p.OutChannelOffset,
		}
		if p.Distribution != graph.DistNone {
			op.Output.Distribution = &graph.Distribution{Mode: p.Distribution, NumClusters: len(inv.Outputs)}
		} else if len(inv.Outputs) > 1 {
			return nil, corrupt(inv.Offset, nil, "invariant %d has %d outputs without a distribution", i, len(inv.Outputs))
		}

		for _, v := range c.Variants[next : next+p.NumVariants] {
			if v.Invariant != i {
				return nil, corrupt(v.Offset, nil, "variant %d belongs to invariant %d, expected %d", v.Index, v.Invariant, i)
			}
			op.Variants = append(op.Variants, v.Workload)
		}
		next += p.NumVariants

		out = append(out, &TaskEntry{
			Name:   fmt.Sprintf("compute.%d", i),
			Wait:   inv.Wait,
			Update: inv.Update,
			Offset: inv.Offset,
			Op:     op,
		})
	}
	if next != len(c.Variants) {
		return nil, corrupt(c.Variants[next].Offset, nil, "%d variants without an invariant", len(c.Variants)-next)
	}
	return out, nil
}

// foldKernels merges each kernel range with its invocations into one kernel op.
func foldKernels(c *Contents) ([]*TaskEntry, error) {
	out := make([]*TaskEntry, 0, len(c.Ranges))
	next := 0
	for i, rng := range c.Ranges {
		p := rng.Payload
		if p.NumInvocations < 1 || next+p.NumInvocations > len(c.Invocations) {
			return nil, corrupt(rng.Offset, nil, "kernel range %d declares %d invocations, %d left",
				i, p.NumInvocations, len(c.Invocations)-next)
		}
		invs := c.Invocations[next : next+p.NumInvocations]
		next += p.NumInvocations

		op := &graph.KernelOp{
			Entry:           p.Entry,
			Inputs:          invs[0].Inputs,
			Outputs:         invs[0].Outputs,
			Args:            p.Args,
			ParamBufferSize: p.ParamBufferSize,
		}
		for _, inv := range invs {
			if inv.Range != i {
				return nil, corrupt(inv.Offset, nil, "invocation %d belongs to kernel range %d, expected %d", inv.Index, inv.Range, i)
			}
			op.Instances = append(op.Instances, inv.Tile)
		}

		out = append(out, &TaskEntry{
			Name:   fmt.Sprintf("kernel.%d", i),
			Wait:   invs[0].Wait,
			Update: invs[0].Update,
			Offset: invs[0].Offset,
			Op:     op,
		})
	}
	if next != len(c.Invocations) {
		return nil, corrupt(c.Invocations[next].Offset, nil, "%d kernel invocations without a range", len(c.Invocations)-next)
	}
	return out, nil
}

// Graph rebuilds the graph described by c.
func (c *Contents) Graph() (*graph.Graph, error) {
	it, err := NewTaskIterator(c)
	if err != nil {
		return nil, err
	}

	g := graph.New(c.Header.Name)
	g.ID = c.Header.ID
	g.Arch = c.Header.Arch.Kind
	g.Inputs = c.Header.Inputs
	g.Outputs = c.Header.Outputs
	g.Weights = c.Weights

	for {
		e, err := it.Next()
		if errors.Is(err, io.EOF) {
			return g, nil
		}
		if err != nil {
			return nil, err
		}
		if e.Barrier != nil {
			g.DeclareBarrier(e.Barrier.RealID)
			continue
		}
		t := e.Task
		task := graph.Task{
			Name:   t.Name,
			Wait:   barrierIDs(t.Wait),
			Update: barrierIDs(t.Update),
			Ops:    []graph.Op{t.Op},
		}
		if err := g.AddTask(task); err != nil {
			return nil, corrupt(t.Offset, err, "entry %s is not a valid task", t.Name)
		}
	}
}

func barrierIDs(v []int) []graph.BarrierID {
	if len(v) == 0 {
		return nil
	}
	out := make([]graph.BarrierID, len(v))
	for i, b := range v {
		out[i] = graph.BarrierID(b)
	}
	return out
}
