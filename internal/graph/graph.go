// Package graph models a dataflow program as an ordered list of barrier declarations
// and synchronized tasks.
//
// A graph is built incrementally: DeclareBarrier introduces a barrier and AddTask
// appends a task that may only reference barriers declared before it.
package graph

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/diag"
)

// BarrierID is the sequential id of a barrier declaration within a graph.
type BarrierID int

// BarrierDecl declares a counting barrier bound to a hardware slot.
type BarrierDecl struct {
	ID     BarrierID
	RealID int
}

// Task wraps operations with the barriers they wait on and update.
type Task struct {
	Name   string
	Wait   []BarrierID
	Update []BarrierID
	Ops    []Op
}

// Family returns the family of the task's operations.
func (t *Task) Family() Family {
	if len(t.Ops) == 0 {
		return 0
	}
	return t.Ops[0].Family()
}

// Item is either a barrier declaration or a task. Exactly one field is set.
type Item struct {
	Barrier *BarrierDecl
	Task    *Task
}

// Graph is an ordered list of items plus the network interface of the program.
type Graph struct {
	Name string
	// ID identifies the compiled program. A nil UUID is replaced at compile time.
	ID      uuid.UUID
	Arch    arch.Kind
	Inputs  []TensorDesc
	Outputs []TensorDesc
	// Weights is the constant pool addressed by ConstantPool buffers.
	Weights []byte

	items    []Item
	barriers []BarrierDecl
	tasks    int
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{Name: name}
}

// DeclareBarrier appends a barrier declaration and returns its id.
func (g *Graph) DeclareBarrier(realID int) BarrierID {
	decl := BarrierDecl{ID: BarrierID(len(g.barriers)), RealID: realID}
	g.barriers = append(g.barriers, decl)
	g.items = append(g.items, Item{Barrier: &decl})
	return decl.ID
}

// AddTask validates a task against the barriers declared so far and appends it.
func (g *Graph) AddTask(t Task) error {
	if err := checkTask(&t, g.tasks, len(g.barriers)); err != nil {
		return err
	}
	g.items = append(g.items, Item{Task: &t})
	g.tasks++
	return nil
}

// Items returns the items in declaration order. The slice must not be modified.
func (g *Graph) Items() []Item {
	return g.items
}

// Barriers returns the barrier declarations in declaration order.
func (g *Graph) Barriers() []BarrierDecl {
	return g.barriers
}

// NumTasks returns the number of tasks.
func (g *Graph) NumTasks() int {
	return g.tasks
}

// Tasks returns the tasks in declaration order.
func (g *Graph) Tasks() []*Task {
	tasks := make([]*Task, 0, g.tasks)
	for _, it := range g.items {
		if it.Task != nil {
			tasks = append(tasks, it.Task)
		}
	}
	return tasks
}

// Validate re-checks every item in order and verifies that constant pool buffers lie
// inside Weights.
func (g *Graph) Validate() error {
	declared, task := 0, 0
	for _, it := range g.items {
		switch {
		case it.Barrier != nil && it.Task != nil:
			return diag.Malformed("item holds both a barrier and a task")
		case it.Barrier != nil:
			if int(it.Barrier.ID) != declared {
				return diag.Malformed("barrier declared with id %d, expected %d", it.Barrier.ID, declared).
					WithDetail(diag.KeyBarrier, int(it.Barrier.ID))
			}
			if it.Barrier.RealID < 0 {
				return diag.Malformed("barrier %d has negative real id %d", it.Barrier.ID, it.Barrier.RealID).
					WithDetail(diag.KeyBarrier, int(it.Barrier.ID))
			}
			declared++
		case it.Task != nil:
			if err := checkTask(it.Task, task, declared); err != nil {
				return err
			}
			if err := g.checkConstants(it.Task, task); err != nil {
				return err
			}
			task++
		default:
			return diag.Malformed("empty item")
		}
	}
	return nil
}

func checkTask(t *Task, index, declared int) error {
	if len(t.Ops) == 0 {
		return diag.Malformed("task %q has no operations", t.Name).WithDetail(diag.KeyTask, index)
	}
	for i, op := range t.Ops {
		if op == nil {
			return diag.Malformed("task %q: operation %d is nil", t.Name, i).WithDetail(diag.KeyTask, index)
		}
	}
	family := t.Ops[0].Family()
	for i, op := range t.Ops {
		if op.Family() != family {
			return diag.Malformed("task %q mixes %s and %s operations", t.Name, family, op.Family()).
				WithDetail(diag.KeyTask, index)
		}
		if err := op.validate(); err != nil {
			return diag.Malformed("task %q: operation %d: %v", t.Name, i, err).
				WithDetail(diag.KeyTask, index).
				WithDetail(diag.KeyOperation, i).
				WithCause(err)
		}
	}
	if err := checkBarrierSet("wait", t.Wait, declared); err != nil {
		return err.WithDetail(diag.KeyTask, index)
	}
	if err := checkBarrierSet("update", t.Update, declared); err != nil {
		return err.WithDetail(diag.KeyTask, index)
	}
	return nil
}

func checkBarrierSet(role string, ids []BarrierID, declared int) *diag.Error {
	seen := make(map[BarrierID]struct{}, len(ids))
	for _, id := range ids {
		if id < 0 {
			return diag.Malformed("negative %s barrier %d", role, id).WithDetail(diag.KeyBarrier, int(id))
		}
		if int(id) >= declared {
			return diag.Malformed("%s barrier %d is not declared before use", role, id).
				WithDetail(diag.KeyBarrier, int(id))
		}
		if _, dup := seen[id]; dup {
			return diag.Malformed("duplicate %s barrier %d", role, id).WithDetail(diag.KeyBarrier, int(id))
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (g *Graph) checkConstants(t *Task, index int) error {
	for _, op := range t.Ops {
		for _, ref := range Refs(op) {
			if ref.Space != ConstantPool {
				continue
			}
			end := ref.Offset + uint64(ref.ByteSize())
			if end > uint64(len(g.Weights)) {
				return diag.Malformed("constant %q [%d, %d) exceeds the %d-byte constant pool",
					ref.Name, ref.Offset, end, len(g.Weights)).WithDetail(diag.KeyTask, index)
			}
		}
	}
	return nil
}

// Refs returns every buffer referenced by an operation, inputs first.
func Refs(op Op) []BufferRef {
	switch o := op.(type) {
	case *CopyOp:
		return []BufferRef{o.Input, o.Output}
	case *ComputeOp:
		return o.refs()
	case *KernelOp:
		refs := make([]BufferRef, 0, len(o.Inputs)+len(o.Outputs))
		refs = append(refs, o.Inputs...)
		return append(refs, o.Outputs...)
	default:
		return nil
	}
}

// String returns a short description of the graph.
func (g *Graph) String() string {
	return fmt.Sprintf("graph %q: %d barriers, %d tasks", g.Name, len(g.barriers), g.tasks)
}
