package mapped

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/graph"
)

// QueueKey identifies an engine queue.
type QueueKey struct {
	Kind Kind
	Port int
}

// String returns "kind/port".
func (k QueueKey) String() string {
	return fmt.Sprintf("%s/%d", k.Kind, k.Port)
}

// Queue is the ordered list of operations executed by one engine port.
type Queue struct {
	Key QueueKey
	IDs []OperationID
}

// Head returns the first operation of the queue, or NoOperation.
func (q *Queue) Head() OperationID {
	if q == nil || len(q.IDs) == 0 {
		return NoOperation
	}
	return q.IDs[0]
}

// Count returns the number of operations in the queue.
func (q *Queue) Count() int {
	if q == nil {
		return 0
	}
	return len(q.IDs)
}

// ResourceKind names a memory pool reported in the schedule header.
type ResourceKind uint8

// Resource kinds.
const (
	ScratchCMX ResourceKind = iota + 1
	ExternalDRAM
)

// String returns the resource kind name.
func (k ResourceKind) String() string {
	switch k {
	case ScratchCMX:
		return "cmx"
	case ExternalDRAM:
		return "ddr"
	default:
		return "unknown"
	}
}

// Resource is the amount of a memory pool the program uses.
type Resource struct {
	Kind ResourceKind
	Size uint64
}

// Program is the arena of lowered operations.
type Program struct {
	Name    string
	ID      uuid.UUID
	Arch    arch.Descriptor
	Inputs  []graph.TensorDesc
	Outputs []graph.TensorDesc
	Weights []byte

	Resources []Resource
	Ops       []Operation
	Barriers  []Barrier
	// Finalized is set once barrier counts are final.
	Finalized bool

	queues map[QueueKey]*Queue
}

// NewProgram creates an empty program for the given architecture.
func NewProgram(name string, desc arch.Descriptor) *Program {
	return &Program{
		Name:   name,
		Arch:   desc,
		queues: make(map[QueueKey]*Queue),
	}
}

// Append stores op in the arena, appends it to its queue and returns its id.
// The queue is created on first use.
func (p *Program) Append(op Operation) OperationID {
	if p.queues == nil {
		p.queues = make(map[QueueKey]*Queue)
	}
	op.ID = OperationID(len(p.Ops))
	p.Ops = append(p.Ops, op)

	key := op.Key()
	q, ok := p.queues[key]
	if !ok {
		q = &Queue{Key: key}
		p.queues[key] = q
	}
	q.IDs = append(q.IDs, op.ID)
	return op.ID
}

// AddBarrier appends a barrier record and returns its index.
func (p *Program) AddBarrier(realID int, config OperationID) int {
	idx := len(p.Barriers)
	p.Barriers = append(p.Barriers, Barrier{
		Index:      idx,
		RealID:     realID,
		NextSameID: -1,
		Config:     config,
	})
	return idx
}

// Op returns the operation with the given id, or nil.
func (p *Program) Op(id OperationID) *Operation {
	if id < 0 || int(id) >= len(p.Ops) {
		return nil
	}
	return &p.Ops[id]
}

// Queue returns the queue for key, or nil if nothing was emitted to it.
func (p *Program) Queue(key QueueKey) *Queue {
	return p.queues[key]
}

// QueueKeys returns the keys of all non-empty queues ordered by kind then port.
func (p *Program) QueueKeys() []QueueKey {
	keys := make([]QueueKey, 0, len(p.queues))
	for k := range p.queues {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].Port < keys[j].Port
	})
	return keys
}

// Operations returns the operations of a queue in order.
func (p *Program) Operations(key QueueKey) []*Operation {
	q := p.queues[key]
	if q == nil {
		return nil
	}
	ops := make([]*Operation, len(q.IDs))
	for i, id := range q.IDs {
		ops[i] = &p.Ops[id]
	}
	return ops
}
