// Package schedule assembles a finalized program into the immutable plan consumed by
// the binary encoder.
package schedule

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/mapped"
)

// List is the head and length of one engine list.
type List struct {
	Head  mapped.OperationID
	Count int
}

// Schedule is the assembled execution plan. It is read-only.
type Schedule struct {
	prog        *mapped.Program
	dma         []List
	invariants  List
	variants    List
	ranges      List
	invocations List
	barriers    List
}

// Assemble builds the plan of p. The program's barriers must be finalized.
func Assemble(p *mapped.Program) (*Schedule, error) {
	if p == nil {
		return nil, fmt.Errorf("schedule: nil program")
	}
	if !p.Finalized {
		return nil, diag.Malformed("program %q: barriers are not finalized", p.Name)
	}

	ports := p.Arch.DMAPorts
	for _, key := range p.QueueKeys() {
		if key.Kind == mapped.KindMemoryCopy && key.Port >= ports {
			ports = key.Port + 1
		}
	}

	s := &Schedule{prog: p, dma: make([]List, ports)}
	for port := range s.dma {
		s.dma[port] = list(p, mapped.QueueKey{Kind: mapped.KindMemoryCopy, Port: port})
	}
	s.invariants = list(p, mapped.QueueKey{Kind: mapped.KindComputeInvariant})
	s.variants = list(p, mapped.QueueKey{Kind: mapped.KindComputeVariant})
	s.ranges = list(p, mapped.QueueKey{Kind: mapped.KindKernelRange})
	s.invocations = list(p, mapped.QueueKey{Kind: mapped.KindKernelInvocation})

	s.barriers = List{Head: mapped.NoOperation, Count: len(p.Barriers)}
	if len(p.Barriers) > 0 {
		s.barriers.Head = p.Barriers[0].Config
	}
	return s, nil
}

func list(p *mapped.Program, key mapped.QueueKey) List {
	q := p.Queue(key)
	return List{Head: q.Head(), Count: q.Count()}
}

// Name returns the program name.
func (s *Schedule) Name() string { return s.prog.Name }

// ID returns the program identifier.
func (s *Schedule) ID() uuid.UUID { return s.prog.ID }

// Arch returns the target architecture.
func (s *Schedule) Arch() arch.Descriptor { return s.prog.Arch }

// Inputs returns the network inputs.
func (s *Schedule) Inputs() []graph.TensorDesc { return s.prog.Inputs }

// Outputs returns the network outputs.
func (s *Schedule) Outputs() []graph.TensorDesc { return s.prog.Outputs }

// Weights returns the constant pool.
func (s *Schedule) Weights() []byte { return s.prog.Weights }

// Resources returns the memory pool usage.
func (s *Schedule) Resources() []mapped.Resource { return s.prog.Resources }

// Barriers returns the finalized barriers in index order.
func (s *Schedule) Barriers() []mapped.Barrier { return s.prog.Barriers }

// NumDMAPorts returns the number of DMA lists.
func (s *Schedule) NumDMAPorts() int { return len(s.dma) }

// DMA returns the list of a DMA port.
func (s *Schedule) DMA(port int) List {
	if port < 0 || port >= len(s.dma) {
		return List{Head: mapped.NoOperation}
	}
	return s.dma[port]
}

// Invariants returns the compute invariant list.
func (s *Schedule) Invariants() List { return s.invariants }

// Variants returns the compute variant list.
func (s *Schedule) Variants() List { return s.variants }

// KernelRanges returns the kernel range list.
func (s *Schedule) KernelRanges() List { return s.ranges }

// KernelInvocations returns the kernel invocation list.
func (s *Schedule) KernelInvocations() List { return s.invocations }

// BarrierList returns the barrier configuration list.
func (s *Schedule) BarrierList() List { return s.barriers }

// Operations returns the operations of one list in execution order.
func (s *Schedule) Operations(kind mapped.Kind, port int) []*mapped.Operation {
	return s.prog.Operations(mapped.QueueKey{Kind: kind, Port: port})
}

// Op returns an operation by id.
func (s *Schedule) Op(id mapped.OperationID) *mapped.Operation { return s.prog.Op(id) }

// Program exposes the underlying arena. Callers must not modify it.
func (s *Schedule) Program() *mapped.Program { return s.prog }
