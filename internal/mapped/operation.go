// Package mapped holds the physical program produced by lowering: an arena of
// engine operations, the per-engine queues that order them and the barrier records
// that synchronize the queues.
package mapped

import (
	"fmt"

	"github.com/born-ml/npusched/internal/graph"
)

// Kind is the physical operation class. Each kind owns its own queues.
type Kind uint8

// Operation kinds.
const (
	KindMemoryCopy Kind = iota + 1
	KindComputeInvariant
	KindComputeVariant
	KindKernelRange
	KindKernelInvocation
	KindBarrierConfig
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindMemoryCopy:
		return "dma"
	case KindComputeInvariant:
		return "invariant"
	case KindComputeVariant:
		return "variant"
	case KindKernelRange:
		return "kernel-range"
	case KindKernelInvocation:
		return "kernel-invocation"
	case KindBarrierConfig:
		return "barrier"
	default:
		return "unknown"
	}
}

// OperationID indexes Program.Ops.
type OperationID int

// NoOperation marks an absent link or an empty queue head.
const NoOperation OperationID = -1

// Operation is one entry of an engine queue. Exactly one payload pointer is set and it
// matches Kind.
type Operation struct {
	ID   OperationID
	Kind Kind
	Port int
	// Index is the ordinal of the operation within its (Kind, Port) queue.
	Index int
	// Task is the index of the graph task the operation was lowered from, or -1.
	Task    int
	Inputs  []graph.BufferRef
	Outputs []graph.BufferRef
	Wait    []int
	Update  []int
	// Previous is the operation emitted before this one on the same queue.
	Previous OperationID
	// Hits is how many times the operation signals or consumes each of its barriers.
	Hits int

	Copy          *CopyPayload
	Invariant     *InvariantPayload
	Variant       *VariantPayload
	Range         *RangePayload
	Invocation    *InvocationPayload
	BarrierConfig *BarrierConfigPayload
}

// Key returns the queue the operation belongs to.
func (op *Operation) Key() QueueKey {
	return QueueKey{Kind: op.Kind, Port: op.Port}
}

// String returns a short description of the operation.
func (op *Operation) String() string {
	return fmt.Sprintf("%s#%d", op.Key(), op.Index)
}

// CopyPayload holds the DMA specific fields.
type CopyPayload struct {
	Flavor     graph.CopyFlavor
	Compressed bool
	OutOfOrder bool
	Critical   bool
	Descriptor *graph.DMADescriptor
}

// InvariantPayload holds the fields shared by every variant of a compute op.
type InvariantPayload struct {
	TaskType         graph.TaskType
	Weights          *graph.BufferRef
	WeightTable      *graph.BufferRef
	KernelSize       [2]int
	KernelStrides    [2]int
	KernelPadding    graph.Padding
	PPE              graph.PPE
	IsSegmented      bool
	OutChannelOffset int
	MPEMode          graph.MPEMode
	// Distribution is the distribution mode of the logical output.
	Distribution graph.DistributionMode
	NumVariants  int
}

// VariantPayload holds one DPU workload split.
type VariantPayload struct {
	Invariant OperationID
	Workload  graph.DPUTask
}

// RangePayload describes a software kernel shared by its invocations.
type RangePayload struct {
	Entry           string
	TextSymbol      string
	ArgsSymbol      string
	Args            []graph.KernelArg
	ParamBufferSize int
	NumInvocations  int
}

// InvocationPayload is one scheduled instance of a kernel range.
type InvocationPayload struct {
	Range  OperationID
	Tile   int
	Params []byte
}

// BarrierConfigPayload configures a hardware barrier slot.
type BarrierConfigPayload struct {
	Barrier int
}

// BarrierState tracks the lifecycle of a barrier.
type BarrierState uint8

// Barrier states.
const (
	BarrierDeclared BarrierState = iota
	BarrierFinalized
)

// Barrier is a counting barrier record.
type Barrier struct {
	Index      int
	RealID     int
	NextSameID int
	Producers  int
	Consumers  int
	State      BarrierState
	// Config is the BarrierConfig operation that declares the barrier.
	Config OperationID
}
