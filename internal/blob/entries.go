package blob

import (
	"github.com/google/uuid"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/mapped"
)

// Header is the decoded schedule header.
type Header struct {
	Major, Minor uint32
	ID           uuid.UUID
	Name         string
	Arch         arch.Descriptor
	Inputs       []graph.TensorDesc
	Outputs      []graph.TensorDesc
	Resources    []mapped.Resource
}

// TaskHeader holds the fields shared by every task entry.
type TaskHeader struct {
	Index  int
	Wait   []int
	Update []int
	// Offset is the artifact offset of the entry.
	Offset int64
}

// BarrierEntry is a decoded barrier record.
type BarrierEntry struct {
	Index      int
	RealID     int
	NextSameID int
	Producers  int
	Consumers  int
	Offset     int64
}

// CopyEntry is a decoded DMA entry.
type CopyEntry struct {
	TaskHeader
	Port    int
	Payload mapped.CopyPayload
	Input   graph.BufferRef
	Output  graph.BufferRef
}

// InvariantEntry is a decoded compute invariant.
type InvariantEntry struct {
	TaskHeader
	Payload mapped.InvariantPayload
	Input   graph.BufferRef
	Outputs []graph.BufferRef
}

// VariantEntry is a decoded compute variant.
type VariantEntry struct {
	TaskHeader
	// Invariant is the list index of the owning invariant.
	Invariant int
	Workload  graph.DPUTask
}

// RangeEntry is a decoded kernel range.
type RangeEntry struct {
	TaskHeader
	Payload mapped.RangePayload
}

// InvocationEntry is a decoded kernel invocation.
type InvocationEntry struct {
	TaskHeader
	// Range is the list index of the owning kernel range.
	Range   int
	Tile    int
	Inputs  []graph.BufferRef
	Outputs []graph.BufferRef
	Params  []byte
}

// PlanCounts are the list lengths recorded after the lists.
type PlanCounts struct {
	DMA         []int
	Invariants  int
	Variants    int
	Ranges      int
	Invocations int
	Barriers    int
}

// Contents is the fully decoded artifact.
type Contents struct {
	Header      Header
	Barriers    []BarrierEntry
	DMA         [][]CopyEntry
	Invariants  []InvariantEntry
	Variants    []VariantEntry
	Ranges      []RangeEntry
	Invocations []InvocationEntry
	Counts      PlanCounts
	Weights     []byte
}
