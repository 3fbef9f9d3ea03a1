package graph

import (
	"fmt"
	"strings"

	"github.com/born-ml/npusched/internal/tensor"
)

// MemorySpace tags where a buffer lives. The numeric values are part of the binary format.
type MemorySpace uint8

// Memory spaces.
const (
	SpaceUnknown MemorySpace = iota
	ExternalInput
	ExternalOutput
	ConstantPool
	StagingPool
	StagingBSS
	ClusterScratch
	ClusterScratchAux
	PersistentCache
	AbsoluteAddress
)

var spaceNames = map[MemorySpace]string{
	ExternalInput:     "external-input",
	ExternalOutput:    "external-output",
	ConstantPool:      "constant-pool",
	StagingPool:       "staging-pool",
	StagingBSS:        "staging-bss",
	ClusterScratch:    "cluster-scratch",
	ClusterScratchAux: "cluster-scratch-aux",
	PersistentCache:   "persistent-cache",
	AbsoluteAddress:   "register",
}

// String returns the memory space name.
func (s MemorySpace) String() string {
	if n, ok := spaceNames[s]; ok {
		return n
	}
	return "unknown"
}

// Valid reports whether s is a known memory space.
func (s MemorySpace) Valid() bool {
	_, ok := spaceNames[s]
	return ok
}

// IsExternalDRAM reports whether the space is backed by external DRAM.
func (s MemorySpace) IsExternalDRAM() bool {
	return s == StagingPool || s == StagingBSS
}

// ParseMemorySpace converts a memory space name into a MemorySpace.
func ParseMemorySpace(name string) (MemorySpace, error) {
	name = strings.ToLower(name)
	for s, n := range spaceNames {
		if n == name {
			return s, nil
		}
	}
	switch name {
	case "cmx":
		return ClusterScratch, nil
	case "ddr":
		return StagingPool, nil
	}
	return SpaceUnknown, fmt.Errorf("unknown memory space %q", name)
}

// DistributionMode describes how a logical buffer is laid out across compute clusters.
type DistributionMode uint8

// Distribution modes.
const (
	DistNone DistributionMode = iota
	DistDuplicated
	DistSegmented
	DistOverlapped
	DistMulticasted
)

// String returns the mode name.
func (m DistributionMode) String() string {
	switch m {
	case DistNone:
		return "none"
	case DistDuplicated:
		return "duplicated"
	case DistSegmented:
		return "segmented"
	case DistOverlapped:
		return "overlapped"
	case DistMulticasted:
		return "multicasted"
	default:
		return "unknown"
	}
}

// ParseDistributionMode converts a mode name into a DistributionMode.
func ParseDistributionMode(name string) (DistributionMode, error) {
	for m := DistNone; m <= DistMulticasted; m++ {
		if m.String() == strings.ToLower(name) {
			return m, nil
		}
	}
	return DistNone, fmt.Errorf("unknown distribution mode %q", name)
}

// IsReplicated reports whether every cluster holds a full copy of the buffer.
func (m DistributionMode) IsReplicated() bool {
	return m == DistDuplicated || m == DistMulticasted
}

// Distribution describes a buffer distributed over compute clusters.
type Distribution struct {
	Mode        DistributionMode
	NumClusters int
	NumTiles    []int
	Alignment   []int
	Kernel      [2]int
	Pads        Padding
	Strides     [2]int
}

// Clone returns a deep copy of the distribution.
func (d *Distribution) Clone() *Distribution {
	if d == nil {
		return nil
	}
	c := *d
	c.NumTiles = append([]int(nil), d.NumTiles...)
	c.Alignment = append([]int(nil), d.Alignment...)
	return &c
}

// Padding holds per-side padding.
type Padding struct {
	Left, Right, Top, Bottom int
}

// BufferRef references a memory region read or written by an operation.
type BufferRef struct {
	Name  string
	Shape tensor.Shape
	DType tensor.DataType
	// Order lists logical dimensions from outermost to innermost memory dimension.
	// Nil means row-major.
	Order tensor.DimsOrder
	// Strides are byte strides per logical dimension. Nil means dense in Order.
	Strides tensor.Strides
	Space   MemorySpace
	// Sections holds one section index per physical replica (the cluster for
	// cluster-local memory, the I/O slot for external memory).
	Sections     []int
	Offset       uint64
	SwizzlingKey uint8
	Distribution *Distribution
}

// Clone returns a deep copy of the reference.
func (b BufferRef) Clone() BufferRef {
	c := b
	c.Shape = b.Shape.Clone()
	c.Order = b.Order.Clone()
	c.Strides = b.Strides.Clone()
	c.Sections = append([]int(nil), b.Sections...)
	c.Distribution = b.Distribution.Clone()
	return c
}

// IsDistributed reports whether the buffer carries a non-trivial distribution.
func (b BufferRef) IsDistributed() bool {
	return b.Distribution != nil && b.Distribution.Mode != DistNone
}

// EffectiveOrder returns Order, or the row-major order when Order is nil.
func (b BufferRef) EffectiveOrder() tensor.DimsOrder {
	if b.Order == nil {
		return tensor.Identity(len(b.Shape))
	}
	return b.Order
}

// EffectiveStrides returns Strides, or dense strides when Strides is nil.
func (b BufferRef) EffectiveStrides() tensor.Strides {
	if b.Strides != nil {
		return b.Strides
	}
	strides, err := tensor.DenseStrides(b.Shape, b.EffectiveOrder(), b.DType.Size())
	if err != nil {
		return nil
	}
	return strides
}

// ByteSize returns the number of bytes spanned by the buffer.
func (b BufferRef) ByteSize() int64 {
	return tensor.ByteSize(b.Shape, b.EffectiveStrides(), b.DType.Size())
}

// Validate checks the reference for structural consistency.
func (b BufferRef) Validate() error {
	if err := b.Shape.Validate(); err != nil {
		return fmt.Errorf("buffer %q: %w", b.Name, err)
	}
	if !b.DType.Valid() {
		return fmt.Errorf("buffer %q: invalid element type", b.Name)
	}
	if !b.Space.Valid() {
		return fmt.Errorf("buffer %q: invalid memory space %d", b.Name, b.Space)
	}
	if b.Order != nil {
		if len(b.Order) != len(b.Shape) {
			return fmt.Errorf("buffer %q: order rank %d does not match shape rank %d", b.Name, len(b.Order), len(b.Shape))
		}
		if err := b.Order.Validate(); err != nil {
			return fmt.Errorf("buffer %q: %w", b.Name, err)
		}
	}
	if b.Strides != nil && len(b.Strides) != len(b.Shape) {
		return fmt.Errorf("buffer %q: %d strides for rank %d", b.Name, len(b.Strides), len(b.Shape))
	}
	for _, s := range b.Sections {
		if s < 0 {
			return fmt.Errorf("buffer %q: negative section index %d", b.Name, s)
		}
	}
	if d := b.Distribution; d != nil && d.Mode != DistNone && d.NumClusters < 1 {
		return fmt.Errorf("buffer %q: distribution %s needs at least one cluster", b.Name, d.Mode)
	}
	return nil
}

// TensorDesc names a network input or output.
type TensorDesc struct {
	Name   string
	Buffer BufferRef
}
