// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package compiler

import (
	"context"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/blob"
	icompiler "github.com/born-ml/npusched/internal/compiler"
	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/graphio"
	"github.com/born-ml/npusched/internal/logging"
	"github.com/born-ml/npusched/internal/lowering"
	"github.com/born-ml/npusched/internal/schedule"
	"github.com/born-ml/npusched/internal/tensor"
)

// Graph is a synchronized program: barrier declarations and tasks in order.
type Graph = graph.Graph

// Task wraps operations of one family with the barriers they wait on and update.
type Task = graph.Task

// BarrierID identifies a barrier declared in a Graph.
type BarrierID = graph.BarrierID

// BufferRef references a memory region read or written by an operation.
type BufferRef = graph.BufferRef

// MemorySpace locates a buffer.
type MemorySpace = graph.MemorySpace

// Memory spaces.
const (
	ExternalInput     = graph.ExternalInput
	ExternalOutput    = graph.ExternalOutput
	ConstantPool      = graph.ConstantPool
	StagingPool       = graph.StagingPool
	StagingBSS        = graph.StagingBSS
	ClusterScratch    = graph.ClusterScratch
	ClusterScratchAux = graph.ClusterScratchAux
	PersistentCache   = graph.PersistentCache
	AbsoluteAddress   = graph.AbsoluteAddress
)

// DataType is the element type of a buffer.
type DataType = tensor.DataType

// Element types.
const (
	Float32  = tensor.Float32
	Float16  = tensor.Float16
	BFloat16 = tensor.BFloat16
	Int32    = tensor.Int32
	Int8     = tensor.Int8
	Uint8    = tensor.Uint8
)

// Op is a copy, compute or kernel operation.
type Op = graph.Op

// Operation kinds.
type (
	CopyOp    = graph.CopyOp
	ComputeOp = graph.ComputeOp
	KernelOp  = graph.KernelOp
)

// Schedule is an assembled plan ready to be encoded.
type Schedule = schedule.Schedule

// Descriptor describes the target architecture.
type Descriptor = arch.Descriptor

// Diagnostic is a non-fatal finding of a successful compilation.
type Diagnostic = diag.Diagnostic

// Error is the error type returned by the core.
type Error = diag.Error

// Result holds the schedule, artifact and diagnostics of a compilation.
type Result = icompiler.Result

// Option configures Compile.
type Option = icompiler.Option

// Logger is the structured logger accepted by WithLogger.
type Logger = logging.Logger

// LogConfig configures NewLogger.
type LogConfig = logging.Config

// NewLogger creates a logger writing to the configured output.
func NewLogger(cfg LogConfig) *Logger {
	return logging.New(cfg)
}

// Error classes, for use with errors.Is.
var (
	ErrMalformedGraph            = diag.ErrMalformedGraph
	ErrUnsupportedDistribution   = diag.ErrUnsupportedDistribution
	ErrDescriptorTooLarge        = diag.ErrDescriptorTooLarge
	ErrInconsistentExecutionMode = diag.ErrInconsistentExecutionMode
	ErrKernelParamsOverflow      = diag.ErrKernelParamsOverflow
	ErrBarrierCountOverflow      = diag.ErrBarrierCountOverflow
	ErrTruncatedOrCorruptInput   = diag.ErrTruncatedOrCorruptInput
	ErrCyclicDependency          = diag.ErrCyclicDependency
)

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	return graph.New(name)
}

// LoadGraph reads a YAML or JSON graph description.
func LoadGraph(path string) (*Graph, error) {
	return graphio.Load(path)
}

// Preset returns the descriptor of a known architecture by name.
func Preset(name string) (Descriptor, error) {
	return arch.PresetByName(name)
}

// Lower unrolls distributed buffers, lowers every task to engine queues, finalizes
// the barriers and assembles the plan.
func Lower(g *Graph, desc Descriptor) (*Schedule, error) {
	s, _, err := icompiler.Lower(context.Background(), g, desc)
	return s, err
}

// Encode serializes an assembled schedule.
func Encode(s *Schedule) ([]byte, error) {
	return blob.Encode(s)
}

// Decode parses an artifact and rebuilds its graph.
func Decode(data []byte) (*Graph, error) {
	return blob.Decode(data)
}

// Compile lowers and encodes g.
func Compile(ctx context.Context, g *Graph, desc Descriptor, opts ...Option) (*Result, error) {
	return icompiler.Compile(ctx, g, desc, opts...)
}

// WithLogger sets the logger used by every phase.
func WithLogger(l *Logger) Option {
	return icompiler.WithLogger(l)
}

// WithMaxDMAPlanes overrides the plane limit of strided DMA descriptors.
func WithMaxDMAPlanes(n uint32) Option {
	return icompiler.WithLoweringOptions(lowering.WithMaxDMAPlanes(n))
}

// WithParamBufferSize sets the kernel parameter buffer size used when a kernel
// does not declare one.
func WithParamBufferSize(n int) Option {
	return icompiler.WithLoweringOptions(lowering.WithParamBufferSize(n))
}
