// Package compiler runs the full pipeline: lowering, barrier finalization, plan
// assembly and encoding. Each phase is recorded as an OpenTelemetry span on the
// global tracer provider.
package compiler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/barrier"
	"github.com/born-ml/npusched/internal/blob"
	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/logging"
	"github.com/born-ml/npusched/internal/lowering"
	"github.com/born-ml/npusched/internal/mapped"
	"github.com/born-ml/npusched/internal/schedule"
)

// TracerName names the tracer used for pipeline spans.
const TracerName = "github.com/born-ml/npusched/compiler"

// Span names.
const (
	SpanCompile  = "npusched.compile"
	SpanLower    = "npusched.lower"
	SpanFinalize = "npusched.finalize"
	SpanAssemble = "npusched.assemble"
	SpanEncode   = "npusched.encode"
	SpanDecode   = "npusched.decode"
)

// Attribute keys.
const (
	AttrProgram     = "npusched.program"
	AttrArch        = "npusched.arch"
	AttrOperations  = "npusched.operations"
	AttrBarriers    = "npusched.barriers"
	AttrBytes       = "npusched.bytes"
	AttrDiagnostics = "npusched.diagnostics"
)

type options struct {
	log      *logging.Logger
	lowering []lowering.Option
}

// Option configures a compilation.
type Option func(*options)

// WithLogger sets the logger of every phase.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithLoweringOptions forwards options to the lowering phase.
func WithLoweringOptions(opts ...lowering.Option) Option {
	return func(o *options) { o.lowering = append(o.lowering, opts...) }
}

// Result is the output of Compile.
type Result struct {
	Schedule    *schedule.Schedule
	Artifact    []byte
	Diagnostics []diag.Diagnostic
}

func tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// phase runs fn inside a child span and records its error.
func phase(ctx context.Context, name string, fn func(ctx context.Context, span trace.Span) error) error {
	ctx, span := tracer().Start(ctx, name)
	defer span.End()
	if err := fn(ctx, span); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.log = logging.OrNop(o.log).WithComponent("compiler")
	return o
}

// Lower lowers g, finalizes its barriers and assembles the plan. A graph without an
// ID is assigned a random one.
func Lower(ctx context.Context, g *graph.Graph, desc arch.Descriptor, opts ...Option) (*schedule.Schedule, []diag.Diagnostic, error) {
	if g == nil {
		return nil, nil, fmt.Errorf("compiler: nil graph")
	}
	o := buildOptions(opts)
	if g.ID == uuid.Nil {
		cp := *g
		cp.ID = uuid.New()
		g = &cp
	}

	var (
		prog  *mapped.Program
		diags []diag.Diagnostic
		s     *schedule.Schedule
	)
	err := phase(ctx, SpanLower, func(_ context.Context, span trace.Span) error {
		lopts := append([]lowering.Option{lowering.WithLogger(o.log)}, o.lowering...)
		var err error
		prog, err = lowering.Lower(g, desc, lopts...)
		if err != nil {
			return err
		}
		span.SetAttributes(
			attribute.String(AttrProgram, g.Name),
			attribute.String(AttrArch, desc.Name),
			attribute.Int(AttrOperations, len(prog.Ops)),
		)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	err = phase(ctx, SpanFinalize, func(_ context.Context, span trace.Span) error {
		var err error
		diags, err = barrier.Finalize(prog, o.log)
		if err != nil {
			return err
		}
		span.SetAttributes(
			attribute.Int(AttrBarriers, len(prog.Barriers)),
			attribute.Int(AttrDiagnostics, len(diags)),
		)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	err = phase(ctx, SpanAssemble, func(context.Context, trace.Span) error {
		var err error
		s, err = schedule.Assemble(prog)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return s, diags, nil
}

// Encode serializes an assembled schedule.
func Encode(ctx context.Context, s *schedule.Schedule) ([]byte, error) {
	var data []byte
	err := phase(ctx, SpanEncode, func(_ context.Context, span trace.Span) error {
		var err error
		data, err = blob.Encode(s)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Int(AttrBytes, len(data)))
		return nil
	})
	return data, err
}

// Decode parses an artifact back into a graph.
func Decode(ctx context.Context, data []byte) (*graph.Graph, error) {
	var g *graph.Graph
	err := phase(ctx, SpanDecode, func(_ context.Context, span trace.Span) error {
		span.SetAttributes(attribute.Int(AttrBytes, len(data)))
		var err error
		g, err = blob.Decode(data)
		return err
	})
	return g, err
}

// Compile runs Lower then Encode.
func Compile(ctx context.Context, g *graph.Graph, desc arch.Descriptor, opts ...Option) (*Result, error) {
	o := buildOptions(opts)
	var res *Result
	err := phase(ctx, SpanCompile, func(ctx context.Context, span trace.Span) error {
		s, diags, err := Lower(ctx, g, desc, opts...)
		if err != nil {
			return err
		}
		data, err := Encode(ctx, s)
		if err != nil {
			return err
		}
		span.SetAttributes(
			attribute.String(AttrProgram, s.Name()),
			attribute.Int(AttrBytes, len(data)),
		)
		res = &Result{Schedule: s, Artifact: data, Diagnostics: diags}
		return nil
	})
	if err != nil {
		o.log.Error("compilation failed", err, map[string]any{logging.FieldProgram: programName(g)})
		return nil, err
	}
	o.log.Info("program compiled", map[string]any{
		logging.FieldProgram: res.Schedule.Name(),
		"id":                 res.Schedule.ID().String(),
		"bytes":              len(res.Artifact),
		"diagnostics":        len(res.Diagnostics),
	})
	return res, nil
}

func programName(g *graph.Graph) string {
	if g == nil {
		return ""
	}
	return g.Name
}
