package graphio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/tensor"
)

// ParseFile parses a description from file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional
func ParseFile(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses a description from bytes. Unknown fields are rejected.
func Parse(data []byte) (*Description, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Description
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse description: empty document")
		}
		return nil, fmt.Errorf("failed to parse description: %w", err)
	}
	return &d, nil
}

// Load parses a description file and builds its graph. A weights file is resolved
// relative to the description.
func Load(path string) (*graph.Graph, error) {
	d, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return d.Build(filepath.Dir(path))
}

// LoadFromBytes parses a description and builds its graph. A weights file is resolved
// relative to the working directory.
func LoadFromBytes(data []byte) (*graph.Graph, error) {
	d, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return d.Build("")
}

// Build converts the description into a graph. dir is the base directory of
// WeightsFile.
func (d *Description) Build(dir string) (*graph.Graph, error) {
	g := graph.New(d.Name)

	if d.ID != "" {
		id, err := uuid.Parse(d.ID)
		if err != nil {
			return nil, diag.Malformed("invalid program id %q", d.ID).WithCause(err)
		}
		g.ID = id
	}
	kind, err := arch.ParseKind(d.Arch)
	if err != nil {
		return nil, diag.Malformed("invalid architecture").WithCause(err)
	}
	g.Arch = kind

	switch {
	case d.WeightsFile != "":
		//nolint:gosec // G304: weights path comes from the description
		w, err := os.ReadFile(filepath.Join(dir, d.WeightsFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read weights: %w", err)
		}
		g.Weights = w
	case d.WeightsSize < 0:
		return nil, diag.Malformed("negative weights size %d", d.WeightsSize)
	case d.WeightsSize > 0:
		g.Weights = make([]byte, d.WeightsSize)
	}

	if g.Inputs, err = buildTensorDescs(d.Inputs); err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	if g.Outputs, err = buildTensorDescs(d.Outputs); err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}

	barriers := make(map[string]graph.BarrierID)
	task := 0
	for i, it := range d.Items {
		switch {
		case it.Barrier != "" && it.Task != "":
			return nil, diag.Malformed("item %d declares both barrier %q and task %q", i, it.Barrier, it.Task)
		case it.Barrier == "" && it.Task == "":
			return nil, diag.Malformed("item %d names neither a barrier nor a task", i)
		case it.Barrier != "":
			if _, dup := barriers[it.Barrier]; dup {
				return nil, diag.Malformed("item %d redeclares barrier %q", i, it.Barrier)
			}
			realID := len(barriers)
			if it.RealID != nil {
				realID = *it.RealID
			}
			barriers[it.Barrier] = g.DeclareBarrier(realID)
		default:
			t, err := it.build(barriers)
			if err != nil {
				var de *diag.Error
				if errors.As(err, &de) {
					return nil, de.WithDetail(diag.KeyTask, task)
				}
				return nil, diag.Malformed("task %q: %v", it.Task, err).WithDetail(diag.KeyTask, task).WithCause(err)
			}
			if err := g.AddTask(t); err != nil {
				return nil, err
			}
			task++
		}
	}
	return g, nil
}

func (it *Item) build(barriers map[string]graph.BarrierID) (graph.Task, error) {
	t := graph.Task{Name: it.Task}
	var err error
	if t.Wait, err = barrierIDs(it.Wait, barriers); err != nil {
		return t, err
	}
	if t.Update, err = barrierIDs(it.Update, barriers); err != nil {
		return t, err
	}
	for j, op := range it.Ops {
		o, err := op.build()
		if err != nil {
			return t, fmt.Errorf("op %d: %w", j, err)
		}
		t.Ops = append(t.Ops, o)
	}
	return t, nil
}

func barrierIDs(names []string, barriers map[string]graph.BarrierID) ([]graph.BarrierID, error) {
	var ids []graph.BarrierID
	for _, n := range names {
		id, ok := barriers[n]
		if !ok {
			return nil, diag.Malformed("barrier %q is not declared before use", n)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (o *Op) build() (graph.Op, error) {
	set := 0
	for _, present := range []bool{o.Copy != nil, o.Compute != nil, o.Kernel != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("expected exactly one of copy, compute or kernel, got %d", set)
	}
	switch {
	case o.Copy != nil:
		return o.Copy.build()
	case o.Compute != nil:
		return o.Compute.build()
	default:
		return o.Kernel.build()
	}
}

func (c *Copy) build() (*graph.CopyOp, error) {
	flavor, err := graph.ParseCopyFlavor(c.Flavor)
	if err != nil {
		return nil, err
	}
	op := &graph.CopyOp{Flavor: flavor, Port: c.Port, OutOfOrder: c.OutOfOrder, Critical: c.Critical}
	if op.Input, err = c.Input.build(); err != nil {
		return nil, err
	}
	if op.Output, err = c.Output.build(); err != nil {
		return nil, err
	}
	if d := c.Descriptor; d != nil {
		op.Descriptor = &graph.DMADescriptor{
			Len:            d.Len,
			SrcWidth:       d.SrcWidth,
			SrcStride:      d.SrcStride,
			SrcPlaneStride: d.SrcPlaneStride,
			DstWidth:       d.DstWidth,
			DstStride:      d.DstStride,
			DstPlaneStride: d.DstPlaneStride,
			NumPlanes:      d.NumPlanes,
		}
	}
	return op, nil
}

func (c *Compute) build() (*graph.ComputeOp, error) {
	tt, err := graph.ParseTaskType(c.Type)
	if err != nil {
		return nil, err
	}
	op := &graph.ComputeOp{
		TaskType:         tt,
		KernelSize:       c.Kernel,
		KernelStrides:    c.Strides,
		KernelPadding:    graph.Padding(c.Padding),
		IsSegmented:      c.Segmented,
		OutChannelOffset: c.OutChannelOffset,
	}
	if op.Input, err = c.Input.build(); err != nil {
		return nil, err
	}
	if op.Output, err = c.Output.build(); err != nil {
		return nil, err
	}
	if op.Weights, err = c.Weights.buildOptional(); err != nil {
		return nil, err
	}
	if op.WeightTable, err = c.WeightTable.buildOptional(); err != nil {
		return nil, err
	}
	if p := c.PPE; p != nil {
		mode, err := graph.ParsePPEMode(p.Mode)
		if err != nil {
			return nil, err
		}
		op.PPE = graph.PPE{Mode: mode, ClampLow: p.ClampLow, ClampHigh: p.ClampHigh, LReluMult: p.LReluMult, LReluShift: p.LReluShift}
	}
	for _, v := range c.Variants {
		mpe, err := graph.ParseMPEMode(v.MPE)
		if err != nil {
			return nil, err
		}
		op.Variants = append(op.Variants, graph.DPUTask{
			Start:     v.Start,
			End:       v.End,
			Pad:       graph.Padding(v.Pad),
			MPEMode:   mpe,
			ClusterID: v.Cluster,
		})
	}
	return op, nil
}

func (k *Kernel) build() (*graph.KernelOp, error) {
	op := &graph.KernelOp{
		Entry:           k.Entry,
		Instances:       slices.Clone(k.Instances),
		ParamBufferSize: k.ParamBufferSize,
	}
	var err error
	if op.Inputs, err = buildBuffers(k.Inputs); err != nil {
		return nil, err
	}
	if op.Outputs, err = buildBuffers(k.Outputs); err != nil {
		return nil, err
	}
	for i, a := range k.Args {
		switch {
		case a.Int != nil && a.Float == nil:
			op.Args = append(op.Args, graph.IntArg(*a.Int))
		case a.Float != nil && a.Int == nil:
			op.Args = append(op.Args, graph.FloatArg(*a.Float))
		default:
			return nil, fmt.Errorf("kernel %q argument %d must set exactly one of int or float", k.Entry, i)
		}
	}
	return op, nil
}

func (b *Buffer) build() (graph.BufferRef, error) {
	dt, err := tensor.ParseDataType(b.DType)
	if err != nil {
		return graph.BufferRef{}, fmt.Errorf("buffer %q: %w", b.Name, err)
	}
	space, err := graph.ParseMemorySpace(b.Space)
	if err != nil {
		return graph.BufferRef{}, fmt.Errorf("buffer %q: %w", b.Name, err)
	}

	ref := graph.BufferRef{
		Name:         b.Name,
		Shape:        tensor.Shape(slices.Clone(b.Shape)),
		DType:        dt,
		Space:        space,
		Sections:     slices.Clone(b.Sections),
		Offset:       b.Offset,
		SwizzlingKey: b.Swizzling,
	}
	if b.Order != nil {
		ref.Order = tensor.DimsOrder(slices.Clone(*b.Order))
	}
	if b.Strides != nil {
		ref.Strides = tensor.Strides(slices.Clone(b.Strides))
	}
	if d := b.Distribution; d != nil {
		mode, err := graph.ParseDistributionMode(d.Mode)
		if err != nil {
			return graph.BufferRef{}, fmt.Errorf("buffer %q: %w", b.Name, err)
		}
		ref.Distribution = &graph.Distribution{
			Mode:        mode,
			NumClusters: d.Clusters,
			NumTiles:    slices.Clone(d.NumTiles),
			Alignment:   slices.Clone(d.Alignment),
			Kernel:      d.Kernel,
			Pads:        graph.Padding(d.Pads),
			Strides:     d.Strides,
		}
	}
	if err := ref.Validate(); err != nil {
		return graph.BufferRef{}, err
	}
	return ref, nil
}

func (b *Buffer) buildOptional() (*graph.BufferRef, error) {
	if b == nil {
		return nil, nil
	}
	ref, err := b.build()
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func buildBuffers(bs []Buffer) ([]graph.BufferRef, error) {
	var refs []graph.BufferRef
	for i := range bs {
		ref, err := bs[i].build()
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func buildTensorDescs(ds []TensorDesc) ([]graph.TensorDesc, error) {
	var out []graph.TensorDesc
	for i := range ds {
		ref, err := ds[i].Buffer.build()
		if err != nil {
			return nil, err
		}
		out = append(out, graph.TensorDesc{Name: ds[i].Name, Buffer: ref})
	}
	return out, nil
}
