package graphio

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/graph"
)

// FromGraph converts g into a description. Barriers are named b<id> and unnamed tasks
// task<index>. The constant pool is recorded by size only.
func FromGraph(g *graph.Graph) *Description {
	d := &Description{
		Name:        g.Name,
		WeightsSize: len(g.Weights),
		Inputs:      tensorDescs(g.Inputs),
		Outputs:     tensorDescs(g.Outputs),
	}
	if g.ID != uuid.Nil {
		d.ID = g.ID.String()
	}
	if g.Arch != arch.Unknown {
		d.Arch = g.Arch.String()
	}

	task := 0
	for _, it := range g.Items() {
		if b := it.Barrier; b != nil {
			realID := b.RealID
			d.Items = append(d.Items, Item{Barrier: barrierName(b.ID), RealID: &realID})
			continue
		}
		t := it.Task
		item := Item{Task: t.Name, Wait: barrierNames(t.Wait), Update: barrierNames(t.Update)}
		if item.Task == "" {
			item.Task = fmt.Sprintf("task%d", task)
		}
		for _, op := range t.Ops {
			item.Ops = append(item.Ops, opDesc(op))
		}
		d.Items = append(d.Items, item)
		task++
	}
	return d
}

// Marshal encodes d as YAML.
func Marshal(d *Description) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode description: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode description: %w", err)
	}
	return buf.Bytes(), nil
}

func barrierName(id graph.BarrierID) string {
	return fmt.Sprintf("b%d", id)
}

func barrierNames(ids []graph.BarrierID) []string {
	var names []string
	for _, id := range ids {
		names = append(names, barrierName(id))
	}
	return names
}

func opDesc(op graph.Op) Op {
	switch o := op.(type) {
	case *graph.CopyOp:
		c := &Copy{
			Port:       o.Port,
			Input:      bufferDesc(o.Input),
			Output:     bufferDesc(o.Output),
			OutOfOrder: o.OutOfOrder,
			Critical:   o.Critical,
		}
		if o.Flavor != graph.CopyPlain {
			c.Flavor = o.Flavor.String()
		}
		if d := o.Descriptor; d != nil {
			c.Descriptor = &Descriptor{
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
		return Op{Copy: c}
	case *graph.ComputeOp:
		c := &Compute{
			Type:             o.TaskType.String(),
			Input:            bufferDesc(o.Input),
			Weights:          optionalBufferDesc(o.Weights),
			WeightTable:      optionalBufferDesc(o.WeightTable),
			Output:           bufferDesc(o.Output),
			Kernel:           o.KernelSize,
			Strides:          o.KernelStrides,
			Padding:          Padding(o.KernelPadding),
			Segmented:        o.IsSegmented,
			OutChannelOffset: o.OutChannelOffset,
		}
		if o.PPE != (graph.PPE{}) {
			c.PPE = &PPE{
				Mode:       o.PPE.Mode.String(),
				ClampLow:   o.PPE.ClampLow,
				ClampHigh:  o.PPE.ClampHigh,
				LReluMult:  o.PPE.LReluMult,
				LReluShift: o.PPE.LReluShift,
			}
		}
		for _, v := range o.Variants {
			c.Variants = append(c.Variants, Variant{
				Start:   v.Start,
				End:     v.End,
				Pad:     Padding(v.Pad),
				MPE:     v.MPEMode.String(),
				Cluster: v.ClusterID,
			})
		}
		return Op{Compute: c}
	case *graph.KernelOp:
		k := &Kernel{
			Entry:           o.Entry,
			Instances:       slices.Clone(o.Instances),
			ParamBufferSize: o.ParamBufferSize,
		}
		for _, ref := range o.Inputs {
			k.Inputs = append(k.Inputs, bufferDesc(ref))
		}
		for _, ref := range o.Outputs {
			k.Outputs = append(k.Outputs, bufferDesc(ref))
		}
		for _, a := range o.Args {
			if a.IsFloat {
				f := a.Float
				k.Args = append(k.Args, Arg{Float: &f})
			} else {
				i := a.Int
				k.Args = append(k.Args, Arg{Int: &i})
			}
		}
		return Op{Kernel: k}
	default:
		return Op{}
	}
}

func bufferDesc(ref graph.BufferRef) Buffer {
	b := Buffer{
		Name:      ref.Name,
		Shape:     slices.Clone([]int(ref.Shape)),
		DType:     ref.DType.String(),
		Strides:   slices.Clone([]int64(ref.Strides)),
		Space:     ref.Space.String(),
		Sections:  slices.Clone(ref.Sections),
		Offset:    ref.Offset,
		Swizzling: ref.SwizzlingKey,
	}
	if ref.Order != nil {
		o := Order(ref.Order.Clone())
		b.Order = &o
	}
	if d := ref.Distribution; d != nil {
		b.Distribution = &Distribution{
			Mode:      d.Mode.String(),
			Clusters:  d.NumClusters,
			NumTiles:  slices.Clone(d.NumTiles),
			Alignment: slices.Clone(d.Alignment),
			Kernel:    d.Kernel,
			Strides:   d.Strides,
			Pads:      Padding(d.Pads),
		}
	}
	return b
}

func optionalBufferDesc(ref *graph.BufferRef) *Buffer {
	if ref == nil {
		return nil
	}
	b := bufferDesc(*ref)
	return &b
}

func tensorDescs(ds []graph.TensorDesc) []TensorDesc {
	var out []TensorDesc
	for _, d := range ds {
		out = append(out, TensorDesc{Name: d.Name, Buffer: bufferDesc(d.Buffer)})
	}
	return out
}
