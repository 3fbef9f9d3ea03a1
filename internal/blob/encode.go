package blob

import (
	"fmt"
	"math"

	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/mapped"
	"github.com/born-ml/npusched/internal/schedule"
)

// Encode serializes an assembled schedule into an artifact.
func Encode(s *schedule.Schedule) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("blob: nil schedule")
	}
	section, err := encodeSchedule(s)
	if err != nil {
		return nil, fmt.Errorf("blob: %w", err)
	}

	weights := s.Weights()
	w := &writer{buf: make([]byte, 0, envelopeFixedSize+len(section)+8+len(weights))}
	w.raw([]byte(MagicBytes))
	w.u32(VersionMajor)
	w.u32(VersionMinor)
	w.u32(SectionCount)
	w.u64(uint64(len(section)))
	w.raw(section)
	w.u64(uint64(len(weights)))
	w.raw(weights)
	return w.buf, nil
}

func encodeSchedule(s *schedule.Schedule) ([]byte, error) {
	w := &writer{}
	writeHeader(w, s)

	barriers := s.Barriers()
	w.int(len(barriers), "barrier count")
	for _, b := range barriers {
		if b.State != mapped.BarrierFinalized {
			return nil, fmt.Errorf("barrier %d is not finalized", b.Index)
		}
		w.int(b.Index, "barrier index")
		w.int(b.RealID, "barrier real id")
		w.i32(b.NextSameID, "next same id")
		w.int(b.Producers, "producer count")
		w.int(b.Consumers, "consumer count")
	}

	w.int(s.NumDMAPorts(), "DMA port count")
	for port := range s.NumDMAPorts() {
		ops := s.Operations(mapped.KindMemoryCopy, port)
		w.int(len(ops), "DMA count")
		for _, op := range ops {
			writeCopy(w, op)
		}
	}

	invariants := s.Operations(mapped.KindComputeInvariant, 0)
	w.int(len(invariants), "invariant count")
	for _, op := range invariants {
		writeInvariant(w, op)
	}

	variants := s.Operations(mapped.KindComputeVariant, 0)
	w.int(len(variants), "variant count")
	for _, op := range variants {
		writeVariant(w, s, op)
	}

	ranges := s.Operations(mapped.KindKernelRange, 0)
	w.int(len(ranges), "kernel range count")
	for _, op := range ranges {
		writeRange(w, op)
	}

	invocations := s.Operations(mapped.KindKernelInvocation, 0)
	w.int(len(invocations), "kernel invocation count")
	for _, op := range invocations {
		writeInvocation(w, s, op)
	}

	w.int(s.NumDMAPorts(), "DMA port count")
	for port := range s.NumDMAPorts() {
		w.int(s.DMA(port).Count, "DMA count")
	}
	w.int(s.Invariants().Count, "invariant count")
	w.int(s.Variants().Count, "variant count")
	w.int(s.KernelRanges().Count, "kernel range count")
	w.int(s.KernelInvocations().Count, "kernel invocation count")
	w.int(s.BarrierList().Count, "barrier count")

	if w.err != nil {
		return nil, w.err
	}
	sum := ComputeChecksum(w.buf)
	w.raw(sum[:])
	return w.buf, nil
}

func writeHeader(w *writer, s *schedule.Schedule) {
	w.u32(VersionMajor)
	w.u32(VersionMinor)
	id := s.ID()
	w.raw(id[:])

	desc := s.Arch()
	w.u32(uint32(desc.Kind))
	w.str(s.Name())
	w.str(desc.Name)
	w.int(desc.NumClusters, "cluster count")
	w.int(desc.DMAPorts, "DMA port count")
	w.int(desc.MaxBarriers, "barrier limit")
	w.u64(desc.CMXSize)
	w.u64(desc.DDRSize)

	for _, descs := range [][]graph.TensorDesc{s.Inputs(), s.Outputs()} {
		w.int(len(descs), "network I/O count")
		for _, d := range descs {
			w.str(d.Name)
			w.tensorRef(d.Buffer)
		}
	}

	res := s.Resources()
	w.int(len(res), "resource count")
	for _, r := range res {
		w.u8(uint8(r.Kind))
		w.u64(r.Size)
	}
}

func (w *writer) task(op *mapped.Operation) {
	w.int(op.Index, "task index")
	w.ints(op.Wait, "wait barrier")
	w.ints(op.Update, "update barrier")
}

func (w *writer) tensorRef(ref graph.BufferRef) {
	w.str(ref.Name)
	if len(ref.Shape) > MaxRank {
		w.fail("buffer %q: rank %d exceeds %d", ref.Name, len(ref.Shape), MaxRank)
	}
	w.ints(ref.Shape, "dimension")

	strides := ref.EffectiveStrides()
	if len(strides) != len(ref.Shape) {
		w.fail("buffer %q: cannot derive strides", ref.Name)
	}
	w.int(len(strides)+1, "stride count")
	w.u64(uint64(ref.DType.Size()))
	for _, st := range strides {
		if st < 0 {
			w.fail("buffer %q: negative stride %d", ref.Name, st)
		}
		w.u64(uint64(st))
	}

	w.u8(uint8(ref.DType))
	w.u64(ref.EffectiveOrder().Code())
	w.u8(uint8(ref.Space))
	w.ints(ref.Sections, "section index")
	w.u64(ref.Offset)

	key := int64(NoSwizzling)
	if ref.SwizzlingKey != 0 {
		key = int64(ref.SwizzlingKey)
	}
	w.i64(key)

	if !ref.IsDistributed() {
		w.u8(uint8(graph.DistNone))
		return
	}
	d := ref.Distribution
	w.u8(uint8(d.Mode))
	w.int(d.NumClusters, "cluster count")
	w.ints(d.NumTiles, "tile")
	w.ints(d.Alignment, "alignment")
	w.int(d.Kernel[0], "distribution kernel")
	w.int(d.Kernel[1], "distribution kernel")
	w.padding(d.Pads)
	w.int(d.Strides[0], "distribution stride")
	w.int(d.Strides[1], "distribution stride")
}

func (w *writer) tensorRefs(refs []graph.BufferRef) {
	w.int(len(refs), "tensor count")
	for _, r := range refs {
		w.tensorRef(r)
	}
}

func (w *writer) optionalRef(ref *graph.BufferRef) {
	w.bool(ref != nil)
	if ref != nil {
		w.tensorRef(*ref)
	}
}

func (w *writer) padding(p graph.Padding) {
	w.int(p.Left, "padding")
	w.int(p.Right, "padding")
	w.int(p.Top, "padding")
	w.int(p.Bottom, "padding")
}

func writeCopy(w *writer, op *mapped.Operation) {
	w.task(op)
	c := op.Copy
	w.u8(uint8(c.Flavor))

	var flags uint8
	if c.Compressed {
		flags |= flagCompressed
	}
	if c.OutOfOrder {
		flags |= flagOutOfOrder
	}
	if c.Critical {
		flags |= flagCritical
	}
	w.u8(flags)

	w.bool(c.Descriptor != nil)
	if d := c.Descriptor; d != nil {
		for _, v := range []uint32{d.Len, d.SrcWidth, d.SrcStride, d.SrcPlaneStride, d.DstWidth, d.DstStride, d.DstPlaneStride, d.NumPlanes} {
			w.u32(v)
		}
	}
	w.tensorRef(op.Inputs[0])
	w.tensorRef(op.Outputs[0])
}

func writeInvariant(w *writer, op *mapped.Operation) {
	w.task(op)
	p := op.Invariant
	w.u8(uint8(p.TaskType))
	w.u8(uint8(p.MPEMode))
	w.u8(uint8(p.Distribution))
	w.int(p.KernelSize[0], "kernel size")
	w.int(p.KernelSize[1], "kernel size")
	w.int(p.KernelStrides[0], "kernel stride")
	w.int(p.KernelStrides[1], "kernel stride")
	w.padding(p.KernelPadding)

	w.u8(uint8(p.PPE.Mode))
	w.u32(uint32(p.PPE.ClampLow))
	w.u32(uint32(p.PPE.ClampHigh))
	w.u32(uint32(p.PPE.LReluMult))
	w.u8(p.PPE.LReluShift)

	w.bool(p.IsSegmented)
	w.int(p.OutChannelOffset, "output channel offset")
	w.int(p.NumVariants, "variant count")

	w.tensorRef(op.Inputs[0])
	w.optionalRef(p.Weights)
	w.optionalRef(p.WeightTable)
	w.tensorRefs(op.Outputs)
}

func writeVariant(w *writer, s *schedule.Schedule, op *mapped.Operation) {
	w.task(op)
	inv := s.Op(op.Variant.Invariant)
	if inv == nil {
		w.fail("%s references a missing invariant", op)
		return
	}
	w.int(inv.Index, "invariant index")

	v := op.Variant.Workload
	for _, x := range v.Start {
		w.i32(x, "workload start")
	}
	for _, x := range v.End {
		w.i32(x, "workload end")
	}
	w.padding(v.Pad)
	w.u8(uint8(v.MPEMode))
	w.int(v.ClusterID, "cluster id")
}

func writeRange(w *writer, op *mapped.Operation) {
	w.task(op)
	p := op.Range
	w.str(p.Entry)
	w.str(p.TextSymbol)
	w.str(p.ArgsSymbol)
	w.int(p.ParamBufferSize, "parameter buffer size")
	w.int(p.NumInvocations, "invocation count")
	w.int(len(p.Args), "argument count")
	for _, a := range p.Args {
		w.bool(a.IsFloat)
		if a.IsFloat {
			w.u64(uint64(math.Float32bits(a.Float)))
		} else {
			w.i64(a.Int)
		}
	}
}

func writeInvocation(w *writer, s *schedule.Schedule, op *mapped.Operation) {
	w.task(op)
	rng := s.Op(op.Invocation.Range)
	if rng == nil {
		w.fail("%s references a missing kernel range", op)
		return
	}
	w.int(rng.Index, "kernel range index")
	w.int(op.Invocation.Tile, "tile")
	w.tensorRefs(op.Inputs)
	w.tensorRefs(op.Outputs)
	w.int(len(op.Invocation.Params), "parameter block size")
	w.raw(op.Invocation.Params)
}
