package blob

import (
	"bytes"
	"math"

	"github.com/google/uuid"

	"github.com/born-ml/npusched/internal/arch"
	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/mapped"
	"github.com/born-ml/npusched/internal/tensor"
)

// Decode parses an artifact and rebuilds the graph it was compiled from.
func Decode(data []byte) (*graph.Graph, error) {
	c, err := DecodeSchedule(data)
	if err != nil {
		return nil, err
	}
	return c.Graph()
}

// DecodeSchedule parses an artifact into its raw lists without rebuilding a graph.
func DecodeSchedule(data []byte) (*Contents, error) {
	section, base, weights, err := validateEnvelope(data)
	if err != nil {
		return nil, err
	}

	if len(section) < ChecksumSize {
		return nil, corrupt(base, ErrTruncated, "schedule section of %d bytes has no checksum", len(section))
	}
	body := section[:len(section)-ChecksumSize]
	var stored [ChecksumSize]byte
	copy(stored[:], section[len(body):])
	if err := ValidateChecksum(ComputeChecksum(body), stored); err != nil {
		return nil, corrupt(base+int64(len(body)), err, "schedule checksum")
	}

	r := newReader(body, base)
	c := &Contents{Weights: bytes.Clone(weights)}
	if err := c.read(r); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Contents) read(r *reader) error {
	c.readHeader(r)
	if r.err != nil {
		return r.err
	}

	n := r.count(barrierEntrySize)
	c.Barriers = make([]BarrierEntry, n)
	for i := range c.Barriers {
		at := r.pos()
		b := BarrierEntry{
			Index:      r.int(),
			RealID:     r.int(),
			NextSameID: int(r.i32()),
			Producers:  r.int(),
			Consumers:  r.int(),
			Offset:     at,
		}
		if r.err == nil && b.Index != i {
			r.fail(at, "barrier entry %d carries index %d", i, b.Index)
		}
		c.Barriers[i] = b
	}
	if r.err != nil {
		return r.err
	}

	ports := r.count(4)
	c.DMA = make([][]CopyEntry, ports)
	for port := range c.DMA {
		n := r.count(minTaskSize + 2*minTensorRefSize)
		c.DMA[port] = make([]CopyEntry, n)
		for i := range c.DMA[port] {
			c.DMA[port][i] = readCopy(r, port, i)
		}
		if r.err != nil {
			return r.err
		}
	}

	c.Invariants = make([]InvariantEntry, r.count(minTaskSize+2*minTensorRefSize))
	for i := range c.Invariants {
		c.Invariants[i] = readInvariant(r, i)
	}
	c.Variants = make([]VariantEntry, r.count(minTaskSize))
	for i := range c.Variants {
		c.Variants[i] = readVariant(r, i)
	}
	c.Ranges = make([]RangeEntry, r.count(minTaskSize))
	for i := range c.Ranges {
		c.Ranges[i] = readRange(r, i)
	}
	c.Invocations = make([]InvocationEntry, r.count(minTaskSize))
	for i := range c.Invocations {
		c.Invocations[i] = readInvocation(r, i)
	}
	if r.err != nil {
		return r.err
	}

	c.readCounts(r)
	if r.err != nil {
		return r.err
	}
	if r.remaining() != 0 {
		return corrupt(r.pos(), nil, "%d unexpected bytes after plan counts", r.remaining())
	}
	return nil
}

func (c *Contents) readHeader(r *reader) {
	at := r.pos()
	h := &c.Header
	h.Major, h.Minor = r.u32(), r.u32()
	if r.err == nil && (h.Major != VersionMajor || h.Minor != VersionMinor) {
		r.err = corrupt(at, ErrUnsupportedVersion, "schedule format %d.%d, expected %d.%d",
			h.Major, h.Minor, VersionMajor, VersionMinor)
		return
	}
	if id := r.bytes(len(uuid.UUID{})); id != nil {
		copy(h.ID[:], id)
	}

	h.Arch.Kind = arch.Kind(r.u32())
	h.Name = r.str()
	h.Arch.Name = r.str()
	h.Arch.NumClusters = r.int()
	h.Arch.DMAPorts = r.int()
	h.Arch.MaxBarriers = r.int()
	h.Arch.CMXSize = r.u64()
	h.Arch.DDRSize = r.u64()

	h.Inputs = readTensorDescs(r)
	h.Outputs = readTensorDescs(r)

	h.Resources = make([]mapped.Resource, r.count(resourceSize))
	for i := range h.Resources {
		at := r.pos()
		kind := mapped.ResourceKind(r.u8())
		if r.err == nil && kind != mapped.ScratchCMX && kind != mapped.ExternalDRAM {
			r.fail(at, "unknown resource kind %d", kind)
		}
		h.Resources[i] = mapped.Resource{Kind: kind, Size: r.u64()}
	}
}

func (c *Contents) readCounts(r *reader) {
	at := r.pos()
	c.Counts.DMA = make([]int, r.count(4))
	for i := range c.Counts.DMA {
		c.Counts.DMA[i] = r.int()
	}
	c.Counts.Invariants = r.int()
	c.Counts.Variants = r.int()
	c.Counts.Ranges = r.int()
	c.Counts.Invocations = r.int()
	c.Counts.Barriers = r.int()
	if r.err != nil {
		return
	}

	if len(c.Counts.DMA) != len(c.DMA) {
		r.fail(at, "plan lists %d DMA ports, found %d", len(c.Counts.DMA), len(c.DMA))
		return
	}
	for port, n := range c.Counts.DMA {
		if n != len(c.DMA[port]) {
			r.fail(at, "plan lists %d DMAs on port %d, found %d", n, port, len(c.DMA[port]))
			return
		}
	}
	switch {
	case c.Counts.Invariants != len(c.Invariants):
		r.fail(at, "plan lists %d invariants, found %d", c.Counts.Invariants, len(c.Invariants))
	case c.Counts.Variants != len(c.Variants):
		r.fail(at, "plan lists %d variants, found %d", c.Counts.Variants, len(c.Variants))
	case c.Counts.Ranges != len(c.Ranges):
		r.fail(at, "plan lists %d kernel ranges, found %d", c.Counts.Ranges, len(c.Ranges))
	case c.Counts.Invocations != len(c.Invocations):
		r.fail(at, "plan lists %d kernel invocations, found %d", c.Counts.Invocations, len(c.Invocations))
	case c.Counts.Barriers != len(c.Barriers):
		r.fail(at, "plan lists %d barriers, found %d", c.Counts.Barriers, len(c.Barriers))
	}
}

func readTensorDescs(r *reader) []graph.TensorDesc {
	n := r.count(4 + minTensorRefSize)
	if n == 0 {
		return nil
	}
	out := make([]graph.TensorDesc, n)
	for i := range out {
		out[i].Name = r.str()
		out[i].Buffer = r.tensorRef()
	}
	return out
}

func (r *reader) task(expected int) TaskHeader {
	at := r.pos()
	h := TaskHeader{Index: r.int(), Offset: at}
	h.Wait = r.ints()
	h.Update = r.ints()
	if r.err == nil && h.Index != expected {
		r.fail(at, "entry %d carries index %d", expected, h.Index)
	}
	return h
}

func (r *reader) tensorRef() graph.BufferRef {
	at := r.pos()
	ref := graph.BufferRef{Name: r.str()}

	rank := r.count(4)
	if r.err == nil && rank > MaxRank {
		r.fail(at, "buffer %q: rank %d exceeds %d", ref.Name, rank, MaxRank)
	}
	if r.err != nil {
		return ref
	}
	ref.Shape = make(tensor.Shape, rank)
	for i := range ref.Shape {
		ref.Shape[i] = r.int()
	}

	if n := r.count(8); r.err == nil && n != rank+1 {
		r.fail(at, "buffer %q: %d strides for rank %d", ref.Name, n, rank)
	}
	elemSize := r.u64()
	ref.Strides = make(tensor.Strides, rank)
	for i := range ref.Strides {
		ref.Strides[i] = r.i64()
	}

	ref.DType = tensor.DataType(r.u8())
	if r.err == nil && (!ref.DType.Valid() || uint64(ref.DType.Size()) != elemSize) {
		r.fail(at, "buffer %q: element type %d does not match element size %d", ref.Name, ref.DType, elemSize)
	}

	code := r.u64()
	if r.err == nil {
		order, err := tensor.OrderFromCode(code)
		switch {
		case err != nil:
			r.fail(at, "buffer %q: %v", ref.Name, err)
		case len(order) != rank:
			r.fail(at, "buffer %q: order 0x%X does not match rank %d", ref.Name, code, rank)
		default:
			ref.Order = order
		}
	}

	ref.Space = graph.MemorySpace(r.u8())
	if r.err == nil && !ref.Space.Valid() {
		r.fail(at, "buffer %q: unknown memory space %d", ref.Name, ref.Space)
	}
	ref.Sections = r.ints()
	ref.Offset = r.u64()

	key := r.i64()
	switch {
	case key == NoSwizzling:
	case key > 0 && key <= math.MaxUint8:
		ref.SwizzlingKey = uint8(key)
	default:
		r.fail(at, "buffer %q: invalid swizzling key %d", ref.Name, key)
	}

	mode := graph.DistributionMode(r.u8())
	if r.err != nil || mode == graph.DistNone {
		return ref
	}
	if mode > graph.DistMulticasted {
		r.fail(at, "buffer %q: unknown distribution mode %d", ref.Name, mode)
		return ref
	}
	d := &graph.Distribution{Mode: mode}
	d.NumClusters = r.int()
	d.NumTiles = r.ints()
	d.Alignment = r.ints()
	d.Kernel[0] = r.int()
	d.Kernel[1] = r.int()
	d.Pads = r.padding()
	d.Strides[0] = r.int()
	d.Strides[1] = r.int()
	if r.err == nil && d.NumClusters < 1 {
		r.fail(at, "buffer %q: %s distribution over %d clusters", ref.Name, mode, d.NumClusters)
	}
	ref.Distribution = d
	return ref
}

func (r *reader) tensorRefs() []graph.BufferRef {
	n := r.count(minTensorRefSize)
	if n == 0 {
		return nil
	}
	out := make([]graph.BufferRef, n)
	for i := range out {
		out[i] = r.tensorRef()
	}
	return out
}

func (r *reader) optionalRef() *graph.BufferRef {
	if !r.bool() {
		return nil
	}
	ref := r.tensorRef()
	return &ref
}

func (r *reader) padding() graph.Padding {
	return graph.Padding{Left: r.int(), Right: r.int(), Top: r.int(), Bottom: r.int()}
}

func readCopy(r *reader, port, index int) CopyEntry {
	e := CopyEntry{Port: port}
	e.TaskHeader = r.task(index)
	at := r.pos()
	e.Payload.Flavor = graph.CopyFlavor(r.u8())
	if r.err == nil && !e.Payload.Flavor.Valid() {
		r.fail(at, "unknown copy flavor %d", e.Payload.Flavor)
	}
	flags := r.u8()
	e.Payload.Compressed = flags&flagCompressed != 0
	e.Payload.OutOfOrder = flags&flagOutOfOrder != 0
	e.Payload.Critical = flags&flagCritical != 0
	if r.bool() {
		e.Payload.Descriptor = &graph.DMADescriptor{
			Len:            r.u32(),
			SrcWidth:       r.u32(),
			SrcStride:      r.u32(),
			SrcPlaneStride: r.u32(),
			DstWidth:       r.u32(),
			DstStride:      r.u32(),
			DstPlaneStride: r.u32(),
			NumPlanes:      r.u32(),
		}
	}
	e.Input = r.tensorRef()
	e.Output = r.tensorRef()
	return e
}

func readInvariant(r *reader, index int) InvariantEntry {
	var e InvariantEntry
	e.TaskHeader = r.task(index)
	p := &e.Payload
	p.TaskType = graph.TaskType(r.u8())
	p.MPEMode = graph.MPEMode(r.u8())
	p.Distribution = graph.DistributionMode(r.u8())
	p.KernelSize = [2]int{r.int(), r.int()}
	p.KernelStrides = [2]int{r.int(), r.int()}
	p.KernelPadding = r.padding()
	p.PPE = graph.PPE{
		Mode:      graph.PPEMode(r.u8()),
		ClampLow:  r.i32(),
		ClampHigh: r.i32(),
		LReluMult: r.i32(),
	}
	p.PPE.LReluShift = r.u8()
	p.IsSegmented = r.bool()
	p.OutChannelOffset = r.int()
	p.NumVariants = r.int()

	e.Input = r.tensorRef()
	p.Weights = r.optionalRef()
	p.WeightTable = r.optionalRef()
	e.Outputs = r.tensorRefs()
	return e
}

func readVariant(r *reader, index int) VariantEntry {
	var e VariantEntry
	e.TaskHeader = r.task(index)
	e.Invariant = r.int()
	for i := range e.Workload.Start {
		e.Workload.Start[i] = int(r.i32())
	}
	for i := range e.Workload.End {
		e.Workload.End[i] = int(r.i32())
	}
	e.Workload.Pad = r.padding()
	e.Workload.MPEMode = graph.MPEMode(r.u8())
	e.Workload.ClusterID = r.int()
	return e
}

func readRange(r *reader, index int) RangeEntry {
	var e RangeEntry
	e.TaskHeader = r.task(index)
	p := &e.Payload
	p.Entry = r.str()
	p.TextSymbol = r.str()
	p.ArgsSymbol = r.str()
	p.ParamBufferSize = r.int()
	p.NumInvocations = r.int()
	if n := r.count(kernelArgSize); n > 0 {
		p.Args = make([]graph.KernelArg, n)
		for i := range p.Args {
			if r.bool() {
				p.Args[i] = graph.FloatArg(math.Float32frombits(uint32(r.u64())))
			} else {
				p.Args[i] = graph.IntArg(r.i64())
			}
		}
	}
	return e
}

func readInvocation(r *reader, index int) InvocationEntry {
	var e InvocationEntry
	e.TaskHeader = r.task(index)
	e.Range = r.int()
	e.Tile = r.int()
	e.Inputs = r.tensorRefs()
	e.Outputs = r.tensorRefs()
	e.Params = bytes.Clone(r.bytes(r.count(1)))
	return e
}
