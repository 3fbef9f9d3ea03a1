package lowering

import (
	"encoding/binary"
	"math"

	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/mapped"
)

// memrefRecordSize is the encoded size of one tensor record in a parameter block.
const memrefRecordSize = 4 + 8 + 4 + 4

func (c *Context) lowerKernel(op *graph.KernelOp, sync taskSync) error {
	for i, tile := range op.Instances {
		if tile < 0 || tile >= c.desc.NumClusters {
			return c.malformed("instance %d targets tile %d, architecture has %d clusters",
				i, tile, c.desc.NumClusters)
		}
	}

	inputs, err := c.mapRefs(op.Inputs, c.collapse)
	if err != nil {
		return err
	}
	outputs, err := c.mapRefs(op.Outputs, c.fold)
	if err != nil {
		return err
	}

	limit := op.ParamBufferSize
	if limit == 0 {
		limit = c.opts.paramBufferSize
	}
	params := SerializeKernelParams(inputs, outputs, op.Args)
	if len(params) > limit {
		return diag.New(diag.CodeKernelParamsOverflow,
			"kernel %q parameter block is %d bytes, buffer holds %d", op.Entry, len(params), limit).
			WithDetail(diag.KeyTask, c.task)
	}

	rng := c.emit(mapped.Operation{
		Kind: mapped.KindKernelRange,
		Task: c.task,
		Range: &mapped.RangePayload{
			Entry:           op.Entry,
			TextSymbol:      op.Entry + ".text",
			ArgsSymbol:      op.Entry + ".args",
			Args:            append([]graph.KernelArg(nil), op.Args...),
			ParamBufferSize: limit,
			NumInvocations:  len(op.Instances),
		},
	})

	for _, tile := range op.Instances {
		wait, update := sync.clone()
		c.emit(mapped.Operation{
			Kind:    mapped.KindKernelInvocation,
			Task:    c.task,
			Inputs:  inputs,
			Outputs: outputs,
			Wait:    wait,
			Update:  update,
			Hits:    1,
			Invocation: &mapped.InvocationPayload{
				Range:  rng,
				Tile:   tile,
				Params: params,
			},
		})
	}
	return nil
}

// SerializeKernelParams builds the parameter block passed to a kernel instance.
//
// Each input then output tensor contributes a record of
//
//	numDims u32 | dimsOrder u64 | dataType u32 | location u32
//
// where dimsOrder is the permutation code listed from the innermost dimension. The
// scalar arguments follow: integers as i64 and floats as f32, little-endian.
func SerializeKernelParams(inputs, outputs []graph.BufferRef, args []graph.KernelArg) []byte {
	size := (len(inputs) + len(outputs)) * memrefRecordSize
	for _, a := range args {
		if a.IsFloat {
			size += 4
		} else {
			size += 8
		}
	}

	buf := make([]byte, 0, size)
	for _, refs := range [][]graph.BufferRef{inputs, outputs} {
		for _, ref := range refs {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ref.Shape)))
			buf = binary.LittleEndian.AppendUint64(buf, ref.EffectiveOrder().InvertedCode())
			buf = binary.LittleEndian.AppendUint32(buf, uint32(ref.DType))
			buf = binary.LittleEndian.AppendUint32(buf, uint32(ref.Space))
		}
	}
	for _, a := range args {
		if a.IsFloat {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(a.Float))
		} else {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(a.Int))
		}
	}
	return buf
}
