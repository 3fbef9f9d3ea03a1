package lowering

import (
	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/distribution"
	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/mapped"
	"github.com/born-ml/npusched/internal/tensor"
)

// flavorRule describes how a copy flavor maps onto a DMA entry.
type flavorRule struct {
	// needsDescriptor rejects copies without a transfer descriptor.
	needsDescriptor bool
	// keepsDescriptor forwards the descriptor to the DMA entry.
	keepsDescriptor bool
	compressed      bool
	check           func(c *Context, op *graph.CopyOp) error
}

var flavorRules = map[graph.CopyFlavor]flavorRule{
	graph.CopyPlain:        {},
	graph.CopyCompressed:   {compressed: true},
	graph.CopyPermute:      {needsDescriptor: true, keepsDescriptor: true, check: checkPermute},
	graph.CopyUpsampling:   {needsDescriptor: true, keepsDescriptor: true},
	graph.CopyPerAxisTile:  {needsDescriptor: true, keepsDescriptor: true},
	graph.CopyExpand:       {keepsDescriptor: true},
	graph.CopySpaceToDepth: {keepsDescriptor: true},
	graph.CopyDepthToSpace: {needsDescriptor: true, keepsDescriptor: true, check: checkDepthToSpace},
}

func (c *Context) lowerCopy(op *graph.CopyOp, sync taskSync) error {
	if op.Port < 0 || op.Port >= c.desc.DMAPorts {
		return c.malformed("DMA port %d outside [0, %d)", op.Port, c.desc.DMAPorts).
			WithDetail(diag.KeyPort, op.Port)
	}
	rule, ok := flavorRules[op.Flavor]
	if !ok {
		return c.malformed("unsupported copy flavor %s", op.Flavor)
	}
	if d := op.Descriptor; d != nil && d.NumPlanes > c.opts.maxDMAPlanes {
		return diag.New(diag.CodeDescriptorTooLarge, "%s DMA descriptor has %d planes, limit is %d",
			op.Flavor, d.NumPlanes, c.opts.maxDMAPlanes).WithDetail(diag.KeyTask, c.task)
	}
	if rule.needsDescriptor && op.Descriptor == nil {
		return c.malformed("%s DMA requires a transfer descriptor", op.Flavor)
	}
	if rule.check != nil {
		if err := rule.check(c, op); err != nil {
			return err
		}
	}

	input, err := c.collapse(op.Input)
	if err != nil {
		return err
	}
	outputs, err := distribution.Unroll(op.Output, c.desc.NumClusters)
	if err != nil {
		return err
	}

	for _, out := range outputs {
		payload := &mapped.CopyPayload{
			Flavor:     op.Flavor,
			Compressed: rule.compressed,
			OutOfOrder: op.OutOfOrder,
			Critical:   op.Critical,
		}
		if rule.keepsDescriptor && op.Descriptor != nil {
			d := *op.Descriptor
			payload.Descriptor = &d
		}
		wait, update := sync.clone()
		c.emit(mapped.Operation{
			Kind:    mapped.KindMemoryCopy,
			Port:    op.Port,
			Task:    c.task,
			Inputs:  []graph.BufferRef{input},
			Outputs: []graph.BufferRef{out},
			Wait:    wait,
			Update:  update,
			Hits:    1,
			Copy:    payload,
		})
	}
	return nil
}

func checkPermute(c *Context, op *graph.CopyOp) error {
	if rank := len(op.Input.Shape); rank != 2 && rank != 3 {
		return c.malformed("permute DMA input %q has rank %d, expected 2 or 3", op.Input.Name, rank)
	}
	return nil
}

func checkDepthToSpace(c *Context, op *graph.CopyOp) error {
	for _, ref := range []graph.BufferRef{op.Input, op.Output} {
		if !ref.EffectiveOrder().Equal(tensor.OrderNHWC) {
			return c.malformed("depth-to-space DMA buffer %q must be NHWC", ref.Name)
		}
	}
	return nil
}
