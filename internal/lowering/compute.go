package lowering

import (
	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/distribution"
	"github.com/born-ml/npusched/internal/graph"
	"github.com/born-ml/npusched/internal/mapped"
)

func (c *Context) lowerCompute(op *graph.ComputeOp, sync taskSync) error {
	mode := op.Variants[0].MPEMode
	for i, v := range op.Variants[1:] {
		if v.MPEMode != mode {
			return diag.New(diag.CodeInconsistentExecutionMode,
				"variant %d uses MPE mode %s but variant 0 uses %s", i+1, v.MPEMode, mode).
				WithDetail(diag.KeyTask, c.task).
				WithDetail("variant", i+1).
				WithDetail("first_variant", 0)
		}
	}
	for i, v := range op.Variants {
		if v.ClusterID >= c.desc.NumClusters {
			return c.malformed("variant %d targets cluster %d, architecture has %d",
				i, v.ClusterID, c.desc.NumClusters)
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
	weights, err := c.collapseOptional(op.Weights)
	if err != nil {
		return err
	}
	table, err := c.collapseOptional(op.WeightTable)
	if err != nil {
		return err
	}

	dist := graph.DistNone
	if op.Output.IsDistributed() {
		dist = op.Output.Distribution.Mode
	}

	wait, update := sync.clone()
	inv := c.emit(mapped.Operation{
		Kind:    mapped.KindComputeInvariant,
		Task:    c.task,
		Inputs:  []graph.BufferRef{input},
		Outputs: outputs,
		Wait:    wait,
		Update:  update,
		Hits:    len(op.Variants),
		Invariant: &mapped.InvariantPayload{
			TaskType:         op.TaskType,
			Weights:          weights,
			WeightTable:      table,
			KernelSize:       op.KernelSize,
			KernelStrides:    op.KernelStrides,
			KernelPadding:    op.KernelPadding,
			PPE:              op.PPE,
			IsSegmented:      op.IsSegmented,
			OutChannelOffset: op.OutChannelOffset,
			MPEMode:          mode,
			Distribution:     dist,
			NumVariants:      len(op.Variants),
		},
	})

	for _, v := range op.Variants {
		c.emit(mapped.Operation{
			Kind: mapped.KindComputeVariant,
			Task: c.task,
			Variant: &mapped.VariantPayload{
				Invariant: inv,
				Workload:  v,
			},
		})
	}
	return nil
}

func (c *Context) collapseOptional(ref *graph.BufferRef) (*graph.BufferRef, error) {
	if ref == nil {
		return nil, nil
	}
	out, err := c.collapse(*ref)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
