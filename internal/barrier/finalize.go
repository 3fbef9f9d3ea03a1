// Package barrier finalizes the counting barriers of a lowered program.
package barrier

import (
	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/logging"
	"github.com/born-ml/npusched/internal/mapped"
)

// MaxCount is the largest producer or consumer count a hardware barrier can hold.
const MaxCount = 255

// Finalize computes producer and consumer counts for every barrier of p, chains
// barriers that share a hardware slot and marks them finalized.
//
// Each operation contributes its Hits to every barrier it updates (producers) or waits
// on (consumers). Barriers nobody signals or waits on are reported as DeadBarrier
// diagnostics. The program is left untouched when an error is returned.
func Finalize(p *mapped.Program, log *logging.Logger) ([]diag.Diagnostic, error) {
	log = logging.OrNop(log).WithComponent("barrier")
	if p.Finalized {
		return nil, diag.Malformed("program %q is already finalized", p.Name)
	}

	n := len(p.Barriers)
	producers := make([]int, n)
	consumers := make([]int, n)
	for i := range p.Ops {
		op := &p.Ops[i]
		for _, b := range op.Update {
			if b < 0 || b >= n {
				return nil, diag.Malformed("%s updates unknown barrier %d", op, b).WithDetail(diag.KeyBarrier, b)
			}
			producers[b] += op.Hits
		}
		for _, b := range op.Wait {
			if b < 0 || b >= n {
				return nil, diag.Malformed("%s waits on unknown barrier %d", op, b).WithDetail(diag.KeyBarrier, b)
			}
			consumers[b] += op.Hits
		}
	}

	for b := range n {
		if producers[b] > MaxCount || consumers[b] > MaxCount {
			return nil, diag.New(diag.CodeBarrierCountOverflow,
				"barrier %d has %d producers and %d consumers, limit is %d",
				b, producers[b], consumers[b], MaxCount).WithDetail(diag.KeyBarrier, b)
		}
	}

	var diags []diag.Diagnostic
	lastByReal := make(map[int]int)
	for b := range p.Barriers {
		bar := &p.Barriers[b]
		bar.Producers = producers[b]
		bar.Consumers = consumers[b]
		bar.NextSameID = -1
		if prev, ok := lastByReal[bar.RealID]; ok {
			p.Barriers[prev].NextSameID = b
		}
		lastByReal[bar.RealID] = b
		bar.State = mapped.BarrierFinalized

		if bar.Producers == 0 && bar.Consumers == 0 {
			d := diag.DeadBarrier(b)
			diags = append(diags, d)
			log.Warn(d.Message, map[string]any{logging.FieldBarrier: b})
		}
	}
	p.Finalized = true

	log.Debug("barriers finalized", map[string]any{
		logging.FieldProgram: p.Name,
		"barriers":           n,
		"dead":               len(diags),
	})
	return diags, nil
}
