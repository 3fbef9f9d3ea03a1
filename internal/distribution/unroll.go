// Package distribution expands logical buffers distributed over compute clusters into
// concrete per-cluster buffer references.
package distribution

import (
	"github.com/born-ml/npusched/internal/diag"
	"github.com/born-ml/npusched/internal/graph"
)

// Unroll expands buf into one reference per physical replica.
//
// A buffer without a distribution is returned unchanged as a single element.
// Duplicated and multicasted buffers produce one reference per cluster, in cluster
// order, each with a single section index equal to its cluster and the offset and
// swizzling key of the source. Segmented and overlapped buffers are not supported.
func Unroll(buf graph.BufferRef, maxClusters int) ([]graph.BufferRef, error) {
	if !buf.IsDistributed() {
		return []graph.BufferRef{buf}, nil
	}

	d := buf.Distribution
	if !d.Mode.IsReplicated() {
		return nil, diag.New(diag.CodeUnsupportedDistribution,
			"buffer %q: %s distribution cannot be unrolled", buf.Name, d.Mode)
	}
	if err := Check(buf, maxClusters); err != nil {
		return nil, err
	}

	out := make([]graph.BufferRef, d.NumClusters)
	for cluster := range out {
		ref := buf.Clone()
		ref.Distribution = nil
		ref.Sections = []int{cluster}
		out[cluster] = ref
	}
	return out, nil
}

// Check validates the distribution of buf: the cluster count must lie in
// [1, maxClusters] and per-dimension tiles and alignment must match the buffer rank.
// A buffer without a distribution is always valid.
func Check(buf graph.BufferRef, maxClusters int) error {
	if !buf.IsDistributed() {
		return nil
	}
	d := buf.Distribution
	if d.NumClusters < 1 || d.NumClusters > maxClusters {
		return diag.New(diag.CodeUnsupportedDistribution,
			"buffer %q: %d clusters outside [1, %d]", buf.Name, d.NumClusters, maxClusters)
	}
	if len(d.NumTiles) != 0 && len(d.NumTiles) != len(buf.Shape) {
		return diag.New(diag.CodeUnsupportedDistribution,
			"buffer %q: %d tile counts for rank %d", buf.Name, len(d.NumTiles), len(buf.Shape))
	}
	if len(d.Alignment) != 0 && len(d.Alignment) != len(buf.Shape) {
		return diag.New(diag.CodeUnsupportedDistribution,
			"buffer %q: %d alignment values for rank %d", buf.Name, len(d.Alignment), len(buf.Shape))
	}
	for _, n := range d.NumTiles {
		if n < 1 {
			return diag.New(diag.CodeUnsupportedDistribution,
				"buffer %q: tile count %d must be positive", buf.Name, n)
		}
	}
	return nil
}

// Sections returns the section indices of a set of unrolled replicas.
func Sections(refs []graph.BufferRef) []int {
	sections := make([]int, 0, len(refs))
	for _, r := range refs {
		sections = append(sections, r.Sections...)
	}
	return sections
}
