package schedule

// Summary is a printable overview of a schedule.
type Summary struct {
	Name              string            `yaml:"name" json:"name"`
	ID                string            `yaml:"id" json:"id"`
	Arch              string            `yaml:"arch" json:"arch"`
	DMA               []int             `yaml:"dma" json:"dma"`
	Invariants        int               `yaml:"invariants" json:"invariants"`
	Variants          int               `yaml:"variants" json:"variants"`
	KernelRanges      int               `yaml:"kernel_ranges" json:"kernel_ranges"`
	KernelInvocations int               `yaml:"kernel_invocations" json:"kernel_invocations"`
	Barriers          int               `yaml:"barriers" json:"barriers"`
	Resources         map[string]uint64 `yaml:"resources,omitempty" json:"resources,omitempty"`
	WeightsBytes      int               `yaml:"weights_bytes" json:"weights_bytes"`
}

// Summary returns the list counts of the schedule.
func (s *Schedule) Summary() Summary {
	sum := Summary{
		Name:              s.Name(),
		ID:                s.ID().String(),
		Arch:              s.Arch().Kind.String(),
		DMA:               make([]int, len(s.dma)),
		Invariants:        s.invariants.Count,
		Variants:          s.variants.Count,
		KernelRanges:      s.ranges.Count,
		KernelInvocations: s.invocations.Count,
		Barriers:          s.barriers.Count,
		WeightsBytes:      len(s.Weights()),
	}
	for i, l := range s.dma {
		sum.DMA[i] = l.Count
	}
	if res := s.Resources(); len(res) > 0 {
		sum.Resources = make(map[string]uint64, len(res))
		for _, r := range res {
			sum.Resources[r.Kind.String()] = r.Size
		}
	}
	return sum
}
