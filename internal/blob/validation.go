package blob

import (
	"fmt"
	"strings"
)

// Validation limits for resource protection.
const (
	MaxNameLen = 4096 // Maximum buffer, tensor and kernel name length
	MaxRank    = 15   // Maximum tensor rank a permutation code can hold
)

// ValidateName checks buffer and kernel names before they are written or after they
// are read.
func ValidateName(name string) error {
	if len(name) > MaxNameLen {
		return fmt.Errorf("name of length %d exceeds %d", len(name), MaxNameLen)
	}
	// Null bytes can bypass length checks in runtimes using C strings.
	if strings.Contains(name, "\x00") {
		return fmt.Errorf("name %q contains a null byte", name)
	}
	return nil
}

// validateEnvelope checks the envelope framing of data and returns the schedule and
// weights sections.
func validateEnvelope(data []byte) (schedule []byte, scheduleOffset int64, weights []byte, err error) {
	r := newReader(data, 0)

	magic := r.bytes(len(MagicBytes))
	if r.err != nil {
		return nil, 0, nil, r.err
	}
	if string(magic) != MagicBytes {
		return nil, 0, nil, corrupt(0, ErrInvalidMagic, "got %q", magic)
	}

	major, minor := r.u32(), r.u32()
	if r.err != nil {
		return nil, 0, nil, r.err
	}
	if major != VersionMajor || minor != VersionMinor {
		return nil, 0, nil, corrupt(int64(len(MagicBytes)), ErrUnsupportedVersion,
			"got %d.%d, expected %d.%d", major, minor, VersionMajor, VersionMinor)
	}

	countAt := r.pos()
	count := r.u32()
	if r.err != nil {
		return nil, 0, nil, r.err
	}
	if count >= MaxSectionCount {
		return nil, 0, nil, corrupt(countAt, ErrTooManySections, "%d sections, limit %d", count, MaxSectionCount)
	}
	if count != SectionCount {
		return nil, 0, nil, corrupt(countAt, nil, "%d sections, expected %d", count, SectionCount)
	}

	sizeAt := r.pos()
	size := r.u64()
	if r.err != nil {
		return nil, 0, nil, r.err
	}
	if size == 0 || size >= MaxScheduleSize {
		return nil, 0, nil, corrupt(sizeAt, ErrSectionTooLarge, "schedule size %d", size)
	}
	scheduleOffset = r.pos()
	schedule = r.bytes64(size)
	if r.err != nil {
		return nil, 0, nil, r.err
	}

	wsizeAt := r.pos()
	wsize := r.u64()
	if r.err != nil {
		return nil, 0, nil, r.err
	}
	if wsize >= MaxWeightsSize {
		return nil, 0, nil, corrupt(wsizeAt, ErrSectionTooLarge, "weights size %d", wsize)
	}
	weights = r.bytes64(wsize)
	if r.err != nil {
		return nil, 0, nil, r.err
	}
	if r.remaining() != 0 {
		return nil, 0, nil, corrupt(r.pos(), nil, "%d unexpected bytes after the weights section", r.remaining())
	}
	return schedule, scheduleOffset, weights, nil
}
