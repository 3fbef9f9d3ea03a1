package blob

import "math"

// Format constants.
const (
	MagicBytes        = "NPUSCHED"
	VersionMajor      = 1
	VersionMinor      = 2
	VersionHeaderSize = 16 // magic + major + minor
	SectionCount      = 2  // schedule + weights
	MaxSectionCount   = 10
	ChecksumSize      = 32 // SHA-256
	envelopeFixedSize = VersionHeaderSize + 4 + 8
)

// Section size limits.
const (
	MaxScheduleSize = math.MaxUint64 / 3
	MaxWeightsSize  = 2 * (math.MaxUint64 / 3)
)

// NoSwizzling is the encoded swizzling key of an unswizzled buffer.
const NoSwizzling = -1

// Copy entry flag bits.
const (
	flagCompressed uint8 = 1 << 0
	flagOutOfOrder uint8 = 1 << 1
	flagCritical   uint8 = 1 << 2
)

// Minimum encoded sizes, used to bound list lengths before allocating.
const (
	minTaskSize      = 4 + 4 + 4 // index + empty wait + empty update
	minTensorRefSize = 4 + 4 + 4 + 8 + 1 + 8 + 1 + 4 + 8 + 8 + 1
	barrierEntrySize = 5 * 4
	resourceSize     = 1 + 8
	kernelArgSize    = 1 + 8
)
