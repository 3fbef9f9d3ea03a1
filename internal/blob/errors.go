package blob

import "errors"

// Causes attached to TruncatedOrCorruptInput errors.
var (
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrChecksumMismatch   = errors.New("checksum mismatch: data may be corrupted")
	ErrTooManySections    = errors.New("too many sections")
	ErrSectionTooLarge    = errors.New("section exceeds maximum size")
	ErrTruncated          = errors.New("unexpected end of data")
)
