package blob

import (
	"encoding/binary"

	"github.com/born-ml/npusched/internal/diag"
)

// corrupt builds a TruncatedOrCorruptInput error at offset.
func corrupt(offset int64, cause error, format string, args ...any) error {
	e := diag.Corrupt(offset, format, args...)
	if cause != nil {
		e.WithCause(cause)
	}
	return e
}

// reader decodes little-endian values from a byte slice. The first failure is
// sticky: later reads return zero values and err keeps the original error.
type reader struct {
	data []byte
	off  int
	base int64 // offset of data[0] within the artifact
	err  error
}

func newReader(data []byte, base int64) *reader {
	return &reader{data: data, base: base}
}

func (r *reader) pos() int64 { return r.base + int64(r.off) }

func (r *reader) remaining() int { return len(r.data) - r.off }

func (r *reader) fail(at int64, format string, args ...any) {
	if r.err == nil {
		r.err = corrupt(at, nil, format, args...)
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.remaining() < n {
		r.err = corrupt(r.pos(), ErrTruncated, "need %d bytes, %d left", n, r.remaining())
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) bytes(n int) []byte { return r.take(n) }

func (r *reader) bytes64(n uint64) []byte {
	if r.err == nil && n > uint64(r.remaining()) {
		r.err = corrupt(r.pos(), ErrTruncated, "need %d bytes, %d left", n, r.remaining())
		return nil
	}
	return r.take(int(n))
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) bool() bool { return r.u8() != 0 }

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) i32() int32 { return int32(r.u32()) }

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) int() int { return int(r.u32()) }

func (r *reader) str() string {
	at := r.pos()
	n := r.u32()
	s := string(r.bytes64(uint64(n)))
	if r.err == nil {
		if err := ValidateName(s); err != nil {
			r.fail(at, "%v", err)
		}
	}
	return s
}

// count reads a list length and checks that the list can fit in the remaining bytes
// given the minimum encoded size of one element.
func (r *reader) count(minElem int) int {
	at := r.pos()
	n := r.u32()
	if r.err != nil {
		return 0
	}
	if uint64(n)*uint64(max(minElem, 1)) > uint64(r.remaining()) {
		r.err = corrupt(at, ErrTruncated, "list of %d entries does not fit in %d bytes", n, r.remaining())
		return 0
	}
	return int(n)
}

func (r *reader) ints() []int {
	n := r.count(4)
	if n == 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = r.int()
	}
	return out
}
