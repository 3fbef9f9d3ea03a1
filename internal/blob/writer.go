package blob

import (
	"encoding/binary"
	"fmt"
	"math"
)

// writer appends little-endian values to a buffer. Range errors are sticky.
type writer struct {
	buf []byte
	err error
}

func (w *writer) fail(format string, args ...any) {
	if w.err == nil {
		w.err = fmt.Errorf(format, args...)
	}
}

func (w *writer) raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *writer) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *writer) i32(v int, what string) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		w.fail("%s %d does not fit in 32 bits", what, v)
	}
	w.u32(uint32(int32(v)))
}

func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *writer) i64(v int64) { w.u64(uint64(v)) }

// int writes a non-negative value as u32.
func (w *writer) int(v int, what string) {
	if v < 0 || uint64(v) > math.MaxUint32 {
		w.fail("%s %d does not fit in an unsigned 32-bit field", what, v)
	}
	w.u32(uint32(v))
}

func (w *writer) str(s string) {
	if err := ValidateName(s); err != nil {
		w.fail("%v", err)
	}
	w.int(len(s), "string length")
	w.buf = append(w.buf, s...)
}

func (w *writer) ints(v []int, what string) {
	w.int(len(v), what+" count")
	for _, x := range v {
		w.int(x, what)
	}
}
