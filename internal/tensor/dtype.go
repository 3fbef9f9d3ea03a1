// Package tensor provides the element types, shapes and memory layouts used to describe
// buffers in a schedule.
package tensor

import "fmt"

// DataType represents the element type of a buffer.
type DataType uint8

// Supported element types. The numeric values are part of the binary format.
const (
	Undefined DataType = iota
	Float64
	Float32
	Float16
	BFloat16
	Uint64
	Uint32
	Uint16
	Uint8
	Int64
	Int32
	Int16
	Int8
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float64, Uint64, Int64:
		return 8
	case Float32, Uint32, Int32:
		return 4
	case Float16, BFloat16, Uint16, Int16:
		return 2
	case Uint8, Int8:
		return 1
	default:
		return 0
	}
}

// Valid reports whether dt names a supported element type.
func (dt DataType) Valid() bool {
	return dt > Undefined && dt <= Int8
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float64:
		return "f64"
	case Float32:
		return "f32"
	case Float16:
		return "f16"
	case BFloat16:
		return "bf16"
	case Uint64:
		return "u64"
	case Uint32:
		return "u32"
	case Uint16:
		return "u16"
	case Uint8:
		return "u8"
	case Int64:
		return "i64"
	case Int32:
		return "i32"
	case Int16:
		return "i16"
	case Int8:
		return "i8"
	default:
		return "undefined"
	}
}

// ParseDataType converts a name produced by String back into a DataType.
// Common long spellings ("float16", "uint8", ...) are accepted too.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "f64", "float64":
		return Float64, nil
	case "f32", "float32":
		return Float32, nil
	case "f16", "float16":
		return Float16, nil
	case "bf16", "bfloat16":
		return BFloat16, nil
	case "u64", "uint64":
		return Uint64, nil
	case "u32", "uint32":
		return Uint32, nil
	case "u16", "uint16":
		return Uint16, nil
	case "u8", "uint8":
		return Uint8, nil
	case "i64", "int64":
		return Int64, nil
	case "i32", "int32":
		return Int32, nil
	case "i16", "int16":
		return Int16, nil
	case "i8", "int8":
		return Int8, nil
	default:
		return Undefined, fmt.Errorf("unknown element type %q", s)
	}
}
