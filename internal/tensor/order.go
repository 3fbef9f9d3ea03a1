package tensor

import "fmt"

// DimsOrder is a permutation of logical dimensions listed from the outermost to the
// innermost memory dimension.
type DimsOrder []int

// Common layouts.
var (
	OrderC    = DimsOrder{0}
	OrderNC   = DimsOrder{0, 1}
	OrderCHW  = DimsOrder{0, 1, 2}
	OrderHWC  = DimsOrder{1, 2, 0}
	OrderNCHW = DimsOrder{0, 1, 2, 3}
	OrderNHWC = DimsOrder{0, 2, 3, 1}
)

// maxCodeDims is the number of dimensions a permutation code can hold (one nibble each).
const maxCodeDims = 15

// Identity returns the row-major order for the given rank.
func Identity(rank int) DimsOrder {
	order := make(DimsOrder, rank)
	for i := range order {
		order[i] = i
	}
	return order
}

// Code packs the order into a permutation code: one hex digit per dimension, outermost
// first, each digit holding the dimension index plus one. NCHW is 0x1234, NHWC is 0x1342.
func (o DimsOrder) Code() uint64 {
	var code uint64
	for _, dim := range o {
		code = code<<4 | uint64(dim+1)
	}
	return code
}

// OrderFromCode unpacks a permutation code produced by Code.
func OrderFromCode(code uint64) (DimsOrder, error) {
	var reversed []int
	for code != 0 {
		digit := int(code & 0xF)
		if digit == 0 {
			return nil, fmt.Errorf("permutation code 0x%X has an empty digit", code)
		}
		reversed = append(reversed, digit-1)
		code >>= 4
		if len(reversed) > maxCodeDims {
			return nil, fmt.Errorf("permutation code has more than %d digits", maxCodeDims)
		}
	}
	order := make(DimsOrder, len(reversed))
	for i, dim := range reversed {
		order[len(reversed)-1-i] = dim
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	return order, nil
}

// Validate checks that the order is a permutation of 0..rank-1.
func (o DimsOrder) Validate() error {
	if len(o) > maxCodeDims {
		return fmt.Errorf("order rank %d exceeds %d", len(o), maxCodeDims)
	}
	seen := make([]bool, len(o))
	for _, dim := range o {
		if dim < 0 || dim >= len(o) || seen[dim] {
			return fmt.Errorf("order %v is not a permutation", []int(o))
		}
		seen[dim] = true
	}
	return nil
}

// Equal checks if two orders are equal.
func (o DimsOrder) Equal(other DimsOrder) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the order.
func (o DimsOrder) Clone() DimsOrder {
	if o == nil {
		return nil
	}
	clone := make(DimsOrder, len(o))
	copy(clone, o)
	return clone
}

// ToMemoryOrder permutes a logical shape into memory order.
func (o DimsOrder) ToMemoryOrder(shape Shape) Shape {
	mem := make(Shape, len(o))
	for i, dim := range o {
		mem[i] = shape[dim]
	}
	return mem
}

// InvertedCode returns the permutation code listed from the innermost dimension, the
// form kernel parameter blocks expect.
func (o DimsOrder) InvertedCode() uint64 {
	var code uint64
	for i := len(o) - 1; i >= 0; i-- {
		code = code<<4 | uint64(o[i]+1)
	}
	return code
}
