package tensor

import "fmt"

// Shape represents the logical dimensions of a buffer.
type Shape []int

// NumElements returns the total number of elements in the buffer.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Strides holds per-dimension byte strides in logical dimension order.
type Strides []int64

// Clone returns a copy of the strides.
func (s Strides) Clone() Strides {
	if s == nil {
		return nil
	}
	clone := make(Strides, len(s))
	copy(clone, s)
	return clone
}

// Equal checks if two stride sets are equal.
func (s Strides) Equal(other Strides) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// DenseStrides computes compact byte strides for a shape laid out in memory
// according to order. The result is indexed by logical dimension.
func DenseStrides(shape Shape, order DimsOrder, elemSize int) (Strides, error) {
	if len(order) != len(shape) {
		return nil, fmt.Errorf("order rank %d does not match shape rank %d", len(order), len(shape))
	}
	strides := make(Strides, len(shape))
	stride := int64(elemSize)
	// Innermost memory dimension is the last entry of the order.
	for i := len(order) - 1; i >= 0; i-- {
		dim := order[i]
		strides[dim] = stride
		stride *= int64(shape[dim])
	}
	return strides, nil
}

// ByteSize returns the number of bytes spanned by a buffer with the given shape and strides.
func ByteSize(shape Shape, strides Strides, elemSize int) int64 {
	if len(shape) == 0 {
		return int64(elemSize)
	}
	var span int64
	for i, dim := range shape {
		if dim <= 0 {
			return 0
		}
		span += int64(dim-1) * strides[i]
	}
	return span + int64(elemSize)
}
