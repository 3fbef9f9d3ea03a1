package diag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsSentinel(t *testing.T) {
	err := Malformed("task %d references barrier %d", 3, 7).WithDetail(KeyTask, 3)

	assert.ErrorIs(t, err, ErrMalformedGraph)
	assert.NotErrorIs(t, err, ErrTruncatedOrCorruptInput)
	assert.Equal(t, CodeMalformedGraph, CodeOf(err))
}

func TestErrorIsThroughWrapping(t *testing.T) {
	inner := Corrupt(42, "short read")
	wrapped := fmt.Errorf("decode header: %w", inner)

	require.ErrorIs(t, wrapped, ErrTruncatedOrCorruptInput)

	var e *Error
	require.True(t, errors.As(wrapped, &e))
	assert.Equal(t, int64(42), e.Details[KeyOffset])
}

func TestErrorMessage(t *testing.T) {
	err := New(CodeDescriptorTooLarge, "%d planes", 300).
		WithDetail(KeyTask, 1).
		WithDetail(KeyBarrier, 2).
		WithCause(errors.New("boom"))

	assert.Equal(t, "DESCRIPTOR_TOO_LARGE: 300 planes [barrier=2 task=1] (cause: boom)", err.Error())
	assert.Equal(t, "boom", errors.Unwrap(err).Error())
}

func TestErrorIsSameCode(t *testing.T) {
	a := New(CodeCyclicDependency, "a")
	b := New(CodeCyclicDependency, "b")
	assert.ErrorIs(t, a, b)
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestDeadBarrierDiagnostic(t *testing.T) {
	d := DeadBarrier(5)
	assert.Equal(t, CodeDeadBarrier, d.Code)
	assert.Equal(t, 5, d.Barrier)
	assert.Contains(t, d.String(), "barrier 5")
}
