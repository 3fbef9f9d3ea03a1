package diag

import "fmt"

// Diagnostic is a non-fatal finding reported by a compilation that otherwise succeeded.
type Diagnostic struct {
	Code    Code
	Message string
	Barrier int
}

// String returns the string representation of the diagnostic.
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// DeadBarrier returns the diagnostic for a barrier no operation signals or waits on.
func DeadBarrier(barrier int) Diagnostic {
	return Diagnostic{
		Code:    CodeDeadBarrier,
		Message: fmt.Sprintf("barrier %d has no producers and no consumers", barrier),
		Barrier: barrier,
	}
}
