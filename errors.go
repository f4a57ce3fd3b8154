package fnode

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrGraphCorruption is returned when the graph references a node that does not
	// exist or contains a cycle. It indicates a caller bug and aborts evaluation.
	ErrGraphCorruption = errors.New("graph corruption")
	// ErrShapeMismatch is reported when an operator receives inputs of widths it cannot
	// combine. The node keeps its last valid output.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrIncompatibleShape is returned when a link is refused by the link rules.
	ErrIncompatibleShape = errors.New("incompatible shape")
	// ErrGraphIncomplete is reported when a stage sink has nothing connected to it
	// or a node feeding a sink lacks required inputs.
	ErrGraphIncomplete = errors.New("graph incomplete")
	// ErrPersistenceFault is returned when a snapshot can not be read or written.
	ErrPersistenceFault = errors.New("persistence fault")

	ErrNodeNotFound = errors.New("node not found")
	ErrLineNotFound = errors.New("line not found")
	ErrCapacity     = errors.New("graph capacity exceeded")
	ErrSinkDelete   = errors.New("stage sinks can not be deleted")
	ErrCycle        = errors.New("link would create a cycle")
)

// LinkError describes a refused link between two nodes.
type LinkError struct {
	From, To NodeID
	// Kind is the kind of the destination node.
	Kind   Kind
	Reason string
	Err    error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %d->%d (%s): %s: %s", e.From, e.To, e.Kind, e.Err, e.Reason)
}

func (e *LinkError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a [ErrGraphCorruption]. Every other error
// returned by the evaluator and code generator leaves the graph usable.
func IsFatal(err error) bool {
	return errors.Is(err, ErrGraphCorruption)
}

// Warnings unpacks an error returned by [Graph.Evaluate] or the code generator
// into its individual non-fatal problems.
func Warnings(err error) []error {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		return merr.WrappedErrors()
	}
	return []error{err}
}
