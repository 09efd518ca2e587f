package compiler

import (
	"errors"
	"fmt"

	"github.com/asaidimu/go-persistmap/core/parts"
)

var (
	// ErrUnsupportedOperation is the kind of a CompileError raised for an
	// operation no rule handles.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrMissingRequiredPart is the kind of a CompileError raised when a part
	// lacks an operand or child it cannot be compiled without.
	ErrMissingRequiredPart = errors.New("missing required part")
)

// CompileError describes why a part could not be compiled.
type CompileError struct {
	Kind      error
	Operation parts.Operation
	Dialect   string
	Reason    string
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("%s: %v: %s", e.Dialect, e.Kind, e.Operation)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *CompileError) Unwrap() error {
	return e.Kind
}

// Unsupported returns a rule that rejects its part, for dialects lacking an
// operation.
func Unsupported(reason string) Rule {
	return func(w *Writer, p parts.Part) error {
		return w.fail(ErrUnsupportedOperation, p.Operation(), reason)
	}
}
