package expr

import (
	"errors"
	"fmt"
)

// ErrUnsupported is matched by every error the Analyzer returns for an
// expression shape it cannot interpret.
var ErrUnsupported = errors.New("unsupported expression")

// UnsupportedError reports the shape of an expression the Analyzer rejected.
type UnsupportedError struct {
	Operation string // what was being extracted
	Shape     string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("cannot extract %s from %s: %v", e.Operation, e.Shape, ErrUnsupported)
}

func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

func unsupported(operation string, n Node) error {
	return &UnsupportedError{Operation: operation, Shape: Shape(n)}
}
