package persistence

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by a Context used after Close.
var ErrClosed = errors.New("context is closed")

// ExecutionError is a failure reported by the connection while running a
// command. The connection's error is kept as is and unwraps.
type ExecutionError struct {
	CommandID string
	Query     string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.CommandID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// CommitError reports a commit that stopped at a failing command. The failed
// command has left the queue; the Pending commands after it have not run.
type CommitError struct {
	Executed int
	Failed   int
	Pending  int
	Total    int
	Err      error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("%d of %d commands executed: %v", e.Executed, e.Total, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
