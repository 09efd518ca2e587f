package persistence

import (
	"context"
	"fmt"

	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/google/uuid"
)

// Command is a unit of deferred work queued on a Context.
type Command interface {
	// ID identifies the command in logs and events.
	ID() string
	// Run executes the command on conn and returns the affected row count.
	Run(ctx context.Context, conn Connection) (int64, error)
	// String describes the command, usually with its SQL.
	String() string
	command()
}

// QueryCommand runs literal SQL text.
type QueryCommand struct {
	id   string
	Text string
}

// NewQuery creates a command for text.
func NewQuery(text string) *QueryCommand {
	return &QueryCommand{id: uuid.New().String(), Text: text}
}

func (c *QueryCommand) ID() string     { return c.id }
func (c *QueryCommand) String() string { return c.Text }
func (c *QueryCommand) command()       {}

func (c *QueryCommand) Run(ctx context.Context, conn Connection) (int64, error) {
	n, err := conn.ExecuteNonQuery(ctx, c.Text)
	if err != nil {
		return 0, &ExecutionError{CommandID: c.id, Query: c.Text, Err: err}
	}
	return n, nil
}

// PartsCommand compiles a container with the connection's compiler when it
// runs, then executes the result.
type PartsCommand struct {
	id        string
	container parts.PartsContainer
	compiled  *parts.CompiledQuery
}

// NewParts creates a command for container.
func NewParts(container parts.PartsContainer) *PartsCommand {
	return &PartsCommand{id: uuid.New().String(), container: container}
}

func (c *PartsCommand) ID() string { return c.id }
func (c *PartsCommand) command()   {}

// Container returns the parts the command compiles.
func (c *PartsCommand) Container() parts.PartsContainer { return c.container }

// Compiled returns the query of the last run, or nil before the first run.
func (c *PartsCommand) Compiled() *parts.CompiledQuery { return c.compiled }

func (c *PartsCommand) String() string {
	if c.compiled != nil {
		return c.compiled.Text()
	}
	return fmt.Sprintf("parts command %s (%d parts)", c.id, len(c.container.Parts()))
}

func (c *PartsCommand) Run(ctx context.Context, conn Connection) (int64, error) {
	compiled, err := conn.Compiler().Compile(c.container)
	if err != nil {
		return 0, fmt.Errorf("command %s: %w", c.id, err)
	}
	c.compiled = compiled

	n, err := conn.ExecuteNonQuery(ctx, compiled.Text())
	if err != nil {
		return 0, &ExecutionError{CommandID: c.id, Query: compiled.Text(), Err: err}
	}
	return n, nil
}

// DelegateFunc is the work of a DelegateCommand.
type DelegateFunc func(ctx context.Context, conn Connection) (int64, error)

// DelegateCommand runs an arbitrary function against the connection, for work
// that is not a single statement.
type DelegateCommand struct {
	id   string
	Name string
	fn   DelegateFunc
}

// NewDelegate creates a command named name that runs fn.
func NewDelegate(name string, fn DelegateFunc) *DelegateCommand {
	return &DelegateCommand{id: uuid.New().String(), Name: name, fn: fn}
}

func (c *DelegateCommand) ID() string     { return c.id }
func (c *DelegateCommand) String() string { return c.Name }
func (c *DelegateCommand) command()       {}

func (c *DelegateCommand) Run(ctx context.Context, conn Connection) (int64, error) {
	if c.fn == nil {
		return 0, fmt.Errorf("command %s: %s has no function", c.id, c.Name)
	}
	n, err := c.fn(ctx, conn)
	if err != nil {
		return 0, &ExecutionError{CommandID: c.id, Query: c.Name, Err: err}
	}
	return n, nil
}
