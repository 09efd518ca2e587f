package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/asaidimu/go-events"
	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/asaidimu/go-persistmap/core/schema"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ContextOptions configures a Context.
type ContextOptions struct {
	// CommitOnClose commits the commands still queued when the context is
	// closed.
	CommitOnClose bool

	Logger *zap.Logger
}

// DefaultContextOptions returns the options used when none are given.
func DefaultContextOptions() *ContextOptions {
	return &ContextOptions{CommitOnClose: true}
}

// Context owns a connection and a FIFO queue of commands. Commands run when
// the context is committed or closed. A Context is not safe for concurrent
// use; only its subscription registry is guarded.
type Context struct {
	conn    Connection
	queue   []Command
	options *ContextOptions
	logger  *zap.Logger
	closed  bool

	bus           *events.TypedEventBus[Event]
	subscriptions map[string]*SubscriptionInfo
	subMu         sync.RWMutex
}

// NewContext creates a context that owns conn.
func NewContext(conn Connection, options *ContextOptions) (*Context, error) {
	if conn == nil {
		return nil, fmt.Errorf("cannot create a context without a connection")
	}
	if options == nil {
		options = DefaultContextOptions()
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bus, err := events.NewTypedEventBus[Event](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}

	return &Context{
		conn:          conn,
		options:       options,
		logger:        logger,
		bus:           bus,
		subscriptions: make(map[string]*SubscriptionInfo),
	}, nil
}

// Connection returns the connection the context owns.
func (c *Context) Connection() Connection {
	return c.conn
}

// Enqueue appends cmd to the queue.
func (c *Context) Enqueue(cmd Command) error {
	if c.closed {
		return ErrClosed
	}
	if cmd == nil {
		return fmt.Errorf("cannot enqueue a nil command")
	}
	c.queue = append(c.queue, cmd)
	c.logger.Debug("Enqueued command", zap.String("command", cmd.ID()), zap.Int("pending", len(c.queue)))
	c.emit(createEvent(CommandEnqueued, cmd, len(c.queue), 0, nil, time.Time{}))
	return nil
}

// EnqueueParts queues container for compilation and execution on commit.
func (c *Context) EnqueueParts(container parts.PartsContainer) (*PartsCommand, error) {
	cmd := NewParts(container)
	if err := c.Enqueue(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Pending returns the queued commands in execution order.
func (c *Context) Pending() []Command {
	out := make([]Command, len(c.queue))
	copy(out, c.queue)
	return out
}

// Commit executes the queued commands in order. Each command runs on its own:
// a failure removes the failing command, stops the commit and leaves the
// commands after it queued. The returned error is a *CommitError.
func (c *Context) Commit(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	return c.commit(ctx)
}

func (c *Context) commit(ctx context.Context) error {
	total := len(c.queue)
	if total == 0 {
		return nil
	}
	startTime := time.Now()
	c.logger.Debug("Committing commands", zap.Int("count", total))
	c.emit(createEvent(CommitStart, nil, total, 0, nil, time.Time{}))

	executed := 0
	var affected int64
	for len(c.queue) > 0 {
		cmd := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]

		n, err := c.run(ctx, cmd)
		if err != nil {
			cerr := &CommitError{
				Executed: executed,
				Failed:   1,
				Pending:  len(c.queue),
				Total:    total,
				Err:      err,
			}
			c.logger.Error("Commit stopped", zap.Error(err),
				zap.Int("executed", executed), zap.Int("pending", len(c.queue)))
			c.emit(createEvent(CommitFailed, nil, len(c.queue), affected, cerr, startTime))
			return cerr
		}
		executed++
		if n > 0 {
			affected += n
		}
	}

	c.logger.Debug("Committed commands", zap.Int("count", executed), zap.Int64("rowsAffected", affected))
	c.emit(createEvent(CommitSuccess, nil, 0, affected, nil, startTime))
	return nil
}

// run executes one command with lifecycle events.
func (c *Context) run(ctx context.Context, cmd Command) (int64, error) {
	startTime := time.Now()
	c.emit(createEvent(CommandStart, cmd, len(c.queue), 0, nil, time.Time{}))

	n, err := cmd.Run(ctx, c.conn)
	if err != nil {
		c.logger.Error("Command failed", zap.String("command", cmd.ID()), zap.Error(err))
		c.emit(createEvent(CommandFailed, cmd, len(c.queue), 0, err, startTime))
		return 0, err
	}
	c.logger.Debug("Command executed", zap.String("command", cmd.ID()), zap.Int64("rowsAffected", n))
	c.emit(createEvent(CommandSuccess, cmd, len(c.queue), n, nil, startTime))
	return n, nil
}

// Execute runs cmd immediately, bypassing the queue.
func (c *Context) Execute(ctx context.Context, cmd Command) (int64, error) {
	if c.closed {
		return 0, ErrClosed
	}
	return c.run(ctx, cmd)
}

// Compile compiles container with the connection's compiler.
func (c *Context) Compile(container parts.PartsContainer) (*parts.CompiledQuery, error) {
	return c.conn.Compiler().Compile(container)
}

// Rows compiles container and runs it immediately, returning the open rows
// with the compiled query whose converters apply to them.
func (c *Context) Rows(ctx context.Context, container parts.PartsContainer) (*sql.Rows, *parts.CompiledQuery, error) {
	if c.closed {
		return nil, nil, ErrClosed
	}
	compiled, err := c.Compile(container)
	if err != nil {
		return nil, nil, err
	}
	rows, err := c.conn.Execute(ctx, compiled.Text())
	if err != nil {
		return nil, nil, &ExecutionError{CommandID: "query", Query: compiled.Text(), Err: err}
	}
	return rows, compiled, nil
}

// Query compiles container, runs it immediately and reads every row.
func (c *Context) Query(ctx context.Context, container parts.PartsContainer) ([]schema.Document, error) {
	rows, compiled, err := c.Rows(ctx, container)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ReadDocuments(rows, compiled.Converters())
}

// Close commits the remaining commands when CommitOnClose is set, then
// releases the connection. Errors of both steps are combined. Closing a
// closed context does nothing.
func (c *Context) Close(ctx context.Context) (err error) {
	if c.closed {
		return nil
	}
	if c.options.CommitOnClose {
		err = multierr.Append(err, c.commit(ctx))
	}
	c.closed = true
	err = multierr.Append(err, c.conn.Close())

	c.logger.Debug("Context closed", zap.Int("pending", len(c.queue)), zap.Error(err))
	c.emit(createEvent(ContextClosed, nil, len(c.queue), 0, err, time.Time{}))
	return err
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool {
	return c.closed
}

// RegisterSubscription registers a callback for an event type and returns the
// id to unregister it with.
func (c *Context) RegisterSubscription(options RegisterSubscriptionOptions) string {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	unsubscribe := c.bus.Subscribe(string(options.Event), options.Callback)
	id := uuid.New().String()

	c.subscriptions[id] = &SubscriptionInfo{
		Id:          &id,
		Event:       options.Event,
		Label:       options.Label,
		Description: options.Description,
		Unsubscribe: unsubscribe,
	}
	return id
}

// UnregisterSubscription removes the subscription with id.
func (c *Context) UnregisterSubscription(id string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if info, ok := c.subscriptions[id]; ok {
		info.Unsubscribe()
		delete(c.subscriptions, id)
	}
}

// Subscriptions lists the registered subscriptions.
func (c *Context) Subscriptions() []SubscriptionInfo {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	subs := make([]SubscriptionInfo, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, *sub)
	}
	return subs
}
