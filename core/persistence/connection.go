// Package persistence runs compiled statements against a database. A Context
// queues commands and executes them in order on commit; a Connection is the
// database handle it owns.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/asaidimu/go-persistmap/core/compiler"
	"go.uber.org/zap"
)

// Connection is the database collaborator of a Context.
type Connection interface {
	// Execute runs a statement that returns rows. The caller closes the rows.
	Execute(ctx context.Context, query string) (*sql.Rows, error)
	// ExecuteNonQuery runs a statement and returns the number of affected rows.
	ExecuteNonQuery(ctx context.Context, query string) (int64, error)
	// Compiler is the compiler for the dialect of the connection.
	Compiler() *compiler.Compiler
	// Close releases the connection.
	Close() error
}

// Runner abstracts the methods shared by *sql.DB, *sql.Conn and *sql.Tx so a
// connection can run on any of them.
type Runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLConnection is a Connection over database/sql.
type SQLConnection struct {
	runner   Runner
	compiler *compiler.Compiler
	logger   *zap.Logger
}

var _ Connection = (*SQLConnection)(nil)

// NewSQLConnection wraps runner. A nil compiler compiles standard SQL.
// Close closes runner when it implements io.Closer, as *sql.DB does; a
// transaction passed as runner is left for the caller to finish.
func NewSQLConnection(runner Runner, c *compiler.Compiler, logger *zap.Logger) *SQLConnection {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = compiler.New(nil, logger)
	}
	return &SQLConnection{runner: runner, compiler: c, logger: logger}
}

// Execute runs query and returns its rows.
func (c *SQLConnection) Execute(ctx context.Context, query string) (*sql.Rows, error) {
	c.logger.Debug("Executing SQL query", zap.String("sql", query))
	rows, err := c.runner.QueryContext(ctx, query)
	if err != nil {
		c.logger.Error("Failed to execute query", zap.Error(err), zap.String("sql", query))
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return rows, nil
}

// ExecuteNonQuery runs query and returns the affected row count. Drivers that
// cannot report a count yield -1.
func (c *SQLConnection) ExecuteNonQuery(ctx context.Context, query string) (int64, error) {
	c.logger.Debug("Executing SQL statement", zap.String("sql", query))
	result, err := c.runner.ExecContext(ctx, query)
	if err != nil {
		c.logger.Error("Failed to execute statement", zap.Error(err), zap.String("sql", query))
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}

// Compiler returns the dialect compiler of the connection.
func (c *SQLConnection) Compiler() *compiler.Compiler {
	return c.compiler
}

// Close closes the underlying runner if it can be closed.
func (c *SQLConnection) Close() error {
	closer, ok := c.runner.(io.Closer)
	if !ok {
		return nil
	}
	if err := closer.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}
