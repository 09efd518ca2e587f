// Package sqlite provides the SQLite dialect and a connection opener built on
// github.com/mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/asaidimu/go-persistmap/core/compiler"
	"github.com/asaidimu/go-persistmap/core/expr"
	"github.com/asaidimu/go-persistmap/core/persistence"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DriverName is the database/sql driver registered by go-sqlite3.
const DriverName = "sqlite3"

// Options configures the SQLite dialect and connection.
type Options struct {
	// IfNotExists adds IF NOT EXISTS to CREATE TABLE statements.
	IfNotExists bool

	// DropIfExists adds IF EXISTS to DROP TABLE statements.
	DropIfExists bool

	// ForeignKeys enables foreign key enforcement on every connection.
	ForeignKeys bool
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() *Options {
	return &Options{
		IfNotExists:  true,
		DropIfExists: true,
		ForeignKeys:  true,
	}
}

// Open opens the database at path and returns a connection compiling the
// SQLite dialect. The pool is limited to one connection so that in-memory
// databases are shared by every statement.
func Open(path string, logger *zap.Logger, options *Options) (*persistence.SQLConnection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultOptions()
	}

	db, err := sql.Open(DriverName, dsn(path, options))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database %s: %w", path, err)
	}

	logger.Debug("Opened sqlite database", zap.String("path", path))
	return persistence.NewSQLConnection(db, compiler.New(NewDialect(options), logger), logger), nil
}

func dsn(path string, options *Options) string {
	if !options.ForeignKeys {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=1"
}

// CreateDatabase returns a command that creates the database file at path if
// it does not exist yet. SQLite has no CREATE DATABASE statement.
func CreateDatabase(path string) *persistence.DelegateCommand {
	return persistence.NewDelegate("create sqlite database "+path, func(ctx context.Context, _ persistence.Connection) (int64, error) {
		db, err := sql.Open(DriverName, path)
		if err != nil {
			return 0, err
		}
		defer db.Close()
		// The file is created on first use.
		if _, err := db.ExecContext(ctx, "PRAGMA user_version"); err != nil {
			return 0, fmt.Errorf("failed to create sqlite database %s: %w", path, err)
		}
		return 0, nil
	})
}

// TableExists reports whether the database behind conn has a table named name.
func TableExists(ctx context.Context, conn persistence.Connection, name string) (bool, error) {
	query := "SELECT name FROM sqlite_master WHERE type = 'table' AND name = " + expr.Literal(name)
	rows, err := conn.Execute(ctx, query)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	exists := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return exists, nil
}
