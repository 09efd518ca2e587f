package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/asaidimu/go-persistmap/core/persistence"
	"github.com/asaidimu/go-persistmap/core/plan"
	"github.com/asaidimu/go-persistmap/sqlite"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Driver string // database/sql driver name
	DSN    string
}

// ValidDrivers lists the database/sql drivers linked into the binary.
var ValidDrivers = []string{sqlite.DriverName, "postgres", "mysql"}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <plan>",
		Short: "Run a plan against a database",
		Long: `Queue every statement of a YAML plan on a persistence context and commit it.

Statements run in plan order. The first failing statement stops the commit;
the statements before it stay applied.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Driver, "driver", sqlite.DriverName, "database driver (sqlite3|postgres|mysql)")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "data source name, a file path for sqlite3")
	_ = cmd.MarkFlagRequired("dsn")

	return cmd
}

func runExec(ctx context.Context, opts *ExecOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := opts.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	p, err := plan.Load(path)
	if err != nil {
		return err
	}
	commands, err := p.Commands()
	if err != nil {
		return err
	}

	conn, err := opts.connect(p, logger)
	if err != nil {
		return err
	}
	pc, err := persistence.NewContext(conn, &persistence.ContextOptions{Logger: logger})
	if err != nil {
		conn.Close()
		return err
	}
	defer pc.Close(ctx)

	for _, c := range commands {
		if err := pc.Enqueue(c); err != nil {
			return err
		}
	}
	if err := pc.Commit(ctx); err != nil {
		var cerr *persistence.CommitError
		if errors.As(err, &cerr) {
			fmt.Fprintf(cmd.ErrOrStderr(), "executed %d of %d statements\n", cerr.Executed, cerr.Total)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "executed %d statements\n", len(commands))
	return nil
}

// connect opens the database. SQLite files go through the sqlite package so
// that foreign keys are enforced.
func (o *ExecOptions) connect(p *plan.Plan, logger *zap.Logger) (*persistence.SQLConnection, error) {
	fallback := "ansi"
	if o.Driver == sqlite.DriverName {
		fallback = "sqlite"
	}
	name, err := o.dialectName(p.Dialect, fallback)
	if err != nil {
		return nil, err
	}

	switch o.Driver {
	case sqlite.DriverName:
		if name == "sqlite" {
			return sqlite.Open(o.DSN, logger, nil)
		}
	case "postgres", "mysql":
	default:
		return nil, fmt.Errorf("invalid driver %q: must be one of %v", o.Driver, ValidDrivers)
	}

	db, err := sql.Open(o.Driver, o.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", o.Driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", o.Driver, err)
	}
	logger.Debug("Opened database", zap.String("driver", o.Driver), zap.String("dialect", name))
	return persistence.NewSQLConnection(db, newCompiler(name, logger), logger), nil
}
