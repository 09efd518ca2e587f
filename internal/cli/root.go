// Package cli implements the persistmap command line: compiling YAML plans to
// SQL and running them against a database.
package cli

import (
	"fmt"

	"github.com/asaidimu/go-persistmap/core/compiler"
	"github.com/asaidimu/go-persistmap/sqlite"
	"github.com/asaidimu/go-persistmap/sqlserver"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	Verbose bool
	Dialect string // "ansi" | "sqlite" | "sqlserver", the plan's dialect when empty
}

// ValidDialects lists the dialects a plan can be compiled to.
var ValidDialects = []string{"ansi", "sqlite", sqlserver.Name}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "persistmap",
		Short: "Compile and run persistence plans",
		Long:  "Compile YAML statement plans to dialect SQL and run them through a persistence context.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Dialect != "" && !isValidDialect(opts.Dialect) {
				return fmt.Errorf("invalid dialect %q: must be one of %v", opts.Dialect, ValidDialects)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log compiled statements to stderr")
	cmd.PersistentFlags().StringVarP(&opts.Dialect, "dialect", "d", "", "SQL dialect (ansi|sqlite|sqlserver)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))

	return cmd
}

func isValidDialect(name string) bool {
	for _, d := range ValidDialects {
		if d == name {
			return true
		}
	}
	return false
}

// Logger returns a development logger when verbose output is requested and a
// no-op logger otherwise.
func (o *RootOptions) Logger() (*zap.Logger, error) {
	if !o.Verbose {
		return zap.NewNop(), nil
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// dialectName picks the flag, then the plan, then fallback.
func (o *RootOptions) dialectName(planDialect, fallback string) (string, error) {
	name := o.Dialect
	if name == "" {
		name = planDialect
	}
	if name == "" {
		name = fallback
	}
	if !isValidDialect(name) {
		return "", fmt.Errorf("invalid dialect %q: must be one of %v", name, ValidDialects)
	}
	return name, nil
}

// newCompiler returns a compiler for the named dialect.
func newCompiler(name string, logger *zap.Logger) *compiler.Compiler {
	switch name {
	case "sqlite":
		return compiler.New(sqlite.NewDialect(nil), logger)
	case sqlserver.Name:
		return compiler.New(sqlserver.NewDialect(), logger)
	}
	return compiler.New(compiler.ANSI, logger)
}
