package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/asaidimu/go-persistmap/core/compiler"
	"github.com/asaidimu/go-persistmap/core/plan"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <plan>",
		Short: "Compile a plan to SQL",
		Long: `Compile every statement of a YAML plan to the SQL of a dialect.

Statements are written in plan order, each terminated by a semicolon and
preceded by a comment carrying its name.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	logger, err := opts.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	p, err := plan.Load(path)
	if err != nil {
		return err
	}
	name, err := opts.dialectName(p.Dialect, "ansi")
	if err != nil {
		return err
	}
	logger.Debug("Compiling plan", zap.String("path", path), zap.String("dialect", name),
		zap.Int("statements", len(p.Statements)))

	texts, err := compilePlan(p, newCompiler(name, logger))
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeScript(w, p, texts)
}

// compilePlan returns the SQL of every statement in order.
func compilePlan(p *plan.Plan, c *compiler.Compiler) ([]string, error) {
	texts := make([]string, 0, len(p.Statements))
	for i, s := range p.Statements {
		if s.SQL != "" {
			texts = append(texts, s.SQL)
			continue
		}
		container, err := s.Container()
		if err != nil {
			return nil, fmt.Errorf("statement %d (%s): %w", i+1, s.Name, err)
		}
		q, err := c.Compile(container)
		if err != nil {
			return nil, fmt.Errorf("statement %d (%s): %w", i+1, s.Name, err)
		}
		texts = append(texts, q.Text())
	}
	return texts, nil
}

func writeScript(w io.Writer, p *plan.Plan, texts []string) error {
	var sb strings.Builder
	for i, text := range texts {
		if i > 0 {
			sb.WriteString("\n")
		}
		if name := p.Statements[i].Name; name != "" {
			fmt.Fprintf(&sb, "-- %s\n", name)
		}
		sb.WriteString(text)
		sb.WriteString(";\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
