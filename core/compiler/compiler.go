// Package compiler turns a parts container into SQL text. The base compiler
// has a rule for every operation; a Dialect intercepts the operations it
// renders differently and leaves the rest to the base rules.
package compiler

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/asaidimu/go-persistmap/core/parts"
	"go.uber.org/zap"
)

// Rule writes the SQL of one part.
type Rule func(w *Writer, p parts.Part) error

// Dialect customizes compilation for one database product.
type Dialect interface {
	Name() string
	// Rule returns the dialect rule for op, if the dialect overrides it.
	Rule(op parts.Operation) (Rule, bool)
	// TypeName returns the column type for values of Go type t.
	TypeName(t reflect.Type) string
}

// Compiler compiles containers for one dialect.
type Compiler struct {
	dialect Dialect
	base    [parts.NumOperations]Rule
	logger  *zap.Logger
}

// New creates a compiler for dialect. A nil dialect compiles standard SQL.
func New(dialect Dialect, logger *zap.Logger) *Compiler {
	if dialect == nil {
		dialect = ANSI
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{dialect: dialect, base: baseRules(), logger: logger}
}

// Dialect returns the dialect the compiler emits.
func (c *Compiler) Dialect() Dialect {
	return c.dialect
}

// Compile walks container in order and returns the compiled query.
func (c *Compiler) Compile(container parts.PartsContainer) (*parts.CompiledQuery, error) {
	if container == nil {
		return nil, fmt.Errorf("cannot compile a nil container")
	}
	w := &Writer{compiler: c, container: container}
	for _, p := range container.Parts() {
		if err := w.Compile(p); err != nil {
			c.logger.Debug("Failed to compile query", zap.String("dialect", c.dialect.Name()), zap.Error(err))
			return nil, err
		}
		w.prev = p
	}

	text := w.sb.String()
	c.logger.Debug("Compiled query", zap.String("dialect", c.dialect.Name()), zap.String("sql", text))
	return parts.NewCompiledQuery(text, container, converters(container)), nil
}

// rule resolves op through the dialect, then the base rules.
func (c *Compiler) rule(op parts.Operation) (Rule, bool) {
	if r, ok := c.dialect.Rule(op); ok && r != nil {
		return r, true
	}
	if op < 0 || op >= parts.NumOperations {
		return nil, false
	}
	r := c.base[op]
	return r, r != nil
}

// converters collects the converters of select-list fields in order.
func converters(container parts.PartsContainer) []parts.ValueConverter {
	var out []parts.ValueConverter
	var walk func(ps []parts.Part)
	walk = func(ps []parts.Part) {
		for _, p := range ps {
			switch p := p.(type) {
			case *parts.FieldPart:
				if p.Converter != nil && !p.Ignored {
					out = append(out, parts.ValueConverter{ID: p.ID(), Transform: p.Converter})
				}
			case *parts.DecoratorPart:
				if p.Operation() == parts.Select || p.Operation() == parts.SelectMap {
					walk(p.Children())
				}
			}
		}
	}
	walk(container.Parts())
	return out
}

// Writer accumulates the SQL of one compilation. Rules receive it together
// with the part they compile.
type Writer struct {
	sb        strings.Builder
	compiler  *Compiler
	container parts.PartsContainer
	parent    parts.Items
	prev      parts.Part
}

// WriteString appends s.
func (w *Writer) WriteString(s string) {
	w.sb.WriteString(s)
}

// Printf appends formatted text.
func (w *Writer) Printf(format string, args ...any) {
	fmt.Fprintf(&w.sb, format, args...)
}

// Line starts a new line unless nothing has been written yet.
func (w *Writer) Line() {
	if w.sb.Len() > 0 {
		w.sb.WriteByte('\n')
	}
}

// Container is the container being compiled.
func (w *Writer) Container() parts.PartsContainer { return w.container }

// Parent is the part whose children are being compiled, nil at the top level.
func (w *Writer) Parent() parts.Items { return w.parent }

// Previous is the sibling compiled before the current part, if any.
func (w *Writer) Previous() parts.Part { return w.prev }

// Dialect is the dialect being emitted.
func (w *Writer) Dialect() Dialect { return w.compiler.dialect }

// TypeName maps a Go type to a column type of the dialect.
func (w *Writer) TypeName(t reflect.Type) string {
	return w.compiler.dialect.TypeName(t)
}

// Compile compiles p with the rule of its operation.
func (w *Writer) Compile(p parts.Part) error {
	r, ok := w.compiler.rule(p.Operation())
	if !ok {
		return w.fail(ErrUnsupportedOperation, p.Operation(), fmt.Sprintf("no rule for %T", p))
	}
	return r(w, p)
}

// Base compiles p with the base rule, bypassing the dialect.
func (w *Writer) Base(p parts.Part) error {
	op := p.Operation()
	if op < 0 || op >= parts.NumOperations || w.compiler.base[op] == nil {
		return w.fail(ErrUnsupportedOperation, op, "no base rule")
	}
	return w.compiler.base[op](w, p)
}

// CompileChildren compiles the children of items in order.
func (w *Writer) CompileChildren(items parts.Items) error {
	parent, prev := w.parent, w.prev
	defer func() { w.parent, w.prev = parent, prev }()

	w.parent, w.prev = items, nil
	for _, child := range items.Children() {
		if err := w.Compile(child); err != nil {
			return err
		}
		w.prev = child
	}
	return nil
}

// siblings returns the parts p is compiled among.
func (w *Writer) siblings() []parts.Part {
	if w.parent != nil {
		return w.parent.Children()
	}
	return w.container.Parts()
}

// IsLast reports whether p is the last sibling accepted by match that is not
// an ignored field. A nil match accepts every sibling.
func (w *Writer) IsLast(p parts.Part, match func(parts.Part) bool) bool {
	return parts.Same(p, parts.LastActive(w.siblings(), match))
}

// Comma separates p from the following siblings accepted by match.
func (w *Writer) Comma(p parts.Part, match func(parts.Part) bool) {
	if !w.IsLast(p, match) {
		w.sb.WriteString(", ")
	}
}

// Fragment returns the text of p. Delegates are evaluated and their errors
// are reported as missing operands.
func (w *Writer) Fragment(p parts.Part) (string, error) {
	d, ok := p.(*parts.DelegatePart)
	if !ok {
		return p.Fragment(), nil
	}
	if !d.HasOperand() {
		return "", w.fail(ErrMissingRequiredPart, p.Operation(), "no expression")
	}
	s, err := d.Render()
	if err != nil {
		return "", fmt.Errorf("%s: rendering %s: %w", w.compiler.dialect.Name(), p.Operation(), err)
	}
	return s, nil
}

// Fail builds a CompileError for op.
func (w *Writer) Fail(kind error, op parts.Operation, reason string) error {
	return w.fail(kind, op, reason)
}

func (w *Writer) fail(kind error, op parts.Operation, reason string) error {
	return &CompileError{Kind: kind, Operation: op, Dialect: w.compiler.dialect.Name(), Reason: reason}
}
