// Package builder is the fluent, typed front end of the library. Builders turn
// expressions over entity types into parts, place them in a container in
// statement order, and hand the container to a compiler or to a Context.
//
// Each step of a chain returns a new builder value and retires the one it was
// called on. Calling a step on a retired value does not touch the container;
// the chain it returns reports ErrConsumed when compiled or executed.
package builder

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/asaidimu/go-persistmap/core/compiler"
	"github.com/asaidimu/go-persistmap/core/expr"
	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/asaidimu/go-persistmap/core/persistence"
	"go.uber.org/multierr"
)

// ErrConsumed is reported by a builder value whose container has moved on to
// a later step of the chain.
var ErrConsumed = errors.New("builder value already consumed")

var errNoContext = errors.New("builder has no context")

// Option configures a chain.
type Option func(*chain)

// WithAnalyzer replaces the expression analyzer used to read field names,
// types and values.
func WithAnalyzer(a *expr.Analyzer) Option {
	return func(c *chain) {
		if a != nil {
			c.analyzer = a
		}
	}
}

// WithCompiler sets the compiler used when the chain has no Context.
func WithCompiler(cc *compiler.Compiler) Option {
	return func(c *chain) {
		if cc != nil {
			c.compiler = cc
		}
	}
}

// As aliases the root entity of a select chain.
func As(alias string) Option {
	return func(c *chain) { c.alias = alias }
}

// chain is the state shared by the builder values of one statement. Only the
// value whose generation matches gen may advance it.
type chain struct {
	container parts.PartsContainer
	ctx       *persistence.Context
	compiler  *compiler.Compiler
	analyzer  *expr.Analyzer
	alias     string
	gen       uint64
	err       error
}

func newChain(container parts.PartsContainer, ctx *persistence.Context, opts []Option) *chain {
	c := &chain{container: container, ctx: ctx, analyzer: expr.NewAnalyzer()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// consumed returns a detached chain that only carries ErrConsumed.
func consumed() *chain {
	return &chain{container: parts.NewContainer(), analyzer: expr.NewAnalyzer(), err: ErrConsumed}
}

// advance runs step if the value at generation gen owns the chain, and returns
// the chain and generation of the next value. Step errors accumulate and are
// reported when the chain is compiled.
func (c *chain) advance(gen uint64, step func() error) (*chain, uint64) {
	if c == nil || gen != c.gen {
		return consumed(), 0
	}
	c.fail(step())
	c.gen++
	return c, c.gen
}

// check reports the state of the value at generation gen.
func (c *chain) check(gen uint64) error {
	if c == nil || gen != c.gen {
		return ErrConsumed
	}
	return c.err
}

func (c *chain) fail(err error) {
	c.err = multierr.Append(c.err, err)
}

// compile compiles the container with the Context's compiler, the configured
// compiler, or the standard compiler, in that order.
func (c *chain) compile(gen uint64) (*parts.CompiledQuery, error) {
	if err := c.check(gen); err != nil {
		return nil, err
	}
	switch {
	case c.ctx != nil:
		return c.ctx.Compile(c.container)
	case c.compiler != nil:
		return c.compiler.Compile(c.container)
	}
	return compiler.New(nil, nil).Compile(c.container)
}

// enqueue hands the container to the Context.
func (c *chain) enqueue(gen uint64) (*persistence.PartsCommand, error) {
	if err := c.check(gen); err != nil {
		return nil, err
	}
	if c.ctx == nil {
		return nil, errNoContext
	}
	return c.ctx.EnqueueParts(c.container)
}

// member resolves the member access n refers to.
func member(n expr.Node) (*expr.Member, error) {
	switch v := n.(type) {
	case *expr.Member:
		return v, nil
	case *expr.Convert:
		return member(v.Operand)
	case *expr.Lambda:
		return member(v.Body)
	}
	return nil, fmt.Errorf("%w: %s is not a field", expr.ErrUnsupported, expr.Shape(n))
}

// qualifier resolves the name a member is qualified with: the entity whose
// alias matches the member's receiver, else the first entity of its type,
// else its table name.
func (c *chain) qualifier(m *expr.Member) string {
	var byType *parts.EntityPart
	for _, e := range c.container.Entities() {
		if e.EntityType() != m.Declaring {
			continue
		}
		if m.Receiver != nil && e.Alias != "" && e.Alias == m.Receiver.Name {
			return e.Alias
		}
		if byType == nil {
			byType = e
		}
	}
	if byType != nil {
		return byType.Qualifier()
	}
	return expr.TableQualifier(m)
}

// field builds a field part for n, qualified against the entities present.
func (c *chain) field(op parts.Operation, n expr.Node) (*parts.FieldPart, error) {
	name, err := c.analyzer.FieldName(n)
	if err != nil {
		return nil, err
	}
	m, err := member(n)
	if err != nil {
		return nil, err
	}
	f := parts.NewField(op, m.Declaring, name)
	if q := c.qualifier(m); q != f.Entity {
		f.EntityAlias = q
	}
	return f, nil
}

// predicate builds a part whose text renders p when compiled, so that
// aliases introduced after the call are honored.
func (c *chain) predicate(op parts.Operation, t reflect.Type, p expr.Node) parts.Part {
	if p == nil {
		return parts.NewDelegate(op, t, nil)
	}
	return parts.NewDelegate(op, t, func() (string, error) {
		return expr.Render(p, c.qualifier)
	})
}
