package builder

import (
	"context"
	"reflect"

	"github.com/asaidimu/go-persistmap/core/expr"
	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/asaidimu/go-persistmap/core/persistence"
)

// Statement is a finished non-query statement.
type Statement struct {
	c   *chain
	gen uint64
}

// Err reports the errors accumulated while building the statement.
func (s *Statement) Err() error {
	return s.c.check(s.gen)
}

// Container returns the parts of the statement.
func (s *Statement) Container() parts.PartsContainer {
	return s.c.container
}

// Compile compiles the statement.
func (s *Statement) Compile() (*parts.CompiledQuery, error) {
	return s.c.compile(s.gen)
}

// Enqueue queues the statement on its Context. It runs on the next commit.
func (s *Statement) Enqueue() (*persistence.PartsCommand, error) {
	return s.c.enqueue(s.gen)
}

// Execute runs the statement on its Context immediately.
func (s *Statement) Execute(ctx context.Context) (int64, error) {
	if err := s.c.check(s.gen); err != nil {
		return 0, err
	}
	if s.c.ctx == nil {
		return 0, errNoContext
	}
	return s.c.ctx.Execute(ctx, persistence.NewParts(s.c.container))
}

// where adds a filter part at the end of the statement. The first filter is
// tagged first, later ones next.
func (c *chain) where(t reflect.Type, first, next parts.Operation, p expr.Node) error {
	op := first
	if c.has(isWhere) {
		op = next
	}
	return c.container.Add(c.predicate(op, t, p))
}
