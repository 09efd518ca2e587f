package builder

import (
	"context"
	"fmt"
	"reflect"

	"github.com/asaidimu/go-persistmap/core/expr"
	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/asaidimu/go-persistmap/core/persistence"
	"github.com/asaidimu/go-persistmap/core/schema"
)

// Query builds a select statement rooted at entity T.
type Query[T any] struct {
	c   *chain
	gen uint64
}

// From starts a select over T. ctx may be nil when the query is only compiled.
func From[T any](ctx *persistence.Context, opts ...Option) *Query[T] {
	container := parts.NewSelectContainer()
	c := newChain(container, ctx, opts)
	t := reflect.TypeFor[T]()

	c.fail(container.Add(parts.NewDecorator(parts.Select, t)))
	from, err := parts.NewEntity(parts.From, t, c.alias)
	if err != nil {
		c.fail(err)
	} else {
		c.fail(container.Add(from))
	}
	return &Query[T]{c: c, gen: c.gen}
}

func (q *Query[T]) step(f func(c *chain) error) *Query[T] {
	c, gen := q.c.advance(q.gen, func() error { return f(q.c) })
	return &Query[T]{c: c, gen: gen}
}

// rank orders the clauses of a select statement.
func rank(op parts.Operation) int {
	switch op {
	case parts.Select:
		return 0
	case parts.Where, parts.WhereAnd, parts.WhereOr:
		return 2
	case parts.GroupBy:
		return 3
	case parts.OrderBy, parts.OrderByDesc, parts.ThenBy, parts.ThenByDesc:
		return 4
	}
	if op.IsEntity() {
		return 1
	}
	return 5
}

// place inserts p after the last part of the same or an earlier clause, so
// that clauses come out in statement order whatever order they are built in.
func (c *chain) place(p parts.Part) error {
	r := rank(p.Operation())
	ps := c.container.Parts()
	for i := len(ps) - 1; i >= 0; i-- {
		if rank(ps[i].Operation()) <= r {
			return c.container.AddAfter(p, ps[i].Operation())
		}
	}
	if len(ps) > 0 {
		return c.container.AddBefore(p, ps[0].Operation())
	}
	return c.container.Add(p)
}

// has reports whether a top-level part accepted by match exists.
func (c *chain) has(match func(parts.Operation) bool) bool {
	for _, p := range c.container.Parts() {
		if match(p.Operation()) {
			return true
		}
	}
	return false
}

func isWhere(op parts.Operation) bool { return rank(op) == 2 }
func isOrder(op parts.Operation) bool { return rank(op) == 4 }

// JoinWith joins entity J with the join kind op, aliased as alias when it is
// not empty, on the condition on.
func JoinWith[J, T any](q *Query[T], op parts.Operation, alias string, on expr.Node) *Query[T] {
	return q.step(func(c *chain) error {
		if !op.IsJoin() {
			return fmt.Errorf("%w: %s is not a join", parts.ErrInvalidPart, op)
		}
		e, err := parts.NewEntity(op, reflect.TypeFor[J](), alias)
		if err != nil {
			return err
		}
		if err := e.Add(c.predicate(parts.JoinOn, e.EntityType(), on)); err != nil {
			return err
		}
		return c.place(e)
	})
}

// Join inner joins J on the condition on.
func Join[J, T any](q *Query[T], on expr.Node) *Query[T] {
	return JoinWith[J](q, parts.Join, "", on)
}

// LeftJoin left joins J on the condition on.
func LeftJoin[J, T any](q *Query[T], on expr.Node) *Query[T] {
	return JoinWith[J](q, parts.LeftJoin, "", on)
}

// RightJoin right joins J on the condition on.
func RightJoin[J, T any](q *Query[T], on expr.Node) *Query[T] {
	return JoinWith[J](q, parts.RightJoin, "", on)
}

// FullJoin full outer joins J on the condition on.
func FullJoin[J, T any](q *Query[T], on expr.Node) *Query[T] {
	return JoinWith[J](q, parts.FullJoin, "", on)
}

// AndOn adds a condition to the last join.
func (q *Query[T]) AndOn(p expr.Node) *Query[T] {
	return q.joinCondition(parts.AndOn, p)
}

// OrOn adds an alternative condition to the last join.
func (q *Query[T]) OrOn(p expr.Node) *Query[T] {
	return q.joinCondition(parts.OrOn, p)
}

func (q *Query[T]) joinCondition(op parts.Operation, p expr.Node) *Query[T] {
	return q.step(func(c *chain) error {
		entities := c.container.Entities()
		if len(entities) == 0 || !entities[len(entities)-1].Operation().IsJoin() {
			return fmt.Errorf("%w: %s needs a join", parts.ErrInvalidPart, op)
		}
		last := entities[len(entities)-1]
		return last.Add(c.predicate(op, last.EntityType(), p))
	})
}

// Where filters the rows by p. A second Where is combined with AND.
func (q *Query[T]) Where(p expr.Node) *Query[T] {
	return q.filter(parts.Where, parts.WhereAnd, p)
}

// And narrows the filter with p.
func (q *Query[T]) And(p expr.Node) *Query[T] {
	return q.filter(parts.Where, parts.WhereAnd, p)
}

// Or widens the filter with p.
func (q *Query[T]) Or(p expr.Node) *Query[T] {
	return q.filter(parts.Where, parts.WhereOr, p)
}

func (q *Query[T]) filter(first, next parts.Operation, p expr.Node) *Query[T] {
	return q.step(func(c *chain) error {
		op := first
		if c.has(isWhere) {
			op = next
		}
		return c.place(c.predicate(op, reflect.TypeFor[T](), p))
	})
}

// OrderBy sorts ascending by field. Later orderings break ties.
func (q *Query[T]) OrderBy(field expr.Node) *Query[T] {
	return q.order(parts.OrderBy, parts.ThenBy, field)
}

// OrderByDesc sorts descending by field.
func (q *Query[T]) OrderByDesc(field expr.Node) *Query[T] {
	return q.order(parts.OrderByDesc, parts.ThenByDesc, field)
}

// ThenBy breaks ties of the previous ordering, ascending.
func (q *Query[T]) ThenBy(field expr.Node) *Query[T] {
	return q.order(parts.OrderBy, parts.ThenBy, field)
}

// ThenByDesc breaks ties of the previous ordering, descending.
func (q *Query[T]) ThenByDesc(field expr.Node) *Query[T] {
	return q.order(parts.OrderByDesc, parts.ThenByDesc, field)
}

func (q *Query[T]) order(first, next parts.Operation, field expr.Node) *Query[T] {
	return q.step(func(c *chain) error {
		op := first
		if c.has(isOrder) {
			op = next
		}
		f, err := c.field(op, field)
		if err != nil {
			return err
		}
		return c.place(f)
	})
}

// GroupBy groups the rows by field.
func (q *Query[T]) GroupBy(field expr.Node) *Query[T] {
	return q.step(func(c *chain) error {
		f, err := c.field(parts.GroupBy, field)
		if err != nil {
			return err
		}
		return c.place(f)
	})
}

// Map adds field to the select list, named alias when alias is not empty.
// A converter transforms the column's values when rows are read.
func (q *Query[T]) Map(field expr.Node, alias string, converter ...parts.Converter) *Query[T] {
	return q.step(func(c *chain) error {
		f, err := c.field(parts.SelectMap, field)
		if err != nil {
			return err
		}
		f.FieldAlias = alias
		if len(converter) > 0 {
			f.Converter = converter[0]
		}
		return c.container.AddToLast(f, parts.Select)
	})
}

// Include adds a column of the most recently joined entity to the select
// list.
func (q *Query[T]) Include(field expr.Node) *Query[T] {
	return q.step(func(c *chain) error {
		name, err := c.analyzer.FieldName(field)
		if err != nil {
			return err
		}
		m, err := member(field)
		if err != nil {
			return err
		}
		return c.container.Add(parts.NewField(parts.Include, m.Declaring, name))
	})
}

// Ignore removes the column with the id of field from the select list.
func (q *Query[T]) Ignore(field expr.Node) *Query[T] {
	return q.step(func(c *chain) error {
		f, err := c.field(parts.SelectMap, field)
		if err != nil {
			return err
		}
		f.Ignored = true
		return c.container.AddToLast(f, parts.Select)
	})
}

// Max selects the largest value of field as alias.
func (q *Query[T]) Max(field expr.Node, alias string) *Query[T] {
	return q.aggregate(parts.Max, field, alias)
}

// Min selects the smallest value of field as alias.
func (q *Query[T]) Min(field expr.Node, alias string) *Query[T] {
	return q.aggregate(parts.Min, field, alias)
}

// Count selects the row count as alias.
func (q *Query[T]) Count(alias string) *Query[T] {
	return q.step(func(c *chain) error {
		f := parts.NewField(parts.Count, reflect.TypeFor[T](), "")
		f.FieldAlias = alias
		return c.container.AddToLast(f, parts.Select)
	})
}

func (q *Query[T]) aggregate(op parts.Operation, field expr.Node, alias string) *Query[T] {
	return q.step(func(c *chain) error {
		f, err := c.field(op, field)
		if err != nil {
			return err
		}
		f.FieldAlias = alias
		return c.container.AddToLast(f, parts.Select)
	})
}

// Err reports the errors accumulated by the chain.
func (q *Query[T]) Err() error {
	return q.c.check(q.gen)
}

// Container returns the parts built so far.
func (q *Query[T]) Container() parts.PartsContainer {
	return q.c.container
}

// Compile compiles the query.
func (q *Query[T]) Compile() (*parts.CompiledQuery, error) {
	return q.c.compile(q.gen)
}

// Select runs the query on its Context and reads the rows as T values.
func (q *Query[T]) Select(ctx context.Context) ([]T, error) {
	return selectInto[T](ctx, q.c, q.gen)
}

// Projection is a query whose select list is sealed and whose rows are read
// as R values.
type Projection[R any] struct {
	c   *chain
	gen uint64
}

// For seals the select list of q and reads its rows as R. When nothing was
// mapped, every field of R that a queried entity has is selected.
func For[R, T any](q *Query[T]) *Projection[R] {
	next := q.step(func(c *chain) error {
		d, ok := c.container.Last(parts.Select).(*parts.DecoratorPart)
		if !ok {
			return fmt.Errorf("%w: query has no select list", parts.ErrInvalidPart)
		}
		if d.LastActive() == nil && !d.IsSealed() {
			if err := mapFields(c, d, reflect.TypeFor[R]()); err != nil {
				return err
			}
		}
		d.Seal()
		return nil
	})
	return &Projection[R]{c: next.c, gen: next.gen}
}

func mapFields(c *chain, d *parts.DecoratorPart, r reflect.Type) error {
	def, err := schema.Define(r)
	if err != nil {
		return err
	}
	for _, f := range def.Fields {
		for _, e := range c.container.Entities() {
			entity, err := schema.Define(e.EntityType())
			if err != nil {
				return err
			}
			if _, ok := entity.Field(f.MemberName); !ok {
				continue
			}
			fp := parts.NewField(parts.SelectMap, e.EntityType(), f.MemberName)
			fp.EntityAlias = e.Alias
			if err := d.Add(fp); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// Err reports the errors accumulated by the chain.
func (p *Projection[R]) Err() error {
	return p.c.check(p.gen)
}

// Container returns the parts of the projection.
func (p *Projection[R]) Container() parts.PartsContainer {
	return p.c.container
}

// Compile compiles the projection.
func (p *Projection[R]) Compile() (*parts.CompiledQuery, error) {
	return p.c.compile(p.gen)
}

// Select runs the projection on its Context and reads the rows as R values.
func (p *Projection[R]) Select(ctx context.Context) ([]R, error) {
	return selectInto[R](ctx, p.c, p.gen)
}

func selectInto[R any](ctx context.Context, c *chain, gen uint64) ([]R, error) {
	if err := c.check(gen); err != nil {
		return nil, err
	}
	if c.ctx == nil {
		return nil, errNoContext
	}
	docs, err := c.ctx.Query(ctx, c.container)
	if err != nil {
		return nil, err
	}
	return persistence.Materialize[R](docs)
}
