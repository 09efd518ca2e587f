package builder

import (
	"fmt"
	"reflect"

	"github.com/asaidimu/go-persistmap/core/expr"
	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/asaidimu/go-persistmap/core/persistence"
	"github.com/asaidimu/go-persistmap/core/schema"
)

// UpdateBuilder builds an UPDATE of the rows of T.
type UpdateBuilder[T any] struct {
	c   *chain
	gen uint64
}

// Update starts an update of T.
func Update[T any](ctx *persistence.Context, opts ...Option) *UpdateBuilder[T] {
	t := reflect.TypeFor[T]()
	c := newChain(parts.NewContainer(), ctx, opts)
	c.fail(c.container.Add(parts.NewText(parts.Update, schema.TableName(t))))
	c.fail(c.container.Add(parts.NewDecorator(parts.Set, t)))
	return &UpdateBuilder[T]{c: c, gen: c.gen}
}

func (u *UpdateBuilder[T]) step(f func(c *chain) error) *UpdateBuilder[T] {
	c, gen := u.c.advance(u.gen, func() error { return f(u.c) })
	return &UpdateBuilder[T]{c: c, gen: gen}
}

// Set assigns value to field.
func (u *UpdateBuilder[T]) Set(field expr.Node, value any) *UpdateBuilder[T] {
	return u.step(func(c *chain) error {
		name, err := c.analyzer.FieldName(field)
		if err != nil {
			return err
		}
		return c.container.AddToLast(parts.NewAssign(parts.Set, reflect.TypeFor[T](), name, value), parts.Set)
	})
}

// Assign applies an assignment written as a comparison, field == value.
func (u *UpdateBuilder[T]) Assign(assignment expr.Node) *UpdateBuilder[T] {
	return u.step(func(c *chain) error {
		name, value, err := c.assignment(assignment)
		if err != nil {
			return err
		}
		return c.container.AddToLast(parts.NewAssign(parts.Set, reflect.TypeFor[T](), name, value), parts.Set)
	})
}

// Entity assigns every column of entity except its key, and restricts the
// update to the row with entity's key.
func (u *UpdateBuilder[T]) Entity(entity T) *UpdateBuilder[T] {
	return u.step(func(c *chain) error {
		def := schema.DefinitionOf[T]()
		key, ok := def.Key()
		if !ok {
			return fmt.Errorf("%s has no key to update by", def.Name)
		}
		for _, f := range def.Fields {
			if f.IsPrimaryKey {
				continue
			}
			v, err := def.Value(entity, f)
			if err != nil {
				return err
			}
			if err := c.container.AddToLast(parts.NewAssign(parts.Set, def.Type, f.MemberName, v), parts.Set); err != nil {
				return err
			}
		}
		return c.byKey(def, key, entity)
	})
}

// Where restricts the update to the rows matching p.
func (u *UpdateBuilder[T]) Where(p expr.Node) *UpdateBuilder[T] {
	return u.step(func(c *chain) error {
		return c.where(reflect.TypeFor[T](), parts.Where, parts.WhereAnd, p)
	})
}

// Or widens the filter with p.
func (u *UpdateBuilder[T]) Or(p expr.Node) *UpdateBuilder[T] {
	return u.step(func(c *chain) error {
		return c.where(reflect.TypeFor[T](), parts.Where, parts.WhereOr, p)
	})
}

// Build finishes the update.
func (u *UpdateBuilder[T]) Build() *Statement {
	return &Statement{c: u.c, gen: u.gen}
}

// InsertBuilder builds an INSERT of one row of T.
type InsertBuilder[T any] struct {
	c   *chain
	gen uint64
}

// Insert starts an insert into T.
func Insert[T any](ctx *persistence.Context, opts ...Option) *InsertBuilder[T] {
	c := newChain(parts.NewContainer(), ctx, opts)
	c.fail(c.container.Add(parts.NewDecorator(parts.Insert, reflect.TypeFor[T]())))
	return &InsertBuilder[T]{c: c, gen: c.gen}
}

func (b *InsertBuilder[T]) step(f func(c *chain) error) *InsertBuilder[T] {
	c, gen := b.c.advance(b.gen, func() error { return f(b.c) })
	return &InsertBuilder[T]{c: c, gen: gen}
}

// Value sets the value inserted into field.
func (b *InsertBuilder[T]) Value(field expr.Node, value any) *InsertBuilder[T] {
	return b.step(func(c *chain) error {
		name, err := c.analyzer.FieldName(field)
		if err != nil {
			return err
		}
		return c.container.AddToLast(parts.NewAssign(parts.Insert, reflect.TypeFor[T](), name, value), parts.Insert)
	})
}

// Entity inserts every column of entity. A zero integer key is left out so
// that the database assigns it.
func (b *InsertBuilder[T]) Entity(entity T) *InsertBuilder[T] {
	return b.step(func(c *chain) error {
		def := schema.DefinitionOf[T]()
		for _, f := range def.Fields {
			v, err := def.Value(entity, f)
			if err != nil {
				return err
			}
			if f.IsPrimaryKey && isZeroInteger(v) {
				continue
			}
			if err := c.container.AddToLast(parts.NewAssign(parts.Insert, def.Type, f.MemberName, v), parts.Insert); err != nil {
				return err
			}
		}
		return nil
	})
}

// Build finishes the insert.
func (b *InsertBuilder[T]) Build() *Statement {
	return &Statement{c: b.c, gen: b.gen}
}

// DeleteBuilder builds a DELETE of rows of T.
type DeleteBuilder[T any] struct {
	c   *chain
	gen uint64
}

// Delete starts a delete from T.
func Delete[T any](ctx *persistence.Context, opts ...Option) *DeleteBuilder[T] {
	c := newChain(parts.NewContainer(), ctx, opts)
	c.fail(c.container.Add(parts.NewText(parts.Delete, schema.TableName(reflect.TypeFor[T]()))))
	return &DeleteBuilder[T]{c: c, gen: c.gen}
}

func (d *DeleteBuilder[T]) step(f func(c *chain) error) *DeleteBuilder[T] {
	c, gen := d.c.advance(d.gen, func() error { return f(d.c) })
	return &DeleteBuilder[T]{c: c, gen: gen}
}

// Where restricts the delete to the rows matching p.
func (d *DeleteBuilder[T]) Where(p expr.Node) *DeleteBuilder[T] {
	return d.step(func(c *chain) error {
		return c.where(reflect.TypeFor[T](), parts.Where, parts.WhereAnd, p)
	})
}

// Or widens the filter with p.
func (d *DeleteBuilder[T]) Or(p expr.Node) *DeleteBuilder[T] {
	return d.step(func(c *chain) error {
		return c.where(reflect.TypeFor[T](), parts.Where, parts.WhereOr, p)
	})
}

// Entity restricts the delete to the row with entity's key.
func (d *DeleteBuilder[T]) Entity(entity T) *DeleteBuilder[T] {
	return d.step(func(c *chain) error {
		def := schema.DefinitionOf[T]()
		key, ok := def.Key()
		if !ok {
			return fmt.Errorf("%s has no key to delete by", def.Name)
		}
		return c.byKey(def, key, entity)
	})
}

// Build finishes the delete.
func (d *DeleteBuilder[T]) Build() *Statement {
	return &Statement{c: d.c, gen: d.gen}
}

// byKey filters on key equal to its value in entity.
func (c *chain) byKey(def *schema.TypeDefinition, key schema.FieldDefinition, entity any) error {
	v, err := def.Value(entity, key)
	if err != nil {
		return err
	}
	m := expr.Static(def.Type, key.MemberName, key.MemberType)
	return c.where(def.Type, parts.Where, parts.WhereAnd, expr.Eq(m, expr.Const(v)))
}

// assignment reads the field and value of a field == value comparison.
func (c *chain) assignment(n expr.Node) (string, any, error) {
	b, ok := n.(*expr.Binary)
	if !ok || b.Op != expr.Equal {
		return "", nil, fmt.Errorf("%w: %s is not an assignment", expr.ErrUnsupported, expr.Shape(n))
	}
	name, err := c.analyzer.FieldName(b)
	if err != nil {
		return "", nil, err
	}
	value, err := c.analyzer.Value(b)
	if err != nil {
		return "", nil, err
	}
	return name, value, nil
}

func isZeroInteger(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.IsZero()
	}
	return false
}
