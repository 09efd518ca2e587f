package builder

import (
	"fmt"
	"reflect"

	"github.com/asaidimu/go-persistmap/core/expr"
	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/asaidimu/go-persistmap/core/persistence"
	"github.com/asaidimu/go-persistmap/core/schema"
)

type foreignKey struct {
	member string
	table  string
	column string
}

// TableBuilder builds DDL statements for the table of T.
type TableBuilder[T any] struct {
	c    *chain
	gen  uint64
	spec *tableSpec
}

type tableSpec struct {
	keys          []string
	autoIncrement bool
	foreignKeys   []foreignKey
	typeNames     map[string]string
}

// Table starts a DDL statement for the table of T.
func Table[T any](ctx *persistence.Context, opts ...Option) *TableBuilder[T] {
	c := newChain(parts.NewContainer(), ctx, opts)
	return &TableBuilder[T]{c: c, gen: c.gen, spec: &tableSpec{typeNames: map[string]string{}}}
}

func (b *TableBuilder[T]) step(f func(c *chain) error) *TableBuilder[T] {
	c, gen := b.c.advance(b.gen, func() error { return f(b.c) })
	return &TableBuilder[T]{c: c, gen: gen, spec: b.spec}
}

func (b *TableBuilder[T]) finish(f func(c *chain, def *schema.TypeDefinition) error) *Statement {
	c, gen := b.c.advance(b.gen, func() error {
		def, err := schema.Define(reflect.TypeFor[T]())
		if err != nil {
			return err
		}
		return f(b.c, def)
	})
	return &Statement{c: c, gen: gen}
}

// Key declares the primary key. More than one field declares a composite key.
func (b *TableBuilder[T]) Key(fields ...expr.Node) *TableBuilder[T] {
	return b.step(func(c *chain) error {
		keys := make([]string, 0, len(fields))
		for _, f := range fields {
			name, err := c.analyzer.FieldName(f)
			if err != nil {
				return err
			}
			keys = append(keys, name)
		}
		b.spec.keys = keys
		return nil
	})
}

// AutoIncrement lets the database assign a single integer key.
func (b *TableBuilder[T]) AutoIncrement() *TableBuilder[T] {
	return b.step(func(c *chain) error {
		b.spec.autoIncrement = true
		return nil
	})
}

// ColumnType overrides the column type of field.
func (b *TableBuilder[T]) ColumnType(field expr.Node, typeName string) *TableBuilder[T] {
	return b.step(func(c *chain) error {
		name, err := c.analyzer.FieldName(field)
		if err != nil {
			return err
		}
		b.spec.typeNames[name] = typeName
		return nil
	})
}

// ForeignKey makes field reference the column references, a field of another
// entity.
func (b *TableBuilder[T]) ForeignKey(field, references expr.Node) *TableBuilder[T] {
	return b.step(func(c *chain) error {
		name, err := c.analyzer.FieldName(field)
		if err != nil {
			return err
		}
		ref, err := member(references)
		if err != nil {
			return err
		}
		b.spec.foreignKeys = append(b.spec.foreignKeys, foreignKey{
			member: name,
			table:  schema.TableName(ref.Declaring),
			column: ref.Name,
		})
		return nil
	})
}

// Create finishes a CREATE TABLE statement with a column per mapped field.
func (b *TableBuilder[T]) Create() *Statement {
	return b.finish(func(c *chain, def *schema.TypeDefinition) error {
		keys := b.spec.keys
		for _, k := range keys {
			if _, ok := def.Field(k); !ok {
				return fmt.Errorf("%s has no field %s", def.Name, k)
			}
		}
		if len(keys) == 0 {
			if key, ok := def.Key(); ok {
				keys = []string{key.MemberName}
			}
		}

		table := parts.NewDecorator(parts.CreateTable, def.Type)
		for _, f := range def.Fields {
			values := b.spec.column(f)
			op := parts.Column
			if len(keys) == 1 && keys[0] == f.MemberName {
				op = parts.PrimaryColumn
				values[parts.KeyAutoIncrement] = b.spec.autoIncrement
			}
			if err := table.Add(parts.NewValues(op, def.Type, values)); err != nil {
				return err
			}
		}
		if len(keys) > 1 {
			if err := table.Add(parts.NewValues(parts.PrimaryKey, def.Type, map[string]any{
				parts.KeyMembers: keys,
			})); err != nil {
				return err
			}
		}

		for _, fk := range b.spec.foreignKeys {
			if _, ok := def.Field(fk.member); !ok {
				return fmt.Errorf("%s has no field %s", def.Name, fk.member)
			}
			if err := table.Add(parts.NewValues(parts.ForeignKey, def.Type, map[string]any{
				parts.KeyMember:          fk.member,
				parts.KeyReferenceTable:  fk.table,
				parts.KeyReferenceMember: fk.column,
			})); err != nil {
				return err
			}
		}
		return c.container.Add(table)
	})
}

// Drop finishes a DROP TABLE statement.
func (b *TableBuilder[T]) Drop() *Statement {
	return b.finish(func(c *chain, def *schema.TypeDefinition) error {
		return c.container.Add(parts.NewText(parts.DropTable, def.Name))
	})
}

// AddColumn finishes an ALTER TABLE statement adding the column of field.
func (b *TableBuilder[T]) AddColumn(field expr.Node) *Statement {
	return b.finish(func(c *chain, def *schema.TypeDefinition) error {
		name, err := c.analyzer.FieldName(field)
		if err != nil {
			return err
		}
		f, ok := def.Field(name)
		if !ok {
			return fmt.Errorf("%s has no field %s", def.Name, name)
		}
		if err := c.container.Add(parts.NewText(parts.AlterTable, def.Name)); err != nil {
			return err
		}
		return c.container.AddAfter(parts.NewValues(parts.AddColumn, def.Type, b.spec.column(f)), parts.AlterTable)
	})
}

// DropColumn finishes an ALTER TABLE statement dropping the column of field.
func (b *TableBuilder[T]) DropColumn(field expr.Node) *Statement {
	return b.finish(func(c *chain, def *schema.TypeDefinition) error {
		name, err := c.analyzer.FieldName(field)
		if err != nil {
			return err
		}
		if err := c.container.Add(parts.NewText(parts.AlterTable, def.Name)); err != nil {
			return err
		}
		return c.container.Add(parts.NewText(parts.DropColumn, name))
	})
}

// column describes the column of f.
func (s *tableSpec) column(f schema.FieldDefinition) map[string]any {
	values := map[string]any{
		parts.KeyMember:     f.MemberName,
		parts.KeyMemberType: f.FieldType,
		parts.KeyNullable:   f.IsNullable,
	}
	if name, ok := s.typeNames[f.MemberName]; ok {
		values[parts.KeyTypeName] = name
	}
	return values
}
