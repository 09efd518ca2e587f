// Package parts is the intermediate representation of a statement: an ordered
// container of tagged parts that a dialect compiler turns into SQL text.
package parts

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/asaidimu/go-persistmap/core/expr"
	"github.com/asaidimu/go-persistmap/core/schema"
)

var (
	// ErrSealed is returned when adding to a sealed decorator.
	ErrSealed = errors.New("decorator is sealed")
	// ErrOwned is returned when adding a part that already belongs to another container.
	ErrOwned = errors.New("part belongs to another container")
	// ErrInvalidPart is returned when a part does not fit the operation it carries.
	ErrInvalidPart = errors.New("invalid part")
)

// Handle identifies a part within the container that owns it. The zero
// Handle means the part is not owned yet.
type Handle int

// Part is one node of the statement representation. The set of part types is
// closed: EntityPart, FieldPart, DelegatePart, AssignPart, ValueCollectionPart
// and DecoratorPart.
type Part interface {
	ID() string
	Handle() Handle
	Operation() Operation
	EntityType() reflect.Type
	Fragment() string
	base() *partBase
}

// Items is a part that holds an ordered sequence of child parts.
type Items interface {
	Part
	Children() []Part
	Add(p Part) error
	AddBefore(p Part, op Operation) error
	AddAfter(p Part, op Operation) error
	Remove(p Part) bool
	seq() *sequence
}

// Converter transforms a materialized column value.
type Converter func(value any) (any, error)

type partBase struct {
	id     string
	op     Operation
	entity reflect.Type
	handle Handle
	arena  *arena
}

func (p *partBase) ID() string               { return p.id }
func (p *partBase) Handle() Handle           { return p.handle }
func (p *partBase) Operation() Operation     { return p.op }
func (p *partBase) EntityType() reflect.Type { return p.entity }
func (p *partBase) base() *partBase          { return p }

// Same reports whether a and b are the same owned part.
func Same(a, b Part) bool {
	if a == nil || b == nil {
		return false
	}
	ab, bb := a.base(), b.base()
	if ab.arena == nil || bb.arena == nil {
		return ab == bb
	}
	return ab.arena == bb.arena && ab.handle == bb.handle
}

// EntityPart binds a table, and optionally a local alias, to a query.
type EntityPart struct {
	partBase
	sequence
	Entity string
	Alias  string
}

// NewEntity creates the entity part of a From or Join operation over t.
func NewEntity(op Operation, t reflect.Type, alias string) (*EntityPart, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: %s needs an entity type", ErrInvalidPart, op)
	}
	e, err := NewTable(op, schema.TableName(t), alias)
	if err != nil {
		return nil, err
	}
	e.entity = t
	return e, nil
}

// NewTable creates the entity part of a From or Join operation over the
// table name, for statements that are not built from Go types.
func NewTable(op Operation, name, alias string) (*EntityPart, error) {
	if !op.IsEntity() {
		return nil, fmt.Errorf("%w: %s cannot introduce an entity", ErrInvalidPart, op)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: %s needs a table", ErrInvalidPart, op)
	}
	e := &EntityPart{partBase: partBase{id: name, op: op}, Entity: name, Alias: alias}
	e.sequence.owner = &e.partBase
	if alias != "" {
		e.id = alias
	}
	return e, nil
}

// Qualifier is the name columns of this entity are qualified with.
func (e *EntityPart) Qualifier() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Entity
}

func (e *EntityPart) Fragment() string {
	if e.Alias != "" {
		return e.Entity + " " + e.Alias
	}
	return e.Entity
}

func (e *EntityPart) Add(p Part) error { return e.sequence.add(p) }

// FieldPart names a column, optionally aliased and owned by an entity.
type FieldPart struct {
	partBase
	Field       string
	FieldAlias  string
	Entity      string
	EntityAlias string
	Converter   Converter
	Ignored     bool
}

// NewField creates a field part for column field of entity type t. t may be
// nil for columns that belong to no entity.
func NewField(op Operation, t reflect.Type, field string) *FieldPart {
	f := &FieldPart{partBase: partBase{op: op, entity: t}, Field: field}
	if t != nil {
		f.Entity = schema.TableName(t)
	}
	return f
}

// ID is the alias of the field when it has one, its column name otherwise.
func (f *FieldPart) ID() string {
	if f.FieldAlias != "" {
		return f.FieldAlias
	}
	return f.Field
}

func (f *FieldPart) Fragment() string {
	if f.Ignored {
		return ""
	}
	if f.FieldAlias != "" && f.FieldAlias != f.Field {
		return f.Column() + " AS " + f.FieldAlias
	}
	return f.Column()
}

// Column is the qualified column without its alias.
func (f *FieldPart) Column() string {
	if q := f.qualifier(); q != "" {
		return q + "." + f.Field
	}
	return f.Field
}

func (f *FieldPart) qualifier() string {
	if f.EntityAlias != "" {
		return f.EntityAlias
	}
	return f.Entity
}

// DelegatePart produces its text from a function evaluated at compile time,
// so that aliases assigned after its creation are honored.
type DelegatePart struct {
	partBase
	fn func() (string, error)
}

// NewDelegate creates a delegate part. A nil fn marks a part whose required
// operand is missing.
func NewDelegate(op Operation, t reflect.Type, fn func() (string, error)) *DelegatePart {
	return &DelegatePart{partBase: partBase{op: op, entity: t}, fn: fn}
}

// NewText creates a delegate part with fixed text.
func NewText(op Operation, text string) *DelegatePart {
	return NewDelegate(op, nil, func() (string, error) { return text, nil })
}

// HasOperand reports whether the part can produce text.
func (d *DelegatePart) HasOperand() bool { return d.fn != nil }

// Render evaluates the delegate.
func (d *DelegatePart) Render() (string, error) {
	if d.fn == nil {
		return "", fmt.Errorf("%w: %s has no operand", ErrInvalidPart, d.op)
	}
	return d.fn()
}

func (d *DelegatePart) Fragment() string {
	s, err := d.Render()
	if err != nil {
		return ""
	}
	return s
}

// AssignPart binds a column of an entity to a value.
type AssignPart struct {
	partBase
	Field string
	Value any
}

// NewAssign creates an assignment of value to column field of t.
func NewAssign(op Operation, t reflect.Type, field string, value any) *AssignPart {
	return &AssignPart{partBase: partBase{id: field, op: op, entity: t}, Field: field, Value: value}
}

func (a *AssignPart) Fragment() string {
	return a.Field + " = " + expr.Literal(a.Value)
}

// Value keys understood by ValueCollectionPart.
const (
	KeyMember          = "member"
	KeyMemberType      = "memberType"
	KeyTypeName        = "typeName"
	KeyNullable        = "nullable"
	KeyAutoIncrement   = "autoIncrement"
	KeyReferenceTable  = "referenceTable"
	KeyReferenceMember = "referenceMember"
	KeyMembers         = "members"
	KeyValue           = "value"
	KeyName            = "name"
)

// ValueCollectionPart carries named metadata, such as the definition of a
// column or of an output parameter.
type ValueCollectionPart struct {
	partBase
	values map[string]any
}

// NewValues creates a value collection. Its id is the KeyMember value.
func NewValues(op Operation, t reflect.Type, values map[string]any) *ValueCollectionPart {
	v := &ValueCollectionPart{partBase: partBase{op: op, entity: t}, values: make(map[string]any, len(values))}
	for k, val := range values {
		v.values[k] = val
	}
	v.id = v.Text(KeyMember)
	return v
}

// Get returns the raw value stored under key.
func (v *ValueCollectionPart) Get(key string) (any, bool) {
	val, ok := v.values[key]
	return val, ok
}

func (v *ValueCollectionPart) Text(key string) string {
	s, _ := v.values[key].(string)
	return s
}

func (v *ValueCollectionPart) Bool(key string) bool {
	b, _ := v.values[key].(bool)
	return b
}

func (v *ValueCollectionPart) Type(key string) reflect.Type {
	t, _ := v.values[key].(reflect.Type)
	return t
}

func (v *ValueCollectionPart) Strings(key string) []string {
	s, _ := v.values[key].([]string)
	return s
}

func (v *ValueCollectionPart) Fragment() string {
	if members := v.Strings(KeyMembers); len(members) > 0 {
		return strings.Join(members, ", ")
	}
	return v.Text(KeyMember)
}

// DecoratorPart groups an ordered sub-sequence of parts, such as a select
// list. A sealed decorator rejects further additions until it is unsealed.
type DecoratorPart struct {
	partBase
	sequence
	Entity string
	Name   string
	sealed bool
}

// NewDecorator creates an empty decorator. t may be nil.
func NewDecorator(op Operation, t reflect.Type) *DecoratorPart {
	d := &DecoratorPart{partBase: partBase{op: op, entity: t}}
	if t != nil {
		d.Entity = schema.TableName(t)
		d.id = d.Entity
	}
	d.sequence.owner = &d.partBase
	return d
}

// NewNamedDecorator creates an empty decorator identified by name, such as a
// stored procedure.
func NewNamedDecorator(op Operation, name string) *DecoratorPart {
	d := NewDecorator(op, nil)
	d.Name = name
	d.id = name
	return d
}

func (d *DecoratorPart) Seal()          { d.sealed = true }
func (d *DecoratorPart) Unseal()        { d.sealed = false }
func (d *DecoratorPart) IsSealed() bool { return d.sealed }

// Add appends p. An ignored field hides the fields with the same id, both
// those added before it and those added after it; a later field with that id
// is dropped.
func (d *DecoratorPart) Add(p Part) error {
	if d.sealed {
		return ErrSealed
	}
	if f, ok := p.(*FieldPart); ok {
		for _, c := range d.items {
			prev, ok := c.(*FieldPart)
			if !ok || prev.ID() != f.ID() {
				continue
			}
			if f.Ignored {
				prev.Ignored = true
			} else if prev.Ignored {
				return nil
			}
		}
	}
	return d.sequence.add(p)
}

func (d *DecoratorPart) AddBefore(p Part, op Operation) error {
	if d.sealed {
		return ErrSealed
	}
	return d.sequence.AddBefore(p, op)
}

func (d *DecoratorPart) AddAfter(p Part, op Operation) error {
	if d.sealed {
		return ErrSealed
	}
	return d.sequence.AddAfter(p, op)
}

// LastActive returns the last child that is not an ignored field.
func (d *DecoratorPart) LastActive() Part {
	return lastActive(d.items, nil)
}

func (d *DecoratorPart) Fragment() string {
	var fragments []string
	for _, c := range d.items {
		if s := c.Fragment(); s != "" {
			fragments = append(fragments, s)
		}
	}
	return strings.Join(fragments, ", ")
}

// IsIgnored reports whether p is a field excluded from the output.
func IsIgnored(p Part) bool {
	f, ok := p.(*FieldPart)
	return ok && f.Ignored
}

// LastActive returns the last part of items accepted by match that is not an
// ignored field. A nil match accepts every part.
func LastActive(items []Part, match func(Part) bool) Part {
	return lastActive(items, match)
}

func lastActive(items []Part, match func(Part) bool) Part {
	for i := len(items) - 1; i >= 0; i-- {
		if IsIgnored(items[i]) {
			continue
		}
		if match == nil || match(items[i]) {
			return items[i]
		}
	}
	return nil
}

var (
	_ Items = (*EntityPart)(nil)
	_ Items = (*DecoratorPart)(nil)
	_ Part  = (*FieldPart)(nil)
	_ Part  = (*DelegatePart)(nil)
	_ Part  = (*AssignPart)(nil)
	_ Part  = (*ValueCollectionPart)(nil)
)
