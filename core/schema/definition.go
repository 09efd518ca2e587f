// Package schema derives table and column definitions from plain Go struct
// types. Entity types carry no mapping code: the table is named after the type,
// every exported field is a column, and the `pm` struct tag adjusts the defaults.
//
//	type Orders struct {
//		OrderID  int       `pm:"key"`
//		ShipName *string   // nullable
//		Audit    string    `pm:"-"` // not mapped
//	}
package schema

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// TagName is the struct tag consulted for column options.
const TagName = "pm"

// Document is a single materialized row keyed by column name.
type Document map[string]any

// FieldDefinition describes one mapped column of an entity type.
type FieldDefinition struct {
	MemberName   string       // Go field name, used as the column name
	EntityName   string       // table the column belongs to
	MemberType   reflect.Type // declared Go type, possibly a nullable wrapper
	FieldType    reflect.Type // MemberType with nullable wrappers removed
	IsNullable   bool
	IsPrimaryKey bool
	Index        []int
}

// TypeDefinition is the mapped shape of an entity type.
type TypeDefinition struct {
	Name   string
	Type   reflect.Type
	Fields []FieldDefinition
}

var definitions sync.Map // reflect.Type -> *TypeDefinition

// Define returns the definition of the struct type t (or of the struct a pointer
// type t points to). Results are cached per type.
func Define(t reflect.Type) (*TypeDefinition, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot define a nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := definitions.Load(t); ok {
		return cached.(*TypeDefinition), nil
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type %s is not a struct", t)
	}

	def := &TypeDefinition{Name: TableName(t), Type: t}
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		opts := parseTag(sf.Tag.Get(TagName))
		if opts.ignore {
			continue
		}
		fieldType, nullable := Unwrap(sf.Type)
		def.Fields = append(def.Fields, FieldDefinition{
			MemberName:   sf.Name,
			EntityName:   def.Name,
			MemberType:   sf.Type,
			FieldType:    fieldType,
			IsNullable:   nullable,
			IsPrimaryKey: opts.key,
			Index:        sf.Index,
		})
	}

	// Without an explicit key, ID or <Type>ID is the key by convention.
	if _, ok := def.Key(); !ok {
		for i := range def.Fields {
			name := def.Fields[i].MemberName
			if strings.EqualFold(name, "ID") || strings.EqualFold(name, def.Name+"ID") {
				def.Fields[i].IsPrimaryKey = true
				break
			}
		}
	}

	actual, _ := definitions.LoadOrStore(t, def)
	return actual.(*TypeDefinition), nil
}

// DefinitionOf is the generic form of Define. It panics if T is not a struct,
// which is a programming error in the entity declaration.
func DefinitionOf[T any]() *TypeDefinition {
	def, err := Define(reflect.TypeFor[T]())
	if err != nil {
		panic(err)
	}
	return def
}

// TableName returns the table name mapped to t: the bare type name, with any
// generic instantiation suffix removed.
func TableName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return name
}

// Field looks up a column by member name.
func (d *TypeDefinition) Field(name string) (FieldDefinition, bool) {
	for _, f := range d.Fields {
		if f.MemberName == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// Key returns the primary key column, if the type has one.
func (d *TypeDefinition) Key() (FieldDefinition, bool) {
	for _, f := range d.Fields {
		if f.IsPrimaryKey {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// Value reads the column value of f from entity, which must be of the defined
// type or a pointer to it. Nil pointers read as nil and driver.Valuer
// implementations are resolved.
func (d *TypeDefinition) Value(entity any, f FieldDefinition) (any, error) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, fmt.Errorf("cannot read %s from a nil %s", f.MemberName, d.Name)
		}
		v = v.Elem()
	}
	if v.Type() != d.Type {
		return nil, fmt.Errorf("value of type %s is not a %s", v.Type(), d.Name)
	}
	return Indirect(v.FieldByIndex(f.Index).Interface())
}

// Indirect resolves pointers and driver.Valuer implementations to the plain
// value that should be written to the database.
func Indirect(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if valuer, ok := value.(driver.Valuer); ok {
		v, err := valuer.Value()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve value of %T: %w", value, err)
		}
		return v, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		return Indirect(rv.Elem().Interface())
	}
	return value, nil
}

var nullableWrappers = map[reflect.Type]reflect.Type{
	reflect.TypeFor[sql.NullString]():  reflect.TypeFor[string](),
	reflect.TypeFor[sql.NullInt64]():   reflect.TypeFor[int64](),
	reflect.TypeFor[sql.NullInt32]():   reflect.TypeFor[int32](),
	reflect.TypeFor[sql.NullInt16]():   reflect.TypeFor[int16](),
	reflect.TypeFor[sql.NullByte]():    reflect.TypeFor[byte](),
	reflect.TypeFor[sql.NullFloat64](): reflect.TypeFor[float64](),
	reflect.TypeFor[sql.NullBool]():    reflect.TypeFor[bool](),
	reflect.TypeFor[sql.NullTime]():    reflect.TypeFor[time.Time](),
}

// Unwrap strips nullable wrappers from t and reports whether the column may
// hold NULL. Pointers, sql.Null* types, sql.Null[T], slices, maps and
// interfaces are nullable.
func Unwrap(t reflect.Type) (reflect.Type, bool) {
	if inner, ok := nullableWrappers[t]; ok {
		return inner, true
	}
	switch t.Kind() {
	case reflect.Pointer:
		inner, _ := Unwrap(t.Elem())
		return inner, true
	case reflect.Slice, reflect.Map, reflect.Interface:
		return t, true
	case reflect.Struct:
		// sql.Null[T]
		if t.PkgPath() == "database/sql" && strings.HasPrefix(t.Name(), "Null[") {
			if v, ok := t.FieldByName("V"); ok {
				return v.Type, true
			}
		}
	}
	return t, false
}

type tagOptions struct {
	ignore bool
	key    bool
}

func parseTag(tag string) tagOptions {
	var opts tagOptions
	for _, part := range strings.Split(tag, ",") {
		switch strings.TrimSpace(part) {
		case "-":
			opts.ignore = true
		case "key":
			opts.key = true
		}
	}
	return opts
}
