package schema_test

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/asaidimu/go-persistmap/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Products struct {
	ProductID    int `pm:"key"`
	ProductName  string
	UnitPrice    *float64
	Discontinued sql.NullBool
	Audit        string `pm:"-"`
	internal     int
}

type Region struct {
	RegionID          int
	RegionDescription string
}

type Shippers struct {
	ID          int64
	CompanyName string
}

type OrderDetails struct {
	OrderID   int `pm:"key"`
	ProductID int
}

type Page[T any] struct {
	ID    int
	Items []T
}

func TestDefine(t *testing.T) {
	def, err := schema.Define(reflect.TypeFor[*Products]())
	require.NoError(t, err)
	assert.Equal(t, "Products", def.Name)

	var names []string
	for _, f := range def.Fields {
		names = append(names, f.MemberName)
		assert.Equal(t, "Products", f.EntityName)
	}
	assert.Equal(t, []string{"ProductID", "ProductName", "UnitPrice", "Discontinued"}, names)

	key, ok := def.Key()
	require.True(t, ok)
	assert.Equal(t, "ProductID", key.MemberName)

	price, ok := def.Field("UnitPrice")
	require.True(t, ok)
	assert.True(t, price.IsNullable)
	assert.Equal(t, reflect.TypeFor[float64](), price.FieldType)

	discontinued, _ := def.Field("Discontinued")
	assert.True(t, discontinued.IsNullable)
	assert.Equal(t, reflect.TypeFor[bool](), discontinued.FieldType)

	_, ok = def.Field("Audit")
	assert.False(t, ok)

	again, err := schema.Define(reflect.TypeFor[Products]())
	require.NoError(t, err)
	assert.Same(t, def, again)
}

func TestDefine_Keys(t *testing.T) {
	tests := []struct {
		name string
		def  *schema.TypeDefinition
		want string
	}{
		{"type name and ID", schema.DefinitionOf[Region](), "RegionID"},
		{"bare ID", schema.DefinitionOf[Shippers](), "ID"},
		{"tagged", schema.DefinitionOf[OrderDetails](), "OrderID"},
		{"tagged over convention", schema.DefinitionOf[Products](), "ProductID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := tt.def.Key()
			require.True(t, ok)
			assert.Equal(t, tt.want, key.MemberName)
		})
	}
}

func TestDefine_NotAStruct(t *testing.T) {
	_, err := schema.Define(reflect.TypeFor[int]())
	assert.Error(t, err)

	_, err = schema.Define(nil)
	assert.Error(t, err)

	assert.Panics(t, func() { schema.DefinitionOf[[]Products]() })
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "Page", schema.TableName(reflect.TypeFor[Page[Products]]()))
	assert.Equal(t, "Shippers", schema.TableName(reflect.TypeFor[**Shippers]()))
}

func TestValue(t *testing.T) {
	def := schema.DefinitionOf[Products]()
	price := 18.0
	p := Products{ProductID: 1, ProductName: "Chai", UnitPrice: &price, Discontinued: sql.NullBool{Bool: true, Valid: true}}

	tests := []struct {
		field string
		want  any
	}{
		{"ProductName", "Chai"},
		{"UnitPrice", 18.0},
		{"Discontinued", true},
	}
	for _, tt := range tests {
		f, ok := def.Field(tt.field)
		require.True(t, ok)
		v, err := def.Value(&p, f)
		require.NoError(t, err)
		assert.Equal(t, tt.want, v, tt.field)
	}

	f, _ := def.Field("UnitPrice")
	v, err := def.Value(Products{}, f)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = def.Value(Shippers{}, f)
	assert.Error(t, err)

	_, err = def.Value((*Products)(nil), f)
	assert.Error(t, err)
}

func TestUnwrap(t *testing.T) {
	tests := []struct {
		in       reflect.Type
		want     reflect.Type
		nullable bool
	}{
		{reflect.TypeFor[int](), reflect.TypeFor[int](), false},
		{reflect.TypeFor[*string](), reflect.TypeFor[string](), true},
		{reflect.TypeFor[sql.NullTime](), reflect.TypeFor[time.Time](), true},
		{reflect.TypeFor[sql.Null[int16]](), reflect.TypeFor[int16](), true},
		{reflect.TypeFor[[]byte](), reflect.TypeFor[[]byte](), true},
		{reflect.TypeFor[time.Time](), reflect.TypeFor[time.Time](), false},
	}
	for _, tt := range tests {
		got, nullable := schema.Unwrap(tt.in)
		assert.Equal(t, tt.want, got, tt.in.String())
		assert.Equal(t, tt.nullable, nullable, tt.in.String())
	}
}
