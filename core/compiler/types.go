package compiler

import (
	"reflect"
	"time"

	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/asaidimu/go-persistmap/core/schema"
)

var (
	timeType  = reflect.TypeFor[time.Time]()
	bytesType = reflect.TypeFor[[]byte]()
)

type ansi struct{}

// ANSI is the standard SQL dialect: every operation uses its base rule.
var ANSI Dialect = ansi{}

func (ansi) Name() string                      { return "ansi" }
func (ansi) Rule(parts.Operation) (Rule, bool) { return nil, false }
func (ansi) TypeName(t reflect.Type) string    { return StandardTypeName(t) }

// StandardTypeName maps a Go type to a standard SQL column type.
func StandardTypeName(t reflect.Type) string {
	if t == nil {
		return "VARCHAR(255)"
	}
	t, _ = schema.Unwrap(t)
	switch t {
	case timeType:
		return "TIMESTAMP"
	case bytesType:
		return "BLOB"
	}
	switch t.Kind() {
	case reflect.Bool:
		return "BOOLEAN"
	case reflect.Int8, reflect.Int16, reflect.Uint8:
		return "SMALLINT"
	case reflect.Int32, reflect.Uint16:
		return "INTEGER"
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return "BIGINT"
	case reflect.Float32:
		return "REAL"
	case reflect.Float64:
		return "DOUBLE PRECISION"
	}
	return "VARCHAR(255)"
}
