package sqlite

import (
	"reflect"
	"time"

	"github.com/asaidimu/go-persistmap/core/compiler"
	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/asaidimu/go-persistmap/core/schema"
)

// Dialect compiles parts to SQLite SQL.
type Dialect struct {
	rules map[parts.Operation]compiler.Rule
}

var _ compiler.Dialect = (*Dialect)(nil)

// NewDialect creates the SQLite dialect. A nil options uses DefaultOptions.
func NewDialect(options *Options) *Dialect {
	if options == nil {
		options = DefaultOptions()
	}

	createTable := "CREATE TABLE "
	if options.IfNotExists {
		createTable = "CREATE TABLE IF NOT EXISTS "
	}
	dropTable := "DROP TABLE "
	if options.DropIfExists {
		dropTable = "DROP TABLE IF EXISTS "
	}

	noProcedures := compiler.Unsupported("SQLite has no stored procedures")
	return &Dialect{rules: map[parts.Operation]compiler.Rule{
		parts.CreateTable:   compiler.CreateTableRule(createTable),
		parts.PrimaryColumn: compiler.PrimaryColumnRule(" AUTOINCREMENT"),
		parts.DropTable:     dropTableRule(dropTable),

		parts.Procedure:              noProcedures,
		parts.Parameter:              noProcedures,
		parts.OutputParameter:        noProcedures,
		parts.OutParameterDeclare:    noProcedures,
		parts.OutParameterSet:        noProcedures,
		parts.OutParameterSelect:     noProcedures,
		parts.OutParameterDefinition: noProcedures,

		parts.CreateDatabase: compiler.Unsupported("SQLite databases are files; use CreateDatabase"),
	}}
}

func (d *Dialect) Name() string { return "sqlite" }

func (d *Dialect) Rule(op parts.Operation) (compiler.Rule, bool) {
	r, ok := d.rules[op]
	return r, ok
}

var (
	timeType  = reflect.TypeFor[time.Time]()
	bytesType = reflect.TypeFor[[]byte]()
)

// TypeName maps Go types to SQLite type affinities. Booleans are stored as
// INTEGER and times as DATETIME, which the driver reads back as time.Time.
func (d *Dialect) TypeName(t reflect.Type) string {
	if t == nil {
		return "TEXT"
	}
	t, _ = schema.Unwrap(t)
	switch t {
	case timeType:
		return "DATETIME"
	case bytesType:
		return "BLOB"
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "INTEGER"
	case reflect.Float32, reflect.Float64:
		return "REAL"
	}
	return "TEXT"
}

func dropTableRule(prefix string) compiler.Rule {
	return func(w *compiler.Writer, p parts.Part) error {
		s, err := w.Fragment(p)
		if err != nil {
			return err
		}
		if s == "" {
			return w.Fail(compiler.ErrMissingRequiredPart, p.Operation(), "no table")
		}
		w.Line()
		w.WriteString(prefix + s)
		return nil
	}
}
