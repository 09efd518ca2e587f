// Package sqlserver provides the SQL Server dialect: stored procedures run
// through EXEC with OUTPUT arguments, identity keys, T-SQL column types and a
// CREATE DATABASE script that places the files next to the master database.
package sqlserver

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/asaidimu/go-persistmap/core/compiler"
	"github.com/asaidimu/go-persistmap/core/expr"
	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/asaidimu/go-persistmap/core/persistence"
	"github.com/asaidimu/go-persistmap/core/schema"
	"github.com/google/uuid"
)

// Name is the dialect name.
const Name = "sqlserver"

// Dialect compiles parts to T-SQL.
type Dialect struct {
	rules map[parts.Operation]compiler.Rule
}

var _ compiler.Dialect = (*Dialect)(nil)

// NewDialect creates the SQL Server dialect.
func NewDialect() *Dialect {
	return &Dialect{rules: map[parts.Operation]compiler.Rule{
		parts.PrimaryColumn:   compiler.PrimaryColumnRule(" IDENTITY(1,1)"),
		parts.Procedure:       execRule,
		parts.Parameter:       parameterRule,
		parts.OutputParameter: outputRule,
		parts.CreateDatabase:  createDatabaseRule,
	}}
}

// Compiler returns a compiler for the dialect.
func Compiler() *compiler.Compiler {
	return compiler.New(NewDialect(), nil)
}

func (d *Dialect) Name() string { return Name }

func (d *Dialect) Rule(op parts.Operation) (compiler.Rule, bool) {
	r, ok := d.rules[op]
	return r, ok
}

var (
	timeType  = reflect.TypeFor[time.Time]()
	bytesType = reflect.TypeFor[[]byte]()
	uuidType  = reflect.TypeFor[uuid.UUID]()
)

// TypeName maps Go types to T-SQL column types.
func (d *Dialect) TypeName(t reflect.Type) string {
	if t == nil {
		return "NVARCHAR(255)"
	}
	t, _ = schema.Unwrap(t)
	switch t {
	case timeType:
		return "DATETIME2"
	case bytesType:
		return "VARBINARY(MAX)"
	case uuidType:
		return "UNIQUEIDENTIFIER"
	}
	switch t.Kind() {
	case reflect.Bool:
		return "BIT"
	case reflect.Uint8:
		return "TINYINT"
	case reflect.Int8, reflect.Int16:
		return "SMALLINT"
	case reflect.Int32, reflect.Uint16:
		return "INT"
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return "BIGINT"
	case reflect.Float32:
		return "REAL"
	case reflect.Float64:
		return "FLOAT"
	}
	return "NVARCHAR(255)"
}

func isArgument(p parts.Part) bool {
	return p.Operation() == parts.Parameter || p.Operation() == parts.OutputParameter
}

func execRule(w *compiler.Writer, p parts.Part) error {
	d, ok := p.(*parts.DecoratorPart)
	if !ok {
		return w.Fail(compiler.ErrUnsupportedOperation, p.Operation(), fmt.Sprintf("unexpected %T", p))
	}
	if d.Name == "" {
		return w.Fail(compiler.ErrMissingRequiredPart, p.Operation(), "no procedure name")
	}
	w.Line()
	w.WriteString("EXEC " + d.Name)
	if len(d.Children()) > 0 {
		w.WriteString(" ")
	}
	return w.CompileChildren(d)
}

// parameterRule passes arguments by name, "@name = value".
func parameterRule(w *compiler.Writer, p parts.Part) error {
	a, ok := p.(*parts.AssignPart)
	if !ok {
		return w.Fail(compiler.ErrUnsupportedOperation, p.Operation(), fmt.Sprintf("unexpected %T", p))
	}
	if a.Field != "" {
		w.WriteString(compiler.ParameterName(a.Field) + " = ")
	}
	w.WriteString(expr.Literal(a.Value))
	w.Comma(p, isArgument)
	return nil
}

// outputRule binds the output argument to the variable of the same name.
func outputRule(w *compiler.Writer, p parts.Part) error {
	v, ok := p.(*parts.ValueCollectionPart)
	if !ok {
		return w.Fail(compiler.ErrUnsupportedOperation, p.Operation(), fmt.Sprintf("unexpected %T", p))
	}
	name := compiler.ParameterName(v.Text(parts.KeyName))
	w.Printf("%s = %s OUTPUT", name, name)
	w.Comma(p, isArgument)
	return nil
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const deviceDirectory = `DECLARE @device_directory NVARCHAR(520)
SELECT @device_directory = SUBSTRING(filename, 1, CHARINDEX(N'master.mdf', LOWER(filename)) - 1)
FROM master.dbo.sysaltfiles WHERE dbid = 1 AND fileid = 1
`

// createDatabaseRule creates the database with its data and log files in the
// directory of the master database.
func createDatabaseRule(w *compiler.Writer, p parts.Part) error {
	v, ok := p.(*parts.ValueCollectionPart)
	if !ok {
		return w.Fail(compiler.ErrUnsupportedOperation, p.Operation(), fmt.Sprintf("unexpected %T", p))
	}
	name := v.Text(parts.KeyName)
	if name == "" {
		return w.Fail(compiler.ErrMissingRequiredPart, p.Operation(), "no database name")
	}
	// The name is spliced into dynamic SQL.
	if !identifier.MatchString(name) {
		return w.Fail(parts.ErrInvalidPart, p.Operation(), fmt.Sprintf("invalid database name %q", name))
	}

	w.Line()
	w.WriteString(deviceDirectory)
	w.WriteString(strings.NewReplacer("{0}", name).Replace(
		"EXECUTE (N'CREATE DATABASE {0} ON PRIMARY (NAME = N''{0}'', FILENAME = N''' + @device_directory + N'{0}.mdf'') " +
			"LOG ON (NAME = N''{0}_log'', FILENAME = N''' + @device_directory + N'{0}_log.ldf'')')"))
	return nil
}

// Use returns a command switching the connection to database name.
func Use(name string) (*persistence.QueryCommand, error) {
	if !identifier.MatchString(name) {
		return nil, fmt.Errorf("%w: invalid database name %q", parts.ErrInvalidPart, name)
	}
	return persistence.NewQuery("USE " + name), nil
}
