package compiler

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-persistmap/core/expr"
	"github.com/asaidimu/go-persistmap/core/parts"
)

// baseRules is the standard SQL rendering of every operation. The array is
// indexed by operation, so an operation without a rule stays nil and is
// caught by the rule table test.
func baseRules() [parts.NumOperations]Rule {
	return [parts.NumOperations]Rule{
		parts.None: rawRule,

		parts.From:      fromRule,
		parts.Join:      joinRule,
		parts.LeftJoin:  joinRule,
		parts.RightJoin: joinRule,
		parts.FullJoin:  joinRule,
		parts.JoinOn:    conditionRule(" ON (", ")"),
		parts.AndOn:     conditionRule(" AND (", ")"),
		parts.OrOn:      conditionRule(" OR (", ")"),

		parts.Where:       clauseRule("WHERE ", ""),
		parts.WhereAnd:    conditionRule(" AND ", ""),
		parts.WhereOr:     conditionRule(" OR ", ""),
		parts.OrderBy:     clauseRule("ORDER BY ", " ASC"),
		parts.OrderByDesc: clauseRule("ORDER BY ", " DESC"),
		parts.ThenBy:      conditionRule(", ", " ASC"),
		parts.ThenByDesc:  conditionRule(", ", " DESC"),
		parts.GroupBy:     groupByRule,

		parts.Select:    selectRule,
		parts.SelectMap: fieldRule,
		parts.Include:   fieldRule,
		parts.Max:       aggregateRule("MAX"),
		parts.Min:       aggregateRule("MIN"),
		parts.Count:     aggregateRule("COUNT"),

		parts.Update: clauseRule("UPDATE ", ""),
		parts.Set:    setRule,
		parts.Insert: insertRule,
		parts.Delete: clauseRule("DELETE FROM ", ""),

		parts.CreateTable:   CreateTableRule("CREATE TABLE "),
		parts.Column:        ColumnRule,
		parts.PrimaryColumn: PrimaryColumnRule(" GENERATED BY DEFAULT AS IDENTITY"),
		parts.ForeignKey:    foreignKeyRule,
		parts.PrimaryKey:    primaryKeyRule,
		parts.AlterTable:    clauseRule("ALTER TABLE ", ""),
		parts.DropTable:     clauseRule("DROP TABLE ", ""),
		parts.AddColumn:     addColumnRule,
		parts.DropColumn:    dropColumnRule,

		parts.Procedure:              callRule,
		parts.Parameter:              parameterRule,
		parts.OutputParameter:        OutputParameterRule(""),
		parts.OutParameterDeclare:    declareRule,
		parts.OutParameterSet:        setParameterRule,
		parts.OutParameterSelect:     selectParameterRule,
		parts.OutParameterDefinition: outputBlockRule,

		parts.CreateDatabase: createDatabaseRule,
	}
}

// as asserts the variant a rule expects.
func as[T parts.Part](w *Writer, p parts.Part) (T, error) {
	v, ok := p.(T)
	if !ok {
		return v, w.fail(ErrUnsupportedOperation, p.Operation(), fmt.Sprintf("unexpected %T", p))
	}
	return v, nil
}

func rawRule(w *Writer, p parts.Part) error {
	s, err := w.Fragment(p)
	if err != nil {
		return err
	}
	w.WriteString(s)
	return nil
}

// clauseRule starts a line with prefix, then the part text and suffix.
func clauseRule(prefix, suffix string) Rule {
	return func(w *Writer, p parts.Part) error {
		s, err := w.Fragment(p)
		if err != nil {
			return err
		}
		if s == "" {
			return w.fail(ErrMissingRequiredPart, p.Operation(), "empty operand")
		}
		w.Line()
		w.WriteString(prefix)
		w.WriteString(s)
		w.WriteString(suffix)
		return nil
	}
}

// conditionRule continues the current line.
func conditionRule(prefix, suffix string) Rule {
	return func(w *Writer, p parts.Part) error {
		s, err := w.Fragment(p)
		if err != nil {
			return err
		}
		if s == "" {
			return w.fail(ErrMissingRequiredPart, p.Operation(), "empty operand")
		}
		w.WriteString(prefix)
		w.WriteString(s)
		w.WriteString(suffix)
		return nil
	}
}

func fromRule(w *Writer, p parts.Part) error {
	e, err := as[*parts.EntityPart](w, p)
	if err != nil {
		return err
	}
	w.Line()
	w.WriteString("FROM ")
	w.WriteString(e.Fragment())
	return w.CompileChildren(e)
}

// JoinKeyword is the keyword of a join operation.
func JoinKeyword(op parts.Operation) string {
	switch op {
	case parts.LeftJoin:
		return "LEFT JOIN"
	case parts.RightJoin:
		return "RIGHT JOIN"
	case parts.FullJoin:
		return "FULL JOIN"
	}
	return "JOIN"
}

func joinRule(w *Writer, p parts.Part) error {
	e, err := as[*parts.EntityPart](w, p)
	if err != nil {
		return err
	}
	hasOn := false
	for _, c := range e.Children() {
		if c.Operation() == parts.JoinOn {
			hasOn = true
			break
		}
	}
	if !hasOn {
		return w.fail(ErrMissingRequiredPart, p.Operation(), e.Entity+" has no join condition")
	}
	w.Line()
	w.Printf(" %s %s", JoinKeyword(p.Operation()), e.Fragment())
	return w.CompileChildren(e)
}

func groupByRule(w *Writer, p parts.Part) error {
	s, err := w.Fragment(p)
	if err != nil {
		return err
	}
	if prev := w.Previous(); prev != nil && prev.Operation() == parts.GroupBy {
		w.WriteString(", ")
	} else {
		w.Line()
		w.WriteString("GROUP BY ")
	}
	w.WriteString(s)
	return nil
}

func selectRule(w *Writer, p parts.Part) error {
	d, err := as[*parts.DecoratorPart](w, p)
	if err != nil {
		return err
	}
	w.Line()
	w.WriteString("SELECT ")
	if d.LastActive() == nil {
		w.WriteString("*")
		return nil
	}
	return w.CompileChildren(d)
}

func fieldRule(w *Writer, p parts.Part) error {
	if parts.IsIgnored(p) {
		return nil
	}
	s, err := w.Fragment(p)
	if err != nil {
		return err
	}
	w.WriteString(s)
	w.Comma(p, nil)
	return nil
}

func aggregateRule(function string) Rule {
	return func(w *Writer, p parts.Part) error {
		switch f := p.(type) {
		case *parts.FieldPart:
			if f.Ignored {
				return nil
			}
			column := f.Column()
			if f.Field == "" || f.Field == "*" {
				column = "*"
			}
			w.Printf("%s(%s)", function, column)
			if f.FieldAlias != "" {
				w.WriteString(" AS " + f.FieldAlias)
			}
		default:
			s, err := w.Fragment(p)
			if err != nil {
				return err
			}
			w.Printf("%s(%s)", function, s)
		}
		w.Comma(p, nil)
		return nil
	}
}

func setRule(w *Writer, p parts.Part) error {
	switch v := p.(type) {
	case *parts.DecoratorPart:
		if v.LastActive() == nil {
			return w.fail(ErrMissingRequiredPart, p.Operation(), "no assignments")
		}
		w.Line()
		w.WriteString("SET ")
		return w.CompileChildren(v)
	case *parts.AssignPart:
		w.WriteString(v.Fragment())
		w.Comma(p, nil)
		return nil
	}
	return w.fail(ErrUnsupportedOperation, p.Operation(), fmt.Sprintf("unexpected %T", p))
}

func insertRule(w *Writer, p parts.Part) error {
	d, err := as[*parts.DecoratorPart](w, p)
	if err != nil {
		return err
	}
	var columns, values []string
	for _, c := range d.Children() {
		a, ok := c.(*parts.AssignPart)
		if !ok {
			return w.fail(ErrUnsupportedOperation, p.Operation(), fmt.Sprintf("unexpected %T in values", c))
		}
		columns = append(columns, a.Field)
		values = append(values, expr.Literal(a.Value))
	}
	if len(columns) == 0 {
		return w.fail(ErrMissingRequiredPart, p.Operation(), "no values")
	}
	w.Line()
	w.Printf("INSERT INTO %s (%s) VALUES (%s)", d.Entity, strings.Join(columns, ", "), strings.Join(values, ", "))
	return nil
}

// CreateTableRule renders a table definition introduced by prefix.
func CreateTableRule(prefix string) Rule {
	return func(w *Writer, p parts.Part) error {
		d, err := as[*parts.DecoratorPart](w, p)
		if err != nil {
			return err
		}
		if len(d.Children()) == 0 {
			return w.fail(ErrMissingRequiredPart, p.Operation(), d.Entity+" has no columns")
		}
		w.Line()
		w.WriteString(prefix)
		w.WriteString(d.Entity)
		w.WriteString(" (")
		if err := w.CompileChildren(d); err != nil {
			return err
		}
		w.WriteString(")")
		return nil
	}
}

// ColumnType is the declared type of a column definition: an explicit type
// name when one is set, the dialect mapping of its Go type otherwise.
func ColumnType(w *Writer, v *parts.ValueCollectionPart) string {
	if name := v.Text(parts.KeyTypeName); name != "" {
		return name
	}
	return w.TypeName(v.Type(parts.KeyMemberType))
}

// ColumnDefinition renders "<name> <type>[ NOT NULL]".
func ColumnDefinition(w *Writer, v *parts.ValueCollectionPart) string {
	def := v.Text(parts.KeyMember) + " " + ColumnType(w, v)
	if !v.Bool(parts.KeyNullable) {
		def += " NOT NULL"
	}
	return def
}

// ColumnRule renders a column of a table definition.
func ColumnRule(w *Writer, p parts.Part) error {
	v, err := as[*parts.ValueCollectionPart](w, p)
	if err != nil {
		return err
	}
	w.WriteString(ColumnDefinition(w, v))
	w.Comma(p, nil)
	return nil
}

// PrimaryColumnRule renders a primary key column. autoIncrement is appended
// for auto-incremented keys.
func PrimaryColumnRule(autoIncrement string) Rule {
	return func(w *Writer, p parts.Part) error {
		v, err := as[*parts.ValueCollectionPart](w, p)
		if err != nil {
			return err
		}
		w.Printf("%s %s PRIMARY KEY", v.Text(parts.KeyMember), ColumnType(w, v))
		if v.Bool(parts.KeyAutoIncrement) {
			w.WriteString(autoIncrement)
		}
		w.Comma(p, nil)
		return nil
	}
}

func foreignKeyRule(w *Writer, p parts.Part) error {
	v, err := as[*parts.ValueCollectionPart](w, p)
	if err != nil {
		return err
	}
	table, member := v.Text(parts.KeyReferenceTable), v.Text(parts.KeyReferenceMember)
	if table == "" || member == "" {
		return w.fail(ErrMissingRequiredPart, p.Operation(), "no referenced column")
	}
	w.Printf("FOREIGN KEY (%s) REFERENCES %s(%s)", v.Text(parts.KeyMember), table, member)
	w.Comma(p, nil)
	return nil
}

func primaryKeyRule(w *Writer, p parts.Part) error {
	v, err := as[*parts.ValueCollectionPart](w, p)
	if err != nil {
		return err
	}
	members := v.Strings(parts.KeyMembers)
	if len(members) == 0 {
		return w.fail(ErrMissingRequiredPart, p.Operation(), "no key columns")
	}
	w.Printf("PRIMARY KEY (%s)", strings.Join(members, ", "))
	w.Comma(p, nil)
	return nil
}

func addColumnRule(w *Writer, p parts.Part) error {
	v, err := as[*parts.ValueCollectionPart](w, p)
	if err != nil {
		return err
	}
	w.WriteString(" ADD ")
	w.WriteString(ColumnDefinition(w, v))
	return nil
}

func dropColumnRule(w *Writer, p parts.Part) error {
	s, err := w.Fragment(p)
	if err != nil {
		return err
	}
	w.WriteString(" DROP COLUMN ")
	w.WriteString(s)
	return nil
}

func isArgument(p parts.Part) bool {
	return p.Operation() == parts.Parameter || p.Operation() == parts.OutputParameter
}

func callRule(w *Writer, p parts.Part) error {
	d, err := as[*parts.DecoratorPart](w, p)
	if err != nil {
		return err
	}
	w.Line()
	w.Printf("CALL %s(", d.Name)
	if err := w.CompileChildren(d); err != nil {
		return err
	}
	w.WriteString(")")
	return nil
}

func parameterRule(w *Writer, p parts.Part) error {
	a, err := as[*parts.AssignPart](w, p)
	if err != nil {
		return err
	}
	w.WriteString(expr.Literal(a.Value))
	w.Comma(p, isArgument)
	return nil
}

// ParameterName prefixes name with @ unless it already is.
func ParameterName(name string) string {
	if strings.HasPrefix(name, "@") {
		return name
	}
	return "@" + name
}

// OutputParameterRule renders an output argument followed by keyword.
func OutputParameterRule(keyword string) Rule {
	return func(w *Writer, p parts.Part) error {
		v, err := as[*parts.ValueCollectionPart](w, p)
		if err != nil {
			return err
		}
		w.WriteString(ParameterName(v.Text(parts.KeyName)))
		w.WriteString(keyword)
		w.Comma(p, isArgument)
		return nil
	}
}

func declareRule(w *Writer, p parts.Part) error {
	v, err := as[*parts.ValueCollectionPart](w, p)
	if err != nil {
		return err
	}
	w.Line()
	w.Printf("DECLARE %s %s", ParameterName(v.Text(parts.KeyName)), ColumnType(w, v))
	return nil
}

func setParameterRule(w *Writer, p parts.Part) error {
	v, err := as[*parts.ValueCollectionPart](w, p)
	if err != nil {
		return err
	}
	value, _ := v.Get(parts.KeyValue)
	w.Line()
	w.Printf("SET %s = %s", ParameterName(v.Text(parts.KeyName)), expr.Literal(value))
	return nil
}

func selectParameterRule(w *Writer, p parts.Part) error {
	v, err := as[*parts.ValueCollectionPart](w, p)
	if err != nil {
		return err
	}
	name := strings.TrimPrefix(v.Text(parts.KeyName), "@")
	w.Printf("@%s AS %s", name, name)
	w.Comma(p, func(c parts.Part) bool { return c.Operation() == parts.OutParameterSelect })
	return nil
}

func outputBlockRule(w *Writer, p parts.Part) error {
	d, err := as[*parts.DecoratorPart](w, p)
	if err != nil {
		return err
	}
	if d.LastActive() == nil {
		return nil
	}
	w.Line()
	w.WriteString("SELECT ")
	return w.CompileChildren(d)
}

func createDatabaseRule(w *Writer, p parts.Part) error {
	v, err := as[*parts.ValueCollectionPart](w, p)
	if err != nil {
		return err
	}
	name := v.Text(parts.KeyName)
	if name == "" {
		return w.fail(ErrMissingRequiredPart, p.Operation(), "no database name")
	}
	w.Line()
	w.WriteString("CREATE DATABASE " + name)
	return nil
}
