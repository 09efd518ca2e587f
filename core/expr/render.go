package expr

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/asaidimu/go-persistmap/core/schema"
)

// Qualifier names the table (or alias) a member access is read from. An empty
// result leaves the column unqualified.
type Qualifier func(m *Member) string

// TableQualifier qualifies every member with the table of its declaring type.
func TableQualifier(m *Member) string {
	if m.Declaring == nil {
		return ""
	}
	return schema.TableName(m.Declaring)
}

// Render renders a predicate as SQL text.
func Render(n Node, q Qualifier) (string, error) {
	if q == nil {
		q = TableQualifier
	}
	var sb strings.Builder
	if err := renderPredicate(&sb, n, q); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func renderPredicate(sb *strings.Builder, n Node, q Qualifier) error {
	switch n := n.(type) {
	case *Lambda:
		return renderPredicate(sb, n.Body, q)
	case *Convert:
		return renderPredicate(sb, n.Operand, q)
	case *Member:
		// A bare boolean member tests for true.
		if t, _ := schema.Unwrap(n.MemberType); t.Kind() == reflect.Bool {
			sb.WriteString(qualify(n, q))
			sb.WriteString(" = 1")
			return nil
		}
	case *Binary:
		if n.Op.IsLogical() {
			if err := renderOperand(sb, n.Op, n.Left, q); err != nil {
				return err
			}
			if n.Op == AndAlso {
				sb.WriteString(" AND ")
			} else {
				sb.WriteString(" OR ")
			}
			return renderOperand(sb, n.Op, n.Right, q)
		}
		return renderComparison(sb, n, q)
	}
	if isLiteral(n) {
		v, err := Evaluate(n)
		if err != nil {
			return err
		}
		if b, ok := v.(bool); ok {
			if b {
				sb.WriteString("1 = 1")
			} else {
				sb.WriteString("1 = 0")
			}
			return nil
		}
	}
	return unsupported("predicate", n)
}

func renderOperand(sb *strings.Builder, parent BinaryOp, n Node, q Qualifier) error {
	if b, ok := unwrapConvert(n).(*Binary); ok && b.Op.IsLogical() && b.Op != parent {
		sb.WriteByte('(')
		if err := renderPredicate(sb, b, q); err != nil {
			return err
		}
		sb.WriteByte(')')
		return nil
	}
	return renderPredicate(sb, n, q)
}

func renderComparison(sb *strings.Builder, b *Binary, q Qualifier) error {
	left, right := b.Left, b.Right
	if isNull(left) {
		left, right = right, left
	}
	if isNull(right) && (b.Op == Equal || b.Op == NotEqual) {
		if err := renderValue(sb, left, q); err != nil {
			return err
		}
		if b.Op == Equal {
			sb.WriteString(" IS NULL")
		} else {
			sb.WriteString(" IS NOT NULL")
		}
		return nil
	}

	if err := renderValue(sb, b.Left, q); err != nil {
		return err
	}
	sb.WriteByte(' ')
	sb.WriteString(sqlOperator(b.Op))
	sb.WriteByte(' ')
	return renderValue(sb, b.Right, q)
}

func renderValue(sb *strings.Builder, n Node, q Qualifier) error {
	switch n := unwrapConvert(n).(type) {
	case *Member:
		sb.WriteString(qualify(n, q))
		return nil
	case *Binary:
		sb.WriteByte('(')
		if err := renderPredicate(sb, n, q); err != nil {
			return err
		}
		sb.WriteByte(')')
		return nil
	}
	v, err := Evaluate(n)
	if err != nil {
		return err
	}
	sb.WriteString(Literal(v))
	return nil
}

func qualify(m *Member, q Qualifier) string {
	if prefix := q(m); prefix != "" {
		return prefix + "." + m.Name
	}
	return m.Name
}

func isNull(n Node) bool {
	c, ok := unwrapConvert(n).(*Constant)
	if !ok {
		return false
	}
	if c.Value == nil {
		return true
	}
	v, err := schema.Indirect(c.Value)
	return err == nil && v == nil
}

func sqlOperator(op BinaryOp) string {
	switch op {
	case Equal:
		return "="
	case NotEqual:
		return "<>"
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterThanOrEqual:
		return ">="
	case AndAlso:
		return "AND"
	case OrElse:
		return "OR"
	}
	return op.String()
}

// Literal renders v as a SQL literal.
func Literal(v any) string {
	v, err := schema.Indirect(v)
	if err != nil || v == nil {
		return "NULL"
	}
	switch v := v.(type) {
	case string:
		return quote(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case []byte:
		return "X'" + strings.ToUpper(hex.EncodeToString(v)) + "'"
	case time.Time:
		if v.Nanosecond() != 0 {
			return quote(v.Format("2006-01-02 15:04:05.000"))
		}
		return quote(v.Format("2006-01-02 15:04:05"))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	case reflect.String:
		return quote(rv.String())
	case reflect.Bool:
		return Literal(rv.Bool())
	}
	if s, ok := v.(fmt.Stringer); ok {
		return quote(s.String())
	}
	return quote(fmt.Sprint(v))
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
