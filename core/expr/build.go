package expr

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/asaidimu/go-persistmap/core/schema"
)

// ParamOf returns the parameter standing for entity type T. Its name is the
// type name with a lower-case first letter.
func ParamOf[T any]() *Param {
	t := reflect.TypeFor[T]()
	return &Param{Name: lowerFirst(schema.TableName(t)), ParamType: t}
}

// Field builds the member access selected by sel, which must return the
// address of a field of its argument:
//
//	expr.Field(func(o *Orders) any { return &o.OrderID })
//
// sel runs once against a zero value to locate the field. Field panics when
// sel does not return the address of a direct field of T.
func Field[T any](sel func(*T) any) *Member {
	var zero T
	probe := reflect.ValueOf(&zero).Elem()
	if probe.Kind() != reflect.Struct {
		panic(fmt.Sprintf("expr: %s is not a struct type", probe.Type()))
	}

	target := reflect.ValueOf(sel(&zero))
	if target.Kind() != reflect.Pointer || target.IsNil() {
		panic(fmt.Sprintf("expr: selector over %s must return a field address, got %T", probe.Type(), target.Interface()))
	}

	t := probe.Type()
	for i := 0; i < t.NumField(); i++ {
		fv := probe.Field(i)
		if fv.Addr().Pointer() == target.Pointer() && fv.Type() == target.Type().Elem() {
			return memberOf(ParamOf[T](), t.Field(i))
		}
	}
	panic(fmt.Sprintf("expr: selector over %s does not address one of its fields", t))
}

// MemberOf builds the member access of the named field of T. It panics when T
// has no such field.
func MemberOf[T any](name string) *Member {
	t := reflect.TypeFor[T]()
	sf, ok := t.FieldByName(name)
	if !ok {
		panic(fmt.Sprintf("expr: %s has no field %q", t, name))
	}
	return memberOf(ParamOf[T](), sf)
}

// On rebinds m to another parameter of the same entity type. Joins of a table
// to itself use it to tell the two sides apart.
func On(p *Param, m *Member) *Member {
	return &Member{Receiver: p, Declaring: m.Declaring, Name: m.Name, MemberType: m.MemberType}
}

func memberOf(p *Param, sf reflect.StructField) *Member {
	return &Member{Receiver: p, Declaring: p.ParamType, Name: sf.Name, MemberType: sf.Type}
}

// Static builds the access of a static member of declaring.
func Static(declaring reflect.Type, name string, memberType reflect.Type) *Member {
	return &Member{Declaring: declaring, Name: name, MemberType: memberType}
}

// Const wraps a literal value.
func Const(v any) *Constant { return &Constant{Value: v} }

// Conv wraps n in a conversion to t.
func Conv(n Node, t reflect.Type) *Convert { return &Convert{Operand: n, To: t} }

// CallOf builds the call of fn, which must be a function value, with args.
func CallOf(fn any, args ...Node) *Call {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		panic(fmt.Sprintf("expr: CallOf needs a function, got %T", fn))
	}
	if !arityMatches(v.Type(), len(args)) {
		panic(fmt.Sprintf("expr: %s takes %d arguments, got %d", funcName(v), v.Type().NumIn(), len(args)))
	}
	return &Call{Fn: v, Args: args}
}

// arityMatches reports whether a function of type ft accepts n arguments.
func arityMatches(ft reflect.Type, n int) bool {
	if ft.IsVariadic() {
		return n >= ft.NumIn()-1
	}
	return n == ft.NumIn()
}

// Func builds a lambda over params.
func Func(body Node, params ...*Param) *Lambda {
	return &Lambda{Params: params, Body: body}
}

// Thunk builds a lambda without parameters.
func Thunk(body Node) *Lambda {
	return &Lambda{Body: body}
}

func Eq(l, r Node) *Binary  { return &Binary{Op: Equal, Left: l, Right: r} }
func Ne(l, r Node) *Binary  { return &Binary{Op: NotEqual, Left: l, Right: r} }
func Lt(l, r Node) *Binary  { return &Binary{Op: LessThan, Left: l, Right: r} }
func Le(l, r Node) *Binary  { return &Binary{Op: LessThanOrEqual, Left: l, Right: r} }
func Gt(l, r Node) *Binary  { return &Binary{Op: GreaterThan, Left: l, Right: r} }
func Ge(l, r Node) *Binary  { return &Binary{Op: GreaterThanOrEqual, Left: l, Right: r} }
func And(l, r Node) *Binary { return &Binary{Op: AndAlso, Left: l, Right: r} }
func Or(l, r Node) *Binary  { return &Binary{Op: OrElse, Left: l, Right: r} }

// Is compares a member with a literal value.
func Is(m *Member, v any) *Binary { return Eq(m, Const(v)) }

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return strings.ToLower(s)
	}
	return string(unicode.ToLower(r)) + s[size:]
}
