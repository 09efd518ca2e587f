// Package expr is the closed expression tree used to describe predicates and
// member selectors over entity types, together with the Analyzer that recovers
// field names, field types and literal values from it without ever evaluating
// an expression against a live entity.
package expr

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Node is one node of an expression tree. The set of node types is closed.
type Node interface {
	// Type is the static Go type the node evaluates to. It is nil for a nil constant.
	Type() reflect.Type
	node()
}

// BinaryOp is the operator of a Binary node.
type BinaryOp int

const (
	Equal BinaryOp = iota
	NotEqual
	LessThan
	LessThanOrEqual
	GreaterThan
	GreaterThanOrEqual
	AndAlso
	OrElse
)

func (op BinaryOp) String() string {
	switch op {
	case Equal:
		return "=="
	case NotEqual:
		return "!="
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterThanOrEqual:
		return ">="
	case AndAlso:
		return "&&"
	case OrElse:
		return "||"
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// IsLogical reports whether op combines two predicates.
func (op BinaryOp) IsLogical() bool {
	return op == AndAlso || op == OrElse
}

var boolType = reflect.TypeFor[bool]()

// Param is the parameter of a selector or predicate, standing for one entity.
type Param struct {
	Name      string
	ParamType reflect.Type
}

// Member is a field access. Instance members carry a Receiver; static members
// have a nil Receiver and are resolved through Declaring alone.
type Member struct {
	Receiver   *Param
	Declaring  reflect.Type
	Name       string
	MemberType reflect.Type
}

// Convert is a widening or boxing conversion of its operand.
type Convert struct {
	Operand Node
	To      reflect.Type
}

// Binary is a comparison or logical combination.
type Binary struct {
	Op          BinaryOp
	Left, Right Node
}

// Constant is a literal value.
type Constant struct {
	Value any
}

// Call is the invocation of a side-effect free function with literal arguments.
type Call struct {
	Fn   reflect.Value
	Args []Node
}

// Lambda wraps a body together with the parameters it ranges over. A Lambda
// without parameters is evaluated eagerly by the Analyzer.
type Lambda struct {
	Params []*Param
	Body   Node
}

func (p *Param) Type() reflect.Type    { return p.ParamType }
func (m *Member) Type() reflect.Type   { return m.MemberType }
func (c *Convert) Type() reflect.Type  { return c.To }
func (b *Binary) Type() reflect.Type   { return boolType }
func (c *Constant) Type() reflect.Type { return reflect.TypeOf(c.Value) }
func (l *Lambda) Type() reflect.Type   { return l.Body.Type() }

func (c *Call) Type() reflect.Type {
	if c.Fn.IsValid() && c.Fn.Type().NumOut() > 0 {
		return c.Fn.Type().Out(0)
	}
	return nil
}

// Static reports whether m is a static member access.
func (m *Member) Static() bool { return m.Receiver == nil }

func (*Param) node()    {}
func (*Member) node()   {}
func (*Convert) node()  {}
func (*Binary) node()   {}
func (*Constant) node() {}
func (*Call) node()     {}
func (*Lambda) node()   {}

// Shape describes n for error messages.
func Shape(n Node) string {
	switch n := n.(type) {
	case nil:
		return "<nil>"
	case *Param:
		return fmt.Sprintf("Param(%s)", n.Name)
	case *Member:
		if n.Static() {
			return fmt.Sprintf("Static(%s.%s)", typeName(n.Declaring), n.Name)
		}
		return fmt.Sprintf("Member(%s.%s)", n.Receiver.Name, n.Name)
	case *Convert:
		return fmt.Sprintf("Convert(%s, %s)", Shape(n.Operand), n.To)
	case *Binary:
		return fmt.Sprintf("Binary(%s %s %s)", Shape(n.Left), n.Op, Shape(n.Right))
	case *Constant:
		return fmt.Sprintf("Constant(%v)", n.Value)
	case *Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = Shape(a)
		}
		return fmt.Sprintf("Call(%s(%s))", funcName(n.Fn), strings.Join(args, ", "))
	case *Lambda:
		names := make([]string, len(n.Params))
		for i, p := range n.Params {
			names[i] = p.Name
		}
		return fmt.Sprintf("Lambda((%s) => %s)", strings.Join(names, ", "), Shape(n.Body))
	}
	return fmt.Sprintf("%T", n)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}

func funcName(fn reflect.Value) string {
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return "<invalid>"
	}
	if f := runtime.FuncForPC(fn.Pointer()); f != nil {
		name := f.Name()
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		return name
	}
	return fn.Type().String()
}
