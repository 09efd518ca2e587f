package expr

import (
	"fmt"
	"reflect"
	"time"

	"github.com/asaidimu/go-persistmap/core/schema"
)

// FieldType is the column type recovered from an expression. Nullable wrappers
// are removed from Type and recorded in Nullable.
type FieldType struct {
	Type     reflect.Type
	Nullable bool
}

// Analyzer extracts field names, field types and values from expressions.
// Shapes are tried in a fixed order: conversion, member access, binary
// comparison, parameterless literal lambda, static member access.
type Analyzer struct {
	literalFallback bool
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLiteralFallback makes a binary expression without a member operand
// yield the text of its evaluated result, "<param> => <value>", instead of an
// error. Such names never match a column.
func WithLiteralFallback() Option {
	return func(a *Analyzer) { a.literalFallback = true }
}

// NewAnalyzer creates an Analyzer. Without options it is strict.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var defaultAnalyzer = NewAnalyzer()

// FieldName extracts a field name with the strict analyzer.
func FieldName(n Node) (string, error) { return defaultAnalyzer.FieldName(n) }

// TypeOf extracts a field type with the strict analyzer.
func TypeOf(n Node) (FieldType, error) { return defaultAnalyzer.FieldType(n) }

// ValueOf extracts a literal value with the strict analyzer.
func ValueOf(n Node) (any, error) { return defaultAnalyzer.Value(n) }

// FieldName returns the name of the field n refers to.
func (a *Analyzer) FieldName(n Node) (string, error) {
	return a.fieldName(n, nil)
}

func (a *Analyzer) fieldName(n Node, params []*Param) (string, error) {
	switch n := n.(type) {
	case *Convert:
		return a.fieldName(n.Operand, params)
	case *Member:
		return n.Name, nil
	case *Binary:
		if m := memberOperand(n); m != nil {
			return a.fieldName(m, params)
		}
		if a.literalFallback {
			v, err := Evaluate(n)
			if err != nil {
				return "", err
			}
			return fallbackText(params, v), nil
		}
	case *Lambda:
		if len(n.Params) == 0 && isLiteral(n.Body) {
			v, err := Evaluate(n.Body)
			if err != nil {
				return "", err
			}
			return fmt.Sprint(v), nil
		}
		return a.fieldName(n.Body, n.Params)
	case *Constant, *Call:
		if isLiteral(n) {
			v, err := Evaluate(n)
			if err != nil {
				return "", err
			}
			return fmt.Sprint(v), nil
		}
	}
	return "", unsupported("field name", n)
}

// FieldType returns the type of the field n refers to.
func (a *Analyzer) FieldType(n Node) (FieldType, error) {
	switch n := n.(type) {
	case *Convert:
		return a.FieldType(n.Operand)
	case *Member:
		t, nullable := schema.Unwrap(n.MemberType)
		return FieldType{Type: t, Nullable: nullable}, nil
	case *Binary:
		if m := memberOperand(n); m != nil {
			return a.FieldType(m)
		}
		if a.literalFallback {
			return literalType(n)
		}
	case *Lambda:
		if len(n.Params) == 0 && isLiteral(n.Body) {
			return literalType(n.Body)
		}
		return a.FieldType(n.Body)
	case *Constant, *Call:
		if isLiteral(n) {
			return literalType(n)
		}
	}
	return FieldType{}, unsupported("field type", n)
}

// Value returns the literal value carried by n. For a comparison it is the
// operand opposite the member access.
func (a *Analyzer) Value(n Node) (any, error) {
	switch n := n.(type) {
	case *Binary:
		if m := memberOperand(n); m != nil {
			other := n.Right
			if m == unwrapConvert(n.Right) {
				other = n.Left
			}
			return a.Value(other)
		}
		if isLiteral(n) {
			return Evaluate(n)
		}
	case *Lambda:
		return a.Value(n.Body)
	case *Convert, *Constant, *Call:
		if isLiteral(n) {
			return Evaluate(n)
		}
	}
	return nil, unsupported("value", n)
}

func literalType(n Node) (FieldType, error) {
	v, err := Evaluate(n)
	if err != nil {
		return FieldType{}, err
	}
	t := reflect.TypeOf(v)
	if t == nil {
		return FieldType{Nullable: true}, nil
	}
	inner, nullable := schema.Unwrap(t)
	return FieldType{Type: inner, Nullable: nullable}, nil
}

func fallbackText(params []*Param, v any) string {
	name := "()"
	if len(params) == 1 {
		name = params[0].Name
	}
	return fmt.Sprintf("%s => %v", name, v)
}

func unwrapConvert(n Node) Node {
	for {
		c, ok := n.(*Convert)
		if !ok {
			return n
		}
		n = c.Operand
	}
}

// memberOperand returns the member access side of a comparison, left first.
func memberOperand(b *Binary) *Member {
	if m, ok := unwrapConvert(b.Left).(*Member); ok {
		return m
	}
	if m, ok := unwrapConvert(b.Right).(*Member); ok {
		return m
	}
	return nil
}

// isLiteral reports whether n can be evaluated without an entity.
func isLiteral(n Node) bool {
	switch n := n.(type) {
	case *Constant:
		return true
	case *Convert:
		return isLiteral(n.Operand)
	case *Call:
		for _, arg := range n.Args {
			if !isLiteral(arg) {
				return false
			}
		}
		return true
	case *Binary:
		return isLiteral(n.Left) && isLiteral(n.Right)
	case *Lambda:
		return len(n.Params) == 0 && isLiteral(n.Body)
	}
	return false
}

// Evaluate computes the value of an expression that does not depend on any
// parameter.
func Evaluate(n Node) (any, error) {
	switch n := n.(type) {
	case *Constant:
		return n.Value, nil
	case *Convert:
		v, err := Evaluate(n.Operand)
		if err != nil {
			return nil, err
		}
		return convert(v, n.To)
	case *Call:
		if !n.Fn.IsValid() || n.Fn.Kind() != reflect.Func || !arityMatches(n.Fn.Type(), len(n.Args)) {
			return nil, unsupported("value", n)
		}
		args := make([]reflect.Value, len(n.Args))
		ft := n.Fn.Type()
		for i, arg := range n.Args {
			v, err := Evaluate(arg)
			if err != nil {
				return nil, err
			}
			in := argType(ft, i)
			if v == nil {
				args[i] = reflect.Zero(in)
				continue
			}
			rv := reflect.ValueOf(v)
			if !rv.Type().AssignableTo(in) {
				if !rv.CanConvert(in) {
					return nil, fmt.Errorf("argument %d of %s: %s is not assignable to %s", i, funcName(n.Fn), rv.Type(), in)
				}
				rv = rv.Convert(in)
			}
			args[i] = rv
		}
		out := n.Fn.Call(args)
		if len(out) == 0 {
			return nil, unsupported("value", n)
		}
		if len(out) == 2 {
			if err, ok := out[1].Interface().(error); ok && err != nil {
				return nil, fmt.Errorf("evaluating %s: %w", funcName(n.Fn), err)
			}
		}
		return out[0].Interface(), nil
	case *Binary:
		l, err := Evaluate(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := Evaluate(n.Right)
		if err != nil {
			return nil, err
		}
		return apply(n.Op, l, r)
	case *Lambda:
		if len(n.Params) == 0 {
			return Evaluate(n.Body)
		}
	}
	return nil, unsupported("value", n)
}

func argType(ft reflect.Type, i int) reflect.Type {
	if ft.IsVariadic() && i >= ft.NumIn()-1 {
		return ft.In(ft.NumIn() - 1).Elem()
	}
	return ft.In(i)
}

func convert(v any, to reflect.Type) (any, error) {
	if v == nil || to == nil {
		return v, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type() == to {
		return v, nil
	}
	if to.Kind() == reflect.Interface && rv.Type().Implements(to) {
		return v, nil
	}
	if !rv.CanConvert(to) {
		return nil, fmt.Errorf("cannot convert %s to %s", rv.Type(), to)
	}
	return rv.Convert(to).Interface(), nil
}

func apply(op BinaryOp, l, r any) (bool, error) {
	switch op {
	case AndAlso, OrElse:
		lb, lok := l.(bool)
		rb, rok := r.(bool)
		if !lok || !rok {
			return false, fmt.Errorf("%s needs boolean operands, got %T and %T", op, l, r)
		}
		if op == AndAlso {
			return lb && rb, nil
		}
		return lb || rb, nil
	}

	c, err := compareValues(l, r)
	if err != nil {
		if op == Equal {
			return reflect.DeepEqual(l, r), nil
		}
		if op == NotEqual {
			return !reflect.DeepEqual(l, r), nil
		}
		return false, err
	}
	switch op {
	case Equal:
		return c == 0, nil
	case NotEqual:
		return c != 0, nil
	case LessThan:
		return c < 0, nil
	case LessThanOrEqual:
		return c <= 0, nil
	case GreaterThan:
		return c > 0, nil
	case GreaterThanOrEqual:
		return c >= 0, nil
	}
	return false, fmt.Errorf("unknown operator %s", op)
}

// compareValues orders numbers, strings and times. Other values are not ordered.
func compareValues(l, r any) (int, error) {
	if lt, ok := l.(time.Time); ok {
		if rt, ok := r.(time.Time); ok {
			return lt.Compare(rt), nil
		}
	}
	lv, rv := reflect.ValueOf(l), reflect.ValueOf(r)
	if !lv.IsValid() || !rv.IsValid() {
		return 0, fmt.Errorf("cannot order %T and %T", l, r)
	}
	if lf, ok := toFloat(lv); ok {
		if rf, ok := toFloat(rv); ok {
			switch {
			case lf < rf:
				return -1, nil
			case lf > rf:
				return 1, nil
			}
			return 0, nil
		}
	}
	if lv.Kind() == reflect.String && rv.Kind() == reflect.String {
		ls, rs := lv.String(), rv.String()
		switch {
		case ls < rs:
			return -1, nil
		case ls > rs:
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot order %T and %T", l, r)
}

func toFloat(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	return 0, false
}
