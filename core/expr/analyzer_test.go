package expr

import (
	"database/sql"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Orders struct {
	OrderID    int
	CustomerID string
	ShipName   *string
	Freight    sql.NullFloat64
	OrderDate  time.Time
	Shipped    bool
}

type OrderDetails struct {
	OrderID   int
	ProductID int
	Quantity  int16
}

func orderID() *Member { return Field(func(o *Orders) any { return &o.OrderID }) }

func TestField(t *testing.T) {
	m := Field(func(o *Orders) any { return &o.ShipName })
	assert.Equal(t, "ShipName", m.Name)
	assert.Equal(t, reflect.TypeFor[Orders](), m.Declaring)
	assert.Equal(t, "orders", m.Receiver.Name)
	assert.False(t, m.Static())

	assert.Panics(t, func() {
		Field(func(o *Orders) any { return o.OrderID })
	})
	assert.Panics(t, func() {
		var other int
		Field(func(o *Orders) any { return &other })
	})
}

func TestAnalyzer_FieldName(t *testing.T) {
	tests := []struct {
		name     string
		node     Node
		expected string
	}{
		{name: "member", node: orderID(), expected: "OrderID"},
		{name: "converted member", node: Conv(orderID(), reflect.TypeFor[any]()), expected: "OrderID"},
		{name: "member on the left", node: Eq(orderID(), Const(5)), expected: "OrderID"},
		{name: "member on the right", node: Gt(Const(5), MemberOf[Orders]("Freight")), expected: "Freight"},
		{name: "lambda", node: Func(orderID(), ParamOf[Orders]()), expected: "OrderID"},
		{name: "constant thunk", node: Thunk(Const("literal")), expected: "literal"},
		{name: "literal call thunk", node: Thunk(CallOf(strings.ToUpper, Const("abc"))), expected: "ABC"},
		{name: "static member", node: Static(reflect.TypeFor[time.Time](), "UTC", reflect.TypeFor[*time.Location]()), expected: "UTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, err := FieldName(tt.node)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestAnalyzer_FieldNameIsIdempotent(t *testing.T) {
	nodes := []Node{
		orderID(),
		Conv(MemberOf[Orders]("ShipName"), reflect.TypeFor[any]()),
		Eq(Const(1), MemberOf[OrderDetails]("Quantity")),
		Func(Ne(MemberOf[Orders]("CustomerID"), Const("ALFKI")), ParamOf[Orders]()),
		Static(reflect.TypeFor[time.Time](), "Now", reflect.TypeFor[time.Time]()),
	}
	for _, n := range nodes {
		first, err := FieldName(n)
		require.NoError(t, err)

		t1, err := TypeOf(n)
		require.NoError(t, err)
		again := &Member{Receiver: ParamOf[Orders](), Declaring: reflect.TypeFor[Orders](), Name: first, MemberType: t1.Type}
		second, err := FieldName(again)
		require.NoError(t, err)
		assert.Equal(t, first, second, Shape(n))
	}
}

func TestAnalyzer_FieldType(t *testing.T) {
	ft, err := TypeOf(MemberOf[Orders]("ShipName"))
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeFor[string](), ft.Type)
	assert.True(t, ft.Nullable)

	ft, err = TypeOf(Eq(MemberOf[Orders]("Freight"), Const(1.5)))
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeFor[float64](), ft.Type)
	assert.True(t, ft.Nullable)

	ft, err = TypeOf(orderID())
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeFor[int](), ft.Type)
	assert.False(t, ft.Nullable)
}

func TestAnalyzer_Value(t *testing.T) {
	v, err := ValueOf(Eq(orderID(), Const(10248)))
	require.NoError(t, err)
	assert.Equal(t, 10248, v)

	v, err = ValueOf(Eq(Conv(Const(int16(3)), reflect.TypeFor[int]()), MemberOf[OrderDetails]("Quantity")))
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = ValueOf(Thunk(CallOf(strings.Repeat, Const("ab"), Const(2))))
	require.NoError(t, err)
	assert.Equal(t, "abab", v)

	_, err = ValueOf(orderID())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestAnalyzer_BinaryWithoutMember(t *testing.T) {
	n := Func(Eq(Const(1), Const(1)), &Param{Name: "w", ParamType: reflect.TypeFor[Orders]()})

	_, err := FieldName(n)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)
	var unsupportedErr *UnsupportedError
	require.ErrorAs(t, err, &unsupportedErr)
	assert.Contains(t, unsupportedErr.Shape, "Binary")

	lenient := NewAnalyzer(WithLiteralFallback())
	name, err := lenient.FieldName(n)
	require.NoError(t, err)
	assert.Equal(t, "w => true", name)

	ft, err := lenient.FieldType(n)
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeFor[bool](), ft.Type)
}

func TestAnalyzer_Unsupported(t *testing.T) {
	_, err := FieldName(ParamOf[Orders]())
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = FieldName(And(Eq(orderID(), Const(1)), Eq(orderID(), Const(2))))
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = TypeOf(CallOf(strings.ToUpper, orderID()))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		node     Node
		expected any
	}{
		{Lt(Const(1), Const(2.5)), true},
		{Ge(Const("b"), Const("a")), true},
		{Eq(Const(nil), Const(nil)), true},
		{And(Eq(Const(1), Const(1)), Ne(Const("a"), Const("a"))), false},
		{Or(Const(false), Const(true)), true},
		{Conv(Const(int32(7)), reflect.TypeFor[int64]()), int64(7)},
	}
	for _, tt := range tests {
		v, err := Evaluate(tt.node)
		require.NoError(t, err, Shape(tt.node))
		assert.Equal(t, tt.expected, v, Shape(tt.node))
	}

	_, err := Evaluate(Lt(Const(struct{}{}), Const(1)))
	assert.Error(t, err)
}

func TestCallOf_VariadicArity(t *testing.T) {
	format := func(layout string, args ...any) string { return layout }

	assert.Panics(t, func() { CallOf(format) })
	assert.NotPanics(t, func() { CallOf(format, Const("%d")) })
	assert.NotPanics(t, func() { CallOf(format, Const("%d-%d"), Const(1), Const(2)) })

	v, err := ValueOf(Thunk(CallOf(format, Const("%d"), Const(1))))
	require.NoError(t, err)
	assert.Equal(t, "%d", v)

	// A call assembled without CallOf is checked when it is evaluated.
	short := &Call{Fn: reflect.ValueOf(format)}
	assert.NotPanics(t, func() {
		_, err := Evaluate(short)
		assert.ErrorIs(t, err, ErrUnsupported)
	})
	_, err = FieldName(Thunk(short))
	assert.Error(t, err)
}
