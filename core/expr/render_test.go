package expr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		node     Node
		expected string
	}{
		{
			name:     "join condition",
			node:     Eq(MemberOf[OrderDetails]("OrderID"), MemberOf[Orders]("OrderID")),
			expected: "OrderDetails.OrderID = Orders.OrderID",
		},
		{
			name:     "string literal is escaped",
			node:     Eq(MemberOf[Orders]("CustomerID"), Const("O'Brien")),
			expected: "Orders.CustomerID = 'O''Brien'",
		},
		{
			name:     "null comparison",
			node:     Eq(MemberOf[Orders]("ShipName"), Const(nil)),
			expected: "Orders.ShipName IS NULL",
		},
		{
			name:     "null on the left",
			node:     Ne(Const((*string)(nil)), MemberOf[Orders]("ShipName")),
			expected: "Orders.ShipName IS NOT NULL",
		},
		{
			name:     "boolean member",
			node:     MemberOf[Orders]("Shipped"),
			expected: "Orders.Shipped = 1",
		},
		{
			name: "mixed logic is parenthesized",
			node: And(
				Gt(MemberOf[Orders]("OrderID"), Const(10)),
				Or(Eq(MemberOf[Orders]("CustomerID"), Const("A")), Eq(MemberOf[Orders]("CustomerID"), Const("B"))),
			),
			expected: "Orders.OrderID > 10 AND (Orders.CustomerID = 'A' OR Orders.CustomerID = 'B')",
		},
		{
			name:     "same logic is flat",
			node:     And(And(Lt(MemberOf[OrderDetails]("Quantity"), Const(5)), Ge(MemberOf[OrderDetails]("ProductID"), Const(1))), MemberOf[Orders]("Shipped")),
			expected: "OrderDetails.Quantity < 5 AND OrderDetails.ProductID >= 1 AND Orders.Shipped = 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, err := Render(tt.node, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sql)
		})
	}
}

func TestRender_Qualifier(t *testing.T) {
	aliased := func(m *Member) string {
		if m.Declaring.Name() == "Orders" {
			return "o"
		}
		return ""
	}
	sql, err := Render(Eq(MemberOf[Orders]("OrderID"), MemberOf[OrderDetails]("OrderID")), aliased)
	require.NoError(t, err)
	assert.Equal(t, "o.OrderID = OrderID", sql)
}

func TestRender_Unsupported(t *testing.T) {
	_, err := Render(MemberOf[Orders]("OrderID"), nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestLiteral(t *testing.T) {
	name := "Vins"
	assert.Equal(t, "NULL", Literal(nil))
	assert.Equal(t, "'Vins'", Literal(&name))
	assert.Equal(t, "1", Literal(true))
	assert.Equal(t, "-3", Literal(int8(-3)))
	assert.Equal(t, "2.5", Literal(2.5))
	assert.Equal(t, "X'0AFF'", Literal([]byte{0x0a, 0xff}))
	assert.Equal(t, "'1996-07-04 00:00:00'", Literal(time.Date(1996, 7, 4, 0, 0, 0, 0, time.UTC)))
}
