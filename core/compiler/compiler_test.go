package compiler

import (
	"fmt"
	"math/rand"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/asaidimu/go-persistmap/core/expr"
	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Orders struct {
	OrderID    int
	CustomerID string
	Freight    float64
}

type OrderDetails struct {
	OrderID   int
	ProductID int
	Quantity  int16
}

type T struct{}

var (
	ordersType  = reflect.TypeFor[Orders]()
	detailsType = reflect.TypeFor[OrderDetails]()
)

// scenarioDialect names column types after the scenario placeholders.
type scenarioDialect struct{}

func (scenarioDialect) Name() string                      { return "scenario" }
func (scenarioDialect) Rule(parts.Operation) (Rule, bool) { return nil, false }
func (scenarioDialect) TypeName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "TYPE1"
	case reflect.Int:
		return "TYPE2"
	}
	return "TYPE3"
}

func predicate(op parts.Operation, n expr.Node) *parts.DelegatePart {
	return parts.NewDelegate(op, nil, func() (string, error) { return expr.Render(n, nil) })
}

func compile(t *testing.T, d Dialect, c parts.PartsContainer) string {
	t.Helper()
	q, err := New(d, nil).Compile(c)
	require.NoError(t, err)
	return q.Text()
}

func TestBaseRulesCoverEveryOperation(t *testing.T) {
	rules := baseRules()
	for op := parts.None; op < parts.NumOperations; op++ {
		assert.NotNil(t, rules[op], op.String())
	}
}

func TestCompile_Join(t *testing.T) {
	c := parts.NewSelectContainer()
	require.NoError(t, c.AddToLast(parts.NewField(parts.SelectMap, ordersType, "OrderID"), parts.Select))
	from, err := parts.NewEntity(parts.From, ordersType, "")
	require.NoError(t, err)
	require.NoError(t, c.Add(from))
	join, err := parts.NewEntity(parts.Join, detailsType, "")
	require.NoError(t, err)
	require.NoError(t, join.Add(predicate(parts.JoinOn, expr.Eq(expr.MemberOf[OrderDetails]("OrderID"), expr.MemberOf[Orders]("OrderID")))))
	require.NoError(t, c.Add(join))

	assert.Equal(t,
		"SELECT Orders.OrderID\nFROM Orders\n JOIN OrderDetails ON (OrderDetails.OrderID = Orders.OrderID)",
		compile(t, nil, c))
}

func TestCompile_JoinConditions(t *testing.T) {
	c := parts.NewSelectContainer()
	from, _ := parts.NewEntity(parts.From, ordersType, "o")
	require.NoError(t, c.Add(from))
	join, _ := parts.NewEntity(parts.LeftJoin, detailsType, "d")
	require.NoError(t, c.Add(join))
	require.NoError(t, join.Add(parts.NewText(parts.JoinOn, "d.OrderID = o.OrderID")))
	require.NoError(t, join.Add(parts.NewText(parts.AndOn, "d.Quantity > 1")))
	require.NoError(t, join.Add(parts.NewText(parts.OrOn, "d.ProductID = 7")))

	assert.Equal(t,
		"SELECT *\nFROM Orders o\n LEFT JOIN OrderDetails d ON (d.OrderID = o.OrderID) AND (d.Quantity > 1) OR (d.ProductID = 7)",
		compile(t, nil, withSelect(c)))
}

func withSelect(c *parts.SelectContainer) *parts.SelectContainer {
	if err := c.AddBefore(parts.NewDecorator(parts.Select, nil), parts.From); err != nil {
		panic(err)
	}
	return c
}

func TestCompile_JoinWithoutCondition(t *testing.T) {
	c := parts.NewSelectContainer()
	from, _ := parts.NewEntity(parts.From, ordersType, "")
	join, _ := parts.NewEntity(parts.Join, detailsType, "")
	require.NoError(t, c.Add(from))
	require.NoError(t, c.Add(join))

	_, err := New(nil, nil).Compile(c)
	assert.ErrorIs(t, err, ErrMissingRequiredPart)
	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, parts.Join, compileErr.Operation)
}

func TestCompile_WhereWithoutExpression(t *testing.T) {
	c := parts.NewContainer()
	require.NoError(t, c.Add(parts.NewDelegate(parts.Where, ordersType, nil)))
	_, err := New(nil, nil).Compile(c)
	assert.ErrorIs(t, err, ErrMissingRequiredPart)
}

func TestCompile_UnknownOperation(t *testing.T) {
	c := parts.NewContainer()
	require.NoError(t, c.Add(parts.NewText(parts.Operation(250), "x")))
	_, err := New(nil, nil).Compile(c)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestCompile_WrongVariant(t *testing.T) {
	c := parts.NewContainer()
	require.NoError(t, c.Add(parts.NewText(parts.CreateTable, "T")))
	_, err := New(nil, nil).Compile(c)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestCompile_CreateTable(t *testing.T) {
	table := parts.NewDecorator(parts.CreateTable, reflect.TypeFor[T]())
	require.NoError(t, table.Add(parts.NewValues(parts.Column, nil, map[string]any{
		parts.KeyMember: "col1", parts.KeyMemberType: reflect.TypeFor[string](), parts.KeyNullable: true,
	})))
	require.NoError(t, table.Add(parts.NewValues(parts.PrimaryColumn, nil, map[string]any{
		parts.KeyMember: "id", parts.KeyMemberType: reflect.TypeFor[int64](),
	})))
	// Plain columns go ahead of the key section.
	require.NoError(t, table.AddBefore(parts.NewValues(parts.Column, nil, map[string]any{
		parts.KeyMember: "col2", parts.KeyMemberType: reflect.TypeFor[int](),
	}), parts.PrimaryColumn))

	c := parts.NewContainer()
	require.NoError(t, c.Add(table))

	assert.Equal(t, "CREATE TABLE T (col1 TYPE1, col2 TYPE2 NOT NULL, id TYPE3 PRIMARY KEY)", compile(t, scenarioDialect{}, c))
	assert.Equal(t, "CREATE TABLE T (col1 VARCHAR(255), col2 BIGINT NOT NULL, id BIGINT PRIMARY KEY)", compile(t, nil, c))
}

func TestCompile_TableKeys(t *testing.T) {
	table := parts.NewDecorator(parts.CreateTable, detailsType)
	for _, name := range []string{"OrderID", "ProductID"} {
		require.NoError(t, table.Add(parts.NewValues(parts.Column, nil, map[string]any{
			parts.KeyMember: name, parts.KeyMemberType: reflect.TypeFor[int](),
		})))
	}
	require.NoError(t, table.Add(parts.NewValues(parts.PrimaryKey, nil, map[string]any{
		parts.KeyMembers: []string{"OrderID", "ProductID"},
	})))
	require.NoError(t, table.Add(parts.NewValues(parts.ForeignKey, nil, map[string]any{
		parts.KeyMember: "OrderID", parts.KeyReferenceTable: "Orders", parts.KeyReferenceMember: "OrderID",
	})))
	c := parts.NewContainer()
	require.NoError(t, c.Add(table))

	assert.Equal(t,
		"CREATE TABLE OrderDetails (OrderID BIGINT NOT NULL, ProductID BIGINT NOT NULL, PRIMARY KEY (OrderID, ProductID), FOREIGN KEY (OrderID) REFERENCES Orders(OrderID))",
		compile(t, nil, c))
}

func TestCompile_AlterAndDrop(t *testing.T) {
	c := parts.NewContainer()
	require.NoError(t, c.Add(parts.NewText(parts.AlterTable, "Orders")))
	require.NoError(t, c.AddAfter(parts.NewValues(parts.AddColumn, ordersType, map[string]any{
		parts.KeyMember: "ShipVia", parts.KeyTypeName: "INT", parts.KeyNullable: true,
	}), parts.AlterTable))
	assert.Equal(t, "ALTER TABLE Orders ADD ShipVia INT", compile(t, nil, c))

	c = parts.NewContainer()
	require.NoError(t, c.Add(parts.NewText(parts.AlterTable, "Orders")))
	require.NoError(t, c.Add(parts.NewText(parts.DropColumn, "ShipVia")))
	assert.Equal(t, "ALTER TABLE Orders DROP COLUMN ShipVia", compile(t, nil, c))

	c = parts.NewContainer()
	require.NoError(t, c.Add(parts.NewText(parts.DropTable, "Orders")))
	assert.Equal(t, "DROP TABLE Orders", compile(t, nil, c))
}

func TestCompile_SelectCommas(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		d := parts.NewDecorator(parts.Select, nil)
		var active []string
		n := 1 + rng.Intn(8)
		for i := 0; i < n; i++ {
			f := parts.NewField(parts.SelectMap, ordersType, "F"+strconv.Itoa(i))
			f.Ignored = rng.Intn(2) == 0
			if !f.Ignored {
				active = append(active, "Orders.F"+strconv.Itoa(i))
			}
			require.NoError(t, d.Add(f))
		}
		c := parts.NewContainer()
		require.NoError(t, c.Add(d))

		expected := "SELECT " + strings.Join(active, ", ")
		if len(active) == 0 {
			expected = "SELECT *"
		}
		assert.Equal(t, expected, compile(t, nil, c), "round %d", round)
	}
}

func TestCompile_SealedSelectIsUnchanged(t *testing.T) {
	c := parts.NewSelectContainer()
	require.NoError(t, c.AddToLast(parts.NewField(parts.SelectMap, ordersType, "OrderID"), parts.Select))
	from, _ := parts.NewEntity(parts.From, ordersType, "")
	require.NoError(t, c.Add(from))

	before := compile(t, nil, c)
	c.Last(parts.Select).(*parts.DecoratorPart).Seal()
	assert.ErrorIs(t, c.Add(parts.NewField(parts.Include, ordersType, "Freight")), parts.ErrSealed)
	assert.Equal(t, before, compile(t, nil, c))
}

func TestCompile_AddBeforeOrdersOutput(t *testing.T) {
	c := parts.NewSelectContainer()
	require.NoError(t, c.AddToLast(parts.NewField(parts.SelectMap, ordersType, "OrderID"), parts.Select))
	from, _ := parts.NewEntity(parts.From, ordersType, "")
	require.NoError(t, c.Add(from))
	require.NoError(t, c.Add(parts.NewField(parts.OrderBy, ordersType, "OrderID")))

	require.NoError(t, c.AddBefore(predicate(parts.Where, expr.Gt(expr.MemberOf[Orders]("Freight"), expr.Const(10))), parts.OrderBy))
	sql := compile(t, nil, c)
	assert.Equal(t, "SELECT Orders.OrderID\nFROM Orders\nWHERE Orders.Freight > 10\nORDER BY Orders.OrderID ASC", sql)
	assert.Less(t, strings.Index(sql, "WHERE"), strings.Index(sql, "ORDER BY"))
}

func TestCompile_Clauses(t *testing.T) {
	c := parts.NewSelectContainer()
	d := parts.NewDecorator(parts.Select, nil)
	require.NoError(t, c.Add(d))
	require.NoError(t, d.Add(parts.NewField(parts.SelectMap, ordersType, "CustomerID")))
	count := parts.NewField(parts.Count, ordersType, "")
	count.FieldAlias = "Orders"
	require.NoError(t, d.Add(count))
	maxFreight := parts.NewField(parts.Max, ordersType, "Freight")
	maxFreight.FieldAlias = "MaxFreight"
	require.NoError(t, d.Add(maxFreight))

	from, _ := parts.NewEntity(parts.From, ordersType, "")
	require.NoError(t, c.Add(from))
	require.NoError(t, c.Add(predicate(parts.Where, expr.Ne(expr.MemberOf[Orders]("CustomerID"), expr.Const(nil)))))
	require.NoError(t, c.Add(predicate(parts.WhereAnd, expr.Gt(expr.MemberOf[Orders]("Freight"), expr.Const(1.5)))))
	require.NoError(t, c.Add(parts.NewField(parts.GroupBy, ordersType, "CustomerID")))
	require.NoError(t, c.Add(parts.NewField(parts.GroupBy, ordersType, "OrderID")))
	require.NoError(t, c.Add(parts.NewField(parts.OrderByDesc, ordersType, "CustomerID")))
	require.NoError(t, c.Add(parts.NewField(parts.ThenBy, ordersType, "OrderID")))

	assert.Equal(t, strings.Join([]string{
		"SELECT Orders.CustomerID, COUNT(*) AS Orders, MAX(Orders.Freight) AS MaxFreight",
		"FROM Orders",
		"WHERE Orders.CustomerID IS NOT NULL AND Orders.Freight > 1.5",
		"GROUP BY Orders.CustomerID, Orders.OrderID",
		"ORDER BY Orders.CustomerID DESC, Orders.OrderID ASC",
	}, "\n"), compile(t, nil, c))
}

func TestCompile_DataManipulation(t *testing.T) {
	update := parts.NewContainer()
	require.NoError(t, update.Add(parts.NewText(parts.Update, "Orders")))
	require.NoError(t, update.AddToLast(parts.NewAssign(parts.Set, ordersType, "CustomerID", "VINET"), parts.Set))
	require.NoError(t, update.AddToLast(parts.NewAssign(parts.Set, ordersType, "Freight", 32.38), parts.Set))
	require.NoError(t, update.Add(predicate(parts.Where, expr.Is(expr.MemberOf[Orders]("OrderID"), 10248))))
	assert.Equal(t, "UPDATE Orders\nSET CustomerID = 'VINET', Freight = 32.38\nWHERE Orders.OrderID = 10248", compile(t, nil, update))

	insert := parts.NewContainer()
	require.NoError(t, insert.AddToLast(parts.NewAssign(parts.Insert, ordersType, "OrderID", 10248), parts.Insert))
	require.NoError(t, insert.AddToLast(parts.NewAssign(parts.Insert, ordersType, "CustomerID", "VINET"), parts.Insert))
	assert.Equal(t, "INSERT INTO Orders (OrderID, CustomerID) VALUES (10248, 'VINET')", compile(t, nil, insert))

	del := parts.NewContainer()
	require.NoError(t, del.Add(parts.NewText(parts.Delete, "Orders")))
	require.NoError(t, del.Add(predicate(parts.Where, expr.Is(expr.MemberOf[Orders]("OrderID"), 10248))))
	assert.Equal(t, "DELETE FROM Orders\nWHERE Orders.OrderID = 10248", compile(t, nil, del))

	empty := parts.NewContainer()
	require.NoError(t, empty.Add(parts.NewDecorator(parts.Set, ordersType)))
	_, err := New(nil, nil).Compile(empty)
	assert.ErrorIs(t, err, ErrMissingRequiredPart)
}

func TestCompile_Procedure(t *testing.T) {
	c := parts.NewContainer()
	require.NoError(t, c.Add(parts.NewValues(parts.OutParameterDeclare, nil, map[string]any{
		parts.KeyName: "total", parts.KeyMemberType: reflect.TypeFor[int]()})))
	require.NoError(t, c.Add(parts.NewValues(parts.OutParameterSet, nil, map[string]any{
		parts.KeyName: "total", parts.KeyValue: 0})))
	proc := parts.NewNamedDecorator(parts.Procedure, "SalesByYear")
	require.NoError(t, c.Add(proc))
	require.NoError(t, proc.Add(parts.NewAssign(parts.Parameter, nil, "from", "1996-07-01")))
	require.NoError(t, proc.Add(parts.NewValues(parts.OutputParameter, nil, map[string]any{parts.KeyName: "total"})))
	require.NoError(t, c.AddToLast(parts.NewValues(parts.OutParameterSelect, nil, map[string]any{parts.KeyName: "total"}), parts.OutParameterDefinition))

	assert.Equal(t,
		"DECLARE @total BIGINT\nSET @total = 0\nCALL SalesByYear('1996-07-01', @total)\nSELECT @total AS total",
		compile(t, nil, c))
}

func TestCompile_Converters(t *testing.T) {
	c := parts.NewSelectContainer()
	f := parts.NewField(parts.SelectMap, ordersType, "Freight")
	f.FieldAlias = "Cost"
	f.Converter = func(v any) (any, error) { return fmt.Sprint(v), nil }
	require.NoError(t, c.AddToLast(parts.NewField(parts.SelectMap, ordersType, "OrderID"), parts.Select))
	require.NoError(t, c.AddToLast(f, parts.Select))

	q, err := New(nil, nil).Compile(c)
	require.NoError(t, err)
	require.Len(t, q.Converters(), 1)
	assert.Equal(t, "Cost", q.Converters()[0].ID)
	conv, ok := q.Converter("Cost")
	require.True(t, ok)
	v, err := conv(2.5)
	require.NoError(t, err)
	assert.Equal(t, "2.5", v)
	assert.Same(t, c, q.Parts())
}

type overridingDialect struct{ scenarioDialect }

func (overridingDialect) Name() string { return "override" }
func (overridingDialect) Rule(op parts.Operation) (Rule, bool) {
	switch op {
	case parts.Where:
		return func(w *Writer, p parts.Part) error {
			if err := w.Base(p); err != nil {
				return err
			}
			w.WriteString(" /* checked */")
			return nil
		}, true
	case parts.Procedure:
		return Unsupported("no procedures"), true
	}
	return nil, false
}

func TestCompile_DialectOverride(t *testing.T) {
	c := parts.NewContainer()
	require.NoError(t, c.Add(parts.NewText(parts.Where, "1 = 1")))
	assert.Equal(t, "WHERE 1 = 1 /* checked */", compile(t, overridingDialect{}, c))

	c = parts.NewContainer()
	require.NoError(t, c.Add(parts.NewNamedDecorator(parts.Procedure, "p")))
	_, err := New(overridingDialect{}, nil).Compile(c)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
	assert.Contains(t, err.Error(), "override")
}

func TestStandardTypeName(t *testing.T) {
	var s *string
	assert.Equal(t, "VARCHAR(255)", StandardTypeName(reflect.TypeOf(s)))
	assert.Equal(t, "BOOLEAN", StandardTypeName(reflect.TypeFor[bool]()))
	assert.Equal(t, "SMALLINT", StandardTypeName(reflect.TypeFor[int16]()))
	assert.Equal(t, "DOUBLE PRECISION", StandardTypeName(reflect.TypeFor[float64]()))
	assert.Equal(t, "BLOB", StandardTypeName(reflect.TypeFor[[]byte]()))
}
