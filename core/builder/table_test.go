package builder

import (
	"context"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/asaidimu/go-persistmap/core/compiler"
	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/asaidimu/go-persistmap/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	tests := []struct {
		name string
		stmt *Statement
		want string
	}{
		{
			name: "create with single key",
			stmt: Table[Orders](nil).AutoIncrement().Create(),
			want: "CREATE TABLE Orders (OrderID BIGINT PRIMARY KEY GENERATED BY DEFAULT AS IDENTITY, " +
				"CustomerID VARCHAR(255) NOT NULL, Freight DOUBLE PRECISION NOT NULL, ShipName VARCHAR(255))",
		},
		{
			name: "create with column type",
			stmt: Table[Orders](nil).ColumnType(customerID, "CHAR(5)").Create(),
			want: "CREATE TABLE Orders (OrderID BIGINT PRIMARY KEY, CustomerID CHAR(5) NOT NULL, " +
				"Freight DOUBLE PRECISION NOT NULL, ShipName VARCHAR(255))",
		},
		{
			name: "create with composite key and foreign key",
			stmt: Table[OrderDetails](nil).
				Key(detailOrderID, productID).
				ForeignKey(detailOrderID, orderID).
				Create(),
			want: "CREATE TABLE OrderDetails (OrderID BIGINT NOT NULL, ProductID BIGINT NOT NULL, " +
				"Quantity SMALLINT NOT NULL, PRIMARY KEY (OrderID, ProductID), " +
				"FOREIGN KEY (OrderID) REFERENCES Orders(OrderID))",
		},
		{
			name: "drop",
			stmt: Table[Orders](nil).Drop(),
			want: "DROP TABLE Orders",
		},
		{
			name: "add column",
			stmt: Table[Orders](nil).AddColumn(shipName),
			want: "ALTER TABLE Orders ADD ShipName VARCHAR(255)",
		},
		{
			name: "drop column",
			stmt: Table[Orders](nil).DropColumn(shipName),
			want: "ALTER TABLE Orders DROP COLUMN ShipName",
		},
		{
			name: "create database",
			stmt: CreateDatabase(nil, "northwind"),
			want: "CREATE DATABASE northwind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.stmt.Err())
			assert.Equal(t, tt.want, compiled(t, tt.stmt))
		})
	}
}

func TestTable_UnknownField(t *testing.T) {
	tests := []struct {
		name string
		stmt *Statement
	}{
		{name: "add column", stmt: Table[Orders](nil).AddColumn(quantity)},
		{name: "single key", stmt: Table[Orders](nil).Key(quantity).Create()},
		{name: "composite key", stmt: Table[Orders](nil).Key(orderID, quantity).Create()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, tt.stmt.Err(), "Orders has no field Quantity")
		})
	}
}

func TestCreateDatabase_NeedsName(t *testing.T) {
	assert.Error(t, CreateDatabase(nil, "").Err())
}

func TestProcedure(t *testing.T) {
	p := Procedure(nil, "SalesByYear").
		Param("from", "1996-07-01").
		Output("total", reflect.TypeFor[int](), 0)

	assert.Equal(t,
		"DECLARE @total BIGINT\nSET @total = 0\nCALL SalesByYear('1996-07-01', @total)\nSELECT @total AS total",
		compiled(t, p))
}

func TestProcedure_MultipleOutputs(t *testing.T) {
	p := Procedure(nil, "Totals").
		Output("orders", reflect.TypeFor[int](), 0).
		Param("year", 1997).
		Output("freight", reflect.TypeFor[float64](), 0.0)

	assert.Equal(t,
		"DECLARE @orders BIGINT\nSET @orders = 0\nDECLARE @freight DOUBLE PRECISION\nSET @freight = 0\n"+
			"CALL Totals(@orders, 1997, @freight)\nSELECT @orders AS orders, @freight AS freight",
		compiled(t, p))
}

func TestProcedure_Call(t *testing.T) {
	pc, mock := newContext(t)
	mock.ExpectQuery("DECLARE @total BIGINT\nSET @total = 0\nCALL SalesByYear('1996-07-01', @total)\nSELECT @total AS total").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(42)))
	mock.ExpectExec("CALL Refresh()").WillReturnResult(sqlmock.NewResult(0, 0))

	doc, err := Procedure(pc, "SalesByYear").
		Param("from", "1996-07-01").
		Output("total", reflect.TypeFor[int](), 0).
		Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schema.Document{"total": int64(42)}, doc)

	doc, err = Procedure(pc, "Refresh").Call(context.Background())
	require.NoError(t, err)
	assert.Nil(t, doc)
	require.NoError(t, mock.ExpectationsWereMet())
}

type noProcedures struct{}

func (noProcedures) Name() string { return "noproc" }
func (noProcedures) Rule(op parts.Operation) (compiler.Rule, bool) {
	if op == parts.Procedure {
		return compiler.Unsupported("no procedures"), true
	}
	return nil, false
}
func (noProcedures) TypeName(t reflect.Type) string { return compiler.StandardTypeName(t) }

func TestProcedure_NotSupportedByDialect(t *testing.T) {
	_, err := Procedure(nil, "p", WithCompiler(compiler.New(noProcedures{}, nil))).Compile()
	assert.ErrorIs(t, err, compiler.ErrUnsupportedOperation)
}
