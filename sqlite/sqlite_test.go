package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/asaidimu/go-persistmap/core/builder"
	"github.com/asaidimu/go-persistmap/core/expr"
	"github.com/asaidimu/go-persistmap/core/persistence"
	"github.com/asaidimu/go-persistmap/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Customers struct {
	CustomerID  int `pm:"key"`
	CompanyName string
	Country     *string
}

type Orders struct {
	OrderID    int `pm:"key"`
	CustomerID int
	Freight    float64
	Shipped    bool
}

var (
	customerID  = expr.Field(func(c *Customers) any { return &c.CustomerID })
	companyName = expr.Field(func(c *Customers) any { return &c.CompanyName })
	country     = expr.Field(func(c *Customers) any { return &c.Country })

	orderID         = expr.Field(func(o *Orders) any { return &o.OrderID })
	orderCustomerID = expr.Field(func(o *Orders) any { return &o.CustomerID })
	freight         = expr.Field(func(o *Orders) any { return &o.Freight })
	shipped         = expr.Field(func(o *Orders) any { return &o.Shipped })
)

func open(t *testing.T) *persistence.Context {
	t.Helper()
	conn, err := sqlite.Open(":memory:", nil, nil)
	require.NoError(t, err)
	pc, err := persistence.NewContext(conn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close(context.Background()) })
	return pc
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	pc := open(t)

	_, err := builder.Table[Customers](pc).AutoIncrement().Create().Enqueue()
	require.NoError(t, err)
	_, err = builder.Table[Orders](pc).
		AutoIncrement().
		ForeignKey(orderCustomerID, customerID).
		Create().
		Enqueue()
	require.NoError(t, err)

	uk := "UK"
	for _, c := range []Customers{
		{CompanyName: "Around the Horn", Country: &uk},
		{CompanyName: "Bon app'"},
	} {
		_, err := builder.Insert[Customers](pc).Entity(c).Build().Enqueue()
		require.NoError(t, err)
	}
	for _, o := range []Orders{
		{CustomerID: 1, Freight: 12.5, Shipped: true},
		{CustomerID: 1, Freight: 3.25},
		{CustomerID: 2, Freight: 140},
	} {
		_, err := builder.Insert[Orders](pc).Entity(o).Build().Enqueue()
		require.NoError(t, err)
	}
	require.NoError(t, pc.Commit(ctx))

	exists, err := sqlite.TableExists(ctx, pc.Connection(), "Orders")
	require.NoError(t, err)
	assert.True(t, exists)

	customers, err := builder.From[Customers](pc).OrderBy(customerID).Select(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, "Around the Horn", customers[0].CompanyName)
	require.NotNil(t, customers[0].Country)
	assert.Equal(t, "UK", *customers[0].Country)
	assert.Nil(t, customers[1].Country)
	assert.Equal(t, "Bon app'", customers[1].CompanyName)

	type shipment struct {
		CompanyName string
		Freight     float64
	}
	q := builder.Join[Orders](builder.From[Customers](pc), expr.Eq(orderCustomerID, customerID)).
		Where(expr.Is(country, "UK")).
		OrderByDesc(freight).
		Map(companyName, "").
		Include(freight)
	shipments, err := builder.For[shipment](q).Select(ctx)
	require.NoError(t, err)
	assert.Equal(t, []shipment{{"Around the Horn", 12.5}, {"Around the Horn", 3.25}}, shipments)

	n, err := builder.Update[Orders](pc).Set(shipped, true).Where(expr.Gt(freight, expr.Const(100))).Build().Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unshipped, err := builder.From[Orders](pc).Where(expr.Is(shipped, false)).Select(ctx)
	require.NoError(t, err)
	require.Len(t, unshipped, 1)
	assert.Equal(t, Orders{OrderID: 2, CustomerID: 1, Freight: 3.25}, unshipped[0])

	_, err = builder.Delete[Orders](pc).Where(expr.Is(orderID, 2)).Build().Enqueue()
	require.NoError(t, err)
	require.NoError(t, pc.Commit(ctx))

	remaining, err := builder.From[Orders](pc).Count("Total").Select(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

func TestForeignKeysAreEnforced(t *testing.T) {
	ctx := context.Background()
	pc := open(t)

	_, err := builder.Table[Customers](pc).AutoIncrement().Create().Execute(ctx)
	require.NoError(t, err)
	_, err = builder.Table[Orders](pc).AutoIncrement().ForeignKey(orderCustomerID, customerID).Create().Execute(ctx)
	require.NoError(t, err)

	_, err = builder.Insert[Orders](pc).Entity(Orders{CustomerID: 99, Freight: 1}).Build().Enqueue()
	require.NoError(t, err)

	err = pc.Commit(ctx)
	var cerr *persistence.CommitError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 0, cerr.Executed)
	assert.Equal(t, 1, cerr.Failed)

	var xerr *persistence.ExecutionError
	require.ErrorAs(t, err, &xerr)
	assert.Contains(t, xerr.Query, "INSERT INTO Orders")
}

func TestCreateDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "northwind.db")
	pc := open(t)

	require.NoError(t, pc.Enqueue(sqlite.CreateDatabase(path)))
	require.NoError(t, pc.Commit(context.Background()))
	assert.FileExists(t, path)
}
