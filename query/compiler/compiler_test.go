package compiler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/tdal/examples/shop"
	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/query/compiler"
	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newCompiler() *compiler.Compiler {
	return compiler.New(shop.MustRegistry(),
		compiler.WithClock(func() time.Time { return fixedNow }),
		compiler.WithIDGenerator(func() string { return "uuid-1" }),
	)
}

func TestFindKeepsTreeShape(t *testing.T) {
	c := newCompiler()
	find, err := c.Find("Product", &ast.FindArgs{
		Where: ast.And{
			ast.Or{ast.Contains("name", "mug").Fold(), ast.Gte("price", 10)},
			ast.Not{X: ast.Eq("stock", 0)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, plan.And{
		plan.Or{
			plan.Compare{Column: "name", Op: plan.Contains, Value: "mug", Insensitive: true, Type: schema.String},
			plan.Compare{Column: "price", Op: plan.Gte, Value: float64(10), Type: schema.Float},
		},
		plan.Not{X: plan.Compare{Column: "stock", Op: plan.Eq, Value: int64(0), Type: schema.Int}},
	}, find.Select.Where)
	assert.Equal(t, "Product", find.Select.Table)
	assert.Len(t, find.Select.Columns, 8)
	assert.Nil(t, find.Select.Limit)
}

func TestFindValidation(t *testing.T) {
	c := newCompiler()
	tests := []struct {
		name   string
		entity string
		args   *ast.FindArgs
		want   error
	}{
		{"contains on Int", "Product", &ast.FindArgs{Where: ast.Contains("stock", "1")}, tdalerr.ErrInvalidComparator},
		{"insensitive on Int", "Product", &ast.FindArgs{Where: ast.Eq("stock", 1).Fold()}, tdalerr.ErrInvalidComparator},
		{"unknown field", "Product", &ast.FindArgs{Where: ast.Eq("colour", "red")}, tdalerr.ErrUnknownField},
		{"unknown entity", "Basket", nil, tdalerr.ErrUnknownEntity},
		{"bad value type", "Product", &ast.FindArgs{Where: ast.Gt("price", "cheap")}, tdalerr.ErrInvalidArgument},
		{"enum member", "Order", &ast.FindArgs{Where: ast.Eq("status", "LOST")}, tdalerr.ErrInvalidArgument},
		{"some on single relation", "Variant", &ast.FindArgs{Where: ast.Some("product", nil)}, tdalerr.ErrInvalidComparator},
		{"is on list relation", "Product", &ast.FindArgs{Where: ast.Is("variants", nil)}, tdalerr.ErrInvalidComparator},
		{"unknown relation", "Product", &ast.FindArgs{Where: ast.Some("reviews", nil)}, tdalerr.ErrUnknownRelation},
		{"select and include", "Product", &ast.FindArgs{Select: ast.Select{"id": nil}, Include: ast.Include{"variants": nil}}, tdalerr.ErrInvalidArgument},
		{"cursor without unique", "Product", &ast.FindArgs{Cursor: ast.Unique{"name": "Mug"}}, tdalerr.ErrInvalidArgument},
		{"count order on single relation", "Variant", &ast.FindArgs{OrderBy: []ast.Order{{Field: "product", Count: true}}}, tdalerr.ErrInvalidArgument},
		{"aggregate outside having", "Product", &ast.FindArgs{Where: ast.Cond{Field: "stock", Op: ast.OpGreater, Value: 1, Aggregate: ast.AggSum}}, tdalerr.ErrInvalidArgument},
		{"gt null", "Product", &ast.FindArgs{Where: ast.Gt("description", nil)}, tdalerr.ErrInvalidArgument},
		{"negative skip", "Product", &ast.FindArgs{Skip: -1}, tdalerr.ErrInvalidArgument},
		{"filter on nested single relation", "Variant", &ast.FindArgs{Include: ast.Include{"product": {Where: ast.Eq("id", 1)}}}, tdalerr.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Find(tt.entity, tt.args)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, tdalerr.IsValidation(err))
		})
	}
}

func TestNullsAndEmptyLists(t *testing.T) {
	c := newCompiler()
	tests := []struct {
		name string
		expr ast.Expr
		want plan.Node
	}{
		{"equals null", ast.Eq("description", nil), plan.Compare{Column: "description", Op: plan.IsNull, Type: schema.String}},
		{"not null", ast.Ne("description", nil), plan.Compare{Column: "description", Op: plan.IsNotNull, Type: schema.String}},
		{"empty in", ast.In("id"), plan.Literal(false)},
		{"empty notIn", ast.NotIn("id"), plan.Literal(true)},
		{"in", ast.In("id", 1, 2), plan.Compare{Column: "id", Op: plan.In, Values: []any{int64(1), int64(2)}, Type: schema.Int}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Where("Product", tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRelationFilters(t *testing.T) {
	c := newCompiler()
	join := []plan.JoinKey{{Outer: "id", Inner: "productId"}}
	inStock := plan.Compare{Column: "stock", Op: plan.Gt, Value: int64(0), Type: schema.Int}

	got, err := c.Where("Product", ast.Some("variants", ast.Gt("stock", 0)))
	require.NoError(t, err)
	assert.Equal(t, plan.Exists{Table: "Variant", Join: join, Where: inStock}, got)

	got, err = c.Where("Product", ast.None("variants", ast.Gt("stock", 0)))
	require.NoError(t, err)
	assert.Equal(t, plan.Exists{Negate: true, Table: "Variant", Join: join, Where: inStock}, got)

	got, err = c.Where("Product", ast.Every("variants", ast.Gt("stock", 0)))
	require.NoError(t, err)
	assert.Equal(t, plan.Exists{Negate: true, Table: "Variant", Join: join, Where: plan.Not{X: inStock}}, got)

	got, err = c.Where("Product", ast.Every("variants", nil))
	require.NoError(t, err)
	assert.Equal(t, plan.Literal(true), got)

	got, err = c.Where("Variant", ast.Is("product", ast.Eq("sku", "MUG")))
	require.NoError(t, err)
	assert.Equal(t, plan.Exists{
		Table: "Product",
		Join:  []plan.JoinKey{{Outer: "productId", Inner: "id"}},
		Where: plan.Compare{Column: "sku", Op: plan.Eq, Value: "MUG", Type: schema.String},
	}, got)
}

func TestNegativeTakeReversesOrder(t *testing.T) {
	c := newCompiler()

	find, err := c.Find("Product", &ast.FindArgs{OrderBy: []ast.Order{ast.Desc("price")}, Take: ast.Ptr(-2)})
	require.NoError(t, err)
	assert.True(t, find.Select.Reverse)
	require.Len(t, find.Select.OrderBy, 1)
	assert.False(t, find.Select.OrderBy[0].Desc)
	assert.Equal(t, 2, *find.Select.Limit)

	find, err = c.Find("Product", &ast.FindArgs{Take: ast.Ptr(-1)})
	require.NoError(t, err)
	assert.Equal(t, []plan.Order{{Column: "id", Desc: true}}, find.Select.OrderBy)
}

func TestCursorSeek(t *testing.T) {
	c := newCompiler()

	find, err := c.Find("Product", &ast.FindArgs{Cursor: ast.Unique{"sku": "B"}, Take: ast.Ptr(2)})
	require.NoError(t, err)
	require.NotNil(t, find.Cursor)
	assert.Equal(t, plan.Compare{Column: "sku", Op: plan.Eq, Value: "B", Type: schema.String}, find.Cursor.Where)
	assert.Equal(t, []plan.Order{{Column: "sku"}}, find.Select.OrderBy)

	compiler.Seek(find, plan.Row{"sku": "B"})
	assert.Equal(t, plan.Or{
		plan.And{plan.Compare{Column: "sku", Op: plan.Gt, Value: "B", Type: schema.String}},
		plan.And{plan.Compare{Column: "sku", Op: plan.Eq, Value: "B", Type: schema.String}},
	}, find.Select.Where)

	missing, err := c.Find("Product", &ast.FindArgs{Cursor: ast.Unique{"sku": "Z"}})
	require.NoError(t, err)
	compiler.Seek(missing, nil)
	assert.Equal(t, plan.Literal(false), missing.Select.Where)
}

func TestCursorOverNullableColumn(t *testing.T) {
	c := newCompiler()
	find, err := c.Find("Variant", &ast.FindArgs{
		OrderBy: []ast.Order{ast.Asc("price"), ast.Asc("id")},
		Cursor:  ast.Unique{"id": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "first", find.Select.OrderBy[0].Nulls)
	assert.Empty(t, find.Select.OrderBy[1].Nulls)

	compiler.Seek(find, plan.Row{"price": nil, "id": int64(3)})
	price := func(op plan.Op) plan.Compare {
		return plan.Compare{Column: "price", Op: op, Type: schema.Float}
	}
	assert.Equal(t, plan.Or{
		plan.And{price(plan.IsNotNull)},
		plan.And{price(plan.IsNull), plan.Compare{Column: "id", Op: plan.Gt, Value: int64(3), Type: schema.Int}},
		plan.And{price(plan.IsNull), plan.Compare{Column: "id", Op: plan.Eq, Value: int64(3), Type: schema.Int}},
	}, find.Select.Where)
}

func TestSelection(t *testing.T) {
	c := newCompiler()
	find, err := c.Find("Customer", &ast.FindArgs{
		Select: ast.Select{
			"email":  nil,
			"orders": {Where: ast.Eq("status", "PAID"), Take: ast.Ptr(1)},
			"_count": nil,
		},
	})
	require.NoError(t, err)

	sel := find.Selection
	assert.Equal(t, []string{"email"}, sel.Fields)
	assert.Equal(t, []plan.Column{
		{Field: "email", Name: "email", Type: schema.String},
		{Field: "id", Name: "id", Type: schema.Int},
	}, find.Select.Columns)

	require.Len(t, sel.Relations, 1)
	orders := sel.Relations[0]
	assert.Equal(t, "orders", orders.Name)
	assert.Equal(t, schema.Many, orders.Cardinality)
	assert.Equal(t, []string{"id"}, orders.LocalKeys)
	assert.Equal(t, []string{"customerId"}, orders.TargetKeys)
	assert.Equal(t, "orders", orders.Query.Table)
	assert.Equal(t, 1, *orders.Take)
	assert.Nil(t, orders.Query.Limit)
	assert.Equal(t, plan.Compare{Column: "status", Op: plan.Eq, Value: "PAID", Type: schema.EnumType}, orders.Query.Where)

	require.Len(t, sel.Counts, 2)
	assert.Equal(t, "orders", sel.Counts[0].Name)
	assert.Equal(t, "quotes", sel.Counts[1].Name)
}

func TestUniqueSelectors(t *testing.T) {
	c := newCompiler()

	got, err := c.Unique("OrderItem", ast.Unique{"orderId_variantId": ast.Unique{"orderId": 1, "variantId": 2}})
	require.NoError(t, err)
	assert.Equal(t, plan.And{
		plan.Compare{Column: "orderId", Op: plan.Eq, Value: int64(1), Type: schema.Int},
		plan.Compare{Column: "variantId", Op: plan.Eq, Value: int64(2), Type: schema.Int},
	}, got)

	_, err = c.Unique("OrderItem", ast.Unique{"orderId_variantId": ast.Unique{"orderId": 1}})
	assert.ErrorIs(t, err, tdalerr.ErrInvalidArgument)

	_, err = c.Unique("Customer", ast.Unique{"email": nil})
	assert.ErrorIs(t, err, tdalerr.ErrInvalidArgument)

	got, err = c.Unique("Customer", ast.Unique{"email": "a@example.com", "name": "Ada"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestInsertFillsDefaults(t *testing.T) {
	c := newCompiler()
	inserts, err := c.Insert("Order", []ast.Data{{"customerId": 1}}, false)
	require.NoError(t, err)
	require.Len(t, inserts, 1)

	ins := inserts[0]
	assert.Equal(t, "orders", ins.Table)
	assert.Equal(t, "id", ins.AutoIncrement)
	assert.Equal(t, []string{"number", "status", "total", "note", "customerId", "createdAt"}, ins.Columns)
	assert.Equal(t, [][]any{{"uuid-1", "PENDING", float64(0), nil, int64(1), fixedNow}}, ins.Rows)
}

func TestInsertGroupsRowsByColumns(t *testing.T) {
	c := newCompiler()
	inserts, err := c.Insert("Customer", []ast.Data{
		{"email": "a@example.com", "name": "A"},
		{"id": 10, "email": "b@example.com", "name": "B"},
		{"email": "c@example.com", "name": "C"},
	}, true)
	require.NoError(t, err)
	require.Len(t, inserts, 2)
	assert.Len(t, inserts[0].Rows, 2)
	assert.Len(t, inserts[1].Rows, 1)
	assert.Equal(t, "id", inserts[1].Columns[0])
	assert.True(t, inserts[0].SkipDuplicates)
}

func TestInsertRejectsMissingRequired(t *testing.T) {
	c := newCompiler()
	_, err := c.Insert("Product", []ast.Data{{"name": "Mug", "price": 5}}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, tdalerr.ErrInvalidArgument)

	var te *tdalerr.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "sku", te.Field)
}

func TestUpdateSet(t *testing.T) {
	c := newCompiler()
	set, err := c.UpdateSet("Product", ast.Data{"stock": ast.Increment(2), "name": "Big mug"})
	require.NoError(t, err)
	assert.Equal(t, []plan.Assign{
		{Column: "name", Op: plan.AssignSet, Value: "Big mug"},
		{Column: "stock", Op: plan.AssignAdd, Value: int64(2)},
		{Column: "updatedAt", Op: plan.AssignSet, Value: fixedNow},
	}, set)

	_, err = c.UpdateSet("Product", ast.Data{"name": ast.Increment(1)})
	assert.ErrorIs(t, err, tdalerr.ErrInvalidArgument)

	_, err = c.UpdateSet("Product", ast.Data{"name": nil})
	assert.ErrorIs(t, err, tdalerr.ErrInvalidArgument)

	set, err = c.UpdateSet("Product", ast.Data{})
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestUpsertNativeEligibility(t *testing.T) {
	c := newCompiler()

	up, ok, err := c.Upsert("Customer",
		ast.Unique{"email": "a@example.com"},
		ast.Data{"email": "a@example.com", "name": "A"},
		ast.Data{"name": "B"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"email"}, up.ConflictColumns)
	assert.Equal(t, []plan.Assign{{Column: "name", Op: plan.AssignSet, Value: "B"}}, up.Set)

	_, ok, err = c.Upsert("Customer",
		ast.Unique{"id": 1},
		ast.Data{"email": "a@example.com", "name": "A"},
		ast.Data{"name": "B"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.Upsert("Customer",
		ast.Unique{"email": "a@example.com"},
		ast.Data{"email": "a@example.com", "name": "A", "orders": ast.Create(ast.Data{})},
		ast.Data{})
	require.NoError(t, err)
	assert.False(t, ok)

	up, ok, err = c.Upsert("OrderItem",
		ast.Unique{"orderId_variantId": ast.Unique{"orderId": 1, "variantId": 2}},
		ast.Data{"orderId": 1, "variantId": 2, "quantity": 1, "unitPrice": 9.5},
		ast.Data{"quantity": ast.Increment(1)})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"orderId", "variantId"}, up.ConflictColumns)
	assert.Equal(t, "OrderItem_pkey", up.Uniques[0].Name)

	_, ok, err = c.Upsert("OrderItem",
		ast.Unique{"orderId_variantId": ast.Unique{"orderId": 1, "variantId": 2}},
		ast.Data{"orderId": 1, "variantId": 3, "quantity": 1, "unitPrice": 9.5},
		ast.Data{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAggregate(t *testing.T) {
	c := newCompiler()
	agg, err := c.Aggregate("Product", &ast.AggregateArgs{
		Where: ast.Gt("stock", 0),
		Count: []string{ast.CountAll},
		Avg:   []string{"price"},
		Sum:   []string{"stock"},
		Max:   []string{"createdAt"},
	})
	require.NoError(t, err)
	assert.Equal(t, []plan.Aggregation{
		{Func: plan.AggCountAll, Alias: "_count._all", Type: schema.Int},
		{Func: plan.AggAvg, Column: "price", Alias: "_avg.price", Type: schema.Float},
		{Func: plan.AggSum, Column: "stock", Alias: "_sum.stock", Type: schema.Int},
		{Func: plan.AggMax, Column: "createdAt", Alias: "_max.createdAt", Type: schema.DateTime},
	}, agg.Funcs)
	assert.NotNil(t, agg.Source.Where)

	_, err = c.Aggregate("Product", &ast.AggregateArgs{Avg: []string{"name"}})
	assert.ErrorIs(t, err, tdalerr.ErrInvalidArgument)

	_, err = c.Aggregate("Product", &ast.AggregateArgs{})
	assert.ErrorIs(t, err, tdalerr.ErrInvalidArgument)

	count, err := c.Count("Product", nil)
	require.NoError(t, err)
	assert.Equal(t, "_count._all", count.Funcs[0].Alias)
}

func TestGroupBy(t *testing.T) {
	c := newCompiler()
	agg, err := c.GroupBy("Product", &ast.GroupByArgs{
		By:      []string{"stock"},
		Having:  ast.Cond{Field: "stock", Op: ast.OpGreater, Value: 5, Aggregate: ast.AggSum},
		OrderBy: []ast.Order{ast.Desc("stock")},
		Count:   []string{ast.CountAll},
	})
	require.NoError(t, err)
	assert.Equal(t, []plan.Column{{Field: "stock", Name: "stock", Type: schema.Int}}, agg.GroupBy)
	assert.Equal(t, plan.Compare{Column: "stock", Op: plan.Gt, Value: int64(5), Type: schema.Int, Agg: plan.AggSum}, agg.Having)

	tests := []struct {
		name string
		args *ast.GroupByArgs
		want error
	}{
		{"no by", &ast.GroupByArgs{}, tdalerr.ErrInvalidArgument},
		{"having outside by", &ast.GroupByArgs{By: []string{"stock"}, Having: ast.Gt("price", 1)}, tdalerr.ErrInvalidGroupBy},
		{"aggregate having outside by", &ast.GroupByArgs{By: []string{"stock"}, Having: ast.Cond{Field: "price", Op: ast.OpGreater, Value: 1, Aggregate: ast.AggAvg}}, tdalerr.ErrInvalidGroupBy},
		{"orderBy outside by", &ast.GroupByArgs{By: []string{"stock"}, OrderBy: []ast.Order{ast.Asc("name")}}, tdalerr.ErrInvalidGroupBy},
		{"unknown by", &ast.GroupByArgs{By: []string{"weight"}}, tdalerr.ErrUnknownField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.GroupBy("Product", tt.args)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
