package client_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/tdal/examples/shop"
	"github.com/satishbabariya/tdal/internal/database"
	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/runtime/client"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
)

// newClient returns a client over a fresh in-memory shop database.
func newClient(t *testing.T, opts ...client.Option) *client.Client {
	t.Helper()
	ctx := context.Background()

	cfg := database.DefaultConfig()
	cfg.Provider = "sqlite"
	cfg.Driver = "sqlite"
	cfg.URL = ":memory:"
	pool, err := database.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	reg := shop.MustRegistry()
	require.NoError(t, database.Push(ctx, pool.DB(), reg, pool.Provider()))

	c, err := client.New(pool.DB(), reg, opts...)
	require.NoError(t, err)
	return c
}

func createProduct(t *testing.T, c *client.Client, sku string, price float64, variants ...string) client.Row {
	t.Helper()
	data := ast.Data{"sku": sku, "name": sku, "price": price}
	if len(variants) > 0 {
		w := &ast.RelationWrite{}
		for _, v := range variants {
			w.Create = append(w.Create, ast.Data{"sku": v})
		}
		data["variants"] = w
	}
	row, err := c.MustModel("Product").Create(context.Background(), &ast.CreateArgs{Data: data})
	require.NoError(t, err)
	return row
}

func skus(rows []client.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i], _ = r["sku"].(string)
	}
	return out
}

func count(t *testing.T, c *client.Client, entity string) int64 {
	t.Helper()
	n, err := c.MustModel(entity).Count(context.Background(), nil)
	require.NoError(t, err)
	return n
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := client.New(nil, shop.MustRegistry(), client.WithProvider("oracle"))
	assert.Error(t, err)
}

func TestModelUnknownEntity(t *testing.T) {
	c := newClient(t)
	_, err := c.Model("Nope")
	assert.ErrorIs(t, err, tdalerr.ErrUnknownEntity)
	assert.Panics(t, func() { c.MustModel("Nope") })
	assert.Equal(t, "Product", c.MustModel("Product").Name())
}

func TestCreateFillsDefaults(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	row, err := c.MustModel("Product").Create(ctx, &ast.CreateArgs{
		Data: ast.Data{"sku": "MUG", "name": "Mug", "price": 9.5},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["id"])
	assert.Equal(t, "MUG", row["sku"])
	assert.Equal(t, 9.5, row["price"])
	assert.Equal(t, int64(0), row["stock"])
	assert.Nil(t, row["description"])
	assert.NotNil(t, row["createdAt"])
	assert.NotNil(t, row["updatedAt"])
	assert.NotContains(t, row, "variants")
}

func TestCreateValidatesBeforeIO(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	before := c.Stats().TotalQueries

	_, err := c.MustModel("Product").Create(ctx, &ast.CreateArgs{Data: ast.Data{"sku": "MUG", "price": 1.0}})
	require.Error(t, err)
	assert.True(t, tdalerr.IsValidation(err))
	var e *tdalerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "name", e.Field)

	_, err = c.MustModel("Product").Create(ctx, &ast.CreateArgs{Data: ast.Data{"sku": "MUG", "name": "Mug", "price": 1.0, "colour": "red"}})
	assert.ErrorIs(t, err, tdalerr.ErrUnknownField)

	_, err = c.MustModel("Product").Create(ctx, &ast.CreateArgs{Data: ast.Data{"sku": "MUG", "name": "Mug", "price": 1.0, "stock": ast.Increment(1)}})
	assert.True(t, tdalerr.IsValidation(err))

	assert.Equal(t, before, c.Stats().TotalQueries)
}

func TestCreateDuplicateIsIntegrityViolation(t *testing.T) {
	c := newClient(t)
	createProduct(t, c, "MUG", 9.5)

	_, err := c.MustModel("Product").Create(context.Background(), &ast.CreateArgs{
		Data: ast.Data{"sku": "MUG", "name": "Other", "price": 1.0},
	})
	require.Error(t, err)
	assert.True(t, tdalerr.IsIntegrityViolation(err))
	var e *tdalerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, tdalerr.ViolationUnique, e.Violation)
}

func TestCompositeKeyConflictNamesConstraint(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	createProduct(t, c, "MUG", 9.5, "MUG-RED")
	variant, err := c.MustModel("Variant").FindUniqueOrThrow(ctx, &ast.UniqueArgs{Where: ast.Unique{"sku": "MUG-RED"}})
	require.NoError(t, err)
	customer, err := c.MustModel("Customer").Create(ctx, &ast.CreateArgs{Data: ast.Data{"email": "ada@example.com", "name": "Ada"}})
	require.NoError(t, err)
	order, err := c.MustModel("Order").Create(ctx, &ast.CreateArgs{Data: ast.Data{"customerId": customer["id"]}})
	require.NoError(t, err)

	item := ast.Data{"orderId": order["id"], "variantId": variant["id"], "quantity": 1, "unitPrice": 9.5}
	_, err = c.MustModel("OrderItem").Create(ctx, &ast.CreateArgs{Data: item})
	require.NoError(t, err)

	_, err = c.MustModel("OrderItem").Create(ctx, &ast.CreateArgs{Data: item})
	require.Error(t, err)
	var e *tdalerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, tdalerr.ViolationUnique, e.Violation)
	assert.Equal(t, "OrderItem_pkey", e.Constraint)
	assert.Equal(t, []string{"orderId", "variantId"}, e.Fields)
	assert.Equal(t, map[string]any{"orderId": order["id"], "variantId": variant["id"]}, e.Value)

	_, err = c.MustModel("Customer").Create(ctx, &ast.CreateArgs{Data: ast.Data{"email": "ada@example.com", "name": "Again"}})
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Customer_email_key", e.Constraint)
	assert.Equal(t, "email", e.Field)
	assert.Equal(t, "ada@example.com", e.Value)
}

func TestFindMany(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	createProduct(t, c, "MUG", 9.5)
	createProduct(t, c, "CUP", 4)
	createProduct(t, c, "PLATE", 12)

	products := c.MustModel("Product")
	rows, err := products.FindMany(ctx, &ast.FindArgs{
		Where:   ast.Gt("price", 5),
		OrderBy: []ast.Order{ast.Desc("price")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"PLATE", "MUG"}, skus(rows))

	rows, err = products.FindMany(ctx, &ast.FindArgs{
		OrderBy: []ast.Order{ast.Asc("sku")},
		Skip:    1,
		Take:    ast.Ptr(1),
		Select:  ast.Select{"sku": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, []client.Row{{"sku": "MUG"}}, rows)

	rows, err = products.FindMany(ctx, &ast.FindArgs{Where: ast.Eq("sku", "BOWL")})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestFindFirstAndUnique(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	createProduct(t, c, "MUG", 9.5)
	createProduct(t, c, "CUP", 4)
	products := c.MustModel("Product")

	last, err := products.FindFirst(ctx, &ast.FindArgs{OrderBy: []ast.Order{ast.Asc("price")}, Take: ast.Ptr(-1)})
	require.NoError(t, err)
	assert.Equal(t, "MUG", last["sku"])

	none, err := products.FindFirst(ctx, &ast.FindArgs{Where: ast.Eq("sku", "BOWL")})
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = products.FindFirstOrThrow(ctx, &ast.FindArgs{Where: ast.Eq("sku", "BOWL")})
	assert.True(t, tdalerr.IsNotFound(err))

	row, err := products.FindUnique(ctx, &ast.UniqueArgs{Where: ast.Unique{"sku": "CUP"}})
	require.NoError(t, err)
	assert.Equal(t, 4.0, row["price"])

	row, err = products.FindUnique(ctx, &ast.UniqueArgs{Where: ast.Unique{"sku": "BOWL"}})
	require.NoError(t, err)
	assert.Nil(t, row)

	_, err = products.FindUniqueOrThrow(ctx, &ast.UniqueArgs{Where: ast.Unique{"id": 42}})
	assert.True(t, tdalerr.IsNotFound(err))

	_, err = products.FindUnique(ctx, &ast.UniqueArgs{Where: ast.Unique{"name": "Mug"}})
	assert.True(t, tdalerr.IsValidation(err))
}

func TestUpdate(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	createProduct(t, c, "MUG", 9.5)
	products := c.MustModel("Product")

	row, err := products.Update(ctx, &ast.UpdateArgs{
		Where: ast.Unique{"sku": "MUG"},
		Data:  ast.Data{"stock": ast.Increment(3), "description": "Large"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), row["stock"])
	assert.Equal(t, "Large", row["description"])

	row, err = products.Update(ctx, &ast.UpdateArgs{
		Where: ast.Unique{"sku": "MUG"},
		Data:  ast.Data{"sku": "BIG-MUG", "stock": ast.Multiply(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, "BIG-MUG", row["sku"])
	assert.Equal(t, int64(6), row["stock"])

	_, err = products.Update(ctx, &ast.UpdateArgs{Where: ast.Unique{"sku": "MUG"}, Data: ast.Data{"stock": 1}})
	assert.True(t, tdalerr.IsNotFound(err))
}

func TestUpdateManyAndDeleteMany(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	createProduct(t, c, "MUG", 9.5)
	createProduct(t, c, "CUP", 4)
	createProduct(t, c, "PLATE", 12)
	products := c.MustModel("Product")

	n, err := products.UpdateMany(ctx, &ast.UpdateManyArgs{
		Where: ast.Lt("price", 10),
		Data:  ast.Data{"stock": ast.Increment(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = products.UpdateMany(ctx, &ast.UpdateManyArgs{Where: ast.Eq("sku", "BOWL"), Data: ast.Data{"stock": 1}})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = products.DeleteMany(ctx, ast.Gte("stock", 5))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(1), count(t, c, "Product"))

	n, err = products.DeleteMany(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDelete(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	createProduct(t, c, "MUG", 9.5)
	products := c.MustModel("Product")

	row, err := products.Delete(ctx, &ast.DeleteArgs{Where: ast.Unique{"sku": "MUG"}, Select: ast.Select{"sku": nil}})
	require.NoError(t, err)
	assert.Equal(t, client.Row{"sku": "MUG"}, row)
	assert.Zero(t, count(t, c, "Product"))

	_, err = products.Delete(ctx, &ast.DeleteArgs{Where: ast.Unique{"sku": "MUG"}})
	assert.True(t, tdalerr.IsNotFound(err))
}

func TestDeleteRestrictedByRelatedRows(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	createProduct(t, c, "MUG", 9.5, "MUG-RED")

	_, err := c.MustModel("Product").Delete(ctx, &ast.DeleteArgs{Where: ast.Unique{"sku": "MUG"}})
	require.Error(t, err)
	assert.True(t, tdalerr.IsIntegrityViolation(err))
	assert.Equal(t, int64(1), count(t, c, "Product"))
	assert.Equal(t, int64(1), count(t, c, "Variant"))
}

func TestUpsert(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	products := c.MustModel("Product")

	args := &ast.UpsertArgs{
		Where:  ast.Unique{"sku": "MUG"},
		Create: ast.Data{"sku": "MUG", "name": "Mug", "price": 9.5},
		Update: ast.Data{"stock": ast.Increment(1)},
	}
	row, err := products.Upsert(ctx, args)
	require.NoError(t, err)
	assert.Equal(t, int64(0), row["stock"])

	row, err = products.Upsert(ctx, args)
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["stock"])
	assert.Equal(t, int64(1), count(t, c, "Product"))

	// Keyed by id, which the create payload does not set.
	byID := &ast.UpsertArgs{
		Where:  ast.Unique{"id": 7},
		Create: ast.Data{"sku": "CUP", "name": "Cup", "price": 4.0},
		Update: ast.Data{"name": "Renamed"},
	}
	row, err = products.Upsert(ctx, byID)
	require.NoError(t, err)
	assert.Equal(t, "Cup", row["name"])

	byID.Where = ast.Unique{"id": row["id"]}
	row, err = products.Upsert(ctx, byID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", row["name"])
	assert.Equal(t, int64(2), count(t, c, "Product"))
}

func TestUpsertCompositeKey(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	createProduct(t, c, "MUG", 9.5, "MUG-RED")
	customer, err := c.MustModel("Customer").Create(ctx, &ast.CreateArgs{Data: ast.Data{"email": "ada@example.com", "name": "Ada"}})
	require.NoError(t, err)
	order, err := c.MustModel("Order").Create(ctx, &ast.CreateArgs{Data: ast.Data{"customerId": customer["id"]}})
	require.NoError(t, err)
	variant, err := c.MustModel("Variant").FindUniqueOrThrow(ctx, &ast.UniqueArgs{Where: ast.Unique{"sku": "MUG-RED"}})
	require.NoError(t, err)

	key := ast.Unique{"orderId": order["id"], "variantId": variant["id"]}
	args := &ast.UpsertArgs{
		Where:  ast.Unique{"orderId_variantId": key},
		Create: ast.Data{"orderId": order["id"], "variantId": variant["id"], "quantity": 1, "unitPrice": 9.5},
		Update: ast.Data{"quantity": ast.Increment(1)},
	}
	items := c.MustModel("OrderItem")
	row, err := items.Upsert(ctx, args)
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["quantity"])

	row, err = items.Upsert(ctx, args)
	require.NoError(t, err)
	assert.Equal(t, int64(2), row["quantity"])
	assert.Equal(t, int64(1), count(t, c, "OrderItem"))
}

func TestUpsertUpdatesRowCreatedConcurrently(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	client.SetBeforeUpsertCreate(t, func(ctx context.Context, tx *client.Client) {
		_, err := tx.MustModel("Product").Create(ctx, &ast.CreateArgs{
			Data: ast.Data{"sku": "MUG", "name": "First", "price": 1.0},
		})
		require.NoError(t, err)
	})

	// The relation write keeps this upsert off the single-statement path.
	row, err := c.MustModel("Product").Upsert(ctx, &ast.UpsertArgs{
		Where: ast.Unique{"sku": "MUG"},
		Create: ast.Data{
			"sku": "MUG", "name": "Second", "price": 9.5,
			"variants": ast.Create(ast.Data{"sku": "MUG-RED"}),
		},
		Update:  ast.Data{"name": "Updated"},
		Include: ast.Include{"variants": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, "Updated", row["name"])
	assert.Equal(t, 1.0, row["price"])
	assert.Empty(t, row["variants"])
	assert.Equal(t, int64(1), count(t, c, "Product"))
	assert.Zero(t, count(t, c, "Variant"))
}

func TestCreateManyAndReturn(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	customers := c.MustModel("Customer")

	n, err := customers.CreateMany(ctx, &ast.CreateManyArgs{Data: []ast.Data{
		{"email": "ada@example.com", "name": "Ada"},
		{"email": "bob@example.com", "name": "Bob", "phone": "555"},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = customers.CreateMany(ctx, &ast.CreateManyArgs{
		Data: []ast.Data{
			{"email": "ada@example.com", "name": "Ada again"},
			{"email": "cy@example.com", "name": "Cy"},
		},
		SkipDuplicates: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = customers.CreateMany(ctx, &ast.CreateManyArgs{Data: []ast.Data{{"email": "bob@example.com", "name": "Bob"}}})
	assert.True(t, tdalerr.IsIntegrityViolation(err))

	rows, err := customers.CreateManyAndReturn(ctx, &ast.CreateManyArgs{
		Data:   []ast.Data{{"email": "di@example.com", "name": "Di"}},
		Select: ast.Select{"email": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, []client.Row{{"email": "di@example.com"}}, rows)

	_, err = customers.CreateManyAndReturn(ctx, &ast.CreateManyArgs{
		Data:   []ast.Data{{"email": "ed@example.com", "name": "Ed"}},
		Select: ast.Select{"orders": nil},
	})
	assert.True(t, tdalerr.IsValidation(err))
	assert.Equal(t, int64(4), count(t, c, "Customer"))
}

func TestCountAggregateGroupBy(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	createProduct(t, c, "MUG", 9.5, "MUG-RED", "MUG-BLUE")
	createProduct(t, c, "CUP", 4, "CUP-WHITE")
	variants := c.MustModel("Variant")
	_, err := variants.UpdateMany(ctx, &ast.UpdateManyArgs{Where: ast.StartsWith("sku", "MUG"), Data: ast.Data{"stock": 3}})
	require.NoError(t, err)

	n, err := variants.Count(ctx, &ast.CountArgs{Where: ast.StartsWith("sku", "MUG")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = variants.Count(ctx, &ast.CountArgs{Select: []string{"name"}})
	assert.True(t, tdalerr.IsValidation(err))

	counts, err := variants.CountFields(ctx, &ast.CountArgs{Select: []string{ast.CountAll, "name"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{ast.CountAll: 3, "name": 0}, counts)

	agg, err := variants.Aggregate(ctx, &ast.AggregateArgs{
		Count: []string{ast.CountAll},
		Sum:   []string{"stock"},
		Max:   []string{"stock"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, agg["_count"].(map[string]any)[ast.CountAll])
	assert.EqualValues(t, 6, agg["_sum"].(map[string]any)["stock"])
	assert.EqualValues(t, 3, agg["_max"].(map[string]any)["stock"])

	groups, err := variants.GroupBy(ctx, &ast.GroupByArgs{
		By:      []string{"productId"},
		Sum:     []string{"stock"},
		OrderBy: []ast.Order{ast.Asc("productId")},
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, int64(1), groups[0]["productId"])
	assert.EqualValues(t, 6, groups[0]["_sum"].(map[string]any)["stock"])
	assert.EqualValues(t, 0, groups[1]["_sum"].(map[string]any)["stock"])

	_, err = variants.GroupBy(ctx, &ast.GroupByArgs{By: []string{"productId"}, OrderBy: []ast.Order{ast.Asc("sku")}})
	assert.True(t, tdalerr.IsValidation(err))
}
