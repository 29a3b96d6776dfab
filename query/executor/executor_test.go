package executor_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/tdal/query/executor"
	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/query/sqlgen"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

func mockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func newExecutor(t *testing.T, provider string, opts ...executor.Option) *executor.Executor {
	t.Helper()
	gen, err := sqlgen.NewGenerator(provider)
	require.NoError(t, err)
	return executor.New(gen, opts...)
}

func ptr(n int) *int { return &n }

var productColumns = []plan.Column{
	{Field: "id", Name: "id", Type: schema.Int},
	{Field: "name", Name: "name", Type: schema.String},
}

func TestSelectDecodesColumns(t *testing.T) {
	db, mock := mockDB(t)
	ex := newExecutor(t, "postgres")
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	mock.ExpectQuery(`SELECT t0."id", t0."name", t0."price", t0."active", t0."createdAt", t0."attrs" FROM "Product" AS t0 WHERE t0."id" = $1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "active", "createdAt", "attrs"}).
			AddRow(int64(1), []byte("Mug"), []byte("12.50"), int64(1), created, []byte(`{"color":"red"}`)))

	rows, err := ex.Select(context.Background(), db, &plan.Select{
		Entity: "Product",
		Table:  "Product",
		Columns: append(append([]plan.Column(nil), productColumns...),
			plan.Column{Field: "price", Name: "price", Type: schema.Decimal},
			plan.Column{Field: "active", Name: "active", Type: schema.Boolean},
			plan.Column{Field: "createdAt", Name: "createdAt", Type: schema.DateTime},
			plan.Column{Field: "attrs", Name: "attrs", Type: schema.Json},
		),
		Where: plan.Compare{Column: "id", Op: plan.Eq, Value: int64(1), Type: schema.Int},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, plan.Row{
		"id":        int64(1),
		"name":      "Mug",
		"price":     12.5,
		"active":    true,
		"createdAt": created.UTC(),
		"attrs":     map[string]any{"color": "red"},
	}, rows[0])

	snap := ex.Stats().Stats()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Zero(t, snap.Errors)
}

func TestSelectDistinctAndReverse(t *testing.T) {
	db, mock := mockDB(t)
	ex := newExecutor(t, "sqlite")

	// take -2 over name, distinct by name: ordering is inverted and the window applies in memory
	mock.ExpectQuery(`SELECT t0."id", t0."name" FROM "Product" AS t0 ORDER BY t0."id" DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(4), "b").
			AddRow(int64(3), "b").
			AddRow(int64(2), "a").
			AddRow(int64(1), "c"))

	rows, err := ex.Select(context.Background(), db, &plan.Select{
		Entity:   "Product",
		Table:    "Product",
		Columns:  productColumns,
		OrderBy:  []plan.Order{{Column: "id", Desc: true}},
		Limit:    ptr(2),
		Reverse:  true,
		Distinct: []string{"name"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0]["id"])
	assert.Equal(t, int64(4), rows[1]["id"])
}

func TestFindSeeksFromCursor(t *testing.T) {
	db, mock := mockDB(t)
	ex := newExecutor(t, "sqlite")
	find := func() *plan.Find {
		return &plan.Find{
			Select: &plan.Select{
				Entity:  "Product",
				Table:   "Product",
				Columns: productColumns,
				OrderBy: []plan.Order{{Column: "id"}},
				Limit:   ptr(2),
			},
			Cursor: &plan.Select{
				Entity:  "Product",
				Table:   "Product",
				Columns: []plan.Column{{Field: "id", Name: "id", Type: schema.Int}},
				Where:   plan.Compare{Column: "id", Op: plan.Eq, Value: int64(2), Type: schema.Int},
			},
		}
	}

	mock.ExpectQuery(`SELECT t0."id" FROM "Product" AS t0 WHERE t0."id" = ? LIMIT 1`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectQuery(`SELECT t0."id", t0."name" FROM "Product" AS t0 WHERE ((t0."id" > ?) OR (t0."id" = ?)) ORDER BY t0."id" ASC LIMIT 2`).
		WithArgs(int64(2), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(2), "b").AddRow(int64(3), "c"))

	f := find()
	rows, err := ex.Find(context.Background(), db, f)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Nil(t, f.Select.Where, "the compiled plan is left untouched")

	// a cursor row that no longer exists matches nothing
	mock.ExpectQuery(`SELECT t0."id" FROM "Product" AS t0 WHERE t0."id" = ? LIMIT 1`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT t0."id", t0."name" FROM "Product" AS t0 WHERE 1=0 ORDER BY t0."id" ASC LIMIT 2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	rows, err = ex.Find(context.Background(), db, find())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func customerInsert() *plan.Insert {
	return &plan.Insert{
		Entity:  "Customer",
		Table:   "Customer",
		Columns: []string{"email", "name"},
		Rows:    [][]any{{"a@example.com", "A"}},
		Returning: []plan.Column{
			{Field: "id", Name: "id", Type: schema.Int},
			{Field: "email", Name: "email", Type: schema.String},
			{Field: "name", Name: "name", Type: schema.String},
		},
		AutoIncrement: "id",
		Key:           []string{"id"},
	}
}

func TestInsertReturning(t *testing.T) {
	db, mock := mockDB(t)
	ex := newExecutor(t, "postgres")

	mock.ExpectQuery(`INSERT INTO "Customer" ("email", "name") VALUES ($1, $2) RETURNING "id", "email", "name"`).
		WithArgs("a@example.com", "A").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).AddRow(int64(1), "a@example.com", "A"))

	rows, err := ex.Insert(context.Background(), db, customerInsert())
	require.NoError(t, err)
	assert.Equal(t, []plan.Row{{"id": int64(1), "email": "a@example.com", "name": "A"}}, rows)
}

func TestInsertReadsBackWithoutReturning(t *testing.T) {
	db, mock := mockDB(t)
	ex := newExecutor(t, "mysql")

	mock.ExpectExec("INSERT INTO `Customer` (`email`, `name`) VALUES (?, ?)").
		WithArgs("a@example.com", "A").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery("SELECT t0.`id`, t0.`email`, t0.`name` FROM `Customer` AS t0 WHERE (t0.`id` = ?) LIMIT 1").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).AddRow(int64(7), "a@example.com", "A"))

	rows, err := ex.Insert(context.Background(), db, customerInsert())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0]["id"])
}

func TestInsertSkipsDuplicatesWithoutReturning(t *testing.T) {
	db, mock := mockDB(t)
	ex := newExecutor(t, "mysql")
	ins := customerInsert()
	ins.SkipDuplicates = true

	mock.ExpectExec("INSERT IGNORE INTO `Customer` (`email`, `name`) VALUES (?, ?)").
		WithArgs("a@example.com", "A").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := ex.Insert(context.Background(), db, ins)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestInsertCount(t *testing.T) {
	db, mock := mockDB(t)
	ex := newExecutor(t, "postgres")
	ins := customerInsert()
	ins.Rows = append(ins.Rows, []any{"b@example.com", "B"})
	ins.SkipDuplicates = true

	mock.ExpectExec(`INSERT INTO "Customer" ("email", "name") VALUES ($1, $2), ($3, $4) ON CONFLICT DO NOTHING`).
		WithArgs("a@example.com", "A", "b@example.com", "B").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := ex.InsertCount(context.Background(), db, ins)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), ex.Stats().Stats().TotalExecs)
}

func TestUpsertReadsBackMovedKey(t *testing.T) {
	db, mock := mockDB(t)
	ex := newExecutor(t, "mysql")
	up := &plan.Upsert{
		Insert: plan.Insert{
			Entity:  "Product",
			Table:   "Product",
			Columns: []string{"sku", "name"},
			Rows:    [][]any{{"MUG", "Mug"}},
			Returning: []plan.Column{
				{Field: "sku", Name: "sku", Type: schema.String},
				{Field: "name", Name: "name", Type: schema.String},
			},
		},
		ConflictColumns: []string{"sku"},
		Set:             []plan.Assign{{Column: "sku", Op: plan.AssignSet, Value: "MUG-2"}},
	}

	// two affected rows: the existing row was updated
	mock.ExpectExec("INSERT INTO `Product` (`sku`, `name`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `sku` = ?").
		WithArgs("MUG", "Mug", "MUG-2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("SELECT t0.`sku`, t0.`name` FROM `Product` AS t0 WHERE (t0.`sku` = ?) LIMIT 1").
		WithArgs("MUG-2").
		WillReturnRows(sqlmock.NewRows([]string{"sku", "name"}).AddRow("MUG-2", "Old mug"))

	row, err := ex.Upsert(context.Background(), db, up)
	require.NoError(t, err)
	assert.Equal(t, "MUG-2", row["sku"])
}

func TestUpdateWithoutAssignmentsCounts(t *testing.T) {
	db, mock := mockDB(t)
	ex := newExecutor(t, "postgres")

	mock.ExpectQuery(`SELECT COUNT(*) AS "_count._all" FROM "Product" AS t0 WHERE t0."stock" = $1`).
		WithArgs(int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"_count._all"}).AddRow(int64(3)))

	n, err := ex.Update(context.Background(), db, &plan.Update{
		Entity: "Product",
		Table:  "Product",
		Where:  plan.Compare{Column: "stock", Op: plan.Eq, Value: int64(0), Type: schema.Int},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestDeleteClassifiesDriverErrors(t *testing.T) {
	db, mock := mockDB(t)
	ex := newExecutor(t, "mysql")

	mock.ExpectExec("DELETE FROM `Product` AS t0 WHERE t0.`id` = ?").
		WithArgs(int64(1)).
		WillReturnError(&mysql.MySQLError{
			Number:  1451,
			Message: "Cannot delete or update a parent row: a foreign key constraint fails (`shop`.`Variant`, CONSTRAINT `Variant_productId_fkey` FOREIGN KEY (`productId`) REFERENCES `Product` (`id`))",
		})

	_, err := ex.Delete(context.Background(), db, &plan.Delete{
		Entity: "Product",
		Table:  "Product",
		Where:  plan.Compare{Column: "id", Op: plan.Eq, Value: int64(1), Type: schema.Int},
	})
	require.Error(t, err)
	assert.True(t, tdalerr.IsIntegrityViolation(err))

	var te *tdalerr.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Product", te.Entity)
	assert.Equal(t, tdalerr.ViolationForeignKey, te.Violation)
	assert.Equal(t, "Variant_productId_fkey", te.Constraint)
	assert.Equal(t, int64(1), ex.Stats().Stats().Errors)
}

func TestAggregateScansAliases(t *testing.T) {
	db, mock := mockDB(t)
	ex := newExecutor(t, "postgres")

	mock.ExpectQuery(`SELECT t0."status", COUNT(*) AS "_count._all", AVG(t0."total") AS "_avg.total" FROM "Order" AS t0 GROUP BY t0."status"`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "_count._all", "_avg.total"}).
			AddRow("PAID", int64(2), []byte("15.5000")).
			AddRow("PENDING", int64(1), nil))

	rows, err := ex.Aggregate(context.Background(), db, &plan.Aggregate{
		Entity: "Order",
		Source: &plan.Select{Entity: "Order", Table: "Order"},
		Funcs: []plan.Aggregation{
			{Func: plan.AggCountAll, Alias: "_count._all", Type: schema.Int},
			{Func: plan.AggAvg, Column: "total", Alias: "_avg.total", Type: schema.Float},
		},
		GroupBy: []plan.Column{{Field: "status", Name: "status", Type: schema.EnumType}},
	})
	require.NoError(t, err)
	assert.Equal(t, []plan.Row{
		{"status": "PAID", "_count._all": int64(2), "_avg.total": 15.5},
		{"status": "PENDING", "_count._all": int64(1), "_avg.total": nil},
	}, rows)
}

func TestSlowQueryHook(t *testing.T) {
	db, mock := mockDB(t)
	var slow []string
	ex := newExecutor(t, "sqlite",
		executor.WithSlowThreshold(time.Millisecond),
		executor.WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			slow = append(slow, query)
		}),
	)

	mock.ExpectExec(`DELETE FROM "Product" AS t0`).
		WillDelayFor(5 * time.Millisecond).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := ex.Delete(context.Background(), db, &plan.Delete{Entity: "Product", Table: "Product"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, []string{`DELETE FROM "Product" AS t0`}, slow)

	snap := ex.Stats().Stats()
	assert.Equal(t, int64(1), snap.SlowQueries)
	assert.Contains(t, snap.String(), "slow=1")
	ex.Stats().Reset()
	assert.Zero(t, ex.Stats().Stats().TotalExecs)
}

func TestPaginate(t *testing.T) {
	rows := []plan.Row{{"n": 1}, {"n": 2}, {"n": 3}}
	assert.Len(t, executor.Paginate(rows, 0, nil), 3)
	assert.Equal(t, []plan.Row{{"n": 2}}, executor.Paginate(rows, 1, ptr(1)))
	assert.Empty(t, executor.Paginate(rows, 5, nil))
	assert.Equal(t, rows, executor.Distinct(rows, nil))
}

func TestInsertConflictNamesUniqueKey(t *testing.T) {
	db, mock := mockDB(t)
	ex := newExecutor(t, "sqlite")
	ins := &plan.Insert{
		Entity:  "OrderItem",
		Table:   "OrderItem",
		Columns: []string{"orderId", "variantId", "quantity"},
		Rows:    [][]any{{int64(1), int64(2), int64(3)}},
		Returning: []plan.Column{
			{Field: "orderId", Name: "orderId", Type: schema.Int},
			{Field: "variantId", Name: "variantId", Type: schema.Int},
			{Field: "quantity", Name: "quantity", Type: schema.Int},
		},
		Uniques: []plan.UniqueKey{{
			Name:    "OrderItem_pkey",
			Primary: true,
			Fields:  []string{"orderId", "variantId"},
			Columns: []string{"orderId", "variantId"},
		}},
	}

	mock.ExpectQuery(`INSERT INTO "OrderItem" ("orderId", "variantId", "quantity") VALUES (?, ?, ?) RETURNING "orderId", "variantId", "quantity"`).
		WithArgs(int64(1), int64(2), int64(3)).
		WillReturnError(errors.New("UNIQUE constraint failed: OrderItem.orderId, OrderItem.variantId"))

	_, err := ex.Insert(context.Background(), db, ins)
	require.Error(t, err)
	var te *tdalerr.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "OrderItem_pkey", te.Constraint)
	assert.Equal(t, []string{"orderId", "variantId"}, te.Fields)
	assert.Equal(t, map[string]any{"orderId": int64(1), "variantId": int64(2)}, te.Value)
}

func TestUpdateConflictMatchesMySQLKeyName(t *testing.T) {
	db, mock := mockDB(t)
	ex := newExecutor(t, "mysql")

	mock.ExpectExec("UPDATE `Product` AS t0 SET `sku` = ? WHERE t0.`id` = ?").
		WithArgs("CUP", int64(1)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'CUP' for key 'Product.Product_sku_key'"})

	_, err := ex.Update(context.Background(), db, &plan.Update{
		Entity: "Product",
		Table:  "Product",
		Set:    []plan.Assign{{Column: "sku", Op: plan.AssignSet, Value: "CUP"}},
		Where:  plan.Compare{Column: "id", Op: plan.Eq, Value: int64(1), Type: schema.Int},
		Uniques: []plan.UniqueKey{
			{Name: "Product_pkey", Primary: true, Fields: []string{"id"}, Columns: []string{"id"}},
			{Name: "Product_sku_key", Fields: []string{"sku"}, Columns: []string{"sku"}},
		},
	})
	var te *tdalerr.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Product_sku_key", te.Constraint)
	assert.Equal(t, "sku", te.Field)
	assert.Equal(t, "CUP", te.Value)
}
