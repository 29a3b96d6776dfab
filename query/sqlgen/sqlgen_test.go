package sqlgen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/query/sqlgen"
	"github.com/satishbabariya/tdal/schema"
)

func generator(t *testing.T, provider string) sqlgen.Generator {
	t.Helper()
	g, err := sqlgen.NewGenerator(provider)
	require.NoError(t, err)
	return g
}

func ptr(n int) *int { return &n }

func TestNewGenerator(t *testing.T) {
	for provider, want := range map[string]string{
		"postgresql": "postgres",
		"postgres":   "postgres",
		"mysql":      "mysql",
		"sqlite":     "sqlite",
		"sqlite3":    "sqlite",
	} {
		assert.Equal(t, want, generator(t, provider).Provider())
	}
	_, err := sqlgen.NewGenerator("mssql")
	assert.Error(t, err)

	assert.True(t, generator(t, "postgres").Returning())
	assert.False(t, generator(t, "mysql").Returning())
}

func TestGenerateSelect(t *testing.T) {
	s := &plan.Select{
		Table: "Product",
		Columns: []plan.Column{
			{Field: "id", Name: "id", Type: schema.Int},
			{Field: "name", Name: "name", Type: schema.String},
		},
		Where: plan.And{
			plan.Or{
				plan.Compare{Column: "name", Op: plan.Contains, Value: "50%", Insensitive: true, Type: schema.String},
				plan.Compare{Column: "price", Op: plan.Gte, Value: 10.0, Type: schema.Float},
			},
			plan.Not{X: plan.Compare{Column: "stock", Op: plan.Eq, Value: int64(0), Type: schema.Int}},
		},
		OrderBy: []plan.Order{{Column: "price", Desc: true, Nulls: "last"}},
		Limit:   ptr(5),
		Offset:  10,
	}
	wantArgs := []any{`%50\%%`, 10.0, int64(0)}

	tests := []struct {
		provider string
		want     string
	}{
		{"postgres", `SELECT t0."id", t0."name" FROM "Product" AS t0 WHERE ((t0."name" ILIKE $1 OR t0."price" >= $2) AND NOT (t0."stock" = $3)) ORDER BY t0."price" DESC NULLS LAST LIMIT 5 OFFSET 10`},
		{"mysql", "SELECT t0.`id`, t0.`name` FROM `Product` AS t0 WHERE ((LOWER(t0.`name`) LIKE LOWER(?) OR t0.`price` >= ?) AND NOT (t0.`stock` = ?)) ORDER BY t0.`price` IS NULL ASC, t0.`price` DESC LIMIT 5 OFFSET 10"},
		{"sqlite", `SELECT t0."id", t0."name" FROM "Product" AS t0 WHERE ((LOWER(t0."name") LIKE LOWER(?) ESCAPE '\' OR t0."price" >= ?) AND NOT (t0."stock" = ?)) ORDER BY t0."price" DESC NULLS LAST LIMIT 5 OFFSET 10`},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			q := generator(t, tt.provider).GenerateSelect(s)
			assert.Equal(t, tt.want, q.SQL)
			assert.Equal(t, wantArgs, q.Args)
		})
	}
}

func TestGenerateSelectRelations(t *testing.T) {
	join := []plan.JoinKey{{Outer: "id", Inner: "productId"}}
	s := &plan.Select{
		Table:   "Product",
		Columns: []plan.Column{{Field: "id", Name: "id", Type: schema.Int}},
		Where: plan.And{
			plan.Exists{Table: "Variant", Join: join, Where: plan.Compare{Column: "stock", Op: plan.Gt, Value: int64(0), Type: schema.Int}},
			plan.Exists{Negate: true, Table: "Variant", Join: join},
		},
		OrderBy: []plan.Order{{Desc: true, Count: &plan.RelationCount{Table: "Variant", Join: join}}},
	}
	q := generator(t, "sqlite").GenerateSelect(s)
	assert.Equal(t, `SELECT t0."id" FROM "Product" AS t0 WHERE (`+
		`EXISTS (SELECT 1 FROM "Variant" AS t1 WHERE t1."productId" = t0."id" AND t1."stock" > ?) AND `+
		`NOT EXISTS (SELECT 1 FROM "Variant" AS t1 WHERE t1."productId" = t0."id")) `+
		`ORDER BY (SELECT COUNT(*) FROM "Variant" AS t1 WHERE t1."productId" = t0."id") DESC`, q.SQL)
	assert.Equal(t, []any{int64(0)}, q.Args)
}

func TestGenerateConditions(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		where    plan.Node
		want     string
		args     []any
	}{
		{"glob", "sqlite", plan.Compare{Column: "sku", Op: plan.StartsWith, Value: "a*b"}, `t0."sku" GLOB ?`, []any{"a[*]b*"}},
		{"like binary", "mysql", plan.Compare{Column: "sku", Op: plan.EndsWith, Value: "_x"}, "t0.`sku` LIKE BINARY ?", []any{`%\_x`}},
		{"like", "postgres", plan.Compare{Column: "sku", Op: plan.Contains, Value: "mug"}, `t0."sku" LIKE $1`, []any{"%mug%"}},
		{"in", "postgres", plan.Compare{Column: "id", Op: plan.In, Values: []any{int64(1), int64(2)}}, `t0."id" IN ($1, $2)`, []any{int64(1), int64(2)}},
		{"insensitive equals", "sqlite", plan.Compare{Column: "email", Op: plan.Eq, Value: "A@X", Insensitive: true}, `LOWER(t0."email") = LOWER(?)`, []any{"A@X"}},
		{"is null", "postgres", plan.Compare{Column: "note", Op: plan.IsNull}, `t0."note" IS NULL`, nil},
		{"literals", "sqlite", plan.Or{plan.Literal(false), plan.And{}}, `(1=0 OR 1=1)`, nil},
		{"empty or", "sqlite", plan.Or{}, `1=0`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := generator(t, tt.provider).GenerateSelect(&plan.Select{Table: "T", Where: tt.where})
			assert.Contains(t, q.SQL, " WHERE "+tt.want)
			assert.Equal(t, tt.args, q.Args)
		})
	}
}

func TestGenerateWindow(t *testing.T) {
	offsetOnly := &plan.Select{Table: "T", Offset: 3}
	assert.Equal(t, `SELECT t0.* FROM "T" AS t0 OFFSET 3`, generator(t, "postgres").GenerateSelect(offsetOnly).SQL)
	assert.Equal(t, "SELECT t0.* FROM `T` AS t0 LIMIT 18446744073709551615 OFFSET 3", generator(t, "mysql").GenerateSelect(offsetOnly).SQL)
	assert.Equal(t, `SELECT t0.* FROM "T" AS t0 LIMIT -1 OFFSET 3`, generator(t, "sqlite").GenerateSelect(offsetOnly).SQL)

	distinct := &plan.Select{Table: "T", Limit: ptr(1), Offset: 2, Distinct: []string{"name"}}
	assert.Equal(t, `SELECT t0.* FROM "T" AS t0`, generator(t, "sqlite").GenerateSelect(distinct).SQL)
}

func TestGenerateInsert(t *testing.T) {
	ins := &plan.Insert{
		Table:     "Customer",
		Columns:   []string{"email", "name"},
		Rows:      [][]any{{"a@example.com", "A"}, {"b@example.com", "B"}},
		Returning: []plan.Column{{Name: "id"}, {Name: "email"}},
	}
	q := generator(t, "postgres").GenerateInsert(ins)
	assert.Equal(t, `INSERT INTO "Customer" ("email", "name") VALUES ($1, $2), ($3, $4) RETURNING "id", "email"`, q.SQL)
	assert.Equal(t, []any{"a@example.com", "A", "b@example.com", "B"}, q.Args)

	ins.SkipDuplicates = true
	assert.Equal(t, `INSERT INTO "Customer" ("email", "name") VALUES ($1, $2), ($3, $4) ON CONFLICT DO NOTHING RETURNING "id", "email"`,
		generator(t, "postgres").GenerateInsert(ins).SQL)
	assert.Equal(t, "INSERT IGNORE INTO `Customer` (`email`, `name`) VALUES (?, ?), (?, ?)",
		generator(t, "mysql").GenerateInsert(ins).SQL)
	assert.Equal(t, `INSERT OR IGNORE INTO "Customer" ("email", "name") VALUES (?, ?), (?, ?) RETURNING "id", "email"`,
		generator(t, "sqlite").GenerateInsert(ins).SQL)

	empty := &plan.Insert{Table: "Tag", Rows: [][]any{{}}}
	assert.Equal(t, `INSERT INTO "Tag" DEFAULT VALUES`, generator(t, "sqlite").GenerateInsert(empty).SQL)
	assert.Equal(t, "INSERT INTO `Tag` () VALUES ()", generator(t, "mysql").GenerateInsert(empty).SQL)
}

func TestGenerateUpsert(t *testing.T) {
	up := &plan.Upsert{
		Insert: plan.Insert{
			Table:     "Product",
			Columns:   []string{"sku", "stock"},
			Rows:      [][]any{{"MUG", int64(1)}},
			Returning: []plan.Column{{Name: "id"}},
		},
		ConflictColumns: []string{"sku"},
		Set:             []plan.Assign{{Column: "stock", Op: plan.AssignAdd, Value: int64(1)}},
	}
	tests := []struct {
		provider string
		want     string
	}{
		{"postgres", `INSERT INTO "Product" ("sku", "stock") VALUES ($1, $2) ON CONFLICT ("sku") DO UPDATE SET "stock" = "Product"."stock" + $3 RETURNING "id"`},
		{"mysql", "INSERT INTO `Product` (`sku`, `stock`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `stock` = `stock` + ?"},
		{"sqlite", `INSERT INTO "Product" ("sku", "stock") VALUES (?, ?) ON CONFLICT ("sku") DO UPDATE SET "stock" = "stock" + ? RETURNING "id"`},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			q := generator(t, tt.provider).GenerateUpsert(up)
			assert.Equal(t, tt.want, q.SQL)
			assert.Equal(t, []any{"MUG", int64(1), int64(1)}, q.Args)
		})
	}

	up.Set = nil
	assert.Contains(t, generator(t, "postgres").GenerateUpsert(up).SQL, `DO UPDATE SET "sku" = EXCLUDED."sku"`)
	assert.Contains(t, generator(t, "mysql").GenerateUpsert(up).SQL, "ON DUPLICATE KEY UPDATE `sku` = `sku`")
}

func TestGenerateUpdateAndDelete(t *testing.T) {
	byID := plan.Compare{Column: "id", Op: plan.Eq, Value: int64(7)}
	u := &plan.Update{
		Table: "Product",
		Set: []plan.Assign{
			{Column: "stock", Op: plan.AssignSub, Value: int64(2)},
			{Column: "name", Op: plan.AssignSet, Value: "Mug"},
		},
		Where: byID,
	}
	q := generator(t, "postgres").GenerateUpdate(u)
	assert.Equal(t, `UPDATE "Product" AS t0 SET "stock" = t0."stock" - $1, "name" = $2 WHERE t0."id" = $3`, q.SQL)
	assert.Equal(t, []any{int64(2), "Mug", int64(7)}, q.Args)

	d := generator(t, "sqlite").GenerateDelete(&plan.Delete{Table: "Product", Where: byID})
	assert.Equal(t, `DELETE FROM "Product" AS t0 WHERE t0."id" = ?`, d.SQL)

	all := generator(t, "mysql").GenerateDelete(&plan.Delete{Table: "Product"})
	assert.Equal(t, "DELETE FROM `Product` AS t0", all.SQL)
	assert.Empty(t, all.Args)
}

func TestGenerateAggregate(t *testing.T) {
	g := generator(t, "sqlite")

	grouped := &plan.Aggregate{
		Source: &plan.Select{
			Table: "Product",
			Where: plan.Compare{Column: "stock", Op: plan.Gt, Value: int64(0)},
		},
		GroupBy: []plan.Column{{Field: "stock", Name: "stock"}},
		Funcs: []plan.Aggregation{
			{Func: plan.AggCountAll, Alias: "_count._all"},
			{Func: plan.AggSum, Column: "price", Alias: "_sum.price"},
		},
		Having:  plan.Compare{Column: "stock", Op: plan.Gt, Value: int64(5), Agg: plan.AggSum},
		OrderBy: []plan.Order{{Column: "stock", Agg: plan.AggSum, Desc: true}},
		Limit:   ptr(2),
	}
	q := g.GenerateAggregate(grouped)
	assert.Equal(t, `SELECT t0."stock", COUNT(*) AS "_count._all", SUM(t0."price") AS "_sum.price" FROM "Product" AS t0 `+
		`WHERE t0."stock" > ? GROUP BY t0."stock" HAVING SUM(t0."stock") > ? ORDER BY SUM(t0."stock") DESC LIMIT 2`, q.SQL)
	assert.Equal(t, []any{int64(0), int64(5)}, q.Args)

	windowed := &plan.Aggregate{
		Source: &plan.Select{
			Table:   "Product",
			Columns: []plan.Column{{Name: "price"}},
			OrderBy: []plan.Order{{Column: "price"}},
			Limit:   ptr(10),
		},
		Funcs: []plan.Aggregation{{Func: plan.AggAvg, Column: "price", Alias: "_avg.price"}},
	}
	assert.Equal(t, `SELECT AVG(t0."price") AS "_avg.price" FROM (SELECT t0."price" FROM "Product" AS t0 ORDER BY t0."price" ASC LIMIT 10) AS t0`,
		g.GenerateAggregate(windowed).SQL)
}
