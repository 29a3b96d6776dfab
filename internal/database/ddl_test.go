package database_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/tdal/examples/shop"
	"github.com/satishbabariya/tdal/internal/database"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
)

func tableNames(stmts []string) []string {
	var names []string
	for _, s := range stmts {
		rest := strings.TrimPrefix(s, "CREATE TABLE IF NOT EXISTS ")
		name, _, _ := strings.Cut(rest, " (")
		names = append(names, strings.Trim(name, "\"`"))
	}
	return names
}

func TestCreateTablesOrdersReferencedTablesFirst(t *testing.T) {
	stmts, err := database.CreateTables(shop.MustRegistry(), "sqlite")
	require.NoError(t, err)

	names := tableNames(stmts)
	require.Len(t, names, 7)
	pos := map[string]int{}
	for i, n := range names {
		pos[n] = i
	}
	assert.Less(t, pos["Product"], pos["Variant"])
	assert.Less(t, pos["Customer"], pos["orders"])
	assert.Less(t, pos["orders"], pos["OrderItem"])
	assert.Less(t, pos["Variant"], pos["OrderItem"])
	assert.Less(t, pos["admins"], pos["QuoteRequest"])
	assert.Less(t, pos["Customer"], pos["admins"])
}

func TestCreateTablesSQLite(t *testing.T) {
	stmts, err := database.CreateTables(shop.MustRegistry(), "sqlite3")
	require.NoError(t, err)
	ddl := strings.Join(stmts, "\n")

	assert.Contains(t, ddl, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`)
	assert.Contains(t, ddl, `"stock" INTEGER NOT NULL DEFAULT 0`)
	assert.Contains(t, ddl, `"status" TEXT NOT NULL DEFAULT 'PENDING'`)
	assert.Contains(t, ddl, `"createdAt" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP`)
	assert.Contains(t, ddl, `"description" TEXT,`)
	assert.Contains(t, ddl, `CONSTRAINT "Product_sku_key" UNIQUE ("sku")`)
	assert.Contains(t, ddl, `CONSTRAINT "OrderItem_pkey" PRIMARY KEY ("orderId", "variantId")`)
	assert.Contains(t, ddl, `CONSTRAINT "OrderItem_orderId_fkey" FOREIGN KEY ("orderId") REFERENCES "orders" ("id") ON DELETE CASCADE ON UPDATE CASCADE`)
	assert.Contains(t, ddl, `CONSTRAINT "Variant_productId_fkey" FOREIGN KEY ("productId") REFERENCES "Product" ("id") ON DELETE RESTRICT ON UPDATE CASCADE`)
	assert.Contains(t, ddl, `REFERENCES "Customer" ("id") ON DELETE SET NULL`)
	assert.NotContains(t, ddl, `"Product_pkey"`)
}

func TestCreateTablesPostgresAndMySQL(t *testing.T) {
	reg := shop.MustRegistry()

	pg, err := database.CreateTables(reg, "postgres")
	require.NoError(t, err)
	ddl := strings.Join(pg, "\n")
	assert.Contains(t, ddl, `"id" SERIAL NOT NULL`)
	assert.Contains(t, ddl, `"price" DOUBLE PRECISION NOT NULL`)
	assert.Contains(t, ddl, `"createdAt" TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP`)
	assert.Contains(t, ddl, `CONSTRAINT "Product_pkey" PRIMARY KEY ("id")`)

	my, err := database.CreateTables(reg, "mysql")
	require.NoError(t, err)
	ddl = strings.Join(my, "\n")
	assert.Contains(t, ddl, "`id` INT NOT NULL AUTO_INCREMENT")
	assert.Contains(t, ddl, "`sku` VARCHAR(191) NOT NULL")
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS `orders`")
	assert.Contains(t, ddl, "CONSTRAINT `Product_pkey` PRIMARY KEY (`id`)")
}

func TestCreateTablesRejectsUnknownProvider(t *testing.T) {
	_, err := database.CreateTables(shop.MustRegistry(), "oracle")
	assert.Error(t, err)
}

func TestPushEnforcesForeignKeys(t *testing.T) {
	ctx := context.Background()
	pool := openMemory(t)
	reg := shop.MustRegistry()

	require.NoError(t, database.Push(ctx, pool.DB(), reg, pool.Provider()))
	// Tables already exist; a second push is a no-op.
	require.NoError(t, database.Push(ctx, pool.DB(), reg, pool.Provider()))

	db := pool.DB()
	_, err := db.ExecContext(ctx, `INSERT INTO "Product" ("sku", "name", "price", "updatedAt") VALUES ('MUG', 'Mug', 9.5, CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO "Variant" ("sku", "productId") VALUES ('MUG-RED', 1)`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO "Variant" ("sku", "productId") VALUES ('GHOST', 42)`)
	require.Error(t, err)
	assert.True(t, tdalerr.IsIntegrityViolation(tdalerr.FromDriver(err, "Variant")))

	_, err = db.ExecContext(ctx, `DELETE FROM "Product" WHERE "id" = 1`)
	require.Error(t, err)
	assert.True(t, tdalerr.IsIntegrityViolation(tdalerr.FromDriver(err, "Product")))

	var stock int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT "stock" FROM "Variant" WHERE "sku" = 'MUG-RED'`).Scan(&stock))
	assert.Zero(t, stock)
}
