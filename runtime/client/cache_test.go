package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/query/cache"
	"github.com/satishbabariya/tdal/runtime/client"
)

func TestCacheMiddlewareServesRepeatedReads(t *testing.T) {
	lru := cache.New[any](64, time.Minute)
	c := newClient(t, client.WithMiddleware(client.CacheMiddleware(lru, 0)))
	ctx := context.Background()
	createProduct(t, c, "MUG", 9.5)
	createProduct(t, c, "CUP", 4)
	products := c.MustModel("Product")

	args := &ast.FindArgs{Where: ast.Gt("price", 5)}
	rows, err := products.FindMany(ctx, args)
	require.NoError(t, err)
	require.Equal(t, []string{"MUG"}, skus(rows))
	queries := c.Stats().TotalQueries

	rows[0]["sku"] = "changed"
	again, err := products.FindMany(ctx, &ast.FindArgs{Where: ast.Gt("price", 5)})
	require.NoError(t, err)
	assert.Equal(t, []string{"MUG"}, skus(again), "cached rows are copies")
	assert.Equal(t, queries, c.Stats().TotalQueries)
	assert.Equal(t, int64(1), lru.Stats().Hits)

	cheap, err := products.FindMany(ctx, &ast.FindArgs{Where: ast.Gt("price", 1)})
	require.NoError(t, err)
	assert.Len(t, cheap, 2)
	assert.Greater(t, c.Stats().TotalQueries, queries)

	n, err := products.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = products.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(2), lru.Stats().Hits)
}

func TestCacheMiddlewareClearsOnWrite(t *testing.T) {
	lru := cache.New[any](64, 0)
	c := newClient(t, client.WithMiddleware(client.CacheMiddleware(lru, time.Minute)))
	ctx := context.Background()
	createProduct(t, c, "MUG", 9.5)

	assert.Equal(t, int64(1), count(t, c, "Product"))
	assert.Equal(t, 1, lru.Stats().Size)

	createProduct(t, c, "CUP", 4)
	assert.Zero(t, lru.Stats().Size)
	assert.Equal(t, int64(2), count(t, c, "Product"))

	_, err := c.MustModel("Product").DeleteMany(ctx, ast.Eq("sku", "CUP"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count(t, c, "Product"))
}

func TestCacheMiddlewareBypassesTransactions(t *testing.T) {
	lru := cache.New[any](64, time.Minute)
	c := newClient(t, client.WithMiddleware(client.CacheMiddleware(lru, 0)))
	ctx := context.Background()
	createProduct(t, c, "MUG", 9.5)

	err := c.Transaction(ctx, func(ctx context.Context, tx *client.Client) error {
		for range 2 {
			rows, err := tx.MustModel("Product").FindMany(ctx, nil)
			if err != nil {
				return err
			}
			assert.Len(t, rows, 1)
		}
		return nil
	})
	require.NoError(t, err)
	s := lru.Stats()
	assert.Zero(t, s.Hits)
	assert.Zero(t, s.Misses)
	assert.Zero(t, s.Size)
}

func TestCacheMiddlewareKeepsEntriesOnResolve(t *testing.T) {
	lru := cache.New[any](64, time.Minute)
	c := newClient(t, client.WithMiddleware(client.CacheMiddleware(lru, 0)))
	ctx := context.Background()
	mug := createProduct(t, c, "MUG", 9.5, "MUG-RED")

	assert.Equal(t, int64(1), count(t, c, "Product"))
	require.Equal(t, 1, lru.Stats().Size)

	rows := []client.Row{mug}
	require.NoError(t, c.MustModel("Product").Resolve(ctx, rows, ast.Include{"variants": &ast.Nested{}}))
	variants, _ := rows[0]["variants"].([]client.Row)
	assert.Equal(t, []string{"MUG-RED"}, skus(variants))

	assert.Equal(t, 1, lru.Stats().Size)
	assert.Equal(t, int64(1), count(t, c, "Product"))
	assert.Equal(t, int64(1), lru.Stats().Hits)
}
