package client_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/runtime/client"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
)

func TestMiddlewareChain(t *testing.T) {
	var order []string
	trace := func(name string) client.Middleware {
		return func(ctx context.Context, event *client.QueryEvent, next func() error) error {
			order = append(order, name+">"+event.Model+"."+event.Operation)
			err := next()
			order = append(order, name+"<")
			return err
		}
	}
	c := newClient(t, client.WithMiddleware(trace("outer"), trace("inner")))
	ctx := context.Background()

	var timings []string
	c.Use(client.TimingMiddleware(func(model, operation string, d time.Duration) {
		assert.GreaterOrEqual(t, d, time.Duration(0))
		timings = append(timings, model+"."+operation)
	}))

	_, err := c.MustModel("Product").Create(ctx, &ast.CreateArgs{Data: productData("MUG")})
	require.NoError(t, err)

	assert.Equal(t, []string{"outer>Product.create", "inner>Product.create", "inner<", "outer<"}, order)
	assert.Equal(t, []string{"Product.create"}, timings)
}

func TestMiddlewareSeesResultAndError(t *testing.T) {
	var events []client.QueryEvent
	record := func(ctx context.Context, event *client.QueryEvent, next func() error) error {
		err := next()
		events = append(events, *event)
		return err
	}
	var failures []error
	c := newClient(t,
		client.WithMiddleware(record),
		client.WithMiddleware(client.ErrorMiddleware(func(model, operation string, err error) {
			failures = append(failures, err)
		})),
	)
	ctx := context.Background()
	products := c.MustModel("Product")

	_, err := products.Create(ctx, &ast.CreateArgs{Data: productData("MUG")})
	require.NoError(t, err)
	_, err = products.FindUniqueOrThrow(ctx, &ast.UniqueArgs{Where: ast.Unique{"sku": "CUP"}})
	require.Error(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "create", events[0].Operation)
	assert.Equal(t, "MUG", events[0].Result.(client.Row)["sku"])
	assert.NoError(t, events[0].Error)
	assert.False(t, events[0].End.Before(events[0].Start))

	assert.Equal(t, "findUniqueOrThrow", events[1].Operation)
	assert.True(t, tdalerr.IsNotFound(events[1].Error))
	require.Len(t, failures, 1)
	assert.True(t, tdalerr.IsNotFound(failures[0]))
}

func TestMiddlewareCanShortCircuit(t *testing.T) {
	denied := errors.New("read only")
	c := newClient(t, client.WithMiddleware(func(ctx context.Context, event *client.QueryEvent, next func() error) error {
		if event.Operation == "deleteMany" {
			return denied
		}
		return next()
	}))
	ctx := context.Background()
	createProduct(t, c, "MUG", 9.5)

	_, err := c.MustModel("Product").DeleteMany(ctx, nil)
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, int64(1), count(t, c, "Product"))
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := newClient(t, client.WithMiddleware(client.LoggingMiddleware(logger)))
	ctx := context.Background()

	createProduct(t, c, "MUG", 9.5)
	_, err := c.MustModel("Product").Delete(ctx, &ast.DeleteArgs{Where: ast.Unique{"sku": "CUP"}})
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `msg="operation completed" model=Product operation=create`)
	assert.Contains(t, out, `msg="operation failed" model=Product operation=delete`)
}
