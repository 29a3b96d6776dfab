package client

import (
	"context"
	"log/slog"
	"time"
)

// QueryEvent describes one delegate operation passing through the middleware chain.
type QueryEvent struct {
	Model     string
	Operation string
	Args      any
	// Transaction is set when the operation runs on a transaction-scoped client.
	Transaction bool
	// Result is set once the operation has run.
	Result   any
	Duration time.Duration
	Error    error
	Start    time.Time
	End      time.Time
}

// Middleware is a function that intercepts operations. Calling next runs the rest of the
// chain and the operation itself.
type Middleware func(ctx context.Context, event *QueryEvent, next func() error) error

// intercept runs exec through the middleware chain.
func (c *Client) intercept(ctx context.Context, model, op string, args any, exec func() (any, error)) (any, error) {
	if len(c.middlewares) == 0 {
		return exec()
	}

	event := &QueryEvent{
		Model:       model,
		Operation:   op,
		Args:        args,
		Transaction: c.tx != nil,
		Start:       time.Now(),
	}

	var next func() error
	index := 0

	next = func() error {
		if index >= len(c.middlewares) {
			result, err := exec()
			event.End = time.Now()
			event.Duration = event.End.Sub(event.Start)
			event.Result = result
			event.Error = err
			return err
		}

		middleware := c.middlewares[index]
		index++
		return middleware(ctx, event, next)
	}

	err := next()
	return event.Result, err
}

// LoggingMiddleware logs every operation at debug level and failures at error level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil {
			logger.ErrorContext(ctx, "operation failed",
				"model", event.Model, "operation", event.Operation, "duration", event.Duration, "error", err)
		} else {
			logger.DebugContext(ctx, "operation completed",
				"model", event.Model, "operation", event.Operation, "duration", event.Duration)
		}
		return err
	}
}

// TimingMiddleware creates a middleware that measures operation time
func TimingMiddleware(onTiming func(model, operation string, duration time.Duration)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(event.Model, event.Operation, event.Duration)
		}
		return err
	}
}

// ErrorMiddleware creates a middleware that handles errors
func ErrorMiddleware(onError func(model, operation string, err error)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil && onError != nil {
			onError(event.Model, event.Operation, err)
		}
		return err
	}
}
