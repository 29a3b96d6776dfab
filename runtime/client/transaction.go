package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/satishbabariya/tdal/runtime/tdalerr"
)

// IsolationLevel represents transaction isolation levels. The level is handed to the driver
// as is; backends that do not support a level reject the transaction.
type IsolationLevel int

const (
	// DefaultIsolation uses the backend default.
	DefaultIsolation IsolationLevel = iota
	// ReadUncommitted allows dirty reads
	ReadUncommitted
	// ReadCommitted prevents dirty reads
	ReadCommitted
	// RepeatableRead prevents dirty reads and non-repeatable reads
	RepeatableRead
	// Serializable prevents dirty reads, non-repeatable reads, and phantom reads
	Serializable
)

// ToSQLIsolationLevel converts IsolationLevel to sql.IsolationLevel
func (level IsolationLevel) ToSQLIsolationLevel() sql.IsolationLevel {
	switch level {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case ReadCommitted:
		return sql.LevelReadCommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// ParseIsolationLevel parses names such as "read committed" or "Serializable".
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	switch s {
	case "", "default":
		return DefaultIsolation, nil
	case "read uncommitted", "ReadUncommitted", "read_uncommitted":
		return ReadUncommitted, nil
	case "read committed", "ReadCommitted", "read_committed":
		return ReadCommitted, nil
	case "repeatable read", "RepeatableRead", "repeatable_read":
		return RepeatableRead, nil
	case "serializable", "Serializable":
		return Serializable, nil
	}
	return DefaultIsolation, fmt.Errorf("unknown isolation level %q", s)
}

const (
	// DefaultMaxWait bounds acquiring a connection for a transaction.
	DefaultMaxWait = 2 * time.Second
	// DefaultTimeout bounds a whole transaction.
	DefaultTimeout = 5 * time.Second
)

// TxOptions configures a transaction. Zero durations disable the bound.
type TxOptions struct {
	Isolation IsolationLevel
	ReadOnly  bool
	MaxWait   time.Duration
	Timeout   time.Duration
}

// TxOption adjusts the options of one transaction.
type TxOption func(*TxOptions)

// WithIsolation sets the isolation level.
func WithIsolation(level IsolationLevel) TxOption {
	return func(o *TxOptions) { o.Isolation = level }
}

// WithMaxWait bounds acquiring the connection.
func WithMaxWait(d time.Duration) TxOption {
	return func(o *TxOptions) { o.MaxWait = d }
}

// WithTimeout bounds the whole transaction.
func WithTimeout(d time.Duration) TxOption {
	return func(o *TxOptions) { o.Timeout = d }
}

// ReadOnly starts a read-only transaction.
func ReadOnly() TxOption {
	return func(o *TxOptions) { o.ReadOnly = true }
}

// TransactionFunc runs inside a transaction. tx is scoped to the transaction and must not be
// used after the function returns or from several goroutines.
type TransactionFunc func(ctx context.Context, tx *Client) error

// Transaction runs fn in a database transaction. The transaction commits when fn returns nil
// and rolls back otherwise; fn's error is returned unchanged. Exceeding MaxWait or Timeout
// rolls back and returns a Timeout error.
//
// Called on a transaction-scoped client, Transaction runs fn under a savepoint of the
// enclosing transaction instead.
func (c *Client) Transaction(ctx context.Context, fn TransactionFunc, opts ...TxOption) error {
	if c.tx != nil {
		return c.savepoint(ctx, fn)
	}
	o := c.txDefaults
	for _, opt := range opts {
		opt(&o)
	}

	waitCtx, cancelWait := withOptionalTimeout(ctx, o.MaxWait)
	conn, err := c.db.Conn(waitCtx)
	cancelWait()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return tdalerr.Timeout("no connection available within %s", o.MaxWait)
		}
		return tdalerr.FromDriver(err, "")
	}
	defer conn.Close()

	txCtx, cancel := withOptionalTimeout(ctx, o.Timeout)
	defer cancel()
	sqlTx, err := conn.BeginTx(txCtx, &sql.TxOptions{
		Isolation: o.Isolation.ToSQLIsolationLevel(),
		ReadOnly:  o.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", tdalerr.FromDriver(err, ""))
	}

	expired := func() bool {
		return errors.Is(txCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	}

	// Defer rollback in case of panic
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txCtx, c.withTx(sqlTx)); err != nil {
		_ = sqlTx.Rollback()
		if expired() {
			return tdalerr.Timeout("transaction exceeded %s: %v", o.Timeout, err)
		}
		return err
	}
	if expired() {
		_ = sqlTx.Rollback()
		return tdalerr.Timeout("transaction exceeded %s", o.Timeout)
	}
	if err := sqlTx.Commit(); err != nil {
		if expired() {
			return tdalerr.Timeout("transaction exceeded %s", o.Timeout)
		}
		return fmt.Errorf("failed to commit transaction: %w", tdalerr.FromDriver(err, ""))
	}
	return nil
}

// savepoint runs fn as a nested transaction.
func (c *Client) savepoint(ctx context.Context, fn TransactionFunc) error {
	scope := c.tx
	scope.depth++
	defer func() { scope.depth-- }()
	name := fmt.Sprintf("sp_%d", scope.depth)

	if _, err := scope.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", tdalerr.FromDriver(err, ""))
	}

	// Defer rollback to savepoint in case of panic
	defer func() {
		if p := recover(); p != nil {
			_, _ = scope.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
			panic(p)
		}
	}()

	if err := fn(ctx, c); err != nil {
		if _, rbErr := scope.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("nested transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	if _, err := scope.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", tdalerr.FromDriver(err, ""))
	}
	return nil
}

// Op is one operation of a batch.
type Op func(ctx context.Context, tx *Client) (any, error)

// Batch runs ops in order inside one transaction and returns their results. Any failure rolls
// every operation back and is returned as TransactionAborted.
func (c *Client) Batch(ctx context.Context, ops []Op, opts ...TxOption) ([]any, error) {
	results := make([]any, len(ops))
	err := c.Transaction(ctx, func(ctx context.Context, tx *Client) error {
		for i, op := range ops {
			r, err := op(ctx, tx)
			if err != nil {
				return fmt.Errorf("batch operation %d: %w", i, err)
			}
			results[i] = r
		}
		return nil
	}, opts...)
	if err != nil {
		return nil, abort(err)
	}
	return results, nil
}

// atomic runs a multi-statement write in its own transaction, or under a savepoint when c is
// already transaction-scoped. Failures surface as TransactionAborted.
func (c *Client) atomic(ctx context.Context, fn TransactionFunc) error {
	if err := c.Transaction(ctx, fn); err != nil {
		return abort(err)
	}
	return nil
}

func abort(err error) error {
	switch tdalerr.KindOf(err) {
	case tdalerr.KindTransactionAborted, tdalerr.KindTimeout:
		return err
	}
	return tdalerr.TransactionAborted(err)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
