// Package client is the caller-facing data-access API: a Client bound to a schema registry and a
// database, and one Delegate per entity exposing the CRUD, aggregate and relation operations.
package client

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/satishbabariya/tdal/internal/debug"
	"github.com/satishbabariya/tdal/query/compiler"
	"github.com/satishbabariya/tdal/query/executor"
	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/query/resolver"
	"github.com/satishbabariya/tdal/query/sqlgen"
	"github.com/satishbabariya/tdal/schema"
)

// Row is one result row keyed by field name. Relations hold a Row, nil or []Row; relation
// counts live under "_count".
type Row = plan.Row

// Client runs operations against one database for the entities of one registry. It is safe for
// concurrent use; a transaction-scoped client returned by Transaction is not.
type Client struct {
	db          *sql.DB
	reg         *schema.Registry
	compiler    *compiler.Compiler
	exec        *executor.Executor
	resolver    *resolver.Resolver
	logger      *slog.Logger
	middlewares []Middleware
	txDefaults  TxOptions

	// tx is set on transaction-scoped clients.
	tx *txScope
}

type txScope struct {
	tx    *sql.Tx
	depth int
}

type settings struct {
	provider     string
	logger       *slog.Logger
	compilerOpts []compiler.Option
	execOpts     []executor.Option
	resolverOpts []resolver.Option
	middlewares  []Middleware
	tx           TxOptions
}

// Option configures a Client.
type Option func(*settings)

// WithProvider selects the SQL dialect instead of the provider declared by the schema.
func WithProvider(provider string) Option {
	return func(s *settings) { s.provider = provider }
}

// WithLogger sets the logger used by the client and its executor.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithClock sets the source of now() defaults and @updatedAt values.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.compilerOpts = append(s.compilerOpts, compiler.WithClock(now)) }
}

// WithIDGenerator sets the source of uuid() defaults.
func WithIDGenerator(fn func() string) Option {
	return func(s *settings) { s.compilerOpts = append(s.compilerOpts, compiler.WithIDGenerator(fn)) }
}

// WithSlowQueryThreshold sets the duration above which statements are reported as slow.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(s *settings) { s.execOpts = append(s.execOpts, executor.WithSlowThreshold(d)) }
}

// WithSlowQueryHook is called for every slow statement instead of logging it.
func WithSlowQueryHook(hook executor.SlowQueryHook) Option {
	return func(s *settings) { s.execOpts = append(s.execOpts, executor.WithSlowQueryHook(hook)) }
}

// WithConcurrency bounds the sibling relation loads running at once outside transactions.
func WithConcurrency(n int) Option {
	return func(s *settings) { s.resolverOpts = append(s.resolverOpts, resolver.WithConcurrency(n)) }
}

// WithTxDefaults sets the options every transaction starts from.
func WithTxDefaults(o TxOptions) Option {
	return func(s *settings) { s.tx = o }
}

// WithMiddleware installs middlewares, outermost first.
func WithMiddleware(m ...Middleware) Option {
	return func(s *settings) { s.middlewares = append(s.middlewares, m...) }
}

// New returns a client for the entities of reg stored in db. The SQL dialect follows the
// registry's provider unless WithProvider overrides it.
func New(db *sql.DB, reg *schema.Registry, opts ...Option) (*Client, error) {
	s := &settings{
		provider: reg.Provider(),
		logger:   debug.Logger(),
		tx:       TxOptions{MaxWait: DefaultMaxWait, Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	gen, err := sqlgen.NewGenerator(s.provider)
	if err != nil {
		return nil, err
	}
	exec := executor.New(gen, append([]executor.Option{executor.WithLogger(s.logger)}, s.execOpts...)...)
	return &Client{
		db:          db,
		reg:         reg,
		compiler:    compiler.New(reg, s.compilerOpts...),
		exec:        exec,
		resolver:    resolver.New(exec, s.resolverOpts...),
		logger:      s.logger,
		middlewares: s.middlewares,
		txDefaults:  s.tx,
	}, nil
}

// Model returns the delegate of entity.
func (c *Client) Model(entity string) (*Delegate, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	return &Delegate{c: c, e: e}, nil
}

// MustModel is Model for entity names known to exist.
func (c *Client) MustModel(entity string) *Delegate {
	d, err := c.Model(entity)
	if err != nil {
		panic(err)
	}
	return d
}

// Use appends a middleware. It must not be called while operations are running.
func (c *Client) Use(m Middleware) {
	c.middlewares = append(c.middlewares, m)
}

// Registry returns the schema registry.
func (c *Client) Registry() *schema.Registry { return c.reg }

// DB returns the underlying connection pool.
func (c *Client) DB() *sql.DB { return c.db }

// Stats returns the statement counters.
func (c *Client) Stats() executor.StatsSnapshot { return c.exec.Stats().Stats() }

// InTransaction reports whether c is transaction-scoped.
func (c *Client) InTransaction() bool { return c.tx != nil }

// Ping checks that the database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) querier() executor.Querier {
	if c.tx != nil {
		return c.tx.tx
	}
	return c.db
}

func (c *Client) withTx(tx *sql.Tx) *Client {
	scoped := *c
	scoped.tx = &txScope{tx: tx}
	return &scoped
}
