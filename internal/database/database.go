// Package database opens connection pools for the supported providers and keeps them healthy.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"

	"github.com/satishbabariya/tdal/internal/debug"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
)

// Config holds connection and pool configuration.
type Config struct {
	// Provider is postgresql, mysql or sqlite.
	Provider string
	// Driver overrides the database/sql driver: postgres or pgx for postgresql, sqlite3 or
	// sqlite for sqlite.
	Driver string
	URL    string

	// MaxOpenConns is the maximum number of open connections (0 = unlimited).
	MaxOpenConns int
	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int
	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime is the maximum idle time of a connection.
	ConnMaxIdleTime time.Duration
	// ConnectTimeout bounds the initial ping.
	ConnectTimeout time.Duration
	// HealthCheckInterval is how often to ping in the background (0 = never).
	HealthCheckInterval time.Duration
}

// DefaultConfig returns sensible default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NormalizeProvider maps provider aliases to postgresql, mysql or sqlite.
func NormalizeProvider(provider string) (string, error) {
	switch strings.ToLower(provider) {
	case "postgresql", "postgres", "pg":
		return "postgresql", nil
	case "mysql":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported provider: %q", provider)
}

// DriverName returns the database/sql driver used for cfg.
func DriverName(cfg Config) (string, error) {
	provider, err := NormalizeProvider(cfg.Provider)
	if err != nil {
		return "", err
	}
	switch provider {
	case "postgresql":
		switch cfg.Driver {
		case "", "postgres", "pq":
			return "postgres", nil
		case "pgx":
			return "pgx", nil
		}
	case "mysql":
		if cfg.Driver == "" || cfg.Driver == "mysql" {
			return "mysql", nil
		}
	case "sqlite":
		switch cfg.Driver {
		case "", "sqlite3":
			return "sqlite3", nil
		case "sqlite", "modernc":
			return "sqlite", nil
		}
	}
	return "", fmt.Errorf("driver %q cannot serve provider %s", cfg.Driver, provider)
}

// DataSourceName turns a connection URL into the DSN the driver expects. MySQL URLs may use
// the mysql:// scheme; sqlite URLs may use the file: prefix. Foreign keys are enabled on
// sqlite and MySQL reports matched rather than changed rows.
func DataSourceName(driver, raw string) (string, error) {
	switch driver {
	case "mysql":
		return mysqlDSN(raw)
	case "sqlite3":
		return withParams(raw, "_foreign_keys=1"), nil
	case "sqlite":
		return withParams(raw, "_pragma=foreign_keys(1)", "_time_format=sqlite"), nil
	}
	return raw, nil
}

func mysqlDSN(raw string) (string, error) {
	var cfg *mysql.Config
	if strings.HasPrefix(raw, "mysql://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("invalid mysql url: %w", err)
		}
		cfg = mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		if u.User != nil {
			cfg.User = u.User.Username()
			cfg.Passwd, _ = u.User.Password()
		}
		if len(u.Query()) > 0 {
			cfg.Params = map[string]string{}
			for k, v := range u.Query() {
				cfg.Params[k] = v[0]
			}
		}
	} else {
		var err error
		if cfg, err = mysql.ParseDSN(raw); err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func withParams(dsn string, params ...string) string {
	var missing []string
	for _, p := range params {
		name, _, _ := strings.Cut(p, "=")
		if !strings.Contains(dsn, name+"=") {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(missing, "&")
}

// Pool manages a connection pool and its background health checks.
type Pool struct {
	db       *sql.DB
	config   Config
	provider string

	mu              sync.RWMutex
	failedChecks    int64
	lastHealthCheck time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open opens and pings a pool for cfg. sqlite pools hold a single connection so in-memory
// databases and pragmas survive.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	provider, err := NormalizeProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	driver, err := DriverName(cfg)
	if err != nil {
		return nil, err
	}
	dsn, err := DataSourceName(driver, strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(openName(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if provider == "sqlite" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	pingCtx, cancelPing := ctx, context.CancelFunc(func() {})
	if cfg.ConnectTimeout > 0 {
		pingCtx, cancelPing = context.WithTimeout(ctx, cfg.ConnectTimeout)
	}
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, tdalerr.BackendUnavailable(err)
	}
	debug.Debug("database opened", "provider", provider, "driver", driver)

	bg, cancel := context.WithCancel(context.Background())
	p := &Pool{db: db, config: cfg, provider: provider, ctx: bg, cancel: cancel}
	if cfg.HealthCheckInterval > 0 {
		p.wg.Add(1)
		go p.healthCheckLoop()
	}
	return p, nil
}

// DB returns the underlying *sql.DB.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Provider returns the normalized provider.
func (p *Pool) Provider() string {
	return p.provider
}

// PoolStats represents pool statistics.
type PoolStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
	FailedHealthChecks int64
	LastHealthCheck    time.Time
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := p.db.Stats()
	return PoolStats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
		FailedHealthChecks: p.failedChecks,
		LastHealthCheck:    p.lastHealthCheck,
	}
}

// HealthCheck pings the database.
func (p *Pool) HealthCheck(ctx context.Context) error {
	p.mu.Lock()
	p.lastHealthCheck = time.Now()
	p.mu.Unlock()

	if err := p.db.PingContext(ctx); err != nil {
		p.mu.Lock()
		p.failedChecks++
		p.mu.Unlock()
		debug.Warn("health check failed", "provider", p.provider, "error", err)
		return tdalerr.BackendUnavailable(err)
	}
	return nil
}

func (p *Pool) healthCheckLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
			_ = p.HealthCheck(ctx)
			cancel()
		}
	}
}

// Close stops the health checks and closes the pool.
func (p *Pool) Close() error {
	p.cancel()
	p.wg.Wait()
	return p.db.Close()
}
