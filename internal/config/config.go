// Package config loads tdal settings from .tdal.yaml, TDAL_* environment variables and dotenv files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/satishbabariya/tdal/internal/database"
	"github.com/satishbabariya/tdal/internal/debug"
	"github.com/satishbabariya/tdal/runtime/client"
)

// AppFs is the filesystem config and dotenv files are read from.
var AppFs = afero.NewOsFs()

const (
	// FileName is the config file name without extension.
	FileName = ".tdal"
	// EnvPrefix prefixes every environment override, e.g. TDAL_TX_TIMEOUT.
	EnvPrefix = "TDAL"
)

// Config holds the application configuration.
type Config struct {
	Provider    string `mapstructure:"provider"`
	Driver      string `mapstructure:"driver"`
	DatabaseURL string `mapstructure:"database_url"`
	SchemaPath  string `mapstructure:"schema_path"`

	Pool     PoolConfig     `mapstructure:"pool"`
	Tx       TxConfig       `mapstructure:"tx"`
	Log      LogConfig      `mapstructure:"log"`
	Query    QueryConfig    `mapstructure:"query"`
	Resolver ResolverConfig `mapstructure:"resolver"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`

	env *Env
}

type PoolConfig struct {
	MaxOpenConns        int           `mapstructure:"max_open_conns"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime     time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `mapstructure:"connect_timeout"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
}

type TxConfig struct {
	MaxWait   time.Duration `mapstructure:"max_wait"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Isolation string        `mapstructure:"isolation"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type QueryConfig struct {
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

type ResolverConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is read instead of searching the default locations. It must exist.
	ConfigFile string
	// Dir holds the .env and .env.local files. Empty means the working directory.
	Dir string
}

func setDefaults(v *viper.Viper) {
	pool := database.DefaultConfig()
	v.SetDefault("provider", "")
	v.SetDefault("driver", "")
	v.SetDefault("database_url", "")
	v.SetDefault("schema_path", "")
	v.SetDefault("pool.max_open_conns", pool.MaxOpenConns)
	v.SetDefault("pool.max_idle_conns", pool.MaxIdleConns)
	v.SetDefault("pool.conn_max_lifetime", pool.ConnMaxLifetime)
	v.SetDefault("pool.conn_max_idle_time", pool.ConnMaxIdleTime)
	v.SetDefault("pool.connect_timeout", pool.ConnectTimeout)
	v.SetDefault("pool.health_check_interval", time.Duration(0))
	v.SetDefault("tx.max_wait", client.DefaultMaxWait)
	v.SetDefault("tx.timeout", client.DefaultTimeout)
	v.SetDefault("tx.isolation", "")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("query.slow_threshold", time.Duration(0))
	v.SetDefault("resolver.concurrency", 4)
}

// Load reads configuration. Precedence, highest first: .env.local, process environment, .env,
// config file, defaults. DATABASE_URL is used when database_url is not set otherwise.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	v.SetFs(AppFs)
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "tdal"))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	env, err := LoadEnv(opts.Dir)
	if err != nil {
		return nil, err
	}
	for _, key := range v.AllKeys() {
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if val, ok := env.dotenv(name); ok {
			v.Set(key, val)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.env = env
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL, _ = env.Lookup("DATABASE_URL")
	}
	return cfg, nil
}

// LookupEnv resolves name against .env.local, the process environment and .env, in that order.
func (c *Config) LookupEnv(name string) (string, bool) {
	if c.env == nil {
		return os.LookupEnv(name)
	}
	return c.env.Lookup(name)
}

// Database returns the pool configuration.
func (c *Config) Database() database.Config {
	return database.Config{
		Provider:            c.Provider,
		Driver:              c.Driver,
		URL:                 c.DatabaseURL,
		MaxOpenConns:        c.Pool.MaxOpenConns,
		MaxIdleConns:        c.Pool.MaxIdleConns,
		ConnMaxLifetime:     c.Pool.ConnMaxLifetime,
		ConnMaxIdleTime:     c.Pool.ConnMaxIdleTime,
		ConnectTimeout:      c.Pool.ConnectTimeout,
		HealthCheckInterval: c.Pool.HealthCheckInterval,
	}
}

// Logging returns the options for debug.Configure.
func (c *Config) Logging() debug.Options {
	return debug.Options{Level: c.Log.Level, Format: c.Log.Format}
}

// ClientOptions maps the transaction, query and resolver settings to client options.
func (c *Config) ClientOptions() ([]client.Option, error) {
	isolation, err := client.ParseIsolationLevel(c.Tx.Isolation)
	if err != nil {
		return nil, err
	}
	opts := []client.Option{
		client.WithTxDefaults(client.TxOptions{
			Isolation: isolation,
			MaxWait:   c.Tx.MaxWait,
			Timeout:   c.Tx.Timeout,
		}),
		client.WithConcurrency(c.Resolver.Concurrency),
	}
	if c.Provider != "" {
		opts = append(opts, client.WithProvider(c.Provider))
	}
	if c.Query.SlowThreshold > 0 {
		opts = append(opts, client.WithSlowQueryThreshold(c.Query.SlowThreshold))
	}
	return opts, nil
}

// Save writes cfg as YAML to path, or to ~/.config/tdal/.tdal.yaml when path is empty.
// Connection strings are not written when they came from DATABASE_URL.
func Save(cfg *Config, path string) error {
	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			return err
		}
		path = filepath.Join(home, ".config", "tdal", FileName+".yaml")
	}
	if err := AppFs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	v := viper.New()
	v.SetFs(AppFs)
	v.Set("provider", cfg.Provider)
	v.Set("driver", cfg.Driver)
	if url, ok := cfg.LookupEnv("DATABASE_URL"); !ok || url != cfg.DatabaseURL {
		v.Set("database_url", cfg.DatabaseURL)
	}
	v.Set("schema_path", cfg.SchemaPath)
	v.Set("pool.max_open_conns", cfg.Pool.MaxOpenConns)
	v.Set("pool.max_idle_conns", cfg.Pool.MaxIdleConns)
	v.Set("pool.conn_max_lifetime", cfg.Pool.ConnMaxLifetime.String())
	v.Set("pool.conn_max_idle_time", cfg.Pool.ConnMaxIdleTime.String())
	v.Set("pool.connect_timeout", cfg.Pool.ConnectTimeout.String())
	v.Set("pool.health_check_interval", cfg.Pool.HealthCheckInterval.String())
	v.Set("tx.max_wait", cfg.Tx.MaxWait.String())
	v.Set("tx.timeout", cfg.Tx.Timeout.String())
	v.Set("tx.isolation", cfg.Tx.Isolation)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("query.slow_threshold", cfg.Query.SlowThreshold.String())
	v.Set("resolver.concurrency", cfg.Resolver.Concurrency)
	return v.WriteConfigAs(path)
}

// Env layers dotenv files over the process environment.
type Env struct {
	base  map[string]string // .env
	local map[string]string // .env.local
}

// LoadEnv parses dir/.env and dir/.env.local from AppFs. Missing files are skipped.
func LoadEnv(dir string) (*Env, error) {
	if dir == "" {
		dir = "."
	}
	base, err := readDotenv(filepath.Join(dir, ".env"))
	if err != nil {
		return nil, err
	}
	local, err := readDotenv(filepath.Join(dir, ".env.local"))
	if err != nil {
		return nil, err
	}
	return &Env{base: base, local: local}, nil
}

func readDotenv(path string) (map[string]string, error) {
	if _, err := AppFs.Stat(path); err != nil {
		return nil, nil
	}
	data, err := afero.ReadFile(AppFs, path)
	if err != nil {
		return nil, err
	}
	vars, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return vars, nil
}

// Lookup resolves name.
func (e *Env) Lookup(name string) (string, bool) {
	if v, ok := e.local[name]; ok {
		return v, true
	}
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	v, ok := e.base[name]
	return v, ok
}

// dotenv returns a value that must be applied on top of viper's own environment lookup:
// anything from .env.local, and .env entries the process environment does not define.
func (e *Env) dotenv(name string) (string, bool) {
	if v, ok := e.local[name]; ok {
		return v, true
	}
	if _, ok := os.LookupEnv(name); ok {
		return "", false
	}
	v, ok := e.base[name]
	return v, ok
}
