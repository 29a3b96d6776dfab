// Package commands implements the tdal CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/tdal/internal/config"
	"github.com/satishbabariya/tdal/internal/database"
	"github.com/satishbabariya/tdal/internal/debug"
	"github.com/satishbabariya/tdal/internal/ui"
	"github.com/satishbabariya/tdal/internal/version"
	"github.com/satishbabariya/tdal/runtime/client"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
	"github.com/satishbabariya/tdal/schema/source"
)

// app is the state shared by every command of one invocation.
type app struct {
	configFile string
	schemaPath string
	url        string
	provider   string
	logLevel   string

	cfg *config.Config
	ui  *ui.Printer
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCommand()
	err := root.Execute()
	if err != nil {
		printer := ui.New(root.OutOrStdout(), root.ErrOrStderr())
		printer.Error("%v", err)
		var schemaErr *tdalerr.SchemaError
		if errors.As(err, &schemaErr) && len(schemaErr.Problems) > 1 {
			printer.Problems(schemaErr.Problems)
		}
	}
	return err
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "tdal",
		Short:         "Typed data access for Go",
		Long:          "tdal validates entity schemas, bootstraps databases and runs Prisma-shaped query documents.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: .tdal.yaml in ., $HOME or ~/.config/tdal)")
	flags.StringVar(&a.schemaPath, "schema", "", "path to the schema file")
	flags.StringVar(&a.url, "url", "", "database connection URL (overrides config and schema)")
	flags.StringVar(&a.provider, "provider", "", "database provider: postgresql, mysql or sqlite")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newInitCommand(a),
		newValidateCommand(a),
		newFormatCommand(a),
		newDescribeCommand(a),
		newDBCommand(a),
		newQueryCommand(a),
		newVersionCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	a.ui = ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.Load(config.Options{ConfigFile: a.configFile})
	if err != nil {
		return err
	}
	if a.url != "" {
		cfg.DatabaseURL = a.url
	}
	if a.provider != "" {
		cfg.Provider = a.provider
	}
	if a.schemaPath != "" {
		cfg.SchemaPath = a.schemaPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg

	logOpts := cfg.Logging()
	logOpts.Output = cmd.ErrOrStderr()
	return debug.Configure(logOpts)
}

// schemaFile returns the schema to work on: --schema, then schema_path, then schema.<ext> in the
// working directory.
func (a *app) schemaFile() (string, error) {
	if a.cfg.SchemaPath != "" {
		return a.cfg.SchemaPath, nil
	}
	if path, ok := source.Find(config.AppFs, "."); ok {
		return path, nil
	}
	return "", fmt.Errorf("no schema found: pass --schema or set schema_path (looked for schema%v)", source.Extensions)
}

func (a *app) registry() (*schema.Registry, string, error) {
	path, err := a.schemaFile()
	if err != nil {
		return nil, "", err
	}
	reg, err := source.Registry(config.AppFs, path, source.WithLookup(a.cfg.LookupEnv))
	if err != nil {
		return nil, path, err
	}
	return reg, path, nil
}

// databaseConfig fills the provider and URL from the schema datasource when the config leaves
// them empty.
func (a *app) databaseConfig(reg *schema.Registry) (database.Config, error) {
	cfg := a.cfg.Database()
	if cfg.Provider == "" {
		cfg.Provider = reg.Provider()
	}
	if cfg.URL == "" {
		cfg.URL = reg.URL()
	}
	if cfg.URL == "" {
		return cfg, errors.New("no database URL: set DATABASE_URL, database_url or --url")
	}
	return cfg, nil
}

func (a *app) open(ctx context.Context, reg *schema.Registry) (*database.Pool, error) {
	cfg, err := a.databaseConfig(reg)
	if err != nil {
		return nil, err
	}
	return database.Open(ctx, cfg)
}

func (a *app) client(pool *database.Pool, reg *schema.Registry) (*client.Client, error) {
	opts, err := a.cfg.ClientOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, client.WithProvider(pool.Provider()))
	return client.New(pool.DB(), reg, opts...)
}
