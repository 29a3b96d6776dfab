package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/tdal/internal/watch"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
)

func newValidateCommand(a *app) *cobra.Command {
	var watchMode bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the schema",
		Long:  "Parse and validate the schema, reporting every problem found. With --watch, re-validate on every save.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !watchMode {
				return runValidate(a)
			}
			path, err := a.schemaFile()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watchValidate(ctx, a, path)
		},
	}
	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "re-validate when the schema file changes")
	return cmd
}

func runValidate(a *app) error {
	reg, path, err := a.registry()
	if err != nil {
		return err
	}
	a.ui.Success("Schema %s is valid", path)
	a.ui.List([]string{
		fmt.Sprintf("provider: %s", reg.Provider()),
		fmt.Sprintf("%d entities", len(reg.ModelNames())),
		fmt.Sprintf("%d enums", len(reg.EnumNames())),
	})
	return nil
}

func watchValidate(ctx context.Context, a *app, path string) error {
	w, err := watch.New(path, watch.DefaultDebounce, func() error {
		if err := runValidate(a); err != nil {
			a.ui.Error("%s", headline(err))
			var schemaErr *tdalerr.SchemaError
			if errors.As(err, &schemaErr) && len(schemaErr.Problems) > 1 {
				a.ui.Problems(schemaErr.Problems)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.ui.Info("Watching %s (Ctrl+C to stop)", path)
	return w.Run(ctx)
}

// headline returns the first line of err's message.
func headline(err error) string {
	line, _, _ := strings.Cut(err.Error(), "\n")
	return line
}
