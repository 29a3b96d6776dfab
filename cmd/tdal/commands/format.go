package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/tdal/internal/config"
	"github.com/satishbabariya/tdal/schema/dsl"
)

// errNotFormatted is returned by format --check when the file would change.
var errNotFormatted = errors.New("schema is not formatted")

func newFormatCommand(a *app) *cobra.Command {
	var check, diff bool
	cmd := &cobra.Command{
		Use:   "format",
		Short: "Format a .tdal schema file",
		Long:  "Rewrite the schema in canonical layout. Comments are dropped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(a, check, diff)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "fail if the file is not formatted instead of rewriting it")
	cmd.Flags().BoolVar(&diff, "diff", false, "print the changes")
	return cmd
}

func runFormat(a *app, check, diff bool) error {
	path, err := a.schemaFile()
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tdal", ".prisma":
	default:
		return fmt.Errorf("format only supports .tdal and .prisma files, got %s", path)
	}

	src, err := afero.ReadFile(config.AppFs, path)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	formatted, err := dsl.FormatSource(path, string(src))
	if err != nil {
		return err
	}
	if formatted == string(src) {
		a.ui.Success("%s is already formatted", path)
		return nil
	}
	if diff {
		a.ui.Diff(string(src), formatted)
	}
	if check {
		return fmt.Errorf("%s: %w", path, errNotFormatted)
	}
	if err := afero.WriteFile(config.AppFs, path, []byte(formatted), 0o644); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	a.ui.Success("Formatted %s", path)
	return nil
}
