package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/tdal/internal/version"
)

func newVersionCommand(a *app) *cobra.Command {
	var asJSON bool
	var require string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print the CLI and engine versions. With --require, fail unless the CLI satisfies the constraint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if require != "" {
				ok, err := version.Satisfies(info.Version, require)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("tdal %s does not satisfy %q", info.Version, require)
				}
			}
			if asJSON {
				enc := json.NewEncoder(a.ui.Out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			_, err := fmt.Fprintln(a.ui.Out, info.FullString())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	cmd.Flags().StringVar(&require, "require", "", `version constraint the CLI must satisfy, e.g. ">= 0.3"`)
	return cmd
}
