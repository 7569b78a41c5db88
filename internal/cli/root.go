// Package cli provides the tcron command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"tcron/internal/app"
)

// NewRootCommand creates the root command. The container is opened by main and shared by
// every subcommand.
func NewRootCommand(c *app.Container, version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "tcron",
		Short: "Manage script tasks stored by tcrond",
		Long: `tcron manages the script tasks, execution history and exports kept in the
tcrond state directory (TCRON_STATE_DIR). It works on the database directly,
so the daemon does not need to be running.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newTaskCommand(c),
		newExportCommand(c),
		newImportCommand(c),
	)
	return root
}
