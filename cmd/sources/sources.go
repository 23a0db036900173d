// Package sources implements the commands managing sources and listing
// source types.
package sources

import (
	"github.com/spf13/cobra"
)

// NewSourcesCommand creates the sources command.
func NewSourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage sources",
		Long:  `Register sources and inspect their pipeline state.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		NewListCommand(),
		NewAddCommand(),
		NewTypesCommand(),
	)
	return cmd
}
