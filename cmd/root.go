// Package cmd implements the importer command-line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/importer/cmd/common"
	"github.com/jonesrussell/north-cloud/importer/cmd/migrate"
	cmdpipeline "github.com/jonesrussell/north-cloud/importer/cmd/pipeline"
	"github.com/jonesrussell/north-cloud/importer/cmd/serve"
	cmdsources "github.com/jonesrussell/north-cloud/importer/cmd/sources"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

// Version is set at build time.
var Version = "dev"

// rootCmd represents the root command for the importer CLI.
var rootCmd = &cobra.Command{
	Use:   "importer",
	Short: "Resumable feed and file importer",
	Long: `Import items from feeds, files and web pages into records, one bounded
step at a time, and clear or expire what was imported.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&common.ConfigPath, "config", "",
		"config file (default is ./config.yml or ./config/config.yml)")
	rootCmd.PersistentFlags().BoolVar(&common.Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "importer version %s\n", Version)
		},
	})

	rootCmd.AddCommand(
		cmdpipeline.Command(domain.KindImport, "Import new and changed items of a source"),
		cmdpipeline.Command(domain.KindClear, "Delete every record imported by a source"),
		cmdpipeline.Command(domain.KindExpire, "Delete records older than the expiry age"),
		cmdsources.NewSourcesCommand(),
		serve.Command(),
		migrate.Command(),
	)
}
