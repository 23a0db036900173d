// Package serve implements the serve command.
package serve

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/importer/cmd/common"
)

// Command returns the serve command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the import scheduler",
		Long: `Serve the HTTP API, run scheduled imports of due sources and reload the
source type catalog when it changes. Stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, cleanup, err := common.NewApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			return app.Serve(ctx)
		},
	}
}
