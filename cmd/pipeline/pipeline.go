// Package pipeline implements the import, clear and expire commands.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/importer/cmd/common"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/scheduler"
)

// Command returns the command running one pipeline for a source.
func Command(kind domain.PipelineKind, short string) *cobra.Command {
	var single bool

	cmd := &cobra.Command{
		Use:   string(kind) + " <source-id>",
		Short: short,
		Long: fmt.Sprintf(`Run the %s pipeline of a source until it completes.

With --step only one bounded step runs; call the command again to resume.`, kind),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd.OutOrStdout(), kind, args[0], single)
		},
	}
	cmd.Flags().BoolVar(&single, "step", false, "run a single step and report progress")
	return cmd
}

func run(ctx context.Context, out io.Writer, kind domain.PipelineKind, sourceID string, single bool) error {
	app, cleanup, err := common.NewApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	batch := scheduler.NewBatch(app.Runner, app.Logger,
		scheduler.WithMaxSteps(app.Config.Scheduler.MaxSteps),
		scheduler.WithProgress(func(_ string, k domain.PipelineKind, p float64) {
			fmt.Fprintf(out, "%s: %5.1f%%\n", k, p*100)
		}))

	var progress float64
	if single {
		progress, err = batch.Step(ctx, sourceID, kind)
	} else {
		progress, err = batch.Run(ctx, sourceID, kind)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", kind, sourceID, err)
	}

	if progress < 1 {
		fmt.Fprintf(out, "%s of %s is %.1f%% done, run again to resume\n", kind, sourceID, progress*100)
		return nil
	}

	if kind != domain.KindImport {
		fmt.Fprintf(out, "%s of %s complete\n", kind, sourceID)
		return nil
	}
	src, err := app.Sources.Get(ctx, sourceID)
	if err != nil {
		return err
	}
	renderSummary(out, src)
	return nil
}

func renderSummary(out io.Writer, src *domain.Source) {
	if src.LastResult == nil {
		fmt.Fprintf(out, "import of %s complete\n", src.ID)
		return
	}

	s := src.LastResult
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Source " + src.ID)
	t.AppendHeader(table.Row{"Pipeline", "Created", "Updated", "Deleted", "Skipped", "Failed", "Finished"})
	t.AppendRow(table.Row{s.Pipeline, s.Created, s.Updated, s.Deleted, s.Skipped, s.Failed, s.FinishedAt.Local().Format("2006-01-02 15:04:05")})
	t.Render()
}
