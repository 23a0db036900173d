package sources

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/importer/cmd/common"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

// NewListCommand creates the sources list command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all sources",
		Long:  `List all sources with their type, last import and pipelines in progress.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := common.NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			list, err := app.Sources.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sources: %w", err)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sources configured")
				return nil
			}
			RenderTable(cmd.OutOrStdout(), list)
			return nil
		},
	}
}

// RenderTable writes sources as a table.
func RenderTable(out io.Writer, list []*domain.Source) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Type", "Last import", "Created", "Updated", "Failed", "In progress"})

	for _, src := range list {
		imported := "never"
		if src.Imported != nil {
			imported = src.Imported.Local().Format("2006-01-02 15:04")
		}
		var created, updated, failed int
		if src.LastResult != nil {
			created, updated, failed = src.LastResult.Created, src.LastResult.Updated, src.LastResult.Failed
		}
		t.AppendRow(table.Row{src.ID, src.TypeID, imported, created, updated, failed, inProgress(src)})
	}
	t.AppendFooter(table.Row{"Total", len(list)})
	t.Render()
}

func inProgress(src *domain.Source) string {
	var kinds []domain.PipelineKind
	for _, kind := range []domain.PipelineKind{domain.KindImport, domain.KindClear, domain.KindExpire} {
		if src.State.InProgress(kind) {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return "-"
	}
	return fmt.Sprint(kinds)
}
