package sources

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/importer/cmd/common"
	"github.com/jonesrussell/north-cloud/importer/internal/catalog"
)

// NewTypesCommand creates the sources types command.
func NewTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List source types from the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}

			types, err := catalog.Load(deps.Config.Importer.CatalogPath)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Name", "Fetcher", "Parser", "Import period"})
			for _, st := range types.List() {
				period := "never"
				if st.Schedulable() {
					period = st.ImportPeriod.String()
				}
				t.AppendRow(table.Row{st.ID, st.Name, st.Fetcher.Plugin, st.Parser.Plugin, period})
			}
			t.Render()
			return nil
		},
	}
}
