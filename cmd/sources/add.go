package sources

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/importer/cmd/common"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

// NewAddCommand creates the sources add command.
func NewAddCommand() *cobra.Command {
	var (
		id        string
		fetcher   map[string]string
		parser    map[string]string
		processor map[string]string
	)

	cmd := &cobra.Command{
		Use:   "add <source-type>",
		Short: "Register a source",
		Long: `Register a source of the given type. Per-source plugin settings are
passed as key=value pairs, for example:

  importer sources add news_feed --fetcher url=https://example.com/rss.xml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := common.NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err = app.Catalog.Get(args[0]); err != nil {
				return err
			}

			src := &domain.Source{
				ID:     id,
				TypeID: args[0],
				Config: sourceConfig(map[string]map[string]string{
					domain.RoleFetcher:   fetcher,
					domain.RoleParser:    parser,
					domain.RoleProcessor: processor,
				}),
			}
			if err = app.Sources.Create(cmd.Context(), src); err != nil {
				return fmt.Errorf("failed to create source: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), src.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "source ID (generated when empty)")
	cmd.Flags().StringToStringVar(&fetcher, "fetcher", nil, "fetcher settings as key=value")
	cmd.Flags().StringToStringVar(&parser, "parser", nil, "parser settings as key=value")
	cmd.Flags().StringToStringVar(&processor, "processor", nil, "processor settings as key=value")
	return cmd
}

func sourceConfig(roles map[string]map[string]string) domain.SourceConfig {
	cfg := domain.SourceConfig{}
	for role, settings := range roles {
		if len(settings) == 0 {
			continue
		}
		block := make(map[string]any, len(settings))
		for k, v := range settings {
			block[k] = v
		}
		cfg[role] = block
	}
	return cfg
}
