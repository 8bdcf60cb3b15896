package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/presentation"
)

var templatesCategory string

var templatesListCmd = &cobra.Command{
	Use:   "templates:list",
	Short: "List all playbook templates",
	Long: `List every playbook template and its ordered steps as JSON.

Templates come from the built-in catalog, overridden by YAML files in the
user template directory, or from the record store when templates.source is
"records".

Examples:
  # List all templates
  playbook templates:list

  # Only onboarding templates
  playbook templates:list --category onboarding

  # Parse specific fields with jq
  playbook templates:list | jq '.[].id'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
			list, err := rt.engine.ListTemplates(ctx)
			if err != nil {
				return err
			}
			list = filterByCategory(list, templatesCategory)
			return presentation.NewFormatter(cmd.OutOrStdout()).FormatTemplates(presentation.FromTemplates(list))
		})
	},
}

func init() {
	templatesListCmd.Flags().StringVar(&templatesCategory, "category", "", "Filter by category (e.g., onboarding)")
	rootCmd.AddCommand(templatesListCmd)
}

// filterByCategory keeps templates of the given category. Empty keeps all.
func filterByCategory(list []*playbook.Template, category string) []*playbook.Template {
	if category == "" {
		return list
	}
	result := make([]*playbook.Template, 0, len(list))
	for _, t := range list {
		if string(t.Category) == category {
			result = append(result, t)
		}
	}
	return result
}
