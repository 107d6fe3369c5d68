package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export work items and changelogs",
}

var exportItemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Create tracker items from the document's user stories",
	Args:  cobra.NoArgs,
	RunE:  runExportItems,
}

var exportChangelogCmd = &cobra.Command{
	Use:   "changelog [version]",
	Short: "Produce a changelog entry",
	Long: `Produce a changelog entry for the given version, or the current version
when omitted. The entry is printed and recorded as an export.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExportChangelog,
}

func init() {
	exportCmd.AddCommand(exportItemsCmd, exportChangelogCmd)
	rootCmd.AddCommand(exportCmd)
}

func runExportItems(cmd *cobra.Command, _ []string) error {
	repo, path, err := docTarget()
	if err != nil {
		return err
	}

	export, err := evolutionService.ExportItems(cmd.Context(), repo, path)
	if err != nil {
		return docError(repo, path, err)
	}

	cmd.Printf("Created %d of %d parsed items in %s\n",
		export.ItemsCreated, export.DetailInt(domain.DetailItemsParsed), repo)
	if len(export.ExternalRefs) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(export.ExternalRefs))
	for _, ref := range export.ExternalRefs {
		rows = append(rows, []string{ref.ID, ref.URL})
	}
	cmd.Print(renderTable(cmd.OutOrStdout(), []string{"ID", "URL"}, rows))
	return nil
}

func runExportChangelog(cmd *cobra.Command, args []string) error {
	repo, path, err := docTarget()
	if err != nil {
		return err
	}

	var target string
	if len(args) == 1 {
		target = args[0]
	}
	export, err := evolutionService.ExportChangelog(cmd.Context(), repo, path, target)
	if err != nil {
		return docError(repo, path, err)
	}
	cmd.Print(export.DetailString(domain.DetailChangelog))
	return nil
}
