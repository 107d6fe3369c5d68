package cli

import (
	"os/user"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Detect and manage document conflicts",
	Long:  `Detect inconsistencies between a document and the repository, list them and resolve them.`,
}

var conflictsDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Compare a document against the repository",
	Args:  cobra.NoArgs,
	RunE:  runConflictsDetect,
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a document's conflicts",
	Args:  cobra.NoArgs,
	RunE:  runConflictsList,
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve [conflict-id]",
	Short: "Mark a conflict resolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runConflictsResolve,
}

var alertCmd = &cobra.Command{
	Use:   "alert [conflict-id]",
	Short: "Send a conflict alert",
	Long:  `Deliver one conflict alert to its document's notification target.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAlert,
}

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Compare the canonical document with its derived documents",
	Args:  cobra.NoArgs,
	RunE:  runDrift,
}

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Sync the canonical document and align every derived document",
	Args:  cobra.NoArgs,
	RunE:  runAlign,
}

var (
	conflictsAll bool
	resolvedBy   string
)

func init() {
	conflictsListCmd.Flags().BoolVarP(&conflictsAll, "all", "a", false, "Include resolved conflicts")
	conflictsResolveCmd.Flags().StringVar(&resolvedBy, "by", "", "Who resolved the conflict (default: current user)")

	conflictsCmd.AddCommand(conflictsDetectCmd, conflictsListCmd, conflictsResolveCmd)
	rootCmd.AddCommand(conflictsCmd, alertCmd, driftCmd, alignCmd)
}

func runConflictsDetect(cmd *cobra.Command, _ []string) error {
	repo, path, err := docTarget()
	if err != nil {
		return err
	}

	found, err := evolutionService.DetectConflicts(cmd.Context(), repo, path)
	if err != nil {
		return docError(repo, path, err)
	}
	if len(found) == 0 {
		cmd.Printf("No conflicts detected in %s:%s\n", repo, path)
		return nil
	}
	cmd.Printf("Detected %d conflicts in %s:%s\n\n", len(found), repo, path)
	printConflicts(cmd, found)
	return nil
}

func runConflictsList(cmd *cobra.Command, _ []string) error {
	repo, path, err := docTarget()
	if err != nil {
		return err
	}

	conflicts, err := evolutionService.ListConflicts(cmd.Context(), repo, path, !conflictsAll)
	if err != nil {
		return docError(repo, path, err)
	}
	if len(conflicts) == 0 {
		cmd.Printf("No conflicts for %s:%s\n", repo, path)
		return nil
	}
	printConflicts(cmd, conflicts)
	return nil
}

func printConflicts(cmd *cobra.Command, conflicts []*domain.DocumentConflict) {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(conflicts))
	for _, c := range conflicts {
		state := "open"
		if c.Resolved {
			state = "resolved"
		}
		rows = append(rows, []string{
			c.ID, severityLabel(out, c.Severity), c.Type.String(),
			truncate(c.SectionAffected, 24), truncate(c.Description, 60), state,
		})
	}
	cmd.Print(renderTable(out, []string{"ID", "SEVERITY", "TYPE", "SECTION", "DESCRIPTION", "STATE"}, rows))
}

func runConflictsResolve(cmd *cobra.Command, args []string) error {
	if err := requireEvolution(); err != nil {
		return err
	}

	by := resolvedBy
	if by == "" {
		by = currentUser()
	}
	c, err := evolutionService.ResolveConflict(cmd.Context(), args[0], by)
	if err != nil {
		return err
	}
	cmd.Printf("Resolved conflict %s (%s) as %s\n", c.ID, c.Type, c.ResolvedBy)
	return nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}

func runAlert(cmd *cobra.Command, args []string) error {
	if err := requireEvolution(); err != nil {
		return err
	}

	delivered, err := evolutionService.SendAlert(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !delivered {
		cmd.Printf("Alert for conflict %s was not delivered\n", args[0])
		return nil
	}
	cmd.Printf("Alert for conflict %s delivered\n", args[0])
	return nil
}

func runDrift(cmd *cobra.Command, _ []string) error {
	if err := requireEvolution(); err != nil {
		return err
	}
	repo, err := targetRepo()
	if err != nil {
		return err
	}

	found, err := evolutionService.DetectDrift(cmd.Context(), repo)
	if err != nil {
		return docError(repo, "", err)
	}
	if len(found) == 0 {
		cmd.Printf("No drift between documents in %s\n", repo)
		return nil
	}
	cmd.Printf("Detected %d drift conflicts in %s\n\n", len(found), repo)
	printConflicts(cmd, found)
	return nil
}

func runAlign(cmd *cobra.Command, _ []string) error {
	if err := requireEvolution(); err != nil {
		return err
	}
	repo, err := targetRepo()
	if err != nil {
		return err
	}

	result, err := evolutionService.AlignAll(cmd.Context(), repo)
	if err != nil {
		return docError(repo, "", err)
	}

	out := cmd.OutOrStdout()
	order := append([]domain.DocumentType{domain.DocumentTypeCanonical}, domain.DerivedTypes...)
	rows := make([][]string, 0, len(order))
	for _, t := range order {
		var st *domain.DocumentState
		if t == domain.DocumentTypeCanonical {
			st = result.Canonical
		} else {
			st = result.Derived[t]
		}

		switch {
		case result.Errors[t] != nil:
			rows = append(rows, []string{t.Label(), "-", "-", result.Errors[t].Error()})
		case st != nil && t == domain.DocumentTypeCanonical:
			rows = append(rows, []string{t.Label(), st.Path, st.Version, "synced " + when(st.LastSyncedAt)})
		case st != nil:
			rows = append(rows, []string{t.Label(), st.Path, st.Version, "aligned " + when(st.LastAlignedAt)})
		default:
			rows = append(rows, []string{t.Label(), "-", "-", "skipped"})
		}
	}
	cmd.Print(renderTable(out, []string{"DOCUMENT", "PATH", "VERSION", "RESULT"}, rows))

	if err := result.Err(); err != nil {
		return docError(repo, "", err)
	}
	return nil
}
