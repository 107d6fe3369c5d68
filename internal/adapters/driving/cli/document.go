package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
)

// pathFlag selects the document; empty means the canonical document.
var pathFlag string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show document status",
	Long: `Show a document's version, fingerprint, lock and auto-evolve flags,
timestamps, counts of versions, open conflicts and exports, and its most
recent events.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List a document's versions",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync a document from its source",
	Long: `Fetch the document from the content source. A new version is recorded
only when the fetched content differs from the stored content.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var distillCmd = &cobra.Command{
	Use:   "distill",
	Short: "Evolve a document from repository context",
	Args:  cobra.NoArgs,
	RunE:  runDistill,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a canonical document from scratch",
	Args:  cobra.NoArgs,
	RunE:  runGenerate,
}

var bumpCmd = &cobra.Command{
	Use:   "bump [major|minor|patch]",
	Short: "Increment a document's version",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBump,
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Enable zero-touch mode",
	Long:  `Lock a document so that only the engine may change its content.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSetLocked(cmd, true)
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Disable zero-touch mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSetLocked(cmd, false)
	},
}

var autoEvolveCmd = &cobra.Command{
	Use:       "auto-evolve [on|off]",
	Short:     "Toggle trigger-driven distillation",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runAutoEvolve,
}

var notifyCmd = &cobra.Command{
	Use:   "notify [target]",
	Short: "Set where conflict alerts are delivered",
	Long:  `Set the document's alert target. An empty target disables alerts.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runNotify,
}

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Write human-authored content",
	Long: `Replace a document's content with human-authored text read from --file
or standard input. Locked documents reject edits that overwrite engine output.`,
	Args: cobra.NoArgs,
	RunE: runEdit,
}

var revertCmd = &cobra.Command{
	Use:   "revert [version-id]",
	Short: "Restore an earlier version",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevert,
}

// Command flags.
var (
	historyLimit   int
	distillTrigger string
	distillRef     string
	distillBump    string
	distillExtra   map[string]string
	generateName   string
	editFile       string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&pathFlag, "path", "p", "", "Document path (default: the canonical document)")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Maximum versions to show (0 = all)")

	distillCmd.Flags().StringVar(&distillTrigger, "trigger", string(domain.TriggerManualSync), "Trigger type recorded on the version")
	distillCmd.Flags().StringVar(&distillRef, "ref", "", "Reference to the causing event")
	distillCmd.Flags().StringVar(&distillBump, "bump", string(domain.BumpPatch), "Version component to increment")
	distillCmd.Flags().StringToStringVar(&distillExtra, "extra", nil, "Labelled context, e.g. pr_title=\"Add exports\"")

	generateCmd.Flags().StringVar(&generateName, "name", "", "Project name (default: the repository name)")

	editCmd.Flags().StringVarP(&editFile, "file", "f", "", "Read content from file (default: stdin)")

	rootCmd.AddCommand(statusCmd, listCmd, historyCmd, syncCmd, distillCmd, generateCmd,
		bumpCmd, lockCmd, unlockCmd, autoEvolveCmd, notifyCmd, editCmd, revertCmd)
}

// docTarget resolves the repository and path a command acts on.
func docTarget() (string, string, error) {
	if err := requireEvolution(); err != nil {
		return "", "", err
	}
	repo, err := targetRepo()
	if err != nil {
		return "", "", err
	}
	return repo, resolvePath(pathFlag), nil
}

// resolvePath fills in the configured canonical path.
func resolvePath(path string) string {
	if path != "" || settingsService == nil {
		return path
	}
	settings, err := settingsService.Get()
	if err != nil {
		return path
	}
	return settings.Repository.CanonicalPath
}

func runStatus(cmd *cobra.Command, _ []string) error {
	repo, path, err := docTarget()
	if err != nil {
		return err
	}

	status, err := evolutionService.Status(cmd.Context(), repo, path)
	if err != nil {
		return docError(repo, path, err)
	}
	printStatus(cmd, status)
	return nil
}

func printStatus(cmd *cobra.Command, status *driving.DocumentStatus) {
	out := cmd.OutOrStdout()
	st := status.State

	cmd.Printf("Document: %s\n", st.Key())
	cmd.Printf("  Type: %s\n", st.Type.Description())
	cmd.Printf("  Version: %s\n", st.Version)
	cmd.Printf("  Hash: %s\n", shortHash(st.ContentHash()))
	cmd.Printf("  Locked: %s\n", flag(out, st.IsLocked))
	cmd.Printf("  Auto-evolve: %s\n", flag(out, st.AutoEvolve))
	if st.NotifyTarget != "" {
		cmd.Printf("  Notify: %s\n", st.NotifyTarget)
	}
	cmd.Printf("  Last distilled: %s\n", when(st.LastDistilledAt))
	cmd.Printf("  Last synced: %s\n", when(st.LastSyncedAt))
	cmd.Printf("  Last aligned: %s\n", when(st.LastAlignedAt))
	cmd.Printf("  Versions: %d\n", status.VersionCount)
	cmd.Printf("  Open conflicts: %d\n", status.OpenConflicts)
	cmd.Printf("  Exports: %d\n", status.ExportCount)
	if len(status.MissingSection) > 0 {
		cmd.Printf("  Missing sections: %s\n", strings.Join(status.MissingSection, ", "))
	}

	if status.LatestVersion != nil {
		v := status.LatestVersion
		cmd.Println()
		cmd.Printf("Latest version %s (%s", v.Version, v.TriggerType)
		if v.TriggerRef != "" {
			cmd.Printf(", %s", v.TriggerRef)
		}
		cmd.Printf("): %s\n", v.ChangeSummary)
	}

	if len(status.RecentEvents) > 0 {
		cmd.Println()
		cmd.Println("Recent events:")
		rows := make([][]string, 0, len(status.RecentEvents))
		for _, e := range status.RecentEvents {
			result := e.Result
			if !e.Processed {
				result = "(pending)"
			}
			rows = append(rows, []string{e.Type.String(), when(&e.CreatedAt), truncate(result, 60)})
		}
		cmd.Print(renderTable(out, []string{"EVENT", "WHEN", "RESULT"}, rows))
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	if err := requireEvolution(); err != nil {
		return err
	}

	docs, err := evolutionService.ListDocuments(cmd.Context(), domain.StateFilter{Repo: repoFlag})
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		cmd.Println("No documents tracked.")
		return nil
	}

	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, []string{
			d.Key().String(), d.Type.String(), d.Version,
			flag(out, d.IsLocked), flag(out, d.AutoEvolve), when(&d.UpdatedAt),
		})
	}
	cmd.Print(renderTable(out, []string{"DOCUMENT", "TYPE", "VERSION", "LOCKED", "AUTO", "UPDATED"}, rows))
	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	repo, path, err := docTarget()
	if err != nil {
		return err
	}

	versions, err := evolutionService.ListVersions(cmd.Context(), repo, path, historyLimit)
	if err != nil {
		return docError(repo, path, err)
	}
	if len(versions) == 0 {
		cmd.Printf("No versions for %s:%s\n", repo, path)
		return nil
	}

	rows := make([][]string, 0, len(versions))
	for _, v := range versions {
		author := "engine"
		if v.IsHumanEdit {
			author = "human"
		}
		rows = append(rows, []string{
			v.ID, v.Version, v.TriggerType.String(), author,
			when(&v.CreatedAt), truncate(v.ChangeSummary, 50),
		})
	}
	cmd.Print(renderTable(cmd.OutOrStdout(),
		[]string{"ID", "VERSION", "TRIGGER", "BY", "WHEN", "SUMMARY"}, rows))
	return nil
}

func runSync(cmd *cobra.Command, _ []string) error {
	repo, path, err := docTarget()
	if err != nil {
		return err
	}

	v, err := evolutionService.SyncFromSource(cmd.Context(), repo, path)
	if err != nil {
		return docError(repo, path, err)
	}
	if v == nil {
		cmd.Printf("%s:%s is up to date\n", repo, path)
		return nil
	}
	cmd.Printf("Synced %s:%s to version %s: %s\n", repo, path, v.Version, v.ChangeSummary)
	return nil
}

func runDistill(cmd *cobra.Command, _ []string) error {
	repo, path, err := docTarget()
	if err != nil {
		return err
	}

	trigger := domain.TriggerType(distillTrigger)
	if !trigger.IsValid() {
		return fmt.Errorf("%w: trigger type %q", domain.ErrInvalidInput, distillTrigger)
	}
	bump, err := domain.ParseBumpType(distillBump)
	if err != nil {
		return err
	}

	v, err := evolutionService.Distill(cmd.Context(), repo, path, driving.DistillRequest{
		Trigger: trigger,
		Ref:     distillRef,
		Extra:   distillExtra,
		Bump:    bump,
	})
	if err != nil {
		return docError(repo, path, err)
	}
	cmd.Printf("Distilled %s:%s to version %s\n", repo, path, v.Version)
	if v.ChangeSummary != "" {
		cmd.Printf("  %s\n", v.ChangeSummary)
	}
	return nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	repo, path, err := docTarget()
	if err != nil {
		return err
	}

	name := generateName
	if name == "" {
		name = repo[strings.LastIndex(repo, "/")+1:]
	}

	st, err := evolutionService.Generate(cmd.Context(), repo, name, path)
	if err != nil {
		return docError(repo, path, err)
	}
	cmd.Printf("Generated %s version %s (%d bytes)\n", st.Key(), st.Version, len(st.Content()))
	return nil
}

func runBump(cmd *cobra.Command, args []string) error {
	repo, path, err := docTarget()
	if err != nil {
		return err
	}

	raw := string(domain.BumpPatch)
	if len(args) == 1 {
		raw = args[0]
	}
	bump, err := domain.ParseBumpType(raw)
	if err != nil {
		return err
	}

	next, err := evolutionService.BumpVersion(cmd.Context(), repo, path, bump)
	if err != nil {
		return docError(repo, path, err)
	}
	cmd.Printf("%s:%s is now version %s\n", repo, path, next)
	return nil
}

func runSetLocked(cmd *cobra.Command, locked bool) error {
	repo, path, err := docTarget()
	if err != nil {
		return err
	}
	if err := evolutionService.SetLocked(cmd.Context(), repo, path, locked); err != nil {
		return docError(repo, path, err)
	}
	if locked {
		cmd.Printf("Locked %s:%s\n", repo, path)
	} else {
		cmd.Printf("Unlocked %s:%s\n", repo, path)
	}
	return nil
}

func runAutoEvolve(cmd *cobra.Command, args []string) error {
	var enabled bool
	switch args[0] {
	case "on":
		enabled = true
	case "off":
	default:
		return fmt.Errorf("%w: want on or off, got %q", domain.ErrInvalidInput, args[0])
	}

	repo, path, err := docTarget()
	if err != nil {
		return err
	}
	if err := evolutionService.SetAutoEvolve(cmd.Context(), repo, path, enabled); err != nil {
		return docError(repo, path, err)
	}
	cmd.Printf("Auto-evolve %s for %s:%s\n", args[0], repo, path)
	return nil
}

func runNotify(cmd *cobra.Command, args []string) error {
	repo, path, err := docTarget()
	if err != nil {
		return err
	}

	var target string
	if len(args) == 1 {
		target = args[0]
	}
	if err := evolutionService.SetNotifyTarget(cmd.Context(), repo, path, target); err != nil {
		return docError(repo, path, err)
	}
	if target == "" {
		cmd.Printf("Alerts disabled for %s:%s\n", repo, path)
	} else {
		cmd.Printf("Alerts for %s:%s go to %s\n", repo, path, target)
	}
	return nil
}

func runEdit(cmd *cobra.Command, _ []string) error {
	repo, path, err := docTarget()
	if err != nil {
		return err
	}

	content, err := readContent(cmd.InOrStdin(), editFile)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return errors.New("refusing to write empty content")
	}

	v, err := evolutionService.ApplyHumanEdit(cmd.Context(), repo, path, content)
	if err != nil {
		return docError(repo, path, err)
	}
	if v == nil {
		cmd.Printf("%s:%s unchanged\n", repo, path)
		return nil
	}
	cmd.Printf("Recorded human edit of %s:%s as version %s\n", repo, path, v.Version)
	return nil
}

func readContent(stdin io.Reader, file string) (string, error) {
	if file == "" || file == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	return string(data), nil
}

func runRevert(cmd *cobra.Command, args []string) error {
	repo, path, err := docTarget()
	if err != nil {
		return err
	}

	v, err := evolutionService.Revert(cmd.Context(), repo, path, args[0])
	if err != nil {
		return docError(repo, path, err)
	}
	if v == nil {
		cmd.Printf("%s:%s already matches %s\n", repo, path, args[0])
		return nil
	}
	cmd.Printf("Reverted %s:%s to %s as version %s\n", repo, path, args[0], v.Version)
	return nil
}
