package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger [push|merge|item-opened|item-closed|release|manual]",
	Short: "Handle a trigger now",
	Long: `Record a trigger for a document and handle it immediately, as if it had
arrived from a webhook or watcher.

Examples:
  prdmachine trigger push --commit abc123 --message "Add billing API endpoint"
  prdmachine trigger merge --number 42 --title "Add exports"
  prdmachine trigger item-opened --number 7 --label feature-request`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"push", "merge", "item-opened", "item-closed", "release", "manual"},
	RunE:      runTrigger,
}

var (
	triggerCommit  string
	triggerMessage string
	triggerNumber  int
	triggerAction  string
	triggerTitle   string
	triggerBody    string
	triggerRef     string
	triggerLabels  []string
	triggerFiles   []string
)

func init() {
	f := triggerCmd.Flags()
	f.StringVar(&triggerCommit, "commit", "", "Commit id (push)")
	f.StringVar(&triggerMessage, "message", "", "Commit message (push)")
	f.IntVar(&triggerNumber, "number", 0, "Pull request or item number")
	f.StringVar(&triggerAction, "action", "", "Event action, e.g. closed")
	f.StringVar(&triggerTitle, "title", "", "Pull request or item title")
	f.StringVar(&triggerBody, "body", "", "Pull request body")
	f.StringVar(&triggerRef, "ref", "", "Git ref or release tag")
	f.StringSliceVar(&triggerLabels, "label", nil, "Item label (repeatable)")
	f.StringSliceVar(&triggerFiles, "file", nil, "Changed file (repeatable)")
	rootCmd.AddCommand(triggerCmd)
}

func runTrigger(cmd *cobra.Command, args []string) error {
	eventType, err := domain.ParseEventType(args[0])
	if err != nil {
		return fmt.Errorf("%w: unknown trigger type %q", err, args[0])
	}
	repo, path, err := docTarget()
	if err != nil {
		return err
	}

	result, err := evolutionService.HandleTrigger(cmd.Context(), driving.Trigger{
		Type:    eventType,
		Repo:    repo,
		Path:    path,
		Payload: triggerPayload(),
	})
	if err != nil {
		return docError(repo, path, err)
	}

	switch {
	case result.Version != nil:
		cmd.Printf("%s trigger produced %s:%s version %s\n", eventType, repo, path, result.Version.Version)
	case result.Skipped:
		cmd.Printf("%s trigger skipped: %s\n", eventType, result.Event.Result)
	default:
		cmd.Printf("%s trigger recorded: %s\n", eventType, result.Event.Result)
	}
	return nil
}

// triggerPayload collects the flags that were set.
func triggerPayload() map[string]any {
	payload := make(map[string]any)
	set := func(key, v string) {
		if v != "" {
			payload[key] = v
		}
	}
	set(driving.PayloadCommitID, triggerCommit)
	set(driving.PayloadCommitMessage, triggerMessage)
	set(driving.PayloadAction, triggerAction)
	set(driving.PayloadTitle, triggerTitle)
	set(driving.PayloadBody, triggerBody)
	set(driving.PayloadRef, triggerRef)
	if triggerNumber > 0 {
		payload[driving.PayloadNumber] = triggerNumber
	}
	if len(triggerLabels) > 0 {
		payload[driving.PayloadLabels] = triggerLabels
	}
	if len(triggerFiles) > 0 {
		payload[driving.PayloadChangedFiles] = triggerFiles
	}
	return payload
}
