package github

import (
	"fmt"
	"net/http"
	"slices"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
)

// ParseWebhook validates a webhook delivery and converts it into a trigger.
// An empty secret skips signature validation. A nil trigger with a nil
// error means the event is valid but not one the engine acts on.
func ParseWebhook(r *http.Request, secret string) (*driving.Trigger, error) {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	payload, err := gh.ValidatePayload(r, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	event, err := gh.ParseWebHook(gh.WebHookType(r), payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return TriggerFromEvent(event), nil
}

// TriggerFromEvent maps a parsed webhook event to a trigger, or nil when
// the event type or action does not concern documents.
func TriggerFromEvent(event any) *driving.Trigger {
	switch e := event.(type) {
	case *gh.PushEvent:
		return pushTrigger(e)

	case *gh.PullRequestEvent:
		pr := e.GetPullRequest()
		action := e.GetAction()
		if action == "closed" && pr.GetMerged() {
			action = "merged"
		}
		return &driving.Trigger{
			Type: domain.EventMerge,
			Repo: e.GetRepo().GetFullName(),
			Payload: map[string]any{
				driving.PayloadNumber: pr.GetNumber(),
				driving.PayloadAction: action,
				driving.PayloadTitle:  pr.GetTitle(),
				driving.PayloadBody:   pr.GetBody(),
			},
		}

	case *gh.IssuesEvent:
		var eventType domain.EventType
		switch e.GetAction() {
		case "opened":
			eventType = domain.EventItemOpened
		case "closed":
			eventType = domain.EventItemClosed
		default:
			return nil
		}
		issue := e.GetIssue()
		labels := make([]string, 0, len(issue.Labels))
		for _, l := range issue.Labels {
			labels = append(labels, l.GetName())
		}
		return &driving.Trigger{
			Type: eventType,
			Repo: e.GetRepo().GetFullName(),
			Payload: map[string]any{
				driving.PayloadNumber: issue.GetNumber(),
				driving.PayloadAction: e.GetAction(),
				driving.PayloadTitle:  issue.GetTitle(),
				driving.PayloadLabels: labels,
			},
		}

	case *gh.ReleaseEvent:
		if e.GetAction() != "published" {
			return nil
		}
		return &driving.Trigger{
			Type: domain.EventRelease,
			Repo: e.GetRepo().GetFullName(),
			Payload: map[string]any{
				driving.PayloadRef:    e.GetRelease().GetTagName(),
				driving.PayloadAction: e.GetAction(),
				driving.PayloadTitle:  e.GetRelease().GetName(),
			},
		}

	default:
		return nil
	}
}

func pushTrigger(e *gh.PushEvent) *driving.Trigger {
	// Branch deletions carry no commits.
	if e.GetDeleted() {
		return nil
	}

	var changed []string
	for _, c := range e.Commits {
		for _, files := range [][]string{c.Added, c.Modified, c.Removed} {
			for _, f := range files {
				if !slices.Contains(changed, f) {
					changed = append(changed, f)
				}
			}
		}
	}

	head := e.GetHeadCommit()
	return &driving.Trigger{
		Type: domain.EventPush,
		Repo: e.GetRepo().GetFullName(),
		Payload: map[string]any{
			driving.PayloadCommitID:      head.GetID(),
			driving.PayloadCommitMessage: head.GetMessage(),
			driving.PayloadRef:           e.GetRef(),
			driving.PayloadChangedFiles:  changed,
		},
	}
}
