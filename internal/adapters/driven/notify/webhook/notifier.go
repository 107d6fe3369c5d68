// Package webhook delivers conflict alerts as Slack-compatible block
// messages to an incoming-webhook URL.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

// Ensure Notifier implements the interface.
var _ driven.Notifier = (*Notifier)(nil)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

var severityEmoji = map[domain.Severity]string{
	domain.SeverityLow:      "🔵",
	domain.SeverityMedium:   "🟡",
	domain.SeverityHigh:     "🟠",
	domain.SeverityCritical: "🔴",
}

// Notifier posts alerts over HTTP.
type Notifier struct {
	client *http.Client
}

// NewNotifier creates a notifier. A zero timeout uses DefaultTimeout.
func NewNotifier(timeout time.Duration) *Notifier {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Notifier{client: &http.Client{Timeout: timeout}}
}

// Send posts the payload to target and reports whether the endpoint
// accepted it with a 2xx status. Failures are logged, never returned.
func (n *Notifier) Send(ctx context.Context, target string, payload domain.AlertPayload) bool {
	if target == "" {
		logger.Warn("notify: no webhook configured for %s", payload.Repo)
		return false
	}

	body, err := json.Marshal(buildMessage(payload))
	if err != nil {
		logger.Error("notify: encode alert: %v", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		logger.Error("notify: create request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		logger.Error("notify: send alert for %s: %v", payload.Repo, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Error("notify: webhook returned status %d", resp.StatusCode)
		return false
	}

	logger.Info("notify: %s alert sent for %s", payload.Severity, payload.Repo)
	return true
}

type message struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks"`
}

type block struct {
	Type   string  `json:"type"`
	Text   *text   `json:"text,omitempty"`
	Fields []*text `json:"fields,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(s string) *text {
	return &text{Type: "mrkdwn", Text: s}
}

func buildMessage(p domain.AlertPayload) message {
	emoji, ok := severityEmoji[p.Severity]
	if !ok {
		emoji = "⚠️"
	}

	return message{
		Text: emoji + " PRD Conflict Detected",
		Blocks: []block{
			{
				Type: "header",
				Text: &text{Type: "plain_text", Text: fmt.Sprintf("PRD Conflict: %s", p.Type)},
			},
			{
				Type: "section",
				Fields: []*text{
					mrkdwn("*Repo:*\n" + p.Repo),
					mrkdwn("*Severity:*\n" + strings.ToUpper(string(p.Severity))),
					mrkdwn("*Section:*\n" + p.Section),
				},
			},
			{Type: "section", Text: mrkdwn("*Description:*\n" + p.Description)},
			{Type: "section", Text: mrkdwn("*Suggested Resolution:*\n" + p.Suggestion)},
		},
	}
}
