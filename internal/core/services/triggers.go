package services

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

// Skip reasons recorded on events that cause no distillation.
const (
	resultAutoEvolveOff = "Auto-evolve disabled - skipped"
	resultNoRelevant    = "No PRD-relevant changes detected"
	resultNoLabels      = "No PRD-relevant labels"
	resultRelease       = "Release recorded"
)

var (
	relevantKeywords = []string{"prd", "requirement", "feature", "api", "endpoint", "milestone"}
	relevantLabels   = []string{"prd", "requirement", "feature-request", "enhancement", "milestone"}
	mergeActions     = []string{"", "closed", "merged"}
)

// triggerPlan is the decision for one trigger: distill with req, or skip
// with reason.
type triggerPlan struct {
	distill bool
	req     driving.DistillRequest
	reason  string
}

// HandleTrigger records a trigger as an event and distills the target
// document when the trigger is relevant. The event is stored before any
// work starts. It is marked processed on success or skip; a failed
// distillation leaves it unprocessed and returns the error.
func (s *EvolutionService) HandleTrigger(ctx context.Context, trigger driving.Trigger) (*driving.TriggerResult, error) {
	event, err := s.RecordTrigger(ctx, trigger)
	if err != nil {
		return nil, err
	}
	return s.ProcessTrigger(ctx, trigger, event)
}

// RecordTrigger validates a trigger and saves a new unprocessed event for
// it, creating the target document state if needed.
func (s *EvolutionService) RecordTrigger(ctx context.Context, trigger driving.Trigger) (*domain.DocumentEvent, error) {
	if !trigger.Type.IsValid() {
		return nil, fmt.Errorf("%w: trigger type %q", domain.ErrInvalidInput, trigger.Type)
	}
	state, err := s.getOrCreate(ctx, trigger.Repo, s.pathOr(trigger.Path))
	if err != nil {
		return nil, err
	}

	event := &domain.DocumentEvent{
		StateID: state.ID,
		Type:    trigger.Type,
		Payload: trigger.Payload,
	}
	if err := s.store.SaveEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("save event: %w", err)
	}
	return event, nil
}

// ProcessTrigger does the work for a trigger already recorded as event.
// It may be called again with the same event after a failure; the event is
// updated only by the attempt that succeeds or skips.
func (s *EvolutionService) ProcessTrigger(ctx context.Context, trigger driving.Trigger, event *domain.DocumentEvent) (*driving.TriggerResult, error) {
	if event == nil {
		return nil, fmt.Errorf("%w: trigger has no recorded event", domain.ErrInvalidInput)
	}
	if event.Processed {
		return &driving.TriggerResult{Event: event, Skipped: true}, nil
	}
	docPath := s.pathOr(trigger.Path)

	result := &driving.TriggerResult{Event: event}
	err := s.withKey(ctx, trigger.Repo, docPath, func(ctx context.Context) error {
		state, err := s.get(ctx, trigger.Repo, docPath)
		if err != nil {
			return err
		}

		plan := s.planTrigger(state, trigger)
		if !plan.distill {
			result.Skipped = true
			return s.finishEvent(ctx, event, plan.reason)
		}

		version, err := s.distiller.Distill(ctx, state, plan.req)
		if err != nil {
			logger.Warn("trigger %s on %s: %v", trigger.Type, state.Key(), err)
			return err
		}
		result.Version = version
		return s.finishEvent(ctx, event, fmt.Sprintf("Distilled PRD to v%s", version.Version))
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *EvolutionService) finishEvent(ctx context.Context, event *domain.DocumentEvent, result string) error {
	event.MarkProcessed(result, s.distiller.now())
	if err := s.store.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

func (s *EvolutionService) planTrigger(state *domain.DocumentState, t driving.Trigger) triggerPlan {
	if !state.AutoEvolve {
		return triggerPlan{reason: resultAutoEvolveOff}
	}

	switch t.Type {
	case domain.EventPush:
		if !s.pushIsRelevant(t.Payload) {
			return triggerPlan{reason: resultNoRelevant}
		}
		return triggerPlan{distill: true, req: driving.DistillRequest{
			Trigger: domain.TriggerExternalCommit,
			Ref:     payloadString(t.Payload, driving.PayloadCommitID),
			Extra:   map[string]string{"commit_message": payloadString(t.Payload, driving.PayloadCommitMessage)},
		}}

	case domain.EventMerge:
		action := payloadString(t.Payload, driving.PayloadAction)
		if !slices.Contains(mergeActions, action) {
			return triggerPlan{reason: fmt.Sprintf("PR action '%s' - no distillation needed", action)}
		}
		return triggerPlan{distill: true, req: driving.DistillRequest{
			Trigger: domain.TriggerExternalMerge,
			Ref:     "PR #" + payloadNumber(t.Payload),
			Extra: map[string]string{
				"pr_title": payloadString(t.Payload, driving.PayloadTitle),
				"pr_body":  payloadString(t.Payload, driving.PayloadBody),
			},
		}}

	case domain.EventItemOpened, domain.EventItemClosed:
		labels := payloadStrings(t.Payload, driving.PayloadLabels)
		if !hasRelevantLabel(labels) {
			return triggerPlan{reason: resultNoLabels}
		}
		trigger := domain.TriggerIssueOpened
		if t.Type == domain.EventItemClosed {
			trigger = domain.TriggerIssueClosed
		}
		return triggerPlan{distill: true, req: driving.DistillRequest{
			Trigger: trigger,
			Ref:     "Issue #" + payloadNumber(t.Payload),
			Extra: map[string]string{
				"issue_title": payloadString(t.Payload, driving.PayloadTitle),
				"labels":      strings.Join(labels, ", "),
			},
		}}

	case domain.EventRelease:
		return triggerPlan{reason: resultRelease}

	default:
		return triggerPlan{distill: true, req: driving.DistillRequest{
			Trigger: domain.TriggerManualSync,
			Ref:     payloadString(t.Payload, driving.PayloadRef),
		}}
	}
}

// pushIsRelevant reports whether a push mentions the document's subject
// in its message or touches the canonical file.
func (s *EvolutionService) pushIsRelevant(payload map[string]any) bool {
	msg := strings.ToLower(payloadString(payload, driving.PayloadCommitMessage))
	canonical := strings.ToLower(path.Base(s.paths.CanonicalPath))
	if strings.Contains(msg, canonical) {
		return true
	}
	for _, kw := range relevantKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	for _, f := range payloadStrings(payload, driving.PayloadChangedFiles) {
		if strings.EqualFold(path.Base(f), canonical) {
			return true
		}
	}
	return false
}

func hasRelevantLabel(labels []string) bool {
	for _, l := range labels {
		if slices.Contains(relevantLabels, strings.ToLower(l)) {
			return true
		}
	}
	return false
}

func payloadString(p map[string]any, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// payloadNumber renders a numeric payload value decoded from JSON
// (float64) or passed directly (int).
func payloadNumber(p map[string]any) string {
	switch v := p[driving.PayloadNumber].(type) {
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case string:
		return v
	default:
		return ""
	}
}

func payloadStrings(p map[string]any, key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	default:
		return nil
	}
}
