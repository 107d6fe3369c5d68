// Package metrics exposes Prometheus instrumentation for the engine.
//
// Collectors are registered with the default registry at init. Callers
// feed them through observers (triggers, scheduled tasks, webhooks) and
// through decorators around the text generator and the notifier.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
)

const namespace = "prdmachine"

// Trigger outcomes.
const (
	OutcomeDistilled = "distilled"
	OutcomeSkipped   = "skipped"
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
)

var (
	triggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "triggers_total",
		Help:      "Triggers handled, by event type and outcome",
	}, []string{"type", "outcome"})

	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generations_total",
		Help:      "Text generation calls, by outcome",
	}, []string{"outcome"})

	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_duration_seconds",
		Help:      "Text generation latency",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
	})

	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_total",
		Help:      "Conflict alerts sent, by severity and delivery",
	}, []string{"severity", "delivered"})

	taskRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduled_task_runs_total",
		Help:      "Scheduled task runs, by task and status",
	}, []string{"task", "status"})

	taskDocuments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduled_task_documents_total",
		Help:      "Documents processed by scheduled tasks",
	}, []string{"task"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scheduled_task_duration_seconds",
		Help:      "Scheduled task run time",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"task"})

	webhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhooks_total",
		Help:      "Webhook deliveries, by event and response status",
	}, []string{"event", "status"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTrigger records a processed trigger. Its signature matches the
// dispatcher's result observer.
func ObserveTrigger(trigger driving.Trigger, result *driving.TriggerResult, err error) {
	triggersTotal.WithLabelValues(string(trigger.Type), triggerOutcome(result, err)).Inc()
}

func triggerOutcome(result *driving.TriggerResult, err error) string {
	switch {
	case err != nil:
		return OutcomeFailed
	case result == nil:
		return OutcomeProcessed
	case result.Skipped:
		return OutcomeSkipped
	case result.Version != nil:
		return OutcomeDistilled
	default:
		return OutcomeProcessed
	}
}

// ObserveTask records a scheduled task run.
func ObserveTask(result *domain.TaskResult) {
	status := "success"
	if !result.Success {
		status = "failure"
	}
	taskRunsTotal.WithLabelValues(result.TaskID, status).Inc()
	taskDocuments.WithLabelValues(result.TaskID).Add(float64(result.Documents))
	taskDuration.WithLabelValues(result.TaskID).Observe(result.EndedAt.Sub(result.StartedAt).Seconds())
}

// ObserveWebhook records a webhook delivery and the status it was answered with.
func ObserveWebhook(event string, status int) {
	if event == "" {
		event = "unknown"
	}
	webhooksTotal.WithLabelValues(event, strconv.Itoa(status)).Inc()
}

// InstrumentGenerator wraps g so every call is counted and timed.
func InstrumentGenerator(g driven.TextGenerator) driven.TextGenerator {
	if g == nil {
		return nil
	}
	return &instrumentedGenerator{TextGenerator: g}
}

type instrumentedGenerator struct {
	driven.TextGenerator
}

func (g *instrumentedGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	text, err := g.TextGenerator.Generate(ctx, system, user)
	generationDuration.Observe(time.Since(start).Seconds())

	outcome := "success"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	generationsTotal.WithLabelValues(outcome).Inc()
	return text, err
}

// InstrumentNotifier wraps n so every alert is counted by delivery result.
func InstrumentNotifier(n driven.Notifier) driven.Notifier {
	if n == nil {
		return nil
	}
	return &instrumentedNotifier{next: n}
}

type instrumentedNotifier struct {
	next driven.Notifier
}

func (n *instrumentedNotifier) Send(ctx context.Context, target string, payload domain.AlertPayload) bool {
	delivered := n.next.Send(ctx, target, payload)
	alertsTotal.WithLabelValues(string(payload.Severity), strconv.FormatBool(delivered)).Inc()
	return delivered
}
