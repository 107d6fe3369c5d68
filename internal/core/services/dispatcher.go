package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

// Ensure TriggerDispatcher implements the interface.
var _ driving.TriggerDispatcher = (*TriggerDispatcher)(nil)

// Default retry policy for failed triggers.
const (
	DefaultTriggerAttempts = 3
	DefaultTriggerBackoff  = 2 * time.Second
)

// TriggerHandler records a trigger once and processes it, possibly
// several times for the same event.
type TriggerHandler interface {
	RecordTrigger(ctx context.Context, trigger driving.Trigger) (*domain.DocumentEvent, error)
	ProcessTrigger(ctx context.Context, trigger driving.Trigger, event *domain.DocumentEvent) (*driving.TriggerResult, error)
}

// DispatcherOption configures a TriggerDispatcher.
type DispatcherOption func(*TriggerDispatcher)

// WithRetry sets the number of attempts and the delay before the first
// retry. The delay doubles after each failed attempt.
func WithRetry(attempts int, backoff time.Duration) DispatcherOption {
	return func(d *TriggerDispatcher) {
		if attempts < 1 {
			attempts = 1
		}
		d.attempts = attempts
		d.backoff = backoff
	}
}

// WithResultObserver registers a callback invoked after every trigger
// completes, successfully or not.
func WithResultObserver(fn func(driving.Trigger, *driving.TriggerResult, error)) DispatcherOption {
	return func(d *TriggerDispatcher) {
		d.observe = fn
	}
}

// TriggerDispatcher processes triggers in the background. Ordering per
// document comes from the handler; the dispatcher only drops duplicates
// of a trigger that is still pending.
type TriggerDispatcher struct {
	handler  TriggerHandler
	ctx      context.Context
	attempts int
	backoff  time.Duration
	observe  func(driving.Trigger, *driving.TriggerResult, error)

	mu      sync.Mutex
	pending map[string]struct{}
	wg      sync.WaitGroup
}

// NewTriggerDispatcher creates a dispatcher. Work stops when ctx ends.
func NewTriggerDispatcher(ctx context.Context, handler TriggerHandler, opts ...DispatcherOption) *TriggerDispatcher {
	d := &TriggerDispatcher{
		handler:  handler,
		ctx:      ctx,
		attempts: DefaultTriggerAttempts,
		backoff:  DefaultTriggerBackoff,
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit queues a trigger. It returns false if an identical trigger is
// already pending.
func (d *TriggerDispatcher) Submit(trigger driving.Trigger) bool {
	fp := fingerprint(trigger)

	d.mu.Lock()
	if _, dup := d.pending[fp]; dup {
		d.mu.Unlock()
		logger.Debug("dropping duplicate %s trigger for %s", trigger.Type, trigger.Repo)
		return false
	}
	d.pending[fp] = struct{}{}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer d.release(fp)

		result, err := d.process(trigger)
		if err != nil {
			logger.Error("trigger %s for %s failed: %v", trigger.Type, trigger.Repo, err)
		}
		if d.observe != nil {
			d.observe(trigger, result, err)
		}
	}()
	return true
}

func (d *TriggerDispatcher) release(fp string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, fp)
}

func (d *TriggerDispatcher) process(trigger driving.Trigger) (*driving.TriggerResult, error) {
	delay := d.backoff
	var (
		event  *domain.DocumentEvent
		result *driving.TriggerResult
		err    error
	)
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if event == nil {
			event, err = d.handler.RecordTrigger(d.ctx, trigger)
		}
		if event != nil {
			result, err = d.handler.ProcessTrigger(d.ctx, trigger, event)
		}
		if err == nil || !IsRetryable(err) || attempt == d.attempts {
			return result, err
		}

		logger.Warn("trigger %s for %s: attempt %d failed, retrying in %s: %v",
			trigger.Type, trigger.Repo, attempt, delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-d.ctx.Done():
			timer.Stop()
			return result, errors.Join(err, d.ctx.Err())
		case <-timer.C:
		}
		delay *= 2
	}
	return result, err
}

// Pending returns the number of triggers not yet processed.
func (d *TriggerDispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Wait blocks until every submitted trigger has been processed or ctx ends.
func (d *TriggerDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fingerprint identifies a trigger by type, target and payload.
// Map keys are marshalled in sorted order, so equal payloads agree.
func fingerprint(t driving.Trigger) string {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		payload = nil
	}
	return domain.HashContent(string(t.Type) + "|" + t.Repo + "|" + t.Path + "|" + string(payload))
}
