package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Response headers carrying the caller's quota.
const (
	headerLimit     = "X-RateLimit-Limit"
	headerRemaining = "X-RateLimit-Remaining"
	headerReset     = "X-RateLimit-Reset"
)

const (
	// hourlyQuota is the authenticated REST quota assumed before the first
	// response arrives.
	hourlyQuota = 5000

	// RequestsPerSecond paces outgoing calls. A sync or export touches a
	// few files and issues, far under the hourly quota.
	RequestsPerSecond = 2.0

	// ReserveRequests is kept back; below it callers sleep until reset.
	ReserveRequests = 100
)

// Quota is the last quota GitHub reported.
type Quota struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// low reports whether fewer than reserve calls remain before a reset that
// has not happened yet.
func (q Quota) low(reserve int, now time.Time) bool {
	return q.Remaining < reserve && now.Before(q.Reset)
}

// Throttle paces API calls and backs off when the quota runs low.
type Throttle struct {
	pace    *rate.Limiter
	reserve int

	mu    sync.Mutex
	quota Quota
}

// NewThrottle returns a throttle pacing at RequestsPerSecond.
func NewThrottle() *Throttle {
	return newThrottle(rate.Limit(RequestsPerSecond))
}

func newThrottle(r rate.Limit) *Throttle {
	return &Throttle{
		pace:    rate.NewLimiter(r, 1),
		reserve: ReserveRequests,
		quota:   Quota{Limit: hourlyQuota, Remaining: hourlyQuota},
	}
}

// Acquire blocks until a call may be made or ctx is done.
func (t *Throttle) Acquire(ctx context.Context) error {
	if err := t.pace.Wait(ctx); err != nil {
		return err
	}

	q := t.Quota()
	if !q.low(t.reserve, time.Now()) {
		return nil
	}

	timer := time.NewTimer(time.Until(q.Reset))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Observe records the quota headers of resp. Missing or malformed headers
// leave the previous value in place.
func (t *Throttle) Observe(resp *http.Response) {
	if resp == nil {
		return
	}
	h := resp.Header

	t.mu.Lock()
	defer t.mu.Unlock()

	if n, ok := intHeader(h, headerLimit); ok {
		t.quota.Limit = n
	}
	if n, ok := intHeader(h, headerRemaining); ok {
		t.quota.Remaining = n
	}
	if n, ok := intHeader(h, headerReset); ok {
		t.quota.Reset = time.Unix(int64(n), 0)
	}
}

// Quota returns a snapshot of the tracked quota.
func (t *Throttle) Quota() Quota {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quota
}

func intHeader(h http.Header, key string) (int, bool) {
	v := h.Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}
