package papersources

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle paces requests to one upstream source. A token bucket sets the
// steady rate; Cooldown pauses every caller sharing the throttle after the
// upstream signals overload, so concurrent bulk workers back off together.
type Throttle struct {
	limiter *rate.Limiter

	mu    sync.Mutex
	until time.Time
	now   func() time.Time
}

// NewThrottle allows ratePerSecond requests per second with the given burst.
// A non-positive rate disables the token bucket.
func NewThrottle(ratePerSecond float64, burst int) *Throttle {
	limit := rate.Limit(ratePerSecond)
	if ratePerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
	}
}

// Wait blocks until any cooldown has passed and a token is available.
func (t *Throttle) Wait(ctx context.Context) error {
	if d := t.Remaining(); d > 0 {
		if err := SleepContext(ctx, d); err != nil {
			return err
		}
	}
	return t.limiter.Wait(ctx)
}

// Cooldown holds every caller for at least d. Overlapping cooldowns keep the
// later deadline.
func (t *Throttle) Cooldown(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if until := t.now().Add(d); until.After(t.until) {
		t.until = until
	}
}

// Remaining reports how long the current cooldown still runs.
func (t *Throttle) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d := t.until.Sub(t.now()); d > 0 {
		return d
	}
	return 0
}
