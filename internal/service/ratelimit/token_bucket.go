package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// pollInterval is how long a waiter sleeps when tokens may already be
// available but another caller won the race for them.
const pollInterval = 100 * time.Millisecond

// Option configures a TokenBucket.
type Option func(*TokenBucket)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(tb *TokenBucket) {
		if c != nil {
			tb.clock = c
		}
	}
}

// WithName labels the bucket for logs, metrics and status output.
func WithName(name string) Option {
	return func(tb *TokenBucket) {
		tb.name = name
	}
}

// TokenBucket is a concurrency-safe token bucket. It holds up to capacity
// tokens and credits refillRate tokens every refillPeriod. Tokens are only
// credited in whole units; the remainder of a partial period is kept by not
// advancing lastRefill until at least one token has accrued.
type TokenBucket struct {
	name         string
	capacity     int64
	refillRate   int64
	refillPeriod time.Duration
	clock        Clock

	mu         sync.Mutex
	tokens     int64
	lastRefill time.Time
}

// Status is a point-in-time view of a bucket.
type Status struct {
	Name              string        `json:"name"`
	Capacity          int64         `json:"capacity"`
	RefillRate        int64         `json:"refill_rate"`
	RefillPeriod      time.Duration `json:"-"`
	RefillPeriodText  string        `json:"refill_period"`
	Available         int64         `json:"available"`
	RetryAfterSeconds int64         `json:"retry_after_seconds"`
}

// NewTokenBucket creates a full bucket. All three parameters must be
// positive and refillPeriod must be at least one millisecond.
//
// Example: NewTokenBucket(5, 5, 10*time.Second) allows a burst of 5 and
// then one request every 2 seconds.
func NewTokenBucket(capacity, refillRate int64, refillPeriod time.Duration, opts ...Option) (*TokenBucket, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidArgument, capacity)
	}
	if refillRate <= 0 {
		return nil, fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidArgument, refillRate)
	}
	if refillPeriod < time.Millisecond {
		return nil, fmt.Errorf("%w: refill period must be at least 1ms, got %s", ErrInvalidArgument, refillPeriod)
	}

	tb := &TokenBucket{
		capacity:     capacity,
		refillRate:   refillRate,
		refillPeriod: refillPeriod,
		clock:        SystemClock(),
	}
	for _, opt := range opts {
		opt(tb)
	}
	tb.tokens = capacity
	tb.lastRefill = tb.clock.Now()
	return tb, nil
}

// Name returns the bucket label, empty if none was set.
func (tb *TokenBucket) Name() string { return tb.name }

// Capacity returns the maximum number of tokens.
func (tb *TokenBucket) Capacity() int64 { return tb.capacity }

// RefillRate returns the tokens credited per refill period.
func (tb *TokenBucket) RefillRate() int64 { return tb.refillRate }

// RefillPeriod returns the window over which RefillRate tokens accrue.
func (tb *TokenBucket) RefillPeriod() time.Duration { return tb.refillPeriod }

// TryConsume takes one token if available.
func (tb *TokenBucket) TryConsume() bool {
	return tb.TryConsumeN(1)
}

// TryConsumeN takes n tokens if all n are available. On failure the bucket
// is left untouched.
func (tb *TokenBucket) TryConsumeN(n int64) bool {
	if n <= 0 {
		return true
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}
	return false
}

// Consume waits until one token is available and takes it.
func (tb *TokenBucket) Consume(ctx context.Context) error {
	return tb.ConsumeN(ctx, 1)
}

// ConsumeN waits until n tokens are available and takes them. It never
// fails for lack of tokens; it returns ctx.Err() if the context ends first,
// in which case nothing was taken. Waiters are not served in FIFO order.
func (tb *TokenBucket) ConsumeN(ctx context.Context, n int64) error {
	if n <= 0 {
		return nil
	}
	if n > tb.capacity {
		return fmt.Errorf("%w: want %d, capacity %d", ErrExceedsCapacity, n, tb.capacity)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tb.mu.Lock()
		tb.refillLocked()
		if tb.tokens >= n {
			tb.tokens -= n
			tb.mu.Unlock()
			return nil
		}
		wait := tb.waitTimeLocked()
		tb.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// AvailableTokens refills and returns the current balance.
func (tb *TokenBucket) AvailableTokens() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	return tb.tokens
}

// RetryAfterSeconds is a rounded-up estimate of how long a rejected caller
// should wait, suitable for a Retry-After header. Zero means a token is
// available now.
func (tb *TokenBucket) RetryAfterSeconds() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	return tb.retryAfterLocked()
}

// Reset refills the bucket to capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = tb.clock.Now()
}

// Snapshot returns the bucket status under a single lock.
func (tb *TokenBucket) Snapshot() Status {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	return Status{
		Name:              tb.name,
		Capacity:          tb.capacity,
		RefillRate:        tb.refillRate,
		RefillPeriod:      tb.refillPeriod,
		RefillPeriodText:  tb.refillPeriod.String(),
		Available:         tb.tokens,
		RetryAfterSeconds: tb.retryAfterLocked(),
	}
}

// String renders e.g. "capacity=5, refillRate=5 tokens/10s, available=3".
func (tb *TokenBucket) String() string {
	return fmt.Sprintf("capacity=%d, refillRate=%d tokens/%s, available=%d",
		tb.capacity, tb.refillRate, tb.refillPeriod, tb.AvailableTokens())
}

// refillLocked credits whole tokens for the time elapsed since lastRefill.
// Caller must hold tb.mu.
func (tb *TokenBucket) refillLocked() {
	now := tb.clock.Now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}

	elapsedMs := elapsed.Milliseconds()
	periodMs := tb.refillPeriod.Milliseconds()

	var add int64
	if elapsedMs >= tb.fullRefillMs(periodMs) {
		add = tb.capacity
	} else {
		add = elapsedMs * tb.refillRate / periodMs
	}
	if add <= 0 {
		return
	}

	tb.tokens += add
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// fullRefillMs is the time an empty bucket needs to fill up. Anything
// longer saturates, which also keeps elapsedMs*refillRate from overflowing.
func (tb *TokenBucket) fullRefillMs(periodMs int64) int64 {
	periods := (tb.capacity + tb.refillRate - 1) / tb.refillRate
	return periods * periodMs
}

// waitTimeLocked is a re-poll interval, not an exact wake time.
func (tb *TokenBucket) waitTimeLocked() time.Duration {
	if tb.tokens >= 1 {
		return pollInterval
	}
	ms := tb.refillPeriod.Milliseconds() / tb.refillRate
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

func (tb *TokenBucket) retryAfterLocked() int64 {
	if tb.tokens >= 1 {
		return 0
	}
	return tb.refillPeriod.Milliseconds()/tb.refillRate/1000 + 1
}
