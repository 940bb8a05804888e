package middleware

import (
	"context"
	"errors"
	"strconv"
	"time"

	"RateGate/internal/domain/models"
	"RateGate/internal/service/ratelimit"
	xhttp "RateGate/pkg/http"
	pkgmw "RateGate/pkg/http/middleware"
	applogger "RateGate/pkg/logger"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// Recorder receives one event per admission decision.
type Recorder interface {
	Record(ev *models.AdmissionEvent)
}

// CostFunc returns how many tokens a request costs.
type CostFunc func(c echo.Context) int64

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	Mode        string        // models.ModeReject or models.ModeWait
	WaitTimeout time.Duration // upper bound on a wait; 0 means only the request context bounds it
	Cost        CostFunc      // nil means one token per request
	Recorder    Recorder
	Logger      *applogger.Logger
}

// RateLimit gates requests on bucket.
//
// In reject mode a request that finds too few tokens gets 429 with a
// Retry-After hint. In wait mode the request is held until tokens accrue,
// WaitTimeout passes (503), or the client goes away.
//
// Stacking two RateLimit middlewares (global, then per-route) consumes from
// each bucket independently: tokens taken by the first are not returned if
// the second rejects or times out.
func RateLimit(bucket *ratelimit.TokenBucket, opts RateLimitOptions) echo.MiddlewareFunc {
	if opts.Mode == "" {
		opts.Mode = models.ModeReject
	}
	if opts.Cost == nil {
		opts.Cost = func(echo.Context) int64 { return 1 }
	}
	if opts.Logger == nil {
		opts.Logger = applogger.Nop()
	}
	l := opts.Logger.With(applogger.String("bucket", bucket.Name()), applogger.String("mode", opts.Mode))
	// first warning, then at most one per second
	sampler := &rate.Sometimes{First: 1, Interval: time.Second}

	g := &gate{bucket: bucket, opts: opts, log: l, sampler: sampler}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if opts.Mode == models.ModeWait {
				return g.wait(c, next)
			}
			return g.reject(c, next)
		}
	}
}

type gate struct {
	bucket  *ratelimit.TokenBucket
	opts    RateLimitOptions
	log     *applogger.Logger
	sampler *rate.Sometimes
}

func (g *gate) reject(c echo.Context, next echo.HandlerFunc) error {
	n := g.opts.Cost(c)
	if n > g.bucket.Capacity() {
		return g.tooLarge(c, n)
	}
	if g.bucket.TryConsumeN(n) {
		ev := g.event(c, models.ResultAllowed)
		g.record(ev)
		g.setHeaders(c, ev.Available)
		return next(c)
	}

	ev := g.event(c, models.ResultRejected)
	ev.RetryAfter = g.bucket.RetryAfterSeconds()
	g.record(ev)
	g.sampler.Do(func() {
		g.log.Warn("request rejected",
			applogger.Int64("cost", n),
			applogger.Int64("available", ev.Available),
			applogger.Int64("retry_after_s", ev.RetryAfter),
		)
	})

	g.setHeaders(c, ev.Available)
	c.Response().Header().Set(xhttp.HeaderRetryAfter, strconv.FormatInt(ev.RetryAfter, 10))
	return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded", ev.RetryAfter).
		WithParam("bucket", g.bucket.Name()))
}

func (g *gate) wait(c echo.Context, next echo.HandlerFunc) error {
	n := g.opts.Cost(c)
	parent := c.Request().Context()
	ctx := parent
	if g.opts.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, g.opts.WaitTimeout)
		defer cancel()
	}

	start := time.Now()
	err := g.bucket.ConsumeN(ctx, n)
	waited := time.Since(start)

	if err == nil {
		ev := g.event(c, models.ResultAdmitted)
		ev.Waited = waited
		g.record(ev)
		if waited >= time.Second {
			g.log.Debug("request admitted after wait", applogger.Duration("waited_ms", waited))
		}
		g.setHeaders(c, ev.Available)
		return next(c)
	}

	if errors.Is(err, ratelimit.ErrExceedsCapacity) {
		return g.tooLarge(c, n)
	}

	ev := g.event(c, models.ResultTimedOut)
	ev.Waited = waited
	ev.RetryAfter = g.bucket.RetryAfterSeconds()
	g.record(ev)

	if parent.Err() != nil {
		// client gone or server shutting down; nobody reads the response
		g.log.Debug("waiter abandoned", applogger.Duration("waited_ms", waited))
		return nil
	}

	g.sampler.Do(func() {
		g.log.Warn("wait timed out",
			applogger.Int64("cost", n),
			applogger.Duration("waited_ms", waited),
		)
	})
	retryAfter := ev.RetryAfter
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Response().Header().Set(xhttp.HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
	return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("ERR_WAIT_TIMEOUT", "timed out waiting for rate limit capacity").
		WithParam("bucket", g.bucket.Name()).
		WithParam("retry_after_seconds", retryAfter))
}

// tooLarge answers a request that could never be admitted, however long it waited.
func (g *gate) tooLarge(c echo.Context, n int64) error {
	return xhttp.AppErrorResponse(c, xhttp.BadRequestError("request cost exceeds limiter capacity").
		WithParam("bucket", g.bucket.Name()).
		WithParam("cost", n).
		WithParam("capacity", g.bucket.Capacity()))
}

func (g *gate) event(c echo.Context, result string) *models.AdmissionEvent {
	req := c.Request()
	return &models.AdmissionEvent{
		RequestID:  pkgmw.RequestIDFrom(c),
		Bucket:     g.bucket.Name(),
		Mode:       g.opts.Mode,
		Result:     result,
		Method:     req.Method,
		Path:       c.Path(),
		RemoteAddr: c.RealIP(),
		Available:  g.bucket.AvailableTokens(),
		At:         time.Now(),
	}
}

func (g *gate) record(ev *models.AdmissionEvent) {
	if g.opts.Recorder != nil {
		g.opts.Recorder.Record(ev)
	}
}

func (g *gate) setHeaders(c echo.Context, available int64) {
	h := c.Response().Header()
	h.Set(xhttp.HeaderRateLimitBucket, g.bucket.Name())
	h.Set(xhttp.HeaderRateLimitLimit, strconv.FormatInt(g.bucket.Capacity(), 10))
	h.Set(xhttp.HeaderRateLimitRemaining, strconv.FormatInt(available, 10))
}
