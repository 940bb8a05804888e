package middleware

import (
	"time"

	"RateGate/internal/domain/models"
	"RateGate/internal/service/ratelimit"
	applogger "RateGate/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Policy says how a bucket admits requests.
type Policy struct {
	Mode        string
	WaitTimeout time.Duration
}

// Limiters builds the middleware chain for a route from a bucket registry.
type Limiters struct {
	registry *ratelimit.Registry
	policies map[string]Policy
	recorder Recorder
	log      *applogger.Logger
}

func NewLimiters(reg *ratelimit.Registry, policies map[string]Policy, rec Recorder, l *applogger.Logger) *Limiters {
	if l == nil {
		l = applogger.Nop()
	}
	if policies == nil {
		policies = map[string]Policy{}
	}
	return &Limiters{registry: reg, policies: policies, recorder: rec, log: l}
}

// For returns the global limiter followed by the limiter of the named route
// bucket. cost applies to both; nil means one token.
func (ls *Limiters) For(bucket string, cost CostFunc) []echo.MiddlewareFunc {
	var chain []echo.MiddlewareFunc
	if g := ls.registry.Global(); g != nil {
		chain = append(chain, RateLimit(g, ls.options(ratelimit.GlobalBucket, cost)))
	}
	if bucket == "" || bucket == ratelimit.GlobalBucket {
		return chain
	}
	b, ok := ls.registry.Get(bucket)
	if !ok {
		ls.log.Warn("route bucket not configured, only the global limit applies", applogger.String("bucket", bucket))
		return chain
	}
	return append(chain, RateLimit(b, ls.options(bucket, cost)))
}

func (ls *Limiters) options(bucket string, cost CostFunc) RateLimitOptions {
	p, ok := ls.policies[bucket]
	if !ok {
		p = Policy{Mode: models.ModeReject}
	}
	return RateLimitOptions{
		Mode:        p.Mode,
		WaitTimeout: p.WaitTimeout,
		Cost:        cost,
		Recorder:    ls.recorder,
		Logger:      ls.log,
	}
}
