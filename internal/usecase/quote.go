package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	domrepo "RateGate/internal/domain/repository"
	"RateGate/internal/service/cache"
	xhttp "RateGate/pkg/http"
	applogger "RateGate/pkg/logger"
)

const quoteKeyPrefix = "quote:"

// QuoteUseCase serves quotes from the cache, falling back to the upstream API.
type QuoteUseCase struct {
	upstream domrepo.Upstream
	cache    cache.BytesCache
	ttl      time.Duration
	metrics  domrepo.Metrics
	log      *applogger.Logger
}

func NewQuoteUseCase(up domrepo.Upstream, c cache.BytesCache, ttl time.Duration, m domrepo.Metrics, l *applogger.Logger) *QuoteUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &QuoteUseCase{upstream: up, cache: c, ttl: ttl, metrics: m, log: l}
}

// QuoteResult is a raw upstream quote and where it came from.
type QuoteResult struct {
	Symbol string          `json:"symbol"`
	Cached bool            `json:"cached"`
	Quote  json.RawMessage `json:"quote"`
}

// GetQuote returns the quote for symbol. Cache failures are logged and
// treated as misses.
func (uc *QuoteUseCase) GetQuote(ctx context.Context, symbol string) (*QuoteResult, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, xhttp.BadRequestError("symbol required").WithField("symbol")
	}
	key := quoteKeyPrefix + symbol

	start := time.Now()
	if uc.cache != nil {
		b, ok, err := uc.cache.GetBytes(ctx, key)
		if err != nil {
			uc.metrics.RecordError("cache_get")
			uc.log.Warn("quote cache read failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
		if ok {
			uc.metrics.RecordUpstream("quote", "hit", time.Since(start).Seconds())
			return &QuoteResult{Symbol: symbol, Cached: true, Quote: b}, nil
		}
	}

	body, err := uc.upstream.Quote(ctx, symbol)
	uc.metrics.RecordUpstream("quote", "miss", time.Since(start).Seconds())
	if err != nil {
		uc.metrics.RecordError("upstream_quote")
		return nil, mapUpstreamError(symbol, err)
	}
	if !json.Valid(body) {
		uc.metrics.RecordError("upstream_quote")
		return nil, xhttp.BadGatewayError("upstream returned malformed JSON").WithParam("symbol", symbol)
	}

	if uc.cache != nil && uc.ttl > 0 {
		if err := uc.cache.SetBytes(ctx, key, body, uc.ttl); err != nil {
			uc.metrics.RecordError("cache_set")
			uc.log.Warn("quote cache write failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
	return &QuoteResult{Symbol: symbol, Quote: body}, nil
}

// GetQuotes fetches each symbol in order. The first failure aborts the batch.
func (uc *QuoteUseCase) GetQuotes(ctx context.Context, symbols []string) ([]*QuoteResult, error) {
	out := make([]*QuoteResult, 0, len(symbols))
	for _, s := range symbols {
		q, err := uc.GetQuote(ctx, s)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SplitSymbols parses a comma separated list, dropping blanks and duplicates.
func SplitSymbols(raw string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		s := NormalizeSymbol(part)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func mapUpstreamError(symbol string, err error) error {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusNotFound:
			return xhttp.NotFoundErrorf("no quote for %s", symbol).WithError(err)
		case se.Code == http.StatusTooManyRequests:
			// the upstream's own quota is exhausted; surface it as our 503
			appErr := xhttp.ServiceUnavailableError("ERR_UPSTREAM_THROTTLED", "upstream rate limit reached").WithError(err)
			if se.RetryAfter > 0 {
				appErr.WithParam("retry_after_seconds", se.RetryAfter)
			}
			return appErr
		}
		return xhttp.BadGatewayError("upstream request failed").
			WithParam("upstream_status", se.Code).
			WithError(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return xhttp.ServiceUnavailableError("ERR_UPSTREAM_TIMEOUT", "upstream did not respond in time").WithError(err)
	}
	return xhttp.BadGatewayError("upstream request failed").WithError(err)
}
