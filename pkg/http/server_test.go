package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"RateGate/internal/service/ratelimit"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type limitedHandler struct{}

func (limitedHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/limited", func(c echo.Context) error {
		c.Response().Header().Set(HeaderRetryAfter, "3")
		return AppErrorResponse(c, TooManyRequestsError("rate limit exceeded", 3))
	})
}

func TestServerErrorEnvelopeAndMetrics(t *testing.T) {
	srv := NewServer(limitedHandler{}, nil, WithMetrics("/metrics", prometheus.NewRegistry()))
	e := srv.Echo()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/limited", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", rec.Code)
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatalf("missing request id")
	}

	var body APIResponse429Err
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != http.StatusTooManyRequests || len(body.Data) != 1 {
		t.Fatalf("body=%+v", body)
	}
	if body.Data[0].Code != "ERR_RATE_LIMITED" {
		t.Fatalf("code=%s", body.Data[0].Code)
	}
	if v, ok := body.Data[0].Params["retry_after_seconds"].(float64); !ok || v != 3 {
		t.Fatalf("retry_after_seconds=%v", body.Data[0].Params["retry_after_seconds"])
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Fatalf("metrics output missing http_requests_total")
	}
}

func TestServerCORSExposesLimitHeaders(t *testing.T) {
	srv := NewServer(limitedHandler{}, nil, WithMetrics("", prometheus.NewRegistry()))

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.Header.Set(echo.HeaderOrigin, "http://example.com")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	exposed := rec.Header().Get(echo.HeaderAccessControlExposeHeaders)
	for _, h := range []string{HeaderRetryAfter, HeaderRateLimitRemaining} {
		if !strings.Contains(exposed, h) {
			t.Fatalf("expose headers %q missing %s", exposed, h)
		}
	}
}

type parkingHandler struct {
	bucket *ratelimit.TokenBucket
	parked chan struct{}
	result chan error
}

func (h parkingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/park", func(c echo.Context) error {
		close(h.parked)
		err := h.bucket.ConsumeN(c.Request().Context(), 1)
		h.result <- err
		return err
	})
}

func TestServerStopReleasesParkedWaiters(t *testing.T) {
	b, err := ratelimit.NewTokenBucket(1, 1, time.Hour)
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	if !b.TryConsume() {
		t.Fatalf("expected the only token")
	}
	h := parkingHandler{bucket: b, parked: make(chan struct{}), result: make(chan error, 1)}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(h, nil, WithMetrics("", nil))
	srv.Echo().Listener = ln
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/park")
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-h.parked:
	case <-time.After(2 * time.Second):
		t.Fatalf("request never reached the handler")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Stop took %v with a parked waiter", elapsed)
	}

	select {
	case err := <-h.result:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("waiter err=%v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("parked waiter was not released")
	}
}
