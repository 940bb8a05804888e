package server

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"RateGate/internal/domain/models"
	"RateGate/internal/repository"
	"RateGate/internal/service/cache"
	"RateGate/internal/usecase"
	"RateGate/pkg/config"
	xhttp "RateGate/pkg/http"
	applogger "RateGate/pkg/logger"

	"github.com/labstack/echo/v4"
)

type nopMetrics struct{}

func (nopMetrics) RecordAdmission(string, string, string) {}
func (nopMetrics) RecordAvailable(string, int64)          {}
func (nopMetrics) RecordWait(string, string, float64)     {}
func (nopMetrics) RecordUpstream(string, string, float64) {}
func (nopMetrics) RecordError(string)                     {}

func TestAppRunStopsOnContextCancel(t *testing.T) {
	cfg, err := config.Parse([]byte(`
server:
  port: 1
  shutdown_timeout: 2s
limits:
  global: {capacity: 1, refill_rate: 1, refill_period: 1s}
upstream:
  base_url: http://127.0.0.1:1
`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	l := applogger.Nop()
	srv := xhttp.NewServer(nil, l, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithMetrics("", nil))
	rec := usecase.NewAdmissionRecorder(repository.NoopEventPublisher{}, nopMetrics{}, usecase.WithPublishAllowed(true))
	app := New(cfg, l, srv, rec, repository.NoopEventPublisher{}, cache.NewTTLCache())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	rec.Record(&models.AdmissionEvent{Bucket: "global", Mode: models.ModeReject, Result: models.ResultAllowed})
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
	if rec.Pending() != 0 {
		t.Fatalf("recorder left %d events", rec.Pending())
	}
}

// gatedPublisher blocks each publish until release is closed or ctx ends.
type gatedPublisher struct {
	release           chan struct{}
	active            atomic.Int32
	published         atomic.Int32
	closed            atomic.Bool
	closedWhileActive atomic.Bool
}

func (p *gatedPublisher) PublishAdmission(ctx context.Context, _ *models.AdmissionEvent) error {
	p.active.Add(1)
	defer p.active.Add(-1)
	select {
	case <-p.release:
		p.published.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *gatedPublisher) Close() error {
	if p.active.Load() > 0 {
		p.closedWhileActive.Store(true)
	}
	p.closed.Store(true)
	return nil
}

// slowHandler holds its request past the shutdown budget, ignoring cancellation.
type slowHandler struct {
	entered chan struct{}
	hold    time.Duration
}

func (h slowHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/slow", func(c echo.Context) error {
		close(h.entered)
		time.Sleep(h.hold)
		return c.NoContent(http.StatusNoContent)
	})
}

func TestAppShutdownAfterSlowStop(t *testing.T) {
	tests := []struct {
		name          string
		releaseAfter  time.Duration // 0 keeps the publisher blocked
		wantPublished int32
	}{
		{name: "drain gets its own budget", releaseAfter: 750 * time.Millisecond, wantPublished: 1},
		{name: "stuck publisher is abandoned before close", wantPublished: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(`
server:
  shutdown_timeout: 500ms
limits:
  global: {capacity: 1, refill_rate: 1, refill_period: 1s}
upstream:
  base_url: http://127.0.0.1:1
`))
			if err != nil {
				t.Fatalf("config: %v", err)
			}

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatalf("listen: %v", err)
			}
			h := slowHandler{entered: make(chan struct{}), hold: 1500 * time.Millisecond}
			l := applogger.Nop()
			srv := xhttp.NewServer(h, l, xhttp.WithMetrics("", nil))
			srv.Echo().Listener = ln

			pub := &gatedPublisher{release: make(chan struct{})}
			rec := usecase.NewAdmissionRecorder(pub, nopMetrics{})
			app := New(cfg, l, srv, rec, pub, cache.NewTTLCache())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- app.run(ctx) }()

			go func() {
				resp, err := http.Get("http://" + ln.Addr().String() + "/slow")
				if err == nil {
					resp.Body.Close()
				}
			}()
			select {
			case <-h.entered:
			case <-time.After(2 * time.Second):
				t.Fatalf("request never reached the handler")
			}

			rec.Record(&models.AdmissionEvent{Bucket: "global", Mode: models.ModeReject, Result: models.ResultRejected})
			cancel()
			if tt.releaseAfter > 0 {
				time.AfterFunc(tt.releaseAfter, func() { close(pub.release) })
			}

			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("run: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("run did not return after cancel")
			}
			if !pub.closed.Load() {
				t.Fatalf("publisher was not closed")
			}
			if pub.closedWhileActive.Load() {
				t.Fatalf("publisher closed while a publish was in flight")
			}
			if got := pub.published.Load(); got != tt.wantPublished {
				t.Fatalf("published=%d, want %d", got, tt.wantPublished)
			}
		})
	}
}
