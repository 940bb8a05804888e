package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"RateGate/internal/domain/models"
	domrepo "RateGate/internal/domain/repository"
)

// AdmissionRecorder records limiter decisions. Metrics are updated inline;
// events are queued and published by a background worker so a slow broker
// never delays the request path.
type AdmissionRecorder struct {
	pub     domrepo.EventPublisher
	metrics domrepo.Metrics
	bufSize int
	bufCh   chan *models.AdmissionEvent
	stopCh  chan struct{}
	doneCh  chan struct{}
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
	// rejections only by default; allowed events can be very chatty
	publishAllowed bool
}

type RecorderOption func(*AdmissionRecorder)

// WithRecorderBuffer sets the event queue size.
func WithRecorderBuffer(n int) RecorderOption {
	return func(r *AdmissionRecorder) {
		if n > 0 {
			r.bufSize = n
		}
	}
}

// WithPublishAllowed also publishes successful admissions.
func WithPublishAllowed(v bool) RecorderOption {
	return func(r *AdmissionRecorder) { r.publishAllowed = v }
}

// NewAdmissionRecorder creates a recorder. Call Start to begin publishing.
func NewAdmissionRecorder(pub domrepo.EventPublisher, metrics domrepo.Metrics, opts ...RecorderOption) *AdmissionRecorder {
	r := &AdmissionRecorder{
		pub:     pub,
		metrics: metrics,
		bufSize: 1024,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.bufCh = make(chan *models.AdmissionEvent, r.bufSize)
	return r
}

// Start launches the publishing worker.
func (r *AdmissionRecorder) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	go func() {
		defer close(r.doneCh)
		for {
			select {
			case <-r.stopCh:
				r.drain(ctx)
				return
			case ev := <-r.bufCh:
				r.publish(ctx, ev)
			}
		}
	}()
}

// Record updates metrics and queues the event for publishing. It never blocks;
// when the queue is full the event is dropped and counted.
func (r *AdmissionRecorder) Record(ev *models.AdmissionEvent) {
	if ev == nil {
		return
	}
	r.metrics.RecordAdmission(ev.Bucket, ev.Mode, ev.Result)
	r.metrics.RecordAvailable(ev.Bucket, ev.Available)
	if ev.Mode == models.ModeWait {
		r.metrics.RecordWait(ev.Bucket, ev.Result, ev.Waited.Seconds())
	}

	if !r.shouldPublish(ev) {
		return
	}
	select {
	case r.bufCh <- ev:
	default:
		r.metrics.RecordError("admission_event_dropped")
	}
}

// Pending returns the number of queued events.
func (r *AdmissionRecorder) Pending() int { return len(r.bufCh) }

// Shutdown stops the worker after publishing what is queued. When ctx ends
// first, in-flight and queued publishes are abandoned; Shutdown still returns
// only once the worker has exited, so the publisher can be closed afterwards.
func (r *AdmissionRecorder) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	cancel := r.cancel
	r.mu.Unlock()
	close(r.stopCh)
	defer cancel()

	select {
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		cancel()
		<-r.doneCh
		return fmt.Errorf("admission recorder shutdown: %w", ctx.Err())
	}
}

func (r *AdmissionRecorder) shouldPublish(ev *models.AdmissionEvent) bool {
	switch ev.Result {
	case models.ResultRejected, models.ResultTimedOut:
		return true
	default:
		return r.publishAllowed
	}
}

func (r *AdmissionRecorder) drain(ctx context.Context) {
	for {
		select {
		case ev := <-r.bufCh:
			r.publish(ctx, ev)
		default:
			return
		}
	}
}

func (r *AdmissionRecorder) publish(ctx context.Context, ev *models.AdmissionEvent) {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.pub.PublishAdmission(pctx, ev); err != nil {
		r.metrics.RecordError("admission_publish")
	}
}
