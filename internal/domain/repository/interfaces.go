package repository

import (
	"context"

	"RateGate/internal/domain/models"
)

// Upstream fetches data from the external API the gateway protects.
type Upstream interface {
	Quote(ctx context.Context, symbol string) ([]byte, error)
}

// EventPublisher ships admission events out of process.
type EventPublisher interface {
	PublishAdmission(ctx context.Context, ev *models.AdmissionEvent) error
	Close() error
}

type Metrics interface {
	RecordAdmission(bucket, mode, result string)
	RecordAvailable(bucket string, tokens int64)
	RecordWait(bucket, result string, seconds float64)
	RecordUpstream(op, cache string, seconds float64)
	RecordError(kind string)
}
