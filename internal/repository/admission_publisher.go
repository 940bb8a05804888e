package repository

import (
	"context"

	"RateGate/internal/domain/models"
	"RateGate/internal/domain/repository"
	pkgkafka "RateGate/pkg/kafka"
)

// KafkaEventPublisher implements EventPublisher for Kafka. Events are keyed
// by bucket name so one bucket's decisions stay ordered within a partition.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaEventPublisher creates a Kafka publisher.
func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) repository.EventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishAdmission(ctx context.Context, ev *models.AdmissionEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.Bucket), ev)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopEventPublisher drops every event. Used when Kafka is disabled.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishAdmission(context.Context, *models.AdmissionEvent) error { return nil }
func (NoopEventPublisher) Close() error                                                   { return nil }
