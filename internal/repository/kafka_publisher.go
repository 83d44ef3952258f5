package repository

import (
	"context"

	"BlockPulse/internal/domain/models"
	"BlockPulse/internal/domain/repository"
)

// MessageWriter is the subset of pkg/kafka.Producer used for publishing.
type MessageWriter interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaPublisher implements Publisher for Kafka. Messages are keyed by
// source so each source keeps its order within a partition.
type KafkaPublisher struct {
	producer MessageWriter
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer MessageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, obs models.Observation) error {
	msg := models.NewObservationMessage(obs)
	if err := p.producer.Publish(ctx, p.topic, []byte(obs.Source), msg); err != nil {
		return &repository.StoreError{Op: "publish", Target: p.topic, Err: err}
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ repository.Publisher = (*KafkaPublisher)(nil)
