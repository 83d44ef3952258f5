package usecase

import (
	"context"
	"fmt"
	"time"

	"BlockPulse/internal/domain/models"
	drepo "BlockPulse/internal/domain/repository"
)

const (
	BackendClickHouse = "clickhouse"
	BackendKafka      = "kafka"
)

// ObservationProcessor appends observations to the configured backend.
// Each call makes exactly one attempt.
type ObservationProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

// NewObservationProcessor creates a new ObservationProcessor instance.
func NewObservationProcessor(
	pub drepo.Publisher,
	store drepo.Storage,
	metrics drepo.Metrics,
	backend string,
) *ObservationProcessor {
	return &ObservationProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

// Record routes obs to the configured backend.
func (p *ObservationProcessor) Record(ctx context.Context, obs models.Observation) error {
	start := time.Now()
	var err error

	switch p.backend {
	case BackendKafka:
		err = p.pub.Publish(ctx, obs)
	case BackendClickHouse:
		err = p.store.Store(ctx, obs)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("persist")
		return fmt.Errorf("record %s: %w", obs.Source, err)
	}

	p.metrics.RecordPersisted(p.backend, string(obs.Source))
	p.metrics.RecordLatency("persist", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (p *ObservationProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

var _ drepo.Recorder = (*ObservationProcessor)(nil)
