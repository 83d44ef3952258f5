package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"BlockPulse/internal/domain/models"
	domrepo "BlockPulse/internal/domain/repository"
	pkgkafka "BlockPulse/pkg/kafka"
)

// ObservationsHandler consumes observation messages and writes them to storage.
type ObservationsHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewObservationsHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *ObservationsHandler {
	return &ObservationsHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *ObservationsHandler) Topic() string { return h.topic }

func (h *ObservationsHandler) Handle(ctx context.Context, b []byte) error {
	var m models.ObservationMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("unmarshal observation: %w", err)
	}
	obs, err := m.Observation()
	if err != nil {
		h.metrics.RecordError("consumer_decode")
		return fmt.Errorf("decode observation: %w", err)
	}

	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(obs.ObservedAt).Seconds())

	start := time.Now()
	err = h.storage.Store(ctx, obs)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordPersisted(BackendClickHouse, string(obs.Source))
	return nil
}

var _ pkgkafka.MessageHandler = (*ObservationsHandler)(nil)
