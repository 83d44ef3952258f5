package repository

import (
	"context"
	"errors"

	"BlockPulse/internal/domain/models"
)

// Fetcher retrieves the current value of one external feed.
type Fetcher interface {
	Source() models.Source
	Fetch(ctx context.Context) (models.Observation, error)
}

// Recorder durably appends a single observation.
type Recorder interface {
	Record(ctx context.Context, obs models.Observation) error
}

// Broadcaster fans an observation out to live subscribers.
type Broadcaster interface {
	Publish(obs models.Observation) int
}

type Publisher interface {
	Publish(ctx context.Context, obs models.Observation) error
	Close() error
}

type Storage interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, obs models.Observation) error
	LatestBlock(ctx context.Context) (*models.LatestBlock, error)
	LatestPrice(ctx context.Context) (*models.LatestPrice, error)
	Joined(ctx context.Context, q models.HistoryQuery) ([]models.JoinedRow, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordFetch(source, result string)
	RecordSkippedTick(source string)
	RecordPersisted(backend, source string)
	RecordError(kind string)
	RecordLastValue(source string, v float64)
	RecordLatency(op string, seconds float64)
	RecordFramePublished(recipients int)
	RecordFrameDropped()
	SetSubscribers(n int)
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) RecordFetch(string, string)      {}
func (NopMetrics) RecordSkippedTick(string)        {}
func (NopMetrics) RecordPersisted(string, string)  {}
func (NopMetrics) RecordError(string)              {}
func (NopMetrics) RecordLastValue(string, float64) {}
func (NopMetrics) RecordLatency(string, float64)   {}
func (NopMetrics) RecordFramePublished(int)        {}
func (NopMetrics) RecordFrameDropped()             {}
func (NopMetrics) SetSubscribers(int)              {}

// StoreError wraps a storage or producer failure with the operation and target.
type StoreError struct {
	Op     string
	Target string
	Err    error
}

func (e *StoreError) Error() string {
	return e.Op + " " + e.Target + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }

// ErrNotFound is returned when a query matches no rows.
var ErrNotFound = errors.New("not found")
