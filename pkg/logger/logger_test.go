package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *memPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *memPublisher) all() [][]AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]AggregatedLogEntry(nil), p.batches...)
}

func TestLogger_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(&buf, zerolog.InfoLevel, zerolog.ErrorLevel)

	l.With(String("source", "chain_height")).Info("observation", Uint64("height", 820000), Duration("took", 1500*time.Millisecond))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "observation", line["message"])
	assert.Equal(t, "chain_height", line["source"])
	assert.Equal(t, float64(820000), line["height"])
	assert.Equal(t, float64(1500), line["took"])
	assert.Contains(t, line["caller"], "logger_test.go")
}

func TestStrings_JoinsValues(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(&buf, zerolog.InfoLevel, zerolog.ErrorLevel)

	l.Info("kafka consumer started", Strings("topics", []string{"observations", "logs"}))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "observations,logs", line["topics"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(&buf, zerolog.WarnLevel, zerolog.ErrorLevel)
	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestCollector_AggregatesRepeatedErrors(t *testing.T) {
	var buf bytes.Buffer
	pub := &memPublisher{}
	l := newWithWriter(&buf, zerolog.InfoLevel, zerolog.ErrorLevel)
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})

	child := l.With(String("source", "price_index"))
	for i := 0; i < 3; i++ {
		child.Error("persist failed", Error(errors.New("connection reset")))
	}
	child.Warn("fetch failed")
	l.RemoveCollector()

	batches := pub.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	e := batches[0][0]
	assert.Equal(t, "error", e.Level)
	assert.Equal(t, "persist failed", e.Message)
	assert.Equal(t, 3, e.Count)
	assert.Equal(t, "connection reset", e.Fields["error"])
	assert.Equal(t, "logs", pub.topic)
}

func TestCollector_ThresholdFlush(t *testing.T) {
	pub := &memPublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")
	assert.Equal(t, 0, c.Pending())
	c.Close()

	require.Len(t, pub.all(), 1)
	assert.Len(t, pub.all()[0], 2)
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("nothing", Error(nil))
	l.With(Bool("k", true)).Info("still nothing")
}
