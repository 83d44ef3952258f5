package hub

import (
	"sync"
	"sync/atomic"

	"BlockPulse/internal/domain/models"
	"BlockPulse/internal/domain/repository"
	applogger "BlockPulse/pkg/logger"
)

const DefaultQueueSize = 64

// Option configures a Hub.
type Option func(*Hub)

// WithQueueSize bounds each subscriber queue.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// Hub owns the subscriber registry. Publishing encodes a frame once and
// enqueues it on every open subscriber without blocking on any of them.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscriber
	closed bool

	nextID    atomic.Uint64
	queueSize int
	wg        sync.WaitGroup

	metrics repository.Metrics
	logger  *applogger.Logger
}

func New(opts ...Option) *Hub {
	h := &Hub{
		subs:      make(map[uint64]*Subscriber),
		queueSize: DefaultQueueSize,
		metrics:   repository.NopMetrics{},
		logger:    applogger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Accept registers t as an open subscriber. It receives only frames
// published after this call returns.
func (h *Hub) Accept(t Transport) (*Subscriber, error) {
	s := newSubscriber(h.nextID.Add(1), t, h.queueSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = t.Close()
		return nil, ErrClosed
	}
	h.subs[s.id] = s
	s.state.Store(int32(StateOpen))
	n := len(h.subs)
	h.wg.Add(1)
	h.mu.Unlock()

	h.metrics.SetSubscribers(n)
	h.logger.Debug("subscriber connected", applogger.Uint64("id", s.id), applogger.Int("subscribers", n))

	go func() {
		defer h.wg.Done()
		if err := s.writeLoop(); err != nil {
			h.metrics.RecordError("transport")
			h.logger.Warn("subscriber write failed", applogger.Uint64("id", s.id), applogger.Error(err))
			h.Disconnect(s.id)
		}
	}()
	return s, nil
}

// Publish encodes obs and enqueues it for every open subscriber. It returns
// the number of subscribers the frame was enqueued for.
func (h *Hub) Publish(obs models.Observation) int {
	frame, err := EncodeFrame(obs)
	if err != nil {
		h.metrics.RecordError("encode_frame")
		h.logger.Error("encode frame failed", applogger.Error(err))
		return 0
	}

	h.mu.RLock()
	snapshot := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.RUnlock()

	sent := 0
	for _, s := range snapshot {
		accepted, dropped := s.offer(frame)
		if dropped {
			h.metrics.RecordFrameDropped()
		}
		if accepted {
			sent++
		}
	}
	h.metrics.RecordFramePublished(sent)
	return sent
}

// Disconnect removes the subscriber and closes its transport. Unknown or
// already removed ids are ignored.
func (h *Hub) Disconnect(id uint64) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	n := len(h.subs)
	h.mu.Unlock()
	if !ok {
		return
	}

	if err := s.close(); err != nil {
		h.logger.Debug("subscriber close", applogger.Uint64("id", id), applogger.Error(err))
	}
	h.metrics.SetSubscribers(n)
	h.logger.Debug("subscriber disconnected", applogger.Uint64("id", id), applogger.Int("subscribers", n))
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber, rejects new ones and waits for all
// writer goroutines to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	all := make([]*Subscriber, 0, len(h.subs))
	for id, s := range h.subs {
		all = append(all, s)
		delete(h.subs, id)
	}
	h.mu.Unlock()

	for _, s := range all {
		_ = s.close()
	}
	h.wg.Wait()
	h.metrics.SetSubscribers(0)
	h.logger.Info("hub closed", applogger.Int("disconnected", len(all)))
}

var _ repository.Broadcaster = (*Hub)(nil)
