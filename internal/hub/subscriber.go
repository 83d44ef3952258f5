package hub

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is the lifecycle of a subscriber connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Transport is the outbound side of one subscriber connection.
type Transport interface {
	WriteFrame(ctx context.Context, frame []byte) error
	Close() error
}

// Subscriber owns a bounded FIFO of encoded frames and a single writer.
type Subscriber struct {
	id        uint64
	transport Transport

	mu     sync.Mutex
	queue  [][]byte
	limit  int
	notify chan struct{}

	state     atomic.Int32
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

func newSubscriber(id uint64, t Transport, limit int) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		id:        id,
		transport: t,
		queue:     make([][]byte, 0, limit),
		limit:     limit,
		notify:    make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Subscriber) ID() uint64 { return s.id }

func (s *Subscriber) State() State { return State(s.state.Load()) }

// Done is closed once the subscriber leaves the registry.
func (s *Subscriber) Done() <-chan struct{} { return s.ctx.Done() }

// Pending reports queued frames not yet written.
func (s *Subscriber) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// offer enqueues without blocking. When the queue is full the oldest
// unsent frame is discarded. It reports whether a frame was dropped and
// whether the frame was accepted at all.
func (s *Subscriber) offer(frame []byte) (accepted, dropped bool) {
	if s.State() != StateOpen {
		return false, false
	}
	s.mu.Lock()
	if len(s.queue) >= s.limit {
		s.queue[0] = nil
		s.queue = s.queue[1:]
		dropped = true
	}
	s.queue = append(s.queue, frame)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true, dropped
}

func (s *Subscriber) next() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	f := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return f
}

// writeLoop drains the queue in order until the subscriber closes or a
// write fails.
func (s *Subscriber) writeLoop() error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-s.notify:
		}
		for {
			if s.ctx.Err() != nil {
				return nil
			}
			f := s.next()
			if f == nil {
				break
			}
			if err := s.transport.WriteFrame(s.ctx, f); err != nil {
				if s.ctx.Err() != nil {
					return nil
				}
				return &TransportError{SubscriberID: s.id, Err: err}
			}
		}
	}
}

func (s *Subscriber) close() error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		s.cancel()
		s.mu.Lock()
		s.queue = nil
		s.mu.Unlock()
		s.closeErr = s.transport.Close()
	})
	return s.closeErr
}
