package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"BlockPulse/internal/domain/models"
	"BlockPulse/internal/domain/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu      sync.Mutex
	frames  []string
	gate    chan struct{}
	entered chan struct{}
	failErr error
	closes  atomic.Int32
}

func (f *fakeTransport) WriteFrame(ctx context.Context, frame []byte) error {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failErr != nil {
		return f.failErr
	}
	f.mu.Lock()
	f.frames = append(f.frames, string(frame))
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() error {
	f.closes.Add(1)
	return nil
}

func (f *fakeTransport) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	copy(out, f.frames)
	return out
}

type countingMetrics struct {
	repository.NopMetrics
	dropped atomic.Int32
}

func (m *countingMetrics) RecordFrameDropped() { m.dropped.Add(1) }

func heightFrame(h uint64) string {
	return fmt.Sprintf(`{"block_height":%d,"price":null}`, h)
}

func publishHeight(h *Hub, height uint64) int {
	return h.Publish(models.NewChainHeight(height, time.Now()))
}

func TestHub_DeliversInPublishOrder(t *testing.T) {
	h := New()
	defer h.Close()

	tr := &fakeTransport{}
	_, err := h.Accept(tr)
	require.NoError(t, err)

	want := make([]string, 0, 10)
	for i := uint64(1); i <= 10; i++ {
		publishHeight(h, i)
		want = append(want, heightFrame(i))
	}

	require.Eventually(t, func() bool { return len(tr.received()) == 10 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, tr.received())
}

func TestHub_LateSubscriberGetsNoBacklog(t *testing.T) {
	h := New()
	defer h.Close()

	early := &fakeTransport{}
	_, err := h.Accept(early)
	require.NoError(t, err)

	assert.Equal(t, 1, publishHeight(h, 100))
	require.Eventually(t, func() bool { return len(early.received()) == 1 }, time.Second, 5*time.Millisecond)

	late := &fakeTransport{}
	_, err = h.Accept(late)
	require.NoError(t, err)

	assert.Equal(t, 2, publishHeight(h, 101))
	require.Eventually(t, func() bool { return len(early.received()) == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(late.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{heightFrame(101)}, late.received())
}

func TestHub_NoSubscribersIsNoop(t *testing.T) {
	h := New()
	defer h.Close()
	assert.Equal(t, 0, publishHeight(h, 1))
}

func TestHub_FullQueueDropsOldest(t *testing.T) {
	m := &countingMetrics{}
	h := New(WithQueueSize(2), WithMetrics(m))
	defer h.Close()

	tr := &fakeTransport{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	s, err := h.Accept(tr)
	require.NoError(t, err)

	publishHeight(h, 1)
	select {
	case <-tr.entered:
	case <-time.After(time.Second):
		t.Fatal("writer did not pick up first frame")
	}

	for i := uint64(2); i <= 5; i++ {
		publishHeight(h, i)
	}
	assert.Equal(t, 2, s.Pending())
	assert.Equal(t, int32(2), m.dropped.Load())

	close(tr.gate)
	require.Eventually(t, func() bool { return len(tr.received()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{heightFrame(1), heightFrame(4), heightFrame(5)}, tr.received())
}

func TestHub_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	h := New(WithQueueSize(64))
	defer h.Close()

	slow := &fakeTransport{gate: make(chan struct{})}
	fast := &fakeTransport{}
	_, err := h.Accept(slow)
	require.NoError(t, err)
	_, err = h.Accept(fast)
	require.NoError(t, err)

	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := uint64(1); i <= 50; i++ {
			publishHeight(h, i)
		}
	}()
	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on the slow subscriber")
	}

	require.Eventually(t, func() bool { return len(fast.received()) == 50 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, heightFrame(1), fast.received()[0])
	assert.Equal(t, heightFrame(50), fast.received()[49])
	assert.Empty(t, slow.received())
}

func TestHub_TransportErrorRemovesOnlyThatSubscriber(t *testing.T) {
	h := New()
	defer h.Close()

	a := &fakeTransport{}
	b := &fakeTransport{failErr: errors.New("broken pipe")}
	c := &fakeTransport{}
	for _, tr := range []*fakeTransport{a, b, c} {
		_, err := h.Accept(tr)
		require.NoError(t, err)
	}
	require.Equal(t, 3, h.Len())

	publishHeight(h, 7)
	require.Eventually(t, func() bool { return h.Len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), b.closes.Load())

	publishHeight(h, 8)
	want := []string{heightFrame(7), heightFrame(8)}
	require.Eventually(t, func() bool { return len(a.received()) == 2 && len(c.received()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, a.received())
	assert.Equal(t, want, c.received())
	assert.Empty(t, b.received())
}

func TestHub_DisconnectIsIdempotent(t *testing.T) {
	h := New()
	defer h.Close()

	tr := &fakeTransport{}
	s, err := h.Accept(tr)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, s.State())

	h.Disconnect(s.ID())
	h.Disconnect(s.ID())
	h.Disconnect(9999)

	assert.Equal(t, 0, h.Len())
	assert.Equal(t, int32(1), tr.closes.Load())
	assert.Equal(t, StateClosing, s.State())

	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}
	assert.Equal(t, 0, publishHeight(h, 1))
}

func TestHub_CloseDisconnectsAll(t *testing.T) {
	h := New()
	trs := []*fakeTransport{{}, {}, {gate: make(chan struct{})}}
	for _, tr := range trs {
		_, err := h.Accept(tr)
		require.NoError(t, err)
	}
	publishHeight(h, 1)

	h.Close()
	assert.Equal(t, 0, h.Len())
	for _, tr := range trs {
		assert.Equal(t, int32(1), tr.closes.Load())
	}

	late := &fakeTransport{}
	_, err := h.Accept(late)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, int32(1), late.closes.Load())
}

func TestHub_ConcurrentPublishAndChurn(t *testing.T) {
	h := New(WithQueueSize(8))
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := uint64(0); ctx.Err() == nil; i++ {
				if p%2 == 0 {
					publishHeight(h, i)
				} else {
					h.Publish(models.NewPriceIndex(decimal.NewFromInt(int64(i)), time.Now()))
				}
			}
		}(p)
	}
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				s, err := h.Accept(&fakeTransport{})
				if err != nil {
					return
				}
				h.Disconnect(s.ID())
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.Len())
}
