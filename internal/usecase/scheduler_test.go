package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"BlockPulse/internal/domain/models"
	"BlockPulse/internal/domain/repository"
	"BlockPulse/internal/service/feed"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	src   models.Source
	calls atomic.Int32
	fn    func(ctx context.Context, n int32) (models.Observation, error)
}

func (f *fakeFetcher) Source() models.Source { return f.src }

func (f *fakeFetcher) Fetch(ctx context.Context) (models.Observation, error) {
	n := f.calls.Add(1)
	return f.fn(ctx, n)
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeRecorder struct {
	log      *eventLog
	err      error
	calls    atomic.Int32
	ctxAlive atomic.Value
}

func (r *fakeRecorder) Record(ctx context.Context, obs models.Observation) error {
	r.calls.Add(1)
	r.ctxAlive.Store(ctx.Err() == nil)
	r.log.add("record:" + obs.Value())
	return r.err
}

type fakeBroadcaster struct {
	log   *eventLog
	calls atomic.Int32
}

func (b *fakeBroadcaster) Publish(obs models.Observation) int {
	b.calls.Add(1)
	b.log.add("publish:" + obs.Value())
	return 1
}

type schedMetrics struct {
	repository.NopMetrics
	skipped atomic.Int32
	fetches sync.Map
}

func (m *schedMetrics) RecordSkippedTick(string) { m.skipped.Add(1) }

func (m *schedMetrics) RecordFetch(_ string, result string) {
	v, _ := m.fetches.LoadOrStore(result, new(atomic.Int32))
	v.(*atomic.Int32).Add(1)
}

func (m *schedMetrics) fetchCount(result string) int32 {
	v, ok := m.fetches.Load(result)
	if !ok {
		return 0
	}
	return v.(*atomic.Int32).Load()
}

type harness struct {
	fetcher *fakeFetcher
	rec     *fakeRecorder
	hub     *fakeBroadcaster
	metrics *schedMetrics
	log     *eventLog
	ticks   chan time.Time
	sched   *SourceScheduler
	cancel  context.CancelFunc
	done    chan error
}

func newHarness(t *testing.T, fn func(ctx context.Context, n int32) (models.Observation, error), opts ...SchedulerOption) *harness {
	t.Helper()
	h := &harness{
		fetcher: &fakeFetcher{src: models.SourceChainHeight, fn: fn},
		log:     &eventLog{},
		metrics: &schedMetrics{},
		ticks:   make(chan time.Time),
		done:    make(chan error, 1),
	}
	h.rec = &fakeRecorder{log: h.log}
	h.hub = &fakeBroadcaster{log: h.log}
	opts = append([]SchedulerOption{WithTicks(h.ticks)}, opts...)
	h.sched = NewSourceScheduler(h.fetcher, h.rec, h.hub, h.metrics, time.Minute, opts...)
	return h
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.sched.Run(ctx) }()
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func (h *harness) tick() { h.ticks <- time.Now() }

func (h *harness) idle() bool { return !h.sched.inFlight.Load() }

func height(n uint64) func(context.Context, int32) (models.Observation, error) {
	return func(context.Context, int32) (models.Observation, error) {
		return models.NewChainHeight(n, time.Now()), nil
	}
}

func TestScheduler_SuccessPersistsThenPublishes(t *testing.T) {
	h := newHarness(t, height(820000))
	h.start()
	defer h.stop(t)

	h.tick()
	require.Eventually(t, func() bool { return h.hub.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"record:820000", "publish:820000"}, h.log.all())
	assert.Equal(t, int32(1), h.metrics.fetchCount("ok"))
}

func TestScheduler_OneAttemptPerTick(t *testing.T) {
	h := newHarness(t, height(1))
	h.start()
	defer h.stop(t)

	for i := 1; i <= 5; i++ {
		h.tick()
		want := int32(i)
		require.Eventually(t, func() bool { return h.hub.calls.Load() == want && h.idle() }, time.Second, 5*time.Millisecond)
	}
	assert.Equal(t, int32(5), h.fetcher.calls.Load())
	assert.Equal(t, int32(5), h.rec.calls.Load())
	assert.Equal(t, int32(0), h.metrics.skipped.Load())
}

func TestScheduler_FailureEmitsNothing(t *testing.T) {
	h := newHarness(t, func(context.Context, int32) (models.Observation, error) {
		return models.Observation{}, &feed.DecodeError{Source: models.SourceChainHeight, Path: "height", Reason: "malformed json"}
	})
	h.start()
	defer h.stop(t)

	h.tick()
	require.Eventually(t, func() bool { return h.metrics.fetchCount("decode_error") == 1 && h.idle() }, time.Second, 5*time.Millisecond)
	h.tick()
	require.Eventually(t, func() bool { return h.metrics.fetchCount("decode_error") == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(0), h.rec.calls.Load())
	assert.Equal(t, int32(0), h.hub.calls.Load())
}

func TestScheduler_MixedOutcomes(t *testing.T) {
	h := newHarness(t, func(_ context.Context, n int32) (models.Observation, error) {
		if n%2 == 0 {
			return models.Observation{}, &feed.NetworkError{Source: models.SourcePriceIndex, URL: "http://x", Err: errors.New("refused")}
		}
		return models.NewPriceIndex(decimal.NewFromInt(int64(n)), time.Now()), nil
	})
	h.start()
	defer h.stop(t)

	for i := 1; i <= 4; i++ {
		h.tick()
		want := int32(i)
		require.Eventually(t, func() bool {
			return h.metrics.fetchCount("ok")+h.metrics.fetchCount("network_error") == want && h.idle()
		}, time.Second, 5*time.Millisecond)
	}
	assert.Equal(t, int32(2), h.metrics.fetchCount("network_error"))
	assert.Equal(t, int32(2), h.rec.calls.Load())
	assert.Equal(t, []string{"record:1.00", "publish:1.00", "record:3.00", "publish:3.00"}, h.log.all())
}

func TestScheduler_SkipsTickWhileFetchInFlight(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 4)
	h := newHarness(t, func(_ context.Context, n int32) (models.Observation, error) {
		entered <- struct{}{}
		if n == 1 {
			<-gate
		}
		return models.NewChainHeight(uint64(n), time.Now()), nil
	})
	h.start()
	defer h.stop(t)

	h.tick()
	<-entered
	h.tick()
	h.tick()
	require.Eventually(t, func() bool { return h.metrics.skipped.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), h.fetcher.calls.Load())

	close(gate)
	require.Eventually(t, func() bool { return h.hub.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.sched.State() == StateIdle }, time.Second, 5*time.Millisecond)

	// the in-flight flag clears after the publish returns
	require.Eventually(t, func() bool {
		select {
		case h.ticks <- time.Now():
		case <-time.After(10 * time.Millisecond):
			return false
		}
		return h.fetcher.calls.Load() >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestScheduler_PersistFailureStillPublishes(t *testing.T) {
	h := newHarness(t, height(5))
	h.rec.err = &repository.StoreError{Op: "insert", Target: "block_data", Err: errors.New("connection reset")}
	h.start()
	defer h.stop(t)

	h.tick()
	require.Eventually(t, func() bool { return h.hub.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), h.rec.calls.Load())
}

func TestScheduler_ShutdownWaitsForInFlightAttempt(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	h := newHarness(t, func(context.Context, int32) (models.Observation, error) {
		entered <- struct{}{}
		<-gate
		return models.NewChainHeight(9, time.Now()), nil
	})
	h.start()

	h.tick()
	<-entered
	h.cancel()

	select {
	case <-h.done:
		t.Fatal("Run returned while a fetch was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(1), h.rec.calls.Load())
	assert.Equal(t, true, h.rec.ctxAlive.Load())
	assert.Equal(t, int32(1), h.hub.calls.Load())
}

func TestScheduler_CancelledFetchIsNotPublished(t *testing.T) {
	entered := make(chan struct{}, 1)
	h := newHarness(t, func(ctx context.Context, _ int32) (models.Observation, error) {
		entered <- struct{}{}
		<-ctx.Done()
		return models.Observation{}, &feed.NetworkError{Source: models.SourceChainHeight, Err: ctx.Err()}
	})
	h.start()

	h.tick()
	<-entered
	h.stop(t)

	assert.Equal(t, int32(1), h.metrics.fetchCount("canceled"))
	assert.Equal(t, int32(0), h.hub.calls.Load())
}

func TestScheduler_FetchOnStart(t *testing.T) {
	h := newHarness(t, height(3), WithFetchOnStart(true))
	h.start()
	defer h.stop(t)

	require.Eventually(t, func() bool { return h.hub.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_RealTickerKeepsInterval(t *testing.T) {
	f := &fakeFetcher{src: models.SourcePriceIndex, fn: func(context.Context, int32) (models.Observation, error) {
		return models.Observation{}, &feed.NetworkError{Source: models.SourcePriceIndex, Err: errors.New("down")}
	}}
	log := &eventLog{}
	s := NewSourceScheduler(f, &fakeRecorder{log: log}, &fakeBroadcaster{log: log}, repository.NopMetrics{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return f.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, log.all())
}

func TestScheduler_RejectsNonPositiveInterval(t *testing.T) {
	f := &fakeFetcher{src: models.SourceChainHeight, fn: height(1)}
	s := NewSourceScheduler(f, &fakeRecorder{log: &eventLog{}}, &fakeBroadcaster{log: &eventLog{}}, repository.NopMetrics{}, 0)
	assert.Error(t, s.Run(context.Background()))
}
