package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"BlockPulse/internal/domain/models"
	drepo "BlockPulse/internal/domain/repository"
	"BlockPulse/internal/service/feed"
	applogger "BlockPulse/pkg/logger"
)

// SchedulerState tracks where a source is in its polling cycle.
type SchedulerState int32

const (
	StateIdle SchedulerState = iota
	StateFetching
	StateCooldown
)

// SchedulerOption configures a SourceScheduler.
type SchedulerOption func(*SourceScheduler)

// WithTicks replaces the interval ticker with an external tick source.
func WithTicks(ch <-chan time.Time) SchedulerOption {
	return func(s *SourceScheduler) {
		s.ticks = ch
	}
}

// WithFetchOnStart fires one attempt immediately when Run starts.
func WithFetchOnStart(on bool) SchedulerOption {
	return func(s *SourceScheduler) {
		s.fetchOnStart = on
	}
}

// WithPersistTimeout bounds the persist step.
func WithPersistTimeout(d time.Duration) SchedulerOption {
	return func(s *SourceScheduler) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

func WithSchedulerLogger(l *applogger.Logger) SchedulerOption {
	return func(s *SourceScheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// SourceScheduler polls one Fetcher on a fixed interval and hands every
// successful observation to the recorder and then the broadcaster. A tick
// that fires while the previous attempt is still running is skipped.
type SourceScheduler struct {
	fetcher  drepo.Fetcher
	recorder drepo.Recorder
	hub      drepo.Broadcaster
	metrics  drepo.Metrics
	logger   *applogger.Logger

	interval       time.Duration
	persistTimeout time.Duration
	fetchOnStart   bool
	ticks          <-chan time.Time

	inFlight atomic.Bool
	state    atomic.Int32
	wg       sync.WaitGroup
}

// NewSourceScheduler creates a scheduler for one source.
func NewSourceScheduler(
	fetcher drepo.Fetcher,
	recorder drepo.Recorder,
	hub drepo.Broadcaster,
	metrics drepo.Metrics,
	interval time.Duration,
	opts ...SchedulerOption,
) *SourceScheduler {
	s := &SourceScheduler{
		fetcher:        fetcher,
		recorder:       recorder,
		hub:            hub,
		metrics:        metrics,
		logger:         applogger.Nop(),
		interval:       interval,
		persistTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(applogger.String("source", string(fetcher.Source())))
	return s
}

func (s *SourceScheduler) Source() models.Source { return s.fetcher.Source() }

func (s *SourceScheduler) State() SchedulerState { return SchedulerState(s.state.Load()) }

// Run polls until ctx is cancelled, then waits for any in-flight attempt
// to finish before returning.
func (s *SourceScheduler) Run(ctx context.Context) error {
	if s.interval <= 0 && s.ticks == nil {
		return errors.New("scheduler: interval must be positive")
	}
	ticks := s.ticks
	if ticks == nil {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	s.logger.Info("scheduler started", applogger.Duration("interval_ms", s.interval))
	if s.fetchOnStart {
		s.tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return nil
		case _, ok := <-ticks:
			if !ok {
				s.wg.Wait()
				return nil
			}
			s.tick(ctx)
		}
	}
}

func (s *SourceScheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.RecordSkippedTick(string(s.Source()))
		s.logger.Debug("tick skipped, previous fetch still running")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)
		s.attempt(ctx)
	}()
}

func (s *SourceScheduler) attempt(ctx context.Context) {
	src := string(s.Source())
	s.state.Store(int32(StateFetching))
	defer s.state.Store(int32(StateIdle))

	start := time.Now()
	obs, err := s.fetcher.Fetch(ctx)
	s.metrics.RecordLatency("fetch_"+src, time.Since(start).Seconds())
	if err != nil {
		s.state.Store(int32(StateCooldown))
		result := fetchResult(err)
		s.metrics.RecordFetch(src, result)
		if result == "canceled" {
			s.logger.Debug("fetch cancelled", applogger.Error(err))
			return
		}
		s.logger.Warn("fetch failed", applogger.String("kind", result), applogger.Error(err))
		return
	}

	s.metrics.RecordFetch(src, "ok")
	s.metrics.RecordLastValue(src, obs.Float())
	s.logger.Info("observation", applogger.String("value", obs.Value()), applogger.Any("observed_at", obs.ObservedAt))

	// A fetch that completed before shutdown is still recorded and published.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	if err := s.recorder.Record(pctx, obs); err != nil {
		s.logger.Error("persist failed", applogger.String("value", obs.Value()), applogger.Error(err))
	}
	cancel()

	n := s.hub.Publish(obs)
	s.logger.Debug("published", applogger.Int("subscribers", n))
	s.state.Store(int32(StateCooldown))
}

func fetchResult(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, feed.ErrDecode):
		return "decode_error"
	case errors.Is(err, feed.ErrNetwork):
		return "network_error"
	default:
		return "error"
	}
}
