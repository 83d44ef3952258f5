package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"BlockPulse/internal/domain/models"
	domrepo "BlockPulse/internal/domain/repository"
	"BlockPulse/internal/service/cache"
	applogger "BlockPulse/pkg/logger"
)

const DefaultListLimit = 1000

// ErrInvalidRange is returned when a query's upper bound precedes its lower bound.
var ErrInvalidRange = errors.New("invalid range: to before from")

// HistoryOption configures a HistoryUseCase.
type HistoryOption func(*HistoryUseCase)

// WithCache enables cache-aside reads with the given TTLs. A zero TTL
// disables caching for that kind of read.
func WithCache(c cache.BytesCache, latestTTL, listTTL time.Duration) HistoryOption {
	return func(u *HistoryUseCase) {
		u.cache = c
		u.latestTTL = latestTTL
		u.listTTL = listTTL
	}
}

// WithGranularity sets the join bucket used when a query names none.
func WithGranularity(tf domrepo.Timeframe) HistoryOption {
	return func(u *HistoryUseCase) {
		if domrepo.IsValidTimeframe(tf) {
			u.granularity = tf
		}
	}
}

func WithHistoryLogger(l *applogger.Logger) HistoryOption {
	return func(u *HistoryUseCase) {
		if l != nil {
			u.logger = l
		}
	}
}

// HistoryUseCase is the read-only query side over persisted observations.
type HistoryUseCase struct {
	store       domrepo.Storage
	metrics     domrepo.Metrics
	logger      *applogger.Logger
	cache       cache.BytesCache
	latestTTL   time.Duration
	listTTL     time.Duration
	granularity domrepo.Timeframe
}

func NewHistoryUseCase(store domrepo.Storage, metrics domrepo.Metrics, opts ...HistoryOption) *HistoryUseCase {
	u := &HistoryUseCase{
		store:       store,
		metrics:     metrics,
		logger:      applogger.Nop(),
		granularity: domrepo.DefaultTimeframe(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// ListJoined returns block heights paired with prices from the same bucket.
// Zero From/To leave that side of the range open.
func (u *HistoryUseCase) ListJoined(ctx context.Context, q models.HistoryQuery) ([]models.JoinedRow, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultListLimit
	}
	if q.Granularity == "" {
		q.Granularity = string(u.granularity)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, ErrInvalidRange
	}

	key := fmt.Sprintf("alldata:%s:%d:%d:%d", q.Granularity, unixNanoOrZero(q.From), unixNanoOrZero(q.To), q.Limit)
	var rows []models.JoinedRow
	if u.fromCache(key, u.listTTL, &rows) {
		return rows, nil
	}

	start := time.Now()
	rows, err := u.store.Joined(ctx, q)
	u.metrics.RecordLatency("query_joined", time.Since(start).Seconds())
	if err != nil {
		u.metrics.RecordError("query")
		return nil, fmt.Errorf("list joined: %w", err)
	}
	if rows == nil {
		rows = []models.JoinedRow{}
	}
	u.toCache(key, u.listTTL, rows)
	return rows, nil
}

// LatestBlock returns the most recently persisted chain height.
func (u *HistoryUseCase) LatestBlock(ctx context.Context) (*models.LatestBlock, error) {
	const key = "latest:block"
	var b models.LatestBlock
	if u.fromCache(key, u.latestTTL, &b) {
		return &b, nil
	}
	res, err := u.store.LatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest block: %w", err)
	}
	u.toCache(key, u.latestTTL, res)
	return res, nil
}

// LatestPrice returns the most recently persisted price.
func (u *HistoryUseCase) LatestPrice(ctx context.Context) (*models.LatestPrice, error) {
	const key = "latest:price"
	var p models.LatestPrice
	if u.fromCache(key, u.latestTTL, &p) {
		return &p, nil
	}
	res, err := u.store.LatestPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest price: %w", err)
	}
	u.toCache(key, u.latestTTL, res)
	return res, nil
}

// Health pings the store.
func (u *HistoryUseCase) Health(ctx context.Context) error {
	return u.store.Health(ctx)
}

func (u *HistoryUseCase) fromCache(key string, ttl time.Duration, dest any) bool {
	if u.cache == nil || ttl <= 0 {
		return false
	}
	b, ok, err := u.cache.GetBytes(key)
	if err != nil {
		u.logger.Debug("cache get failed", applogger.String("key", key), applogger.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return false
	}
	return true
}

func (u *HistoryUseCase) toCache(key string, ttl time.Duration, v any) {
	if u.cache == nil || ttl <= 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := u.cache.SetBytes(key, b, ttl); err != nil {
		u.logger.Debug("cache set failed", applogger.String("key", key), applogger.Error(err))
	}
}

func unixNanoOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
