package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"BlockPulse/internal/domain/models"
	"BlockPulse/internal/domain/repository"
	"BlockPulse/internal/service/cache"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joinedFixture() []models.JoinedRow {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []models.JoinedRow{
		{BlockHeight: 820000, Price: models.NewPrice(decimal.RequireFromString("65000.50")), Timestamp: ts},
		{BlockHeight: 820001, Price: models.NewPrice(decimal.RequireFromString("65010.00")), Timestamp: ts.Add(time.Minute)},
	}
}

func TestHistory_ListJoinedDefaults(t *testing.T) {
	store := &memStore{joined: joinedFixture()}
	u := NewHistoryUseCase(store, repository.NopMetrics{})

	rows, err := u.ListJoined(context.Background(), models.HistoryQuery{})
	require.NoError(t, err)
	assert.Equal(t, joinedFixture(), rows)
	require.Len(t, store.queries, 1)
	assert.Equal(t, DefaultListLimit, store.queries[0].Limit)
	assert.Equal(t, "1m", store.queries[0].Granularity)
}

func TestHistory_ListJoinedEmptyIsNotNil(t *testing.T) {
	u := NewHistoryUseCase(&memStore{}, repository.NopMetrics{}, WithGranularity(repository.TF5m))
	rows, err := u.ListJoined(context.Background(), models.HistoryQuery{})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestHistory_ListJoinedRejectsInvertedRange(t *testing.T) {
	store := &memStore{}
	u := NewHistoryUseCase(store, repository.NopMetrics{})
	now := time.Now()
	_, err := u.ListJoined(context.Background(), models.HistoryQuery{From: now, To: now.Add(-time.Hour)})
	assert.Error(t, err)
	assert.Empty(t, store.queries)
}

func TestHistory_ListJoinedUsesCache(t *testing.T) {
	store := &memStore{joined: joinedFixture()}
	u := NewHistoryUseCase(store, repository.NopMetrics{}, WithCache(cache.NewTTLCache(), time.Second, time.Minute))

	first, err := u.ListJoined(context.Background(), models.HistoryQuery{Limit: 10})
	require.NoError(t, err)
	second, err := u.ListJoined(context.Background(), models.HistoryQuery{Limit: 10})
	require.NoError(t, err)

	assert.Len(t, store.queries, 1)
	require.Len(t, second, 2)
	assert.Equal(t, first[0].BlockHeight, second[0].BlockHeight)
	assert.True(t, first[0].Price.Equal(second[0].Price.Decimal))
	assert.True(t, first[1].Timestamp.Equal(second[1].Timestamp))
}

func TestHistory_ListJoinedCacheKeyKeepsSubSecondBounds(t *testing.T) {
	store := &memStore{joined: joinedFixture()}
	u := NewHistoryUseCase(store, repository.NopMetrics{}, WithCache(cache.NewTTLCache(), time.Second, time.Minute))

	from := time.Date(2024, 3, 1, 12, 0, 0, 100*int(time.Millisecond), time.UTC)
	_, err := u.ListJoined(context.Background(), models.HistoryQuery{From: from, Limit: 10})
	require.NoError(t, err)
	_, err = u.ListJoined(context.Background(), models.HistoryQuery{From: from.Add(500 * time.Millisecond), Limit: 10})
	require.NoError(t, err)

	require.Len(t, store.queries, 2)
	assert.True(t, store.queries[1].From.Equal(from.Add(500*time.Millisecond)))
}

func TestHistory_LatestBlockCachedAndNotFound(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &memStore{block: &models.LatestBlock{BlockHeight: 7, Timestamp: ts}}
	u := NewHistoryUseCase(store, repository.NopMetrics{}, WithCache(cache.NewTTLCache(), time.Minute, 0))

	b, err := u.LatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), b.BlockHeight)
	b, err = u.LatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), b.BlockHeight)
	assert.Equal(t, 1, store.latestN)

	empty := NewHistoryUseCase(&memStore{err: repository.ErrNotFound}, repository.NopMetrics{})
	_, err = empty.LatestPrice(context.Background())
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

type brokenCache struct{}

func (brokenCache) GetBytes(string) ([]byte, bool, error) {
	return nil, false, errors.New("redis down")
}

func (brokenCache) SetBytes(string, []byte, time.Duration) error {
	return errors.New("redis down")
}

func TestHistory_CacheFailureFallsBackToStore(t *testing.T) {
	store := &memStore{price: &models.LatestPrice{Price: models.NewPrice(decimal.NewFromInt(5))}}
	u := NewHistoryUseCase(store, repository.NopMetrics{}, WithCache(brokenCache{}, time.Minute, time.Minute))

	p, err := u.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5.00", p.Price.StringFixed(2))
}
