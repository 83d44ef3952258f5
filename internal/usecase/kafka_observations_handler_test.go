package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"BlockPulse/internal/domain/models"
	"BlockPulse/internal/domain/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservationsHandler_StoresDecodedMessage(t *testing.T) {
	store := &memStore{}
	h := NewObservationsHandler("observations", store, repository.NopMetrics{})
	assert.Equal(t, "observations", h.Topic())

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, obs := range []models.Observation{
		models.NewChainHeight(820000, at),
		models.NewPriceIndex(decimal.RequireFromString("65000.50"), at),
	} {
		b, err := json.Marshal(models.NewObservationMessage(obs))
		require.NoError(t, err)
		require.NoError(t, h.Handle(context.Background(), b))
	}

	require.Len(t, store.rows, 2)
	assert.Equal(t, uint64(820000), store.rows[0].Height)
	assert.True(t, store.rows[0].ObservedAt.Equal(at))
	assert.Equal(t, "65000.50", store.rows[1].Price.StringFixed(2))
}

func TestObservationsHandler_RejectsBadPayloads(t *testing.T) {
	store := &memStore{}
	h := NewObservationsHandler("observations", store, repository.NopMetrics{})

	assert.Error(t, h.Handle(context.Background(), []byte(`{not json`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"source":"weather","observed_at_ms":1}`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"source":"price_index","price":"abc","observed_at_ms":1}`)))
	assert.Empty(t, store.rows)
}
