package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"BlockPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveBody(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

var fixed = time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)

func clock() time.Time { return fixed }

func TestChainHeightFetcher_OK(t *testing.T) {
	srv := serveBody(t, http.StatusOK, `{"hash":"00ab","height":820000,"time":1700000000}`)
	f := NewChainHeightFetcher(srv.URL, "height", WithClock(clock))

	obs, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SourceChainHeight, obs.Source)
	assert.Equal(t, uint64(820000), obs.Height)
	assert.True(t, obs.ObservedAt.Equal(fixed))
}

func TestPriceIndexFetcher_NestedPath(t *testing.T) {
	srv := serveBody(t, http.StatusOK, `{"bpi":{"USD":{"code":"USD","rate":"65,000.5040","rate_float":65000.504}}}`)
	f := NewPriceIndexFetcher(srv.URL, "bpi.USD.rate_float", WithClock(clock))

	obs, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SourcePriceIndex, obs.Source)
	assert.Equal(t, "65000.50", obs.Price.StringFixed(models.PriceScale))
}

func TestPriceIndexFetcher_NumericString(t *testing.T) {
	srv := serveBody(t, http.StatusOK, `{"price":"42.125"}`)
	f := NewPriceIndexFetcher(srv.URL, "price")

	obs, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42.12", obs.Price.StringFixed(models.PriceScale))
}

func TestFetcher_DecodeErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		price  bool
		reason string
	}{
		{name: "malformed", body: `{"height": 82`, reason: "malformed json"},
		{name: "missing", body: `{"hash":"x"}`, reason: "field missing"},
		{name: "string height", body: `{"height":"820000"}`, reason: "height is not a number"},
		{name: "negative height", body: `{"height":-1}`, reason: "height is not a non-negative integer"},
		{name: "fractional height", body: `{"height":1.5}`, reason: "height is not a non-negative integer"},
		{name: "price word", body: `{"height":"abc"}`, price: true, reason: "price is not numeric"},
		{name: "price object", body: `{"height":{}}`, price: true, reason: "price is not numeric"},
		{name: "negative price", body: `{"height":-3.2}`, price: true, reason: "price is negative"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := serveBody(t, http.StatusOK, tc.body)
			var f *HTTPFetcher
			if tc.price {
				f = NewPriceIndexFetcher(srv.URL, "height")
			} else {
				f = NewChainHeightFetcher(srv.URL, "height")
			}
			_, err := f.Fetch(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))
			assert.False(t, errors.Is(err, ErrNetwork))

			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tc.reason, de.Reason)
		})
	}
}

func TestFetcher_Non2xxIsNetworkError(t *testing.T) {
	srv := serveBody(t, http.StatusServiceUnavailable, `{"error":"busy"}`)
	f := NewChainHeightFetcher(srv.URL, "height")

	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))

	var ne *NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, http.StatusServiceUnavailable, ne.Status)
}

func TestFetcher_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := NewPriceIndexFetcher(url, "price", WithTimeout(time.Second))
	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
}

func TestFetcher_SingleRequestPerFetch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewChainHeightFetcher(srv.URL, "height")
	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}
