package feed

import (
	"context"
	"errors"
	"strconv"
	"time"

	"BlockPulse/internal/domain/models"
	"BlockPulse/internal/domain/repository"
	xhttp "BlockPulse/pkg/http"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// HTTPFetcher performs one GET per Fetch and extracts a single scalar from
// the JSON response at a gjson path.
type HTTPFetcher struct {
	source models.Source
	url    string
	path   string
	client *xhttp.Client
	now    func() time.Time
	parse  func(gjson.Result) (models.Observation, string, error)
}

// NewChainHeightFetcher fetches a non-negative integer block height.
func NewChainHeightFetcher(url, path string, opts ...Option) *HTTPFetcher {
	f := newFetcher(models.SourceChainHeight, url, path, opts)
	f.parse = f.parseHeight
	return f
}

// NewPriceIndexFetcher fetches a decimal price.
func NewPriceIndexFetcher(url, path string, opts ...Option) *HTTPFetcher {
	f := newFetcher(models.SourcePriceIndex, url, path, opts)
	f.parse = f.parsePrice
	return f
}

func newFetcher(src models.Source, url, path string, opts []Option) *HTTPFetcher {
	f := &HTTPFetcher{
		source: src,
		url:    url,
		path:   path,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = xhttp.NewClient(xhttp.WithTimeout(10 * time.Second))
	}
	return f
}

// WithClient sets the HTTP client used for requests.
func WithClient(c *xhttp.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.client = xhttp.NewClient(xhttp.WithTimeout(d), xhttp.WithUserAgent("blockpulse/1.0"))
		}
	}
}

// WithClock overrides the time source for ObservedAt.
func WithClock(now func() time.Time) Option {
	return func(f *HTTPFetcher) {
		f.now = now
	}
}

func (f *HTTPFetcher) Source() models.Source { return f.source }

// Fetch performs exactly one request. It never retries.
func (f *HTTPFetcher) Fetch(ctx context.Context) (models.Observation, error) {
	var body []byte
	err := f.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     f.url,
		Headers: map[string]string{"Accept": "application/json"},
	}, &body)
	if err != nil {
		ne := &NetworkError{Source: f.source, URL: f.url, Err: err}
		var se *xhttp.StatusError
		if errors.As(err, &se) {
			ne.Status = se.Code
		}
		return models.Observation{}, ne
	}

	if !gjson.ValidBytes(body) {
		return models.Observation{}, &DecodeError{Source: f.source, Path: f.path, Reason: "malformed json"}
	}
	res := gjson.GetBytes(body, f.path)
	if !res.Exists() {
		return models.Observation{}, &DecodeError{Source: f.source, Path: f.path, Reason: "field missing"}
	}

	obs, reason, err := f.parse(res)
	if reason != "" {
		return models.Observation{}, &DecodeError{Source: f.source, Path: f.path, Reason: reason, Err: err}
	}
	return obs, nil
}

func (f *HTTPFetcher) parseHeight(res gjson.Result) (models.Observation, string, error) {
	if res.Type != gjson.Number {
		return models.Observation{}, "height is not a number", nil
	}
	h, err := strconv.ParseUint(res.Raw, 10, 64)
	if err != nil {
		return models.Observation{}, "height is not a non-negative integer", err
	}
	return models.NewChainHeight(h, f.now()), "", nil
}

func (f *HTTPFetcher) parsePrice(res gjson.Result) (models.Observation, string, error) {
	var raw string
	switch res.Type {
	case gjson.Number:
		raw = res.Raw
	case gjson.String:
		raw = res.Str
	default:
		return models.Observation{}, "price is not numeric", nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return models.Observation{}, "price is not numeric", err
	}
	if d.IsNegative() {
		return models.Observation{}, "price is negative", nil
	}
	return models.NewPriceIndex(d, f.now()), "", nil
}

var _ repository.Fetcher = (*HTTPFetcher)(nil)
