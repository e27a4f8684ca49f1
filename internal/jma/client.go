// Package jma fetches forecast documents and the area taxonomy from the JMA
// bosai feed.
package jma

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/jma-forecast/internal/area"
	"github.com/i474232898/jma-forecast/internal/forecast"
	"github.com/i474232898/jma-forecast/internal/observability"
)

const (
	DefaultBaseURL = "https://www.jma.go.jp/bosai"

	endpointForecast = "forecast"
	endpointArea     = "area"

	// area.json is about 1 MB; forecasts are far smaller.
	maxBodySize = 16 << 20
)

// Client talks to the JMA bosai feed.
type Client struct {
	baseURL string
	http    *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  *zap.SugaredLogger
}

// Option customises a Client.
type Option func(*Client)

// WithBackoff overrides the retry schedule.
func WithBackoff(b BackoffConfig) Option {
	return func(c *Client) {
		c.backoff = b
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a Client for baseURL, e.g. "https://www.jma.go.jp/bosai".
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *zap.SugaredLogger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		backoff: DefaultBackoff,
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "jma",
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warnw("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
		metrics: metrics,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchForecast downloads and decodes the document published for officeCode.
func (c *Client) FetchForecast(ctx context.Context, officeCode string) (forecast.Document, error) {
	u := fmt.Sprintf("%s/forecast/data/forecast/%s.json", c.baseURL, url.PathEscape(officeCode))

	body, err := c.get(ctx, endpointForecast, u)
	if err != nil {
		return forecast.Document{}, fmt.Errorf("%w: forecast %s: %v", forecast.ErrUpstreamFetch, officeCode, err)
	}

	doc, err := forecast.ParseDocument(body)
	if err != nil {
		return forecast.Document{}, fmt.Errorf("%w: forecast %s: %w", forecast.ErrUpstreamFetch, officeCode, err)
	}
	return doc, nil
}

// FetchAreas downloads and decodes area.json.
func (c *Client) FetchAreas(ctx context.Context) (area.Taxonomy, error) {
	body, err := c.get(ctx, endpointArea, c.baseURL+"/common/const/area.json")
	if err != nil {
		return area.Taxonomy{}, fmt.Errorf("%w: area.json: %v", forecast.ErrUpstreamFetch, err)
	}

	t, err := area.Parse(body)
	if err != nil {
		return area.Taxonomy{}, fmt.Errorf("%w: %v", forecast.ErrUpstreamFetch, err)
	}
	return t, nil
}

func (c *Client) get(ctx context.Context, endpoint, u string) ([]byte, error) {
	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	start := time.Now()
	resp, err := doRequestWithResilience(ctx, c.http, c.backoff, c.circuit, build)
	if err != nil {
		outcome := "error"
		if errors.Is(err, errCircuitOpen) {
			outcome = "circuit_open"
		}
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("read body: %w", err)
	}

	c.metrics.UpstreamRequests.WithLabelValues(endpoint, "success").Inc()
	c.logger.Debugw("fetched", "url", u, "bytes", len(body), "elapsed", time.Since(start))
	return body, nil
}
