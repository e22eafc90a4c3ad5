// Package geoclip provides a client for the image-embedding retrieval
// service that maps an image and/or a text query to candidate coordinates.
package geoclip

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/geomind-labs/geomind/internal/resilience"
)

// Point is one coordinate guess with the service's own relevance score.
type Point struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Score float64 `json:"score"`
}

// LocateRequest asks the service for the TopK most likely locations. At
// least one of ImageB64 and Text must be set.
type LocateRequest struct {
	ImageB64 string `json:"image_b64,omitempty"`
	Text     string `json:"text,omitempty"`
	TopK     int    `json:"top_k"`
}

// Client defines the retrieval operations used by the pipeline.
type Client interface {
	Locate(ctx context.Context, req LocateRequest) ([]Point, error)
}

// Option configures the geoclip client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *gobreaker.CircuitBreaker[[]Point]
}

// NewClient creates a new geoclip retrieval client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "http://localhost:7880",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(10), 10),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]Point](gobreaker.Settings{
		Name:    "geoclip",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return c
}

func (c *httpClient) Locate(ctx context.Context, req LocateRequest) ([]Point, error) {
	if req.ImageB64 == "" && req.Text == "" {
		return nil, eris.New("geoclip: locate requires an image or a text query")
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geoclip: rate limit wait")
	}

	points, err := c.breaker.Execute(func() ([]Point, error) {
		return c.locate(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

func (c *httpClient) locate(ctx context.Context, req LocateRequest) ([]Point, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "geoclip: marshal request")
	}

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("geoclip", "locate")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]Point, error) {
		return c.doLocate(ctx, payload)
	})
}

func (c *httpClient) doLocate(ctx context.Context, payload []byte) ([]Point, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/locate", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "geoclip: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "geoclip: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geoclip: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("geoclip: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var result struct {
		Points []Point `json:"points"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "geoclip: unmarshal response")
	}

	return result.Points, nil
}
