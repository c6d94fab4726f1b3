package metricstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultIndex     = "vamp-vga-*"
	defaultTimeout   = 10 * time.Second
	timestampField   = "@timestamp"
	errorBodyLimit   = 1024
	responseMaxBytes = 64 << 10
)

// ElasticClient counts log records stored in Elasticsearch using the _count API.
type ElasticClient struct {
	endpoint string
	client   *retryablehttp.Client
	timeout  time.Duration
}

// ElasticOption customizes ElasticClient behavior.
type ElasticOption func(*ElasticClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ElasticOption {
	return func(c *ElasticClient) {
		c.client.HTTPClient = httpClient
	}
}

// NewElasticClient builds a client for the given base URL and index pattern.
// Failed queries are not retried.
func NewElasticClient(baseURL, index string, timeout time.Duration, opts ...ElasticOption) (*ElasticClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("metrics url must not be empty")
	}
	if index == "" {
		index = defaultIndex
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	endpoint, err := url.JoinPath(baseURL, index, "_count")
	if err != nil {
		return nil, fmt.Errorf("build count url: %w", err)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(_ context.Context, _ *http.Response, _ error) (bool, error) {
		return false, nil
	}
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: timeout}

	c := &ElasticClient{
		endpoint: endpoint,
		client:   client,
		timeout:  timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type countResponse struct {
	Count *int `json:"count"`
}

// CountInWindow implements Client.
func (c *ElasticClient) CountInWindow(ctx context.Context, term Term, rng Range, window time.Duration) (int, error) {
	payload, err := json.Marshal(countQuery(term, rng, window))
	if err != nil {
		return 0, fmt.Errorf("encode count query: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build count request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("count request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		if text := strings.TrimSpace(string(body)); text != "" {
			return 0, fmt.Errorf("count request failed: %s (%s)", resp.Status, text)
		}
		return 0, fmt.Errorf("count request failed: %s", resp.Status)
	}

	var decoded countResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseMaxBytes)).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	if decoded.Count == nil {
		return 0, errors.New("decode count response: missing count")
	}
	if *decoded.Count < 0 {
		return 0, fmt.Errorf("decode count response: negative count %d", *decoded.Count)
	}
	return *decoded.Count, nil
}

// countQuery renders the bool filter for a term, a range and a trailing time window.
func countQuery(term Term, rng Range, window time.Duration) map[string]any {
	seconds := int(window / time.Second)
	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{term.Field: term.Value}},
					map[string]any{"range": map[string]any{rng.Field: map[string]any{string(rng.Op): rng.Value}}},
					map[string]any{"range": map[string]any{timestampField: map[string]any{"gte": fmt.Sprintf("now-%ds", seconds)}}},
				},
			},
		},
	}
}
