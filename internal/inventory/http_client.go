package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"
)

const (
	defaultAPITimeout  = 10 * time.Second
	defaultRetries     = 2
	defaultConcurrency = 8
	totalCountHeader   = "X-Total-Count"
	errorBodyLimit     = 1024
	responseMaxBytes   = 8 << 20
	retryWaitMin       = 100 * time.Millisecond
	retryWaitMax       = time.Second
)

// HTTPClient implements Client against the control-plane REST API.
type HTTPClient struct {
	base        *url.URL
	client      *retryablehttp.Client
	timeout     time.Duration
	perPage     int
	concurrency int
}

// HTTPOption customizes HTTPClient behavior.
type HTTPOption func(*HTTPClient)

// WithPageSize sets the per_page value of list requests.
func WithPageSize(perPage int) HTTPOption {
	return func(c *HTTPClient) {
		c.perPage = perPage
	}
}

// WithConcurrency bounds how many entities a single resolve call fetches at once.
func WithConcurrency(n int) HTTPOption {
	return func(c *HTTPClient) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithRetries sets how many times a failed request is retried.
func WithRetries(n int) HTTPOption {
	return func(c *HTTPClient) {
		c.client.RetryMax = n
	}
}

// NewHTTPClient builds a client for the API rooted at baseURL (e.g. http://host:8080/api/v1).
func NewHTTPClient(baseURL string, timeout time.Duration, opts ...HTTPOption) (*HTTPClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("api url must not be empty")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}

	client := retryablehttp.NewClient()
	client.RetryMax = defaultRetries
	client.RetryWaitMin = retryWaitMin
	client.RetryWaitMax = retryWaitMax
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: timeout}

	c := &HTTPClient{
		base:        base,
		client:      client,
		timeout:     timeout,
		perPage:     defaultPageSize,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListGateways implements Client.
func (c *HTTPClient) ListGateways(ctx context.Context) ([]Gateway, error) {
	gateways, err := paginate(ctx, c.perPage, func(ctx context.Context, page, perPage int) ([]Gateway, int, error) {
		var items []Gateway
		total, err := c.getJSON(ctx, &items, pageQuery(page, perPage), "gateways")
		return items, total, err
	}, func(g Gateway) string { return g.Name })
	if err != nil {
		return nil, fmt.Errorf("list gateways: %w", err)
	}
	return gateways, nil
}

// ListDeployments implements Client.
func (c *HTTPClient) ListDeployments(ctx context.Context) ([]Deployment, error) {
	deployments, err := paginate(ctx, c.perPage, func(ctx context.Context, page, perPage int) ([]Deployment, int, error) {
		var items []Deployment
		total, err := c.getJSON(ctx, &items, pageQuery(page, perPage), "deployments")
		return items, total, err
	}, func(d Deployment) string { return d.Name })
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	return deployments, nil
}

// ResolveClusters implements Client.
func (c *HTTPClient) ResolveClusters(ctx context.Context, deployment string, refs []Ref) ([]Cluster, error) {
	return resolveAll(ctx, c.concurrency, refs, func(ctx context.Context, ref Ref) (Cluster, error) {
		var cluster Cluster
		_, err := c.getJSON(ctx, &cluster, nil, "deployments", deployment, "clusters", ref.Name)
		return cluster, err
	})
}

// ResolveGateways implements Client.
func (c *HTTPClient) ResolveGateways(ctx context.Context, refs []Ref) ([]Gateway, error) {
	return resolveAll(ctx, c.concurrency, refs, func(ctx context.Context, ref Ref) (Gateway, error) {
		var gateway Gateway
		_, err := c.getJSON(ctx, &gateway, nil, "gateways", ref.Name)
		return gateway, err
	})
}

// ResolveRoutes implements Client.
func (c *HTTPClient) ResolveRoutes(ctx context.Context, gateway string, refs []Ref) ([]Route, error) {
	return resolveAll(ctx, c.concurrency, refs, func(ctx context.Context, ref Ref) (Route, error) {
		var route Route
		_, err := c.getJSON(ctx, &route, nil, "gateways", gateway, "routes", ref.Name)
		return route, err
	})
}

// resolveAll fetches every ref with at most limit requests in flight and keeps ref order.
// The first failure cancels the remaining fetches.
func resolveAll[T any](ctx context.Context, limit int, refs []Ref, fetch func(context.Context, Ref) (T, error)) ([]T, error) {
	results := make([]T, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, ref := range refs {
		g.Go(func() error {
			item, err := fetch(gctx, ref)
			if err != nil {
				return fmt.Errorf("resolve %q: %w", ref.Name, err)
			}
			results[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// getJSON decodes the response of GET <base>/<segments...> into out and returns
// the advertised total count, or -1 when absent.
func (c *HTTPClient) getJSON(ctx context.Context, out any, query url.Values, segments ...string) (int, error) {
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = url.PathEscape(segment)
	}
	target := c.base.JoinPath(escaped...)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", target.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%s: %w", target.Path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		if text := strings.TrimSpace(string(body)); text != "" {
			return 0, fmt.Errorf("request %s failed: %s (%s)", target.Path, resp.Status, text)
		}
		return 0, fmt.Errorf("request %s failed: %s", target.Path, resp.Status)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, responseMaxBytes)).Decode(out); err != nil {
		return 0, fmt.Errorf("decode %s: %w", target.Path, err)
	}

	total := -1
	if value := resp.Header.Get(totalCountHeader); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			total = parsed
		}
	}
	return total, nil
}

func pageQuery(page, perPage int) url.Values {
	return url.Values{
		"page":     []string{strconv.Itoa(page)},
		"per_page": []string{strconv.Itoa(perPage)},
	}
}
