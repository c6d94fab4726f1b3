package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultMaxBytes int64 = 16 << 20

// Fetcher retrieves a static inventory document.
type Fetcher interface {
	Fetch(ctx context.Context, previousETag string) (FetchResult, error)
}

// FetchResult contains the fetched document bytes and response metadata.
type FetchResult struct {
	Body         []byte
	ETag         string
	LastModified string
	NotModified  bool
}

// HTTPFetcher retrieves an inventory document over HTTP.
type HTTPFetcher struct {
	url      string
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher constructs an HTTPFetcher with the given URL and timeout.
func NewHTTPFetcher(url string, timeout time.Duration, maxBytes int64) (*HTTPFetcher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("inventory url must not be empty")
	}
	if timeout <= 0 {
		return nil, errors.New("timeout must be greater than zero")
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	return &HTTPFetcher{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
		maxBytes: maxBytes,
	}, nil
}

// Fetch downloads the document, optionally using ETag caching.
func (f *HTTPFetcher) Fetch(ctx context.Context, previousETag string) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, http.NoBody)
	if err != nil {
		return FetchResult{}, fmt.Errorf("create request: %w", err)
	}
	if previousETag != "" {
		req.Header.Set("If-None-Match", previousETag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch inventory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return FetchResult{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			NotModified:  true,
		}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return FetchResult{}, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := readWithLimit(resp.Body, f.maxBytes)
	if err != nil {
		return FetchResult{}, err
	}
	if len(body) == 0 {
		return FetchResult{}, errors.New("inventory document is empty")
	}

	return FetchResult{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

func readWithLimit(r io.Reader, maxBytes int64) ([]byte, error) {
	limited := io.LimitReader(r, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("inventory document exceeds %d bytes", maxBytes)
	}
	return body, nil
}

// FileFetcher reads an inventory document from the local filesystem.
// The file modification time stands in for an ETag.
type FileFetcher struct {
	path     string
	maxBytes int64
}

// NewFileFetcher constructs a FileFetcher for path.
func NewFileFetcher(path string) (*FileFetcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("inventory path must not be empty")
	}
	return &FileFetcher{path: path, maxBytes: defaultMaxBytes}, nil
}

// Fetch implements Fetcher.
func (f *FileFetcher) Fetch(ctx context.Context, previousETag string) (FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return FetchResult{}, err
	}

	info, err := os.Stat(f.path)
	if err != nil {
		return FetchResult{}, fmt.Errorf("stat inventory: %w", err)
	}
	if info.Size() > f.maxBytes {
		return FetchResult{}, fmt.Errorf("inventory document exceeds %d bytes", f.maxBytes)
	}

	modified := info.ModTime().UTC()
	etag := fmt.Sprintf(`"%x-%x"`, modified.UnixNano(), info.Size())
	if previousETag != "" && previousETag == etag {
		return FetchResult{ETag: etag, LastModified: modified.Format(http.TimeFormat), NotModified: true}, nil
	}

	file, err := os.Open(f.path)
	if err != nil {
		return FetchResult{}, fmt.Errorf("open inventory: %w", err)
	}
	defer file.Close()

	body, err := readWithLimit(file, f.maxBytes)
	if err != nil {
		return FetchResult{}, err
	}
	if len(body) == 0 {
		return FetchResult{}, errors.New("inventory document is empty")
	}

	return FetchResult{
		Body:         body,
		ETag:         etag,
		LastModified: modified.Format(http.TimeFormat),
	}, nil
}

// NewFetcher picks an HTTPFetcher for http(s) URLs, an S3Fetcher for s3://
// sources and a FileFetcher otherwise.
func NewFetcher(ctx context.Context, source string, timeout time.Duration) (Fetcher, error) {
	if strings.HasPrefix(source, "s3://") {
		fetcher, err := NewS3Fetcher(ctx, source, timeout)
		if err != nil {
			return nil, err
		}
		return fetcher, nil
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		fetcher, err := NewHTTPFetcher(source, timeout, 0)
		if err != nil {
			return nil, err
		}
		return fetcher, nil
	}
	fetcher, err := NewFileFetcher(source)
	if err != nil {
		return nil, err
	}
	return fetcher, nil
}
