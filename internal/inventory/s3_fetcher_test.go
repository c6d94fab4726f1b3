package inventory

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

type fakeS3 struct {
	body  string
	etag  string
	err   error
	input *s3.GetObjectInput
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	if f.etag != "" && aws.ToString(params.IfNoneMatch) == f.etag {
		return nil, &awshttp.ResponseError{
			ResponseError: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusNotModified}},
				Err:      errors.New("not modified"),
			},
		}
	}
	modified := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &s3.GetObjectOutput{
		Body:         io.NopCloser(strings.NewReader(f.body)),
		ETag:         aws.String(f.etag),
		LastModified: &modified,
	}, nil
}

func TestS3Fetcher_FetchAndNotModified(t *testing.T) {
	client := &fakeS3{body: "gateways: []", etag: `"abc"`}
	fetcher := NewS3FetcherWithClient(client, "mesh-config", "prod/inventory.yaml")

	result, err := fetcher.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if string(result.Body) != "gateways: []" || result.ETag != `"abc"` {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.LastModified != "Fri, 01 Mar 2024 12:00:00 GMT" {
		t.Fatalf("unexpected last modified: %q", result.LastModified)
	}
	if aws.ToString(client.input.Bucket) != "mesh-config" || aws.ToString(client.input.Key) != "prod/inventory.yaml" {
		t.Fatalf("unexpected object: %s/%s", aws.ToString(client.input.Bucket), aws.ToString(client.input.Key))
	}
	if client.input.IfNoneMatch != nil {
		t.Fatalf("expected no If-None-Match on first fetch")
	}

	result, err = fetcher.Fetch(context.Background(), `"abc"`)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if !result.NotModified || result.ETag != `"abc"` {
		t.Fatalf("expected not modified, got %+v", result)
	}
}

func TestS3Fetcher_PropagatesErrors(t *testing.T) {
	boom := errors.New("access denied")
	fetcher := NewS3FetcherWithClient(&fakeS3{err: boom}, "mesh-config", "inventory.yaml")

	_, err := fetcher.Fetch(context.Background(), "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestParseS3Source(t *testing.T) {
	tests := []struct {
		source  string
		bucket  string
		key     string
		wantErr bool
	}{
		{source: "s3://mesh-config/prod/inventory.yaml", bucket: "mesh-config", key: "prod/inventory.yaml"},
		{source: "s3://mesh-config/", wantErr: true},
		{source: "s3:///inventory.yaml", wantErr: true},
		{source: "https://mesh-config/inventory.yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			bucket, key, err := parseS3Source(tt.source)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseS3Source() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.bucket || key != tt.key {
				t.Fatalf("parseS3Source() = (%q, %q), want (%q, %q)", bucket, key, tt.bucket, tt.key)
			}
		})
	}
}
