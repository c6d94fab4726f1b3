package inventory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3GetObjectAPI is the subset of the S3 client used by S3Fetcher.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher retrieves an inventory document stored as an S3 object.
type S3Fetcher struct {
	client   S3GetObjectAPI
	bucket   string
	key      string
	maxBytes int64
}

// NewS3Fetcher builds a fetcher for an s3://bucket/key source using the
// default AWS credential chain.
func NewS3Fetcher(ctx context.Context, source string, timeout time.Duration) (*S3Fetcher, error) {
	bucket, key, err := parseS3Source(source)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, errors.New("timeout must be greater than zero")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3FetcherWithClient(s3.NewFromConfig(cfg), bucket, key), nil
}

// NewS3FetcherWithClient returns an S3Fetcher reading bucket/key through client.
func NewS3FetcherWithClient(client S3GetObjectAPI, bucket, key string) *S3Fetcher {
	return &S3Fetcher{client: client, bucket: bucket, key: key, maxBytes: defaultMaxBytes}
}

// Fetch downloads the object. A matching previousETag yields NotModified.
func (f *S3Fetcher) Fetch(ctx context.Context, previousETag string) (FetchResult, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key),
	}
	if previousETag != "" {
		input.IfNoneMatch = aws.String(previousETag)
	}

	out, err := f.client.GetObject(ctx, input)
	if err != nil {
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotModified {
			return FetchResult{ETag: previousETag, NotModified: true}, nil
		}
		return FetchResult{}, fmt.Errorf("get s3://%s/%s: %w", f.bucket, f.key, err)
	}
	defer out.Body.Close()

	body, err := readWithLimit(out.Body, f.maxBytes)
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{
		Body: body,
		ETag: aws.ToString(out.ETag),
	}
	if out.LastModified != nil {
		result.LastModified = out.LastModified.UTC().Format(http.TimeFormat)
	}
	return result, nil
}

func parseS3Source(source string) (string, string, error) {
	parsed, err := url.Parse(source)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 source: %w", err)
	}
	if parsed.Scheme != "s3" {
		return "", "", fmt.Errorf("s3 source must use the s3 scheme: %q", source)
	}
	key := strings.TrimPrefix(parsed.Path, "/")
	if parsed.Host == "" || key == "" {
		return "", "", fmt.Errorf("s3 source must name a bucket and key: %q", source)
	}
	return parsed.Host, key, nil
}
