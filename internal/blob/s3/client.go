// Package s3blob provides cold storage for simulation history: plans and
// reconciliation reports past the retention window are serialized to an
// S3-compatible bucket (AWS S3, MinIO, R2) by the archiver.
package s3blob

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds the connection settings for an S3-compatible object
// store.
type ClientConfig struct {
	// Endpoint overrides the S3 endpoint for compatible providers. Empty
	// selects standard AWS S3. A bare host without scheme is allowed; see
	// UseSSL.
	Endpoint string

	// Region is the bucket region (or the provider's equivalent).
	Region string

	// Bucket receives all archive objects.
	Bucket string

	AccessKey string
	SecretKey string

	// UseSSL picks the scheme when Endpoint carries none.
	UseSSL bool

	// ForcePathStyle puts the bucket in the path instead of the subdomain.
	// Most non-AWS providers need this.
	ForcePathStyle bool
}

// Client wraps the AWS SDK v2 S3 client plus the archive bucket name.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New builds the S3 client with static credentials and optional endpoint and
// addressing overrides for compatible providers.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// Ping verifies bucket access with a HeadBucket call.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close exists for teardown symmetry with the other clients; the S3 HTTP
// client needs no explicit shutdown.
func (c *Client) Close() error {
	return nil
}

// S3 exposes the underlying SDK client to the reader and writer in this
// package.
func (c *Client) S3() *s3.Client {
	return c.s3
}

// Bucket returns the archive bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// withScheme prepends http:// or https:// when the endpoint has no scheme.
func withScheme(endpoint string, useSSL bool) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Scheme != "" {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
