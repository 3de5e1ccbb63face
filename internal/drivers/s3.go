package drivers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// S3Options configures an S3 or S3-compatible endpoint.
type S3Options struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Driver reads viewer assets from S3-compatible storage
type S3Driver struct {
	endpoint string
	region   string
	logger   *zap.Logger
	client   *s3.Client
}

// NewS3Driver creates a new S3 storage driver
func NewS3Driver(ctx context.Context, opts S3Options, logger *zap.Logger) (*S3Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	creds := credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(creds),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return &S3Driver{
		endpoint: opts.Endpoint,
		region:   region,
		logger:   logger,
		client:   client,
	}, nil
}

// Name returns the driver name
func (d *S3Driver) Name() string {
	return "s3"
}

// Get retrieves data from S3
func (d *S3Driver) Get(ctx context.Context, container, artifact string) (io.ReadCloser, error) {
	result, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(artifact),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("get object %s/%s: %w", container, artifact, ErrNotFound)
		}
		return nil, fmt.Errorf("get object %s/%s: %w", container, artifact, err)
	}
	d.logger.Debug("S3Driver.Get",
		zap.String("bucket", container),
		zap.String("key", artifact))
	return result.Body, nil
}

// Put stores data in S3
func (d *S3Driver) Put(ctx context.Context, container, artifact string, data io.Reader) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(artifact),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", container, artifact, err)
	}
	return nil
}

// List returns objects in a container with optional prefix
func (d *S3Driver) List(ctx context.Context, container, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(container),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(d.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects in %s: %w", container, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Exists checks whether an object is present
func (d *S3Driver) Exists(ctx context.Context, container, artifact string) (bool, error) {
	_, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(artifact),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head object %s/%s: %w", container, artifact, err)
	}
	return true, nil
}

// HealthCheck lists buckets to verify credentials and connectivity
func (d *S3Driver) HealthCheck(ctx context.Context) error {
	if _, err := d.client.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
