package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ObjectStorage implements Backend on an S3 bucket. Objects are uploaded
// with a public-read ACL so URLForKey results are directly fetchable.
type ObjectStorage struct {
	client         *s3.Client
	bucket         string
	publicEndpoint string
	forcePathStyle bool
}

// NewObjectStorage creates an S3-backed storage backend.
func NewObjectStorage(ctx context.Context, cfg Config) (*ObjectStorage, error) {
	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		// Static credentials (MinIO, or AWS with explicit keys)
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKey,
				cfg.S3SecretKey,
				"",
			)),
		)
	} else {
		// Default credential chain (IAM roles, env vars, etc.)
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		if cfg.S3ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	if cfg.S3AutoCreateBucket {
		if err := createBucketIfNotExists(ctx, client, cfg.S3Bucket); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
		}
	}

	return &ObjectStorage{
		client:         client,
		bucket:         cfg.S3Bucket,
		publicEndpoint: publicEndpoint(cfg),
		forcePathStyle: cfg.S3ForcePathStyle,
	}, nil
}

// publicEndpoint resolves the endpoint embedded in public object URLs. With
// an explicit override that wins; otherwise virtual-host addressing on AWS,
// unless path-style is forced, in which case the API endpoint is reused.
func publicEndpoint(cfg Config) string {
	if cfg.S3PublicEndpoint != "" {
		return cfg.S3PublicEndpoint
	}
	if cfg.S3ForcePathStyle {
		if cfg.S3Endpoint != "" {
			return cfg.S3Endpoint
		}
		return "https://s3.amazonaws.com"
	}
	return "https://" + cfg.S3Bucket + ".s3.amazonaws.com"
}

// Exists implements Backend.Exists. Only a NotFound response maps to
// (false, nil); any other HeadObject failure is an error, not absence.
func (s *ObjectStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

// Upload implements Backend.Upload
func (s *ObjectStorage) Upload(ctx context.Context, key string, content io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   content,
		ACL:    s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// ListPrefix implements Backend.ListPrefix
func (s *ObjectStorage) ListPrefix(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list prefix %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, Object{Key: aws.ToString(obj.Key)})
		}
	}
	return objects, nil
}

// URLForKey implements Backend.URLForKey
func (s *ObjectStorage) URLForKey(key string) string {
	if s.forcePathStyle {
		return s.publicEndpoint + "/" + s.bucket + "/" + escapeKey(key)
	}
	return s.publicEndpoint + "/" + escapeKey(key)
}

func createBucketIfNotExists(ctx context.Context, client *s3.Client, bucket string) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil && !isBucketAlreadyExists(err) {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func isBucketAlreadyExists(err error) bool {
	var owned *s3types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}
	var exists *s3types.BucketAlreadyExists
	return errors.As(err, &exists)
}
