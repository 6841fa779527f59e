package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ObjectGetter is the subset of the S3 client used to fetch videos
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures the S3 video source
type S3Config struct {
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// S3Source downloads "<ownerID>/<file name>" objects from one bucket
type S3Source struct {
	client  ObjectGetter
	bucket  string
	tempDir string
}

// NewS3Source builds an S3 client from static credentials when given,
// falling back to the default AWS credential chain.
func NewS3Source(ctx context.Context, cfg S3Config, tempDir string) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return NewS3SourceWithClient(s3.NewFromConfig(awsCfg), cfg.Bucket, tempDir), nil
}

// NewS3SourceWithClient wraps an existing client
func NewS3SourceWithClient(client ObjectGetter, bucket, tempDir string) *S3Source {
	return &S3Source{client: client, bucket: bucket, tempDir: tempDir}
}

// Fetch downloads the object into a temporary file
func (s *S3Source) Fetch(ctx context.Context, ref VideoRef) (*LocalVideo, error) {
	key := ref.Key()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error(key, err)
	}
	defer out.Body.Close()

	return spool(s.tempDir, ref.FileName(), out.Body)
}

func classifyS3Error(key string, err error) error {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return fmt.Errorf("s3 object %s: %w", key, ErrNotFound)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("s3 object %s: %w", key, ErrNotFound)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("s3 object %s: %w", key, ErrAccessDenied)
		}
	}
	return fmt.Errorf("failed to get s3 object %s: %w", key, err)
}
