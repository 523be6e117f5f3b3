package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"devlink-backend/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const avatarURLExpiry = 15 * time.Minute

// LoadAWSConfig builds the shared AWS configuration. Static credentials are
// used when both keys are configured, otherwise the default chain applies.
func LoadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// AvatarService turns stored photo keys into short-lived download URLs
type AvatarService struct {
	presign *s3.PresignClient
	bucket  string
}

// NewAvatarService creates an avatar service for the configured bucket.
// A non-empty endpoint switches to path-style addressing for S3-compatible stores.
func NewAvatarService(awsCfg aws.Config, bucket, endpoint string) *AvatarService {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &AvatarService{
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
	}
}

// URL returns a presigned GET URL for key. Empty keys resolve to "" and
// keys that are already absolute URLs are returned unchanged.
func (s *AvatarService) URL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key, nil
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(avatarURLExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign avatar URL: %w", err)
	}
	return req.URL, nil
}
