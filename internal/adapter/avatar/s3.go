// Package avatar stores profile images in an S3-compatible bucket.
package avatar

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vbilous/contactbook/internal/config"
)

// S3Store uploads avatars and returns their public URL. Works against AWS S3
// or any compatible endpoint (MinIO in development).
type S3Store struct {
	client        *s3.Client
	bucket        string
	region        string
	endpoint      string
	publicBaseURL string
}

// NewS3Store builds the S3 client from service configuration.
func NewS3Store(ctx context.Context, cfg config.Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey, cfg.S3SecretKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:        client,
		bucket:        cfg.S3Bucket,
		region:        cfg.S3Region,
		endpoint:      cfg.S3Endpoint,
		publicBaseURL: cfg.S3PublicBaseURL,
	}, nil
}

// Upload writes the avatar under a per-user key, overwriting any previous
// one, and returns the URL to store on the user record.
func (s *S3Store) Upload(ctx context.Context, userID int64, contentType string, body io.Reader) (string, error) {
	key := fmt.Sprintf("avatars/%d", userID)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}

	return s.publicURL(key), nil
}

func (s *S3Store) publicURL(key string) string {
	if s.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s", s.publicBaseURL, key)
	}
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
