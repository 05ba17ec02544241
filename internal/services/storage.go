package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// StorageService handles S3 operations on invoice documents
type StorageService struct {
	s3Client *s3.Client
	presign  *s3.PresignClient
	bucket   string
	region   string
	now      func() time.Time
}

// NewStorageService creates a new storage service instance
// For LocalStack: endpoint should be "http://localhost:4566"
// For production AWS: endpoint should be ""
func NewStorageService(ctx context.Context, bucket, region, endpoint string) (*StorageService, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket cannot be empty")
	}
	if region == "" {
		return nil, fmt.Errorf("region cannot be empty")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if endpoint != "" {
		// LocalStack accepts any static credentials
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &StorageService{
		s3Client: client,
		presign:  s3.NewPresignClient(client),
		bucket:   bucket,
		region:   region,
		now:      time.Now,
	}, nil
}

// GenerateInvoiceKey creates a unique S3 key for an invoice document
// Format: invoices/{entityID}/{timestamp}-{uniqueID}-{filename}
func (s *StorageService) GenerateInvoiceKey(entityID uuid.UUID, filename string) (string, error) {
	if entityID == uuid.Nil {
		return "", fmt.Errorf("entityID cannot be empty")
	}
	if filename == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	baseName := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	baseName = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, baseName)

	now := time.Now
	if s.now != nil {
		now = s.now
	}

	key := fmt.Sprintf("invoices/%s/%d-%s-%s%s",
		entityID, now().UTC().Unix(), uuid.New().String()[:8], baseName, ext)
	return key, nil
}

// PresignUpload generates a presigned PUT URL for a document upload
func (s *StorageService) PresignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	if err := s.checkPresign(key, expiry); err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := s.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate upload URL: %w", err)
	}
	return req.URL, nil
}

// PresignDownload generates a presigned GET URL for an invoice document
func (s *StorageService) PresignDownload(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if err := s.checkPresign(key, expiry); err != nil {
		return "", err
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}
	return req.URL, nil
}

// DownloadFile downloads a document from S3 and returns a reader
func (s *StorageService) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}
	if s.s3Client == nil {
		return nil, fmt.Errorf("s3 client is not initialized")
	}

	result, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download file from S3: %w", err)
	}

	return result.Body, nil
}

func (s *StorageService) checkPresign(key string, expiry time.Duration) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if expiry <= 0 {
		return fmt.Errorf("expiry must be greater than 0")
	}
	if s.presign == nil {
		return fmt.Errorf("s3 client is not initialized")
	}
	return nil
}
