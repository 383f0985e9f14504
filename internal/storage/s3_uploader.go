package storage

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Archiver stores uploaded invoice originals in S3-compatible storage so
// extractions can be audited against the source scans
type S3Archiver struct {
	s3Client *s3.S3
	bucket   string
}

// Config holds configuration for the S3 archiver
type Config struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Region          string
}

// NewS3Archiver creates a new S3 archiver
func NewS3Archiver(config *Config) (*S3Archiver, error) {
	if config.Endpoint == "" || config.AccessKeyID == "" || config.AccessKeySecret == "" {
		return nil, fmt.Errorf("S3 configuration is incomplete")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is not configured")
	}

	sess := session.Must(session.NewSession(&aws.Config{
		Region:           aws.String(config.Region),
		Endpoint:         aws.String(config.Endpoint),
		Credentials:      credentials.NewStaticCredentials(config.AccessKeyID, config.AccessKeySecret, ""),
		S3ForcePathStyle: aws.Bool(true),
	}))

	return &S3Archiver{
		s3Client: s3.New(sess),
		bucket:   config.Bucket,
	}, nil
}

// ArchiveImage uploads the original image and returns its object key
func (a *S3Archiver) ArchiveImage(imageData []byte, filename string) (string, error) {
	contentType := http.DetectContentType(imageData)

	_, err := a.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(filename),
		Body:          bytes.NewReader(imageData),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(imageData))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return filename, nil
}
