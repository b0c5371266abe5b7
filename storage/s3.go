// Package storage persists generated images outside the backend.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader stores one image and returns a URI for it
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// S3Config holds S3/MinIO connection configuration.
type S3Config struct {
	// Endpoint for MinIO (e.g., "minio:9000"). Leave empty for AWS S3.
	Endpoint string `yaml:"endpoint"`

	Bucket string `yaml:"bucket"`

	// Region (required for AWS S3, optional for MinIO)
	Region string `yaml:"region"`

	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// UseSSL enables HTTPS for a custom endpoint
	UseSSL bool `yaml:"use_ssl"`

	// PathPrefix is prepended to all object keys
	PathPrefix string `yaml:"path_prefix"`
}

// Enabled reports whether a bucket is configured
func (c *S3Config) Enabled() bool {
	return c != nil && c.Bucket != ""
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader writes images to an S3 compatible bucket
type S3Uploader struct {
	client     putObjectAPI
	bucket     string
	pathPrefix string
}

// NewS3Uploader creates an uploader from the configuration
func NewS3Uploader(ctx context.Context, cfg *S3Config) (*S3Uploader, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("bucket name is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1" // Default region for MinIO
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		endpoint := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true // Required for MinIO
		})
	}

	return newS3Uploader(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.PathPrefix), nil
}

func newS3Uploader(client putObjectAPI, bucket, prefix string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, pathPrefix: prefix}
}

// key places objects under <prefix>/<sha256[:2]>/<name> so repeated file names do not collide
func (u *S3Uploader) key(name string, data []byte) string {
	hash := sha256.Sum256(data)
	sum := hex.EncodeToString(hash[:])
	k := path.Join(sum[:2], sum[:16]+"-"+path.Base(name))
	if u.pathPrefix == "" {
		return k
	}
	return path.Join(u.pathPrefix, k)
}

// Upload stores data and returns its s3:// URI
func (u *S3Uploader) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := u.key(name, data)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}
