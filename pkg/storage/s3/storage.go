package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/fadedpez/royalcharge/pkg/storage"
)

// API is the subset of the S3 client used for media
type API interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

// Config holds bucket settings
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // S3 compatible endpoint, e.g. MinIO or R2
	PublicURL string // CDN or bucket URL objects are served from
	AccessKey string
	SecretKey string
}

// Storage implements media storage on an S3 bucket
type Storage struct {
	client    API
	bucket    string
	publicURL string
}

// New creates an S3 client from the default AWS credential chain, or from the
// static keys in cfg when both are set
func New(ctx context.Context, cfg *Config) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client API, cfg *Config) *Storage {
	publicURL := cfg.PublicURL
	if publicURL == "" {
		if cfg.Endpoint != "" {
			publicURL = storage.JoinURL(cfg.Endpoint, cfg.Bucket)
		} else {
			publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	return &Storage{client: client, bucket: cfg.Bucket, publicURL: publicURL}
}

// Put uploads the object with a public-read ACL
func (s *Storage) Put(ctx context.Context, obj *storage.Object) (string, error) {
	key, err := storage.CleanKey(obj.Key)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(obj.Data),
		ContentType:   aws.String(obj.ContentType),
		ContentLength: aws.Int64(int64(len(obj.Data))),
		ACL:           types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("error uploading %s: %w", key, err)
	}

	return s.URL(key), nil
}

// Delete removes the object stored under key
func (s *Storage) Delete(ctx context.Context, key string) error {
	key, err := storage.CleanKey(key)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return storage.ErrObjectNotFound
		}
		return fmt.Errorf("error deleting %s: %w", key, err)
	}
	return nil
}

// URL returns the public URL for key
func (s *Storage) URL(key string) string {
	return storage.JoinURL(s.publicURL, key)
}
