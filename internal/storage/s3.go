package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client defines the S3 operations needed by S3FileProvider.
type S3Client interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	HeadObject(ctx context.Context, bucket, key string) error
	DeleteObject(ctx context.Context, bucket, key string) error
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

// S3FileProvider implements FileProvider for AWS S3. A PutObject is atomic
// from a reader's point of view, which satisfies the Write contract.
type S3FileProvider struct {
	bucket   string
	prefix   string
	s3Client S3Client
}

// NewS3FileProvider creates a new S3 file provider.
func NewS3FileProvider(bucket, prefix string, s3Client S3Client) *S3FileProvider {
	return &S3FileProvider{bucket: bucket, prefix: prefix, s3Client: s3Client}
}

func (p *S3FileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	return p.s3Client.GetObject(ctx, p.bucket, p.getKey(path))
}

func (p *S3FileProvider) Write(ctx context.Context, path string, data []byte) error {
	return p.s3Client.PutObject(ctx, p.bucket, p.getKey(path), data)
}

// Exists returns (false, nil) only for "not found"; other errors propagate.
func (p *S3FileProvider) Exists(ctx context.Context, path string) (bool, error) {
	err := p.s3Client.HeadObject(ctx, p.bucket, p.getKey(path))
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *S3FileProvider) Delete(ctx context.Context, path string) error {
	return p.s3Client.DeleteObject(ctx, p.bucket, p.getKey(path))
}

// List returns keys under prefix with the provider prefix removed.
func (p *S3FileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.s3Client.ListObjects(ctx, p.bucket, p.getKey(prefix))
	if err != nil {
		return nil, err
	}
	root := len(p.getKey(""))
	result := make([]string, 0, len(keys))
	for _, key := range keys {
		if len(key) > root {
			result = append(result, key[root:])
		}
	}
	return result, nil
}

func (p *S3FileProvider) getKey(path string) string {
	if p.prefix == "" {
		return path
	}
	return p.prefix + "/" + path
}

// AWSS3Client implements the S3Client interface using AWS SDK v2.
type AWSS3Client struct {
	s3Client *s3.Client
}

// NewAWSS3Client creates a new AWS S3 client.
func NewAWSS3Client(s3Client *s3.Client) *AWSS3Client {
	return &AWSS3Client{s3Client: s3Client}
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
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

// GetObject retrieves an object from S3.
func (c *AWSS3Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotExist, bucket, key)
		}
		return nil, fmt.Errorf("failed to get object %s from bucket %s: %w", key, bucket, err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

// PutObject uploads an object to S3.
func (c *AWSS3Client) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s to bucket %s: %w", key, bucket, err)
	}
	return nil
}

// HeadObject returns an error wrapping ErrNotExist if the object is missing.
func (c *AWSS3Client) HeadObject(ctx context.Context, bucket, key string) error {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: s3://%s/%s", ErrNotExist, bucket, key)
		}
		return fmt.Errorf("failed to head object %s in bucket %s: %w", key, bucket, err)
	}
	return nil
}

// DeleteObject removes an object from S3.
func (c *AWSS3Client) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s from bucket %s: %w", key, bucket, err)
	}
	return nil
}

// ListObjects lists objects with a given prefix. A missing bucket lists as
// empty so a fresh deployment can start before anything was written.
func (c *AWSS3Client) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	keys := []string{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var noSuchBucket *types.NoSuchBucket
			if errors.As(err, &noSuchBucket) || isNotFound(err) {
				return []string{}, nil
			}
			return nil, fmt.Errorf("failed to list objects with prefix %s in bucket %s: %w", prefix, bucket, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}
