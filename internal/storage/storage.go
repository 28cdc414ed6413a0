package storage

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BackendType represents the type of storage backend.
type BackendType string

const (
	BackendLocal BackendType = "local"
	BackendS3    BackendType = "s3"
)

// Config describes the storage backend.
type Config struct {
	Backend BackendType

	Bucket  string
	Prefix  string
	Region  string
	Profile string
	// Client overrides the S3 client; when nil one is built from the AWS
	// default credential chain.
	Client S3Client
}

// Backend hands out per-component providers over one configured backend.
type Backend struct {
	kind BackendType
	root FileProvider
}

// NewBackend validates cfg and, for S3, loads AWS configuration once.
func NewBackend(ctx context.Context, cfg Config) (*Backend, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		return &Backend{kind: BackendLocal}, nil

	case BackendS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket is required for s3 backend")
		}
		client := cfg.Client
		if client == nil {
			var opts []func(*awsconfig.LoadOptions) error
			if cfg.Profile != "" {
				opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
			}
			if cfg.Region != "" {
				opts = append(opts, awsconfig.WithRegion(cfg.Region))
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
			if err != nil {
				return nil, fmt.Errorf("failed to load AWS config: %w", err)
			}
			client = NewAWSS3Client(s3.NewFromConfig(awsCfg))
		}
		return &Backend{kind: BackendS3, root: NewS3FileProvider(cfg.Bucket, cfg.Prefix, client)}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Backend)
	}
}

// Kind reports the backend type.
func (b *Backend) Kind() BackendType {
	return b.kind
}

// Provider returns the provider for one component. Local storage is rooted at
// localDir; S3 storage is scoped under namespace inside the configured prefix.
func (b *Backend) Provider(localDir, namespace string) FileProvider {
	if b.kind == BackendLocal {
		return NewLocalFileProvider(localDir)
	}
	return NewPrefixedFileProvider(b.root, namespace)
}
