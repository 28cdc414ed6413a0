package config

import (
	"fmt"

	"github.com/lewisedginton/financial_qa/internal/storage"
)

// StorageConfig selects where cache entries and conversations are persisted.
type StorageConfig struct {
	Backend   string `env:"STORAGE_BACKEND" yaml:"backend" default:"local"` // "local" or "s3"
	S3Bucket  string `env:"STORAGE_S3_BUCKET" yaml:"s3_bucket"`
	S3Prefix  string `env:"STORAGE_S3_PREFIX" yaml:"s3_prefix"`
	S3Region  string `env:"STORAGE_S3_REGION" yaml:"s3_region"`
	S3Profile string `env:"STORAGE_S3_PROFILE" yaml:"s3_profile"`
}

func (c StorageConfig) validate() error {
	switch storage.BackendType(c.Backend) {
	case storage.BackendLocal:
		return nil
	case storage.BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("storage_s3_bucket is required when storage_backend is s3")
		}
		return nil
	}
	return fmt.Errorf("storage_backend must be one of [local, s3], got %q", c.Backend)
}

// BackendConfig converts to the storage package's configuration.
func (c StorageConfig) BackendConfig() storage.Config {
	return storage.Config{
		Backend: storage.BackendType(c.Backend),
		Bucket:  c.S3Bucket,
		Prefix:  c.S3Prefix,
		Region:  c.S3Region,
		Profile: c.S3Profile,
	}
}
