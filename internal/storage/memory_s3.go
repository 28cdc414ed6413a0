package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryS3Client is an in-process S3Client used by tests and local dry runs.
type MemoryS3Client struct {
	mu      sync.RWMutex
	objects map[string][]byte
	// FailPut, when set, is returned by every PutObject.
	FailPut error
}

// NewMemoryS3Client creates an empty MemoryS3Client.
func NewMemoryS3Client() *MemoryS3Client {
	return &MemoryS3Client{objects: make(map[string][]byte)}
}

func (m *MemoryS3Client) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotExist, bucket, key)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryS3Client) PutObject(_ context.Context, bucket, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPut != nil {
		return m.FailPut
	}
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryS3Client) HeadObject(_ context.Context, bucket, key string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[bucket+"/"+key]; !ok {
		return fmt.Errorf("%w: s3://%s/%s", ErrNotExist, bucket, key)
	}
	return nil
}

func (m *MemoryS3Client) DeleteObject(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}

// ListObjects returns matching keys in lexical order, as S3 does.
func (m *MemoryS3Client) ListObjects(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search := bucket + "/" + prefix
	keys := []string{}
	for full := range m.objects {
		if strings.HasPrefix(full, search) {
			keys = append(keys, strings.TrimPrefix(full, bucket+"/"))
		}
	}
	sort.Strings(keys)
	return keys, nil
}
