// Package storage provides the file abstraction shared by the cache's
// persistent tier and the conversation store. It supports local filesystem and
// S3 backends, and prefix-scoped views so both components can share one bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotExist is returned (wrapped) by Read when the object is missing.
	ErrNotExist = errors.New("object does not exist")
	// ErrInvalidPath is returned for paths that would escape the provider root.
	ErrInvalidPath = errors.New("invalid path")
)

// FileProvider defines the interface for file storage operations.
// Paths are slash separated and relative to the provider root.
type FileProvider interface {
	// Read returns the whole object, or an error wrapping ErrNotExist.
	Read(ctx context.Context, path string) ([]byte, error)
	// Write replaces the object. Readers never observe a partial write.
	Write(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
	// List returns every object path that starts with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

const tempPrefix = ".tmp-"

// LocalFileProvider implements FileProvider for local filesystem.
type LocalFileProvider struct {
	baseDir string
}

// NewLocalFileProvider creates a new local file provider rooted at baseDir.
func NewLocalFileProvider(baseDir string) *LocalFileProvider {
	return &LocalFileProvider{baseDir: baseDir}
}

// BaseDir returns the provider root.
func (p *LocalFileProvider) BaseDir() string {
	return p.baseDir
}

func (p *LocalFileProvider) resolve(path string) (string, error) {
	if path == "" || strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	full := filepath.Join(p.baseDir, filepath.FromSlash(path))
	rel, err := filepath.Rel(p.baseDir, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return full, nil
}

// Read reads a file from the local filesystem.
func (p *LocalFileProvider) Read(_ context.Context, path string) ([]byte, error) {
	full, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full) //nolint:gosec // G304: path is confined to baseDir by resolve
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
	}
	return data, err
}

// Write writes to a temp file in the target directory and renames it over the
// destination, so a crash leaves either the old or the new content.
func (p *LocalFileProvider) Write(_ context.Context, path string, data []byte) error {
	full, err := p.resolve(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// Exists checks if a file exists on the local filesystem.
func (p *LocalFileProvider) Exists(_ context.Context, path string) (bool, error) {
	full, err := p.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Delete removes a file from the local filesystem.
func (p *LocalFileProvider) Delete(_ context.Context, path string) error {
	full, err := p.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List walks baseDir and returns the files whose relative path starts with
// prefix. In-flight temp files are skipped; a missing baseDir lists as empty.
func (p *LocalFileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	result := []string{}
	err := filepath.WalkDir(p.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(p.baseDir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			result = append(result, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PrefixedFileProvider wraps a FileProvider to add a prefix to all paths,
// giving each component an isolated namespace over shared storage.
type PrefixedFileProvider struct {
	provider FileProvider
	prefix   string
}

// NewPrefixedFileProvider creates a new prefixed file provider.
func NewPrefixedFileProvider(provider FileProvider, prefix string) *PrefixedFileProvider {
	return &PrefixedFileProvider{provider: provider, prefix: strings.Trim(prefix, "/")}
}

func (p *PrefixedFileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	return p.provider.Read(ctx, p.prefixPath(path))
}

func (p *PrefixedFileProvider) Write(ctx context.Context, path string, data []byte) error {
	return p.provider.Write(ctx, p.prefixPath(path), data)
}

func (p *PrefixedFileProvider) Exists(ctx context.Context, path string) (bool, error) {
	return p.provider.Exists(ctx, p.prefixPath(path))
}

func (p *PrefixedFileProvider) Delete(ctx context.Context, path string) error {
	return p.provider.Delete(ctx, p.prefixPath(path))
}

// List strips the namespace from the returned paths.
func (p *PrefixedFileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	files, err := p.provider.List(ctx, p.prefixPath(prefix))
	if err != nil {
		return nil, err
	}
	root := p.prefixPath("")
	result := make([]string, 0, len(files))
	for _, f := range files {
		if strings.HasPrefix(f, root) {
			result = append(result, f[len(root):])
		}
	}
	return result, nil
}

func (p *PrefixedFileProvider) prefixPath(path string) string {
	if p.prefix == "" {
		return path
	}
	return p.prefix + "/" + path
}
