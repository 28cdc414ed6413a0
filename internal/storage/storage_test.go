package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providers(t *testing.T) map[string]FileProvider {
	t.Helper()
	return map[string]FileProvider{
		"local":    NewLocalFileProvider(t.TempDir()),
		"s3":       NewS3FileProvider("bucket", "root", NewMemoryS3Client()),
		"prefixed": NewPrefixedFileProvider(NewS3FileProvider("bucket", "", NewMemoryS3Client()), "ns"),
	}
}

func TestFileProviderContract(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := p.Read(ctx, "missing.json")
			assert.True(t, errors.Is(err, ErrNotExist), "got %v", err)

			ok, err := p.Exists(ctx, "missing.json")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, p.Write(ctx, "a.json", []byte(`{"v":1}`)))
			require.NoError(t, p.Write(ctx, "ab.json", []byte(`{"v":2}`)))
			require.NoError(t, p.Write(ctx, "b.json", []byte(`{"v":3}`)))
			require.NoError(t, p.Write(ctx, "a.json", []byte(`{"v":4}`)))

			data, err := p.Read(ctx, "a.json")
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":4}`, string(data))

			ok, err = p.Exists(ctx, "b.json")
			require.NoError(t, err)
			assert.True(t, ok)

			all, err := p.List(ctx, "")
			require.NoError(t, err)
			sort.Strings(all)
			assert.Equal(t, []string{"a.json", "ab.json", "b.json"}, all)

			as, err := p.List(ctx, "a")
			require.NoError(t, err)
			sort.Strings(as)
			assert.Equal(t, []string{"a.json", "ab.json"}, as)

			require.NoError(t, p.Delete(ctx, "a.json"))
			require.NoError(t, p.Delete(ctx, "a.json"))
			ok, err = p.Exists(ctx, "a.json")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestLocalListMissingDir(t *testing.T) {
	p := NewLocalFileProvider(filepath.Join(t.TempDir(), "not-yet"))
	files, err := p.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLocalRejectsEscapingPaths(t *testing.T) {
	p := NewLocalFileProvider(t.TempDir())
	ctx := context.Background()

	for _, path := range []string{"../evil.json", "a/../../evil.json", "", "..", "x\x00y"} {
		err := p.Write(ctx, path, []byte("x"))
		assert.True(t, errors.Is(err, ErrInvalidPath), "path %q: %v", path, err)
	}
}

func TestLocalWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	p := NewLocalFileProvider(dir)
	ctx := context.Background()

	require.NoError(t, p.Write(ctx, "nested/x.json", []byte("1")))
	require.NoError(t, p.Write(ctx, "nested/x.json", []byte("2")))

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x.json", entries[0].Name())

	// A stray temp file from a crashed writer is not listed.
	require.NoError(t, os.WriteFile(filepath.Join(dir, tempPrefix+"123"), []byte("partial"), 0o600))
	files, err := p.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"nested/x.json"}, files)
}

func TestS3ProviderPrefixesKeys(t *testing.T) {
	client := NewMemoryS3Client()
	p := NewS3FileProvider("bucket", "finqa", client)
	ctx := context.Background()

	require.NoError(t, p.Write(ctx, "k.json", []byte("{}")))
	_, err := client.GetObject(ctx, "bucket", "finqa/k.json")
	assert.NoError(t, err)
}

func TestS3WriteError(t *testing.T) {
	client := NewMemoryS3Client()
	client.FailPut = errors.New("access denied")
	p := NewS3FileProvider("bucket", "", client)

	assert.Error(t, p.Write(context.Background(), "k.json", []byte("{}")))
}

func TestBackend(t *testing.T) {
	ctx := context.Background()

	local, err := NewBackend(ctx, Config{Backend: BackendLocal})
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, local.Kind())
	dir := t.TempDir()
	lp, ok := local.Provider(dir, "cache").(*LocalFileProvider)
	require.True(t, ok)
	assert.Equal(t, dir, lp.BaseDir())

	_, err = NewBackend(ctx, Config{Backend: BackendS3})
	assert.Error(t, err)

	_, err = NewBackend(ctx, Config{Backend: "ftp"})
	assert.Error(t, err)

	client := NewMemoryS3Client()
	remote, err := NewBackend(ctx, Config{Backend: BackendS3, Bucket: "b", Prefix: "app", Client: client})
	require.NoError(t, err)
	p := remote.Provider("ignored", "conversations")
	require.NoError(t, p.Write(ctx, "c.json", []byte("{}")))
	_, err = client.GetObject(ctx, "b", "app/conversations/c.json")
	assert.NoError(t, err)
}
