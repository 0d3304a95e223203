package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore checks the behaviour every Store implementation shares.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set get overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "session", []byte(`{"v":1}`), 0))
		got, err := store.Get(ctx, "session")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"v":1}`), got)

		require.NoError(t, store.Set(ctx, "session", []byte(`{"v":2}`), time.Hour))
		got, err = store.Get(ctx, "session")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"v":2}`), got)
	})

	t.Run("delete many", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
		require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))

		require.NoError(t, store.Delete(ctx, "a", "b", "never-set"))

		_, err := store.Get(ctx, "a")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.Get(ctx, "b")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete nothing", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "ticket", []byte("x"), 20*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	_, err := store.Get(ctx, "ticket")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	value := []byte("abc")

	require.NoError(t, store.Set(ctx, "k", value, 0))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "state", "session.json"))
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestFileStore_ExpiryAndPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store, err := NewFileStore(path)
	require.NoError(t, err)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "ticket", []byte("t"), 5*time.Minute))
	require.NoError(t, store.Set(ctx, "session", []byte("s"), 0))

	// A second store over the same file sees the same data
	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	reopened.now = func() time.Time { return now.Add(time.Minute) }
	got, err := reopened.Get(ctx, "ticket")
	require.NoError(t, err)
	assert.Equal(t, []byte("t"), got)

	reopened.now = func() time.Time { return now.Add(5 * time.Minute) }
	_, err = reopened.Get(ctx, "ticket")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = reopened.Get(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, []byte("s"), got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "session")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("PORTAL_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PORTAL_TEST_REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store, err := NewRedisStoreFromURL(ctx, url)
	if err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	defer store.Close()

	store.prefix = "portalctl-test:" + t.Name() + ":"
	exerciseStore(t, store)
}

func TestNewRedisStoreFromURL_InvalidURL(t *testing.T) {
	_, err := NewRedisStoreFromURL(context.Background(), "http://not-redis")
	assert.Error(t, err)
}
