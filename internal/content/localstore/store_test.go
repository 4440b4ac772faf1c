package localstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v1"))
	require.NoError(t, s.Set(ctx, "k", "v2"))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	require.NoError(t, s.Remove(ctx, "k"))
	require.NoError(t, s.Remove(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	exerciseStorage(t, NewMemory())
}

func TestMemoryQuota(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Quota = 10

	require.NoError(t, m.Set(ctx, "a", "12345"))
	assert.ErrorIs(t, m.Set(ctx, "b", "123456"), ErrQuotaExceeded)
	// Replacing an existing key only counts the new value.
	require.NoError(t, m.Set(ctx, "a", "123456789"))

	v, _, _ := m.Get(ctx, "a")
	assert.Equal(t, "123456789", v)
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	exerciseStorage(t, s)

	require.NoError(t, s.Set(context.Background(), "persist", "yes"))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()
	v, ok, err := reopened.Get(context.Background(), "persist")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "yes", v)
}
