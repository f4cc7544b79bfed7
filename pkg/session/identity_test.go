package session

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idPattern = regexp.MustCompile(`^user_\d+_[0-9a-z]{9}$`)

func TestNewIDFormat(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id, err := NewID(now)
	require.NoError(t, err)
	assert.Regexp(t, idPattern, id)
	assert.Contains(t, id, "_1700000000123_")
}

func TestEnsureCreatesOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := Ensure(ctx, store, "")
	require.NoError(t, err)
	second, err := Ensure(ctx, store, DefaultKey)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	stored, ok, _ := store.Get(ctx, DefaultKey)
	assert.True(t, ok)
	assert.Equal(t, first, stored)
}

func TestResetReplacesIdentifier(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, DefaultKey, "user_1_aaaaaaaaa"))

	id, err := Reset(ctx, store, DefaultKey)
	require.NoError(t, err)
	assert.NotEqual(t, "user_1_aaaaaaaaa", id)
	assert.Regexp(t, idPattern, id)
}

func TestSQLiteStorePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "storage.db")

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	id, err := Ensure(ctx, store, DefaultKey)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	again, err := Ensure(ctx, reopened, DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	require.NoError(t, reopened.Delete(ctx, DefaultKey))
	_, ok, err := reopened.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok)
}
