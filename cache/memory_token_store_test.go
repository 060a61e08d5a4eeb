package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTokenStore(t *testing.T) {
	store := NewMemoryTokenStore(time.Minute)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	entry := &TokenEntry{
		ID:        "at-1",
		Token:     "opaque-token",
		ClientID:  "client-1",
		UserID:    "user-1",
		Scope:     "read",
		Resources: []string{"https://api.example.com/mcp"},
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	require.NoError(t, store.Set(ctx, entry))

	got, err := store.Get(ctx, "opaque-token")
	require.NoError(t, err)
	assert.Equal(t, entry.Resources, got.Resources)
	assert.Equal(t, 1, store.Count(ctx))

	_, err = store.Get(ctx, "unknown")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, store.Delete(ctx, "opaque-token"))
	_, err = store.Get(ctx, "opaque-token")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestMemoryTokenStoreIgnoresExpiredEntries(t *testing.T) {
	store := NewMemoryTokenStore(time.Minute)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, &TokenEntry{
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}))

	_, err := store.Get(ctx, "stale")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestHashTokenIsStable(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64)
}
