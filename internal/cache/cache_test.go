package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geomind-labs/geomind/internal/model"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func TestCache_PutGetRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	key := Key([]byte("image bytes"))
	pred := &model.Prediction{
		Lat:        48.8584,
		Lon:        2.2945,
		Confidence: 0.94,
		Rationale:  "Paris, France (score 0.94, via direct retrieval)",
	}

	require.NoError(t, c.Put(ctx, key, pred))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pred, got)
}

func TestCache_MissReturnsNil(t *testing.T) {
	c := newTestCache(t, time.Hour)

	got, err := c.Get(context.Background(), Key([]byte("never stored")))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_ExpiredEntryIsAMiss(t *testing.T) {
	c := newTestCache(t, time.Millisecond)
	ctx := context.Background()

	key := Key([]byte("stale"))
	require.NoError(t, c.Put(ctx, key, &model.Prediction{Confidence: 0.5}))
	time.Sleep(10 * time.Millisecond)

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	pruned, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	key := Key([]byte("forever"))
	require.NoError(t, c.Put(ctx, key, &model.Prediction{Confidence: 0.8}))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)

	pruned, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestCache_PutReplacesExistingEntry(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	key := Key([]byte("image"))
	require.NoError(t, c.Put(ctx, key, &model.Prediction{Confidence: 0.4}))
	require.NoError(t, c.Put(ctx, key, &model.Prediction{Confidence: 0.9}))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0.9, got.Confidence)
}

func TestKey_IsContentAddressed(t *testing.T) {
	assert.Equal(t, Key([]byte("a")), Key([]byte("a")))
	assert.NotEqual(t, Key([]byte("a")), Key([]byte("b")))
	assert.Len(t, Key(nil), 64)
}
