package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lens_gateway/internal/models"
)

type countingStore struct {
	ProviderStore
	gets int
}

func (c *countingStore) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	c.gets++
	return c.ProviderStore.GetByID(ctx, id)
}

func newCountingStore(ids ...string) *countingStore {
	store := NewMemoryStore(nil)
	for _, id := range ids {
		store.Put(&models.Provider{ID: id, Name: id, Type: models.ProviderTypeOpenAI, Status: models.ProviderStatusActive})
	}
	return &countingStore{ProviderStore: store}
}

func TestCachedStoreServesRepeatLookups(t *testing.T) {
	backend := newCountingStore("a")
	cached := NewCachedStore(backend, 10, time.Minute)

	for i := 0; i < 3; i++ {
		p, err := cached.GetByID(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, "a", p.ID)
	}

	assert.Equal(t, 1, backend.gets)
	stats := cached.(*CachedStore).Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestCachedStoreExpires(t *testing.T) {
	backend := newCountingStore("a")
	cached := NewCachedStore(backend, 10, time.Minute).(*CachedStore)

	now := time.Now()
	cached.now = func() time.Time { return now }

	_, _ = cached.GetByID(context.Background(), "a")
	now = now.Add(2 * time.Minute)
	_, _ = cached.GetByID(context.Background(), "a")

	assert.Equal(t, 2, backend.gets)
}

func TestCachedStoreEvictsLeastRecentlyUsed(t *testing.T) {
	backend := newCountingStore("a", "b", "c")
	cached := NewCachedStore(backend, 2, time.Minute)
	ctx := context.Background()

	_, _ = cached.GetByID(ctx, "a")
	_, _ = cached.GetByID(ctx, "b")
	_, _ = cached.GetByID(ctx, "a") // a is now most recent
	_, _ = cached.GetByID(ctx, "c") // evicts b
	assert.Equal(t, 3, backend.gets)

	_, _ = cached.GetByID(ctx, "a")
	assert.Equal(t, 3, backend.gets)

	_, _ = cached.GetByID(ctx, "b")
	assert.Equal(t, 4, backend.gets)
}

func TestCachedStoreDoesNotCacheMisses(t *testing.T) {
	backend := newCountingStore()
	cached := NewCachedStore(backend, 10, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := cached.GetByID(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrProviderNotFound)
	}
	assert.Equal(t, 2, backend.gets)
}

func TestCachedStorePurge(t *testing.T) {
	backend := newCountingStore("a", "b")
	cached := NewCachedStore(backend, 10, time.Minute).(*CachedStore)

	_, _ = cached.GetByID(context.Background(), "a")
	_, _ = cached.GetByID(context.Background(), "b")
	cached.Purge()

	assert.Zero(t, cached.Stats().Size)
	_, _ = cached.GetByID(context.Background(), "a")
	assert.Equal(t, 3, backend.gets)
}

func TestNewCachedStoreDisabled(t *testing.T) {
	backend := newCountingStore()
	assert.Same(t, ProviderStore(backend), NewCachedStore(backend, 0, time.Minute))
	assert.Same(t, ProviderStore(backend), NewCachedStore(backend, 10, 0))
}
