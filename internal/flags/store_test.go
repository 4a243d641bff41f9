package flags

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // separate DB for tests
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.FlushDB(ctx).Err()
		_ = client.Close()
	})
	return client
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(setupTestRedis(t))
	require.NoError(t, err)
	return store
}

func TestNewStore_NilClient(t *testing.T) {
	_, err := NewStore(nil)
	assert.Error(t, err)
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{SwapsEnabled, LiquidityEnabled, "flag123", "a", "with-dash_and.dots"} {
		assert.NoError(t, ValidateKey(key), key)
	}
	for _, key := range []string{"", " ", "flag with spaces", "flag:with:colons", "tab\there", "new\nline"} {
		assert.ErrorIs(t, ValidateKey(key), ErrInvalidKey, "%q", key)
	}
}

func TestStore_UpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, SwapsEnabled)
	assert.ErrorIs(t, err, ErrNotFound)

	flag, err := store.Upsert(ctx, SwapsEnabled, true)
	require.NoError(t, err)
	assert.Equal(t, SwapsEnabled, flag.Key)
	assert.True(t, flag.Value)

	got, err := store.Get(ctx, SwapsEnabled)
	require.NoError(t, err)
	assert.Equal(t, flag.Value, got.Value)
	assert.True(t, flag.UpdatedAt.Equal(got.UpdatedAt))

	store.now = func() time.Time { return flag.UpdatedAt.Add(time.Second) }
	updated, err := store.Upsert(ctx, SwapsEnabled, false)
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(flag.UpdatedAt))

	got, err = store.Get(ctx, SwapsEnabled)
	require.NoError(t, err)
	assert.False(t, got.Value)
}

func TestStore_Enabled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	on, err := store.Enabled(ctx, LiquidityEnabled)
	require.NoError(t, err)
	assert.True(t, on, "unset switches are on")

	_, err = store.Upsert(ctx, LiquidityEnabled, false)
	require.NoError(t, err)
	on, err = store.Enabled(ctx, LiquidityEnabled)
	require.NoError(t, err)
	assert.False(t, on)

	_, err = store.Enabled(ctx, "bad key")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, SwapsEnabled, false)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, SwapsEnabled))

	_, err = store.Get(ctx, SwapsEnabled)
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting twice is fine
	assert.NoError(t, store.Delete(ctx, SwapsEnabled))
}

func TestStore_ListIsSorted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	flags, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, flags)

	want := map[string]bool{SwapsEnabled: false, LiquidityEnabled: true, "api.quotes": true}
	for k, v := range want {
		_, err := store.Upsert(ctx, k, v)
		require.NoError(t, err)
	}

	flags, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, flags, 3)
	assert.Equal(t, "api.quotes", flags[0].Key)
	assert.Equal(t, LiquidityEnabled, flags[1].Key)
	assert.Equal(t, SwapsEnabled, flags[2].Key)
	for _, f := range flags {
		assert.Equal(t, want[f.Key], f.Value)
	}
}

func TestStore_ConcurrentUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const workers, ops = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < ops; j++ {
				key := fmt.Sprintf("flag.%d.%d", id, j)
				value := (id+j)%2 == 0
				_, err := store.Upsert(ctx, key, value)
				assert.NoError(t, err)

				got, err := store.Get(ctx, key)
				if assert.NoError(t, err) {
					assert.Equal(t, value, got.Value)
				}
			}
		}(i)
	}
	wg.Wait()

	flags, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, flags, workers*ops)
}
