package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string    `json:"name"`
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

func TestMemoryCache_StructValues(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	in := payload{Name: "EURUSD", Value: 1.1, At: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, c.Set(ctx, "k", in, time.Minute))

	var out payload
	require.NoError(t, c.Get(ctx, "k", &out))
	assert.Equal(t, in, out)

	var raw []byte
	require.NoError(t, c.Get(ctx, "k", &raw))
	assert.Contains(t, string(raw), `"EURUSD"`)

	var s string
	require.NoError(t, c.Set(ctx, "s", "plain", 0))
	require.NoError(t, c.Get(ctx, "s", &s))
	assert.Equal(t, "plain", s)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", 1, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var v int
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrCacheMiss)
	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(WithMemoryMaxSize(2))
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))
	time.Sleep(time.Millisecond)

	var v int
	require.NoError(t, c.Get(ctx, "a", &v))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "c", 3, time.Minute))

	assert.Equal(t, 2, c.Len())
	assert.ErrorIs(t, c.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, "a", &v))
}

func TestMemoryCache_Patterns(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	for _, k := range []string{"bars:1", "bars:2", "model:x"} {
		require.NoError(t, c.Set(ctx, k, k, time.Minute))
	}

	keys, err := c.Keys(ctx, BuildPattern("bars:"))
	require.NoError(t, err)
	assert.Equal(t, []string{"bars:1", "bars:2"}, keys)

	n, err := c.DeleteByPattern(ctx, "bars:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := c.Exists(ctx, "model:x")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_Lock(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	ok, err := c.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Unlock(ctx, "job"))
	ok, err = c.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "bars:EURUSD:M15:500", GenerateKeyWithParams("bars", "EURUSD", "M15", 500))
	assert.Equal(t, "grid:abc", GenerateKey("grid", "abc"))
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", HashKey("hello"))
}
