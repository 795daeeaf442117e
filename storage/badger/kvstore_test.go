package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyValueStore_GetPut(t *testing.T) {
	_, kv, backend, err := NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	_, found, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, kv.Put(ctx, "calls:1", []byte("3"), 0))
	value, found, err := kv.Get(ctx, "calls:1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("3"), value)

	require.NoError(t, kv.Put(ctx, "flag", nil, 0))
	_, found, err = kv.Get(ctx, "flag")
	require.NoError(t, err)
	assert.True(t, found, "empty values are still present")
}

func TestKeyValueStore_TTL(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for badger TTL expiry")
	}
	_, kv, backend, err := NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, "short", []byte("x"), time.Second))
	_, found, err := kv.Get(ctx, "short")
	require.NoError(t, err)
	require.True(t, found)

	time.Sleep(2100 * time.Millisecond)

	_, found, err = kv.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, found)
}
