package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/poiesic/recollect/core"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*KeyValueStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store, err := NewKeyValueStore(client, "test:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestKeyValueStore_GetPut(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "calls:42", []byte("7"), 0))
	value, found, err := store.Get(ctx, "calls:42")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("7"), value)

	assert.True(t, mr.Exists("test:calls:42"), "keys are prefixed")
}

func TestKeyValueStore_Expiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "window", []byte("1"), time.Minute))
	mr.FastForward(61 * time.Second)

	_, found, err := store.Get(ctx, "window")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKeyValueStore_ServerDown(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, _, err := store.Get(context.Background(), "x")
	assert.ErrorIs(t, err, core.ErrStorage)
	assert.ErrorIs(t, store.Put(context.Background(), "x", nil, 0), core.ErrStorage)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := Dial(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer store.Close()

	_, err = Dial(context.Background(), "not a url")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestNewKeyValueStore_NilClient(t *testing.T) {
	_, err := NewKeyValueStore(nil, "")
	assert.ErrorIs(t, err, ErrClientRequired)
}
