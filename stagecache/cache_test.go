package stagecache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/recollect/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_LocalTier(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Put(ctx, "k", []byte("v"), time.Minute)

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestCache_GetSeesPutImmediately(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	for i := range 50 {
		key := fmt.Sprintf("key-%d", i)
		c.PutVector(ctx, key, []float32{float32(i)}, 0)

		got, ok := c.GetVector(ctx, key)
		require.True(t, ok, "key %s not readable after put", key)
		assert.Equal(t, []float32{float32(i)}, got)
	}
}

func TestCache_SharedTierVisibleToOtherInstances(t *testing.T) {
	_, kv, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	first, err := New(WithSharedStore(kv))
	require.NoError(t, err)
	defer first.Close()
	second, err := New(WithSharedStore(kv))
	require.NoError(t, err)
	defer second.Close()

	first.PutVector(ctx, "emb", []float32{0.5, -1.25, 3}, 0)

	got, ok := second.GetVector(ctx, "emb")
	require.True(t, ok)
	assert.Equal(t, []float32{0.5, -1.25, 3}, got)
}

func TestCache_JSON(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	type flags struct {
		SkipEntity bool `json:"skip_entity"`
	}
	PutJSON(ctx, c, "verdict", flags{SkipEntity: true}, 0)

	got, ok := GetJSON[flags](ctx, c, "verdict")
	require.True(t, ok)
	assert.True(t, got.SkipEntity)

	c.Put(ctx, "garbage", []byte("{"), 0)
	_, ok = GetJSON[flags](ctx, c, "garbage")
	assert.False(t, ok)
}

func TestGetVector_RejectsMalformed(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	c.Put(ctx, "odd", []byte{1, 2, 3}, 0)
	_, ok := c.GetVector(ctx, "odd")
	assert.False(t, ok)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("emb", "Call  Mom\ttomorrow")
	b := Fingerprint("emb", "call mom tomorrow")
	c := Fingerprint("other", "call mom tomorrow")
	d := Fingerprint("emb", "call dad tomorrow")

	assert.Equal(t, a, b)
	assert.NotEqual(t, b, c)
	assert.NotEqual(t, b, d)
	assert.Len(t, a, len("emb:")+64)
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0, 1, -2.5, 3.14159}
	assert.Equal(t, v, DecodeVector(EncodeVector(v)))
	assert.Len(t, EncodeVector(v), 16)
}
