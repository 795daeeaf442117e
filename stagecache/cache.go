// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package stagecache memoizes expensive, deterministic stage outputs such as
// embedding vectors and pre-filter verdicts.
//
// The cache has two tiers: a process-local ristretto cache and an optional
// shared storage.KeyValueStore. Every failure degrades to a miss; callers
// never see cache errors.
package stagecache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-crypt/x/blake2b"
	"github.com/goccy/go-json"

	"github.com/poiesic/recollect/storage"
)

const (
	// DefaultTTL applies when Put is called with a zero ttl.
	DefaultTTL = 24 * time.Hour
	// DefaultMaxBytes bounds the local tier.
	DefaultMaxBytes = 64 << 20

	keyPrefix = "stagecache:"
)

// Cache is a two-tier TTL cache. Safe for concurrent use.
type Cache struct {
	local      *ristretto.Cache[string, []byte]
	shared     storage.KeyValueStore
	defaultTTL time.Duration
	maxBytes   int64
	logger     *slog.Logger
}

// New creates a Cache.
func New(opts ...Option) (*Cache, error) {
	c := &Cache{
		defaultTTL: DefaultTTL,
		maxBytes:   DefaultMaxBytes,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "stagecache")

	local, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(c.maxBytes/1024*10, 1000),
		MaxCost:     c.maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	c.local = local
	return c, nil
}

// Get returns the cached value for key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := c.local.Get(key); ok {
		return value, true
	}
	if c.shared == nil {
		return nil, false
	}
	value, found, err := c.shared.Get(ctx, keyPrefix+key)
	if err != nil {
		c.logger.Debug("shared cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	// the shared tier's remaining TTL is unknown; keep the local copy briefly
	c.local.SetWithTTL(key, value, int64(len(value)), min(c.defaultTTL, time.Hour))
	return value, true
}

// Put stores value under key. A zero ttl uses the cache default.
func (c *Cache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	// Wait applies the buffered write so a Get right after Put sees it
	if c.local.SetWithTTL(key, value, int64(len(value)), ttl) {
		c.local.Wait()
	} else {
		c.logger.Debug("local cache dropped write", "key", key)
	}
	if c.shared == nil {
		return
	}
	if err := c.shared.Put(ctx, keyPrefix+key, value, ttl); err != nil {
		c.logger.Debug("shared cache write failed", "key", key, "error", err)
	}
}

// Close releases the local tier. The shared store is owned by the caller.
func (c *Cache) Close() {
	c.local.Close()
}

// GetVector returns a cached embedding.
func (c *Cache) GetVector(ctx context.Context, key string) ([]float32, bool) {
	raw, ok := c.Get(ctx, key)
	if !ok || len(raw)%4 != 0 || len(raw) == 0 {
		return nil, false
	}
	return DecodeVector(raw), true
}

// PutVector caches an embedding.
func (c *Cache) PutVector(ctx context.Context, key string, vector []float32, ttl time.Duration) {
	c.Put(ctx, key, EncodeVector(vector), ttl)
}

// GetJSON decodes a cached JSON value into T.
func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var out T
	raw, ok := c.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Debug("discarding undecodable cache entry", "key", key, "error", err)
		return out, false
	}
	return out, true
}

// PutJSON caches v as JSON.
func PutJSON[T any](ctx context.Context, c *Cache, key string, v T, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Debug("value not cacheable", "key", key, "error", err)
		return
	}
	c.Put(ctx, key, raw, ttl)
}

// Fingerprint derives a cache key from namespace and text. Text is
// lower-cased and whitespace-collapsed first, so trivially different inputs
// share an entry.
func Fingerprint(namespace, text string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(NormalizeText(text)))
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// NormalizeText lower-cases text and collapses runs of whitespace.
func NormalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// EncodeVector packs a vector as little-endian float32s.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks EncodeVector output.
func DecodeVector(raw []byte) []float32 {
	v := make([]float32, len(raw)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return v
}
