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


// Package governor enforces shared call and token budgets on inference
// requests. Counters live in a storage.KeyValueStore so every pipeline
// instance sees the same windows.
//
// Check and Track are advisory: between a Check and the matching Track,
// other instances may also pass Check, so a window can be overshot by up
// to the number of concurrent callers. When the counter store fails, the
// governor allows the call.
package governor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/storage"
)

const (
	// DefaultCallsPerMinute is the default calls window limit.
	DefaultCallsPerMinute = 100
	// DefaultTokensPerHour is the default tokens window limit.
	DefaultTokensPerHour = 500_000
	// DefaultExpirySkew is added to each window TTL to absorb clock skew.
	DefaultExpirySkew = 5 * time.Second

	callsBucket  = time.Minute
	tokensBucket = time.Hour
	keyPrefix    = "governor:"
)

// Reason values reported in a Decision.
const (
	ReasonCallsExhausted  = "calls-per-minute limit reached"
	ReasonTokensExhausted = "tokens-per-hour limit reached"
)

// Remaining is how much of each window is left.
type Remaining struct {
	Calls  int64
	Tokens int64
}

// Decision is the outcome of a Check.
type Decision struct {
	Allowed   bool
	Reason    string
	Remaining Remaining
}

// Governor tracks inference usage against shared windows.
type Governor struct {
	store          storage.KeyValueStore
	callsPerMinute int64
	tokensPerHour  int64
	skew           time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

// New creates a Governor over store.
func New(store storage.KeyValueStore, opts ...Option) (*Governor, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	g := &Governor{
		store:          store,
		callsPerMinute: DefaultCallsPerMinute,
		tokensPerHour:  DefaultTokensPerHour,
		skew:           DefaultExpirySkew,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.logger = g.logger.With("component", "governor")
	return g, nil
}

type window struct {
	key    string
	limit  int64
	ttl    time.Duration
	expiry time.Time
}

func (g *Governor) windows() (calls, tokens window) {
	now := g.now()
	callsStart := now.Truncate(callsBucket)
	tokensStart := now.Truncate(tokensBucket)
	calls = window{
		key:    keyPrefix + "calls:" + strconv.FormatInt(now.Unix()/int64(callsBucket.Seconds()), 10),
		limit:  g.callsPerMinute,
		ttl:    callsBucket + g.skew,
		expiry: callsStart.Add(callsBucket),
	}
	tokens = window{
		key:    keyPrefix + "tokens:" + strconv.FormatInt(now.Unix()/int64(tokensBucket.Seconds()), 10),
		limit:  g.tokensPerHour,
		ttl:    tokensBucket + g.skew,
		expiry: tokensStart.Add(tokensBucket),
	}
	return calls, tokens
}

func (g *Governor) read(ctx context.Context, key string) (int64, error) {
	raw, found, err := g.store.Get(ctx, key)
	if err != nil || !found {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		// a corrupt counter counts as empty
		g.logger.Warn("ignoring malformed counter", "key", key, "value", string(raw))
		return 0, nil
	}
	return n, nil
}

// readBoth fetches both counters concurrently.
func (g *Governor) readBoth(ctx context.Context, calls, tokens window) (int64, int64, error) {
	var callCount, tokenCount int64
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		callCount, err = g.read(egCtx, calls.key)
		return err
	})
	eg.Go(func() error {
		var err error
		tokenCount, err = g.read(egCtx, tokens.key)
		return err
	})
	err := eg.Wait()
	return callCount, tokenCount, err
}

// Check reports whether another call fits in the current windows.
// Store errors allow the call.
func (g *Governor) Check(ctx context.Context) Decision {
	calls, tokens := g.windows()
	callCount, tokenCount, err := g.readBoth(ctx, calls, tokens)
	if err != nil {
		g.logger.Warn("counter store unavailable, allowing call", "error", err)
		return Decision{
			Allowed:   true,
			Remaining: Remaining{Calls: calls.limit, Tokens: tokens.limit},
		}
	}

	d := Decision{
		Allowed: true,
		Remaining: Remaining{
			Calls:  max(calls.limit-callCount, 0),
			Tokens: max(tokens.limit-tokenCount, 0),
		},
	}
	switch {
	case callCount >= calls.limit:
		d.Allowed = false
		d.Reason = ReasonCallsExhausted
	case tokenCount >= tokens.limit:
		d.Allowed = false
		d.Reason = ReasonTokensExhausted
	}
	return d
}

// Track records one call and its token usage. It runs detached from the
// caller's cancellation so usage is not lost when a request is abandoned.
// Failures are logged, never returned.
func (g *Governor) Track(ctx context.Context, tokensUsed int) {
	ctx = context.WithoutCancel(ctx)
	calls, tokens := g.windows()
	callCount, tokenCount, err := g.readBoth(ctx, calls, tokens)
	if err != nil {
		g.logger.Warn("failed to read counters for tracking", "error", err)
		return
	}

	if err := g.store.Put(ctx, calls.key, []byte(strconv.FormatInt(callCount+1, 10)), calls.ttl); err != nil {
		g.logger.Warn("failed to track call", "key", calls.key, "error", err)
	}
	if tokensUsed <= 0 {
		return
	}
	total := tokenCount + int64(tokensUsed)
	if err := g.store.Put(ctx, tokens.key, []byte(strconv.FormatInt(total, 10)), tokens.ttl); err != nil {
		g.logger.Warn("failed to track tokens", "key", tokens.key, "error", err)
	}
}

// Windows returns snapshots of the current call and token windows.
func (g *Governor) Windows(ctx context.Context) ([]core.RateWindow, error) {
	calls, tokens := g.windows()
	callCount, tokenCount, err := g.readBoth(ctx, calls, tokens)
	if err != nil {
		return nil, err
	}
	return []core.RateWindow{
		{Key: calls.key, Count: callCount, Limit: calls.limit, ExpiresAt: calls.expiry},
		{Key: tokens.key, Count: tokenCount, Limit: tokens.limit, ExpiresAt: tokens.expiry},
	}, nil
}

// Do runs fn if the windows allow it, then tracks the tokens fn reports.
// A denied check returns an error wrapping core.ErrQuotaExceeded without
// calling fn. When fn reports zero tokens, estimatedTokens is tracked.
func (g *Governor) Do(ctx context.Context, estimatedTokens int, fn func(ctx context.Context) (int, error)) error {
	_, err := Call(ctx, g, estimatedTokens, func(ctx context.Context) (struct{}, int, error) {
		tokens, err := fn(ctx)
		return struct{}{}, tokens, err
	})
	return err
}

// Call is the generic form of Do for functions that return a value.
// Errors from fn are passed through; callers classify them.
func Call[T any](ctx context.Context, g *Governor, estimatedTokens int, fn func(ctx context.Context) (T, int, error)) (T, error) {
	var zero T
	if d := g.Check(ctx); !d.Allowed {
		return zero, fmt.Errorf("%w: %s", core.ErrQuotaExceeded, d.Reason)
	}

	result, tokens, err := fn(ctx)
	if tokens <= 0 {
		tokens = estimatedTokens
	}
	// A failed call still consumed a request slot.
	g.Track(ctx, tokens)
	if err != nil {
		return zero, err
	}
	return result, nil
}

// EstimateTokens approximates the token count of text at four runes per token.
func EstimateTokens(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += len([]rune(t))
	}
	return (n + 3) / 4
}
