package governor

import (
	"log/slog"
	"time"
)

// Option configures a Governor.
type Option func(*Governor) error

// WithCallsPerMinute sets the calls window limit.
func WithCallsPerMinute(n int64) Option {
	return func(g *Governor) error {
		if n <= 0 {
			return ErrInvalidLimit
		}
		g.callsPerMinute = n
		return nil
	}
}

// WithTokensPerHour sets the tokens window limit.
func WithTokensPerHour(n int64) Option {
	return func(g *Governor) error {
		if n <= 0 {
			return ErrInvalidLimit
		}
		g.tokensPerHour = n
		return nil
	}
}

// WithExpirySkew sets the slack added to counter TTLs.
func WithExpirySkew(d time.Duration) Option {
	return func(g *Governor) error {
		if d < 0 {
			d = 0
		}
		g.skew = d
		return nil
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) error {
		if now != nil {
			g.now = now
		}
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Governor) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}
