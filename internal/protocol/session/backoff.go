package session

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/danmuck/lnpnet/internal/protocol/transcoder"
	"github.com/danmuck/lnpnet/internal/protocol/transport"
	"github.com/rs/zerolog/log"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// Retryable reports whether a fresh Connect may succeed after err. Policy
// and authentication failures are never retried.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, transport.ErrUnsupportedTransport),
		errors.Is(err, ErrEncryptionRequired),
		errors.Is(err, ErrZmqContextRequired),
		errors.Is(err, transcoder.ErrAuthenticationFailed):
		return false
	}
	return true
}

// ConnectWithRetry calls Connect until it succeeds, a non retryable error
// occurs, attempts run out or ctx is done. Sessions never reconnect on
// their own; this is the caller side loop.
func ConnectWithRetry(ctx context.Context, connect func(context.Context) (*Session, error), cfg Config, rng *rand.Rand) (*Session, error) {
	attempts := cfg.MaxConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		s, err := connect(ctx)
		if err == nil {
			return s, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == attempts {
			break
		}
		delay := NextBackoffDelay(cfg.Backoff, attempt, rng)
		log.Debug().Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("connect failed, backing off")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}
