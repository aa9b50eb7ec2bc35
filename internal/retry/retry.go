// Package retry runs operations with bounded exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Default backoff settings
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 100 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultMultiplier  = 2.0
	DefaultJitter      = 0.2
)

// Config configures exponential backoff retry behavior
type Config struct {
	MaxAttempts int           `yaml:"max_attempts"` // Total attempts including the first
	BaseDelay   time.Duration `yaml:"base_delay"`   // Delay before the second attempt
	MaxDelay    time.Duration `yaml:"max_delay"`    // Upper bound of any single delay
	Multiplier  float64       `yaml:"multiplier"`   // Exponential backoff multiplier
	Jitter      float64       `yaml:"jitter"`       // Fraction of each delay randomised, 0 to 1
}

// DefaultConfig returns sensible defaults for API retry
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
		Jitter:      DefaultJitter,
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Delay returns the backoff before attempt n+1, where n counts from zero.
func (c Config) Delay(n int) time.Duration {
	d := float64(c.BaseDelay)
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 0; i < n; i++ {
		d *= mult
		if c.MaxDelay > 0 && d >= float64(c.MaxDelay) {
			d = float64(c.MaxDelay)
			break
		}
	}
	if c.Jitter > 0 {
		// spread evenly over [d*(1-j), d*(1+j)]
		d += d * c.Jitter * (2*rand.Float64() - 1)
	}
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do executes fn until it succeeds, returns a permanent error, the context
// ends, or MaxAttempts is reached. The last error is returned.
func Do[T any](ctx context.Context, config Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := config.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		var p *permanentError
		if errors.As(err, &p) {
			return zero, p.err
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < attempts-1 {
			timer := time.NewTimer(config.Delay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return zero, lastErr
}
