package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// ErrMaxRetriesExceeded is returned when every attempt failed
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Config contains retry configuration
type Config struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// JitterFactor in [0,1]; 0.2 means ±20%
	JitterFactor float64
}

// DefaultConfig suits delivery of short-lived OTP messages: 200ms, 400ms, 800ms
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.2,
	}
}

// Operation is the function to be retried
type Operation func(ctx context.Context) error

// PermanentError stops retrying immediately
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks an error as not retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Result describes a finished retry run
type Result struct {
	Err       error
	Attempts  int
	LastError error
}

// Callback is invoked before each wait
type Callback func(attempt int, err error, next time.Duration)

// Retrier runs operations with exponential backoff
type Retrier struct {
	config Config
}

// New creates a Retrier, filling zero values from DefaultConfig
func New(cfg *Config) *Retrier {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	c := *cfg
	if c.InitialInterval <= 0 {
		c.InitialInterval = def.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = def.MaxInterval
	}
	if c.Multiplier <= 0 {
		c.Multiplier = def.Multiplier
	}
	c.JitterFactor = math.Min(math.Max(c.JitterFactor, 0), 1)
	return &Retrier{config: c}
}

// Do runs op until it succeeds, returns a PermanentError, retries run out, or ctx ends
func (r *Retrier) Do(ctx context.Context, op Operation, cb Callback) *Result {
	res := &Result{}

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		res.Attempts = attempt + 1

		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		err := op(ctx)
		if err == nil {
			res.Err = nil
			return res
		}
		res.LastError = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			res.Err = perm.Err
			return res
		}

		if attempt == r.config.MaxRetries {
			break
		}

		wait := r.interval(attempt)
		if cb != nil {
			cb(attempt+1, err, wait)
		}

		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res
		case <-time.After(wait):
		}
	}

	res.Err = ErrMaxRetriesExceeded
	return res
}

func (r *Retrier) interval(attempt int) time.Duration {
	d := float64(r.config.InitialInterval) * math.Pow(r.config.Multiplier, float64(attempt))
	if r.config.JitterFactor > 0 {
		d += (rand.Float64()*2 - 1) * d * r.config.JitterFactor
	}
	if d > float64(r.config.MaxInterval) {
		d = float64(r.config.MaxInterval)
	}
	if d <= 0 {
		d = float64(r.config.InitialInterval)
	}
	return time.Duration(d)
}
