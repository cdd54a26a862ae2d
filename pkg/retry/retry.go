// Package retry runs an operation with exponential backoff and jitter.
// Used for calls to the content generator and for transient store conflicts.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrorClass tells the retrier what to do with an error.
type ErrorClass int

const (
	// Retry the operation after a delay.
	Retry ErrorClass = iota
	// Stop immediately and return the error.
	Stop
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so the retrier gives up at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Policy configures a Retrier.
type Policy struct {
	// MaxAttempts counts the first call too.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter in [0,1] spreads each delay by up to +/- that fraction.
	Jitter float64
	// Classify decides whether an error is worth another attempt.
	// Nil retries everything that is not Permanent.
	Classify func(error) ErrorClass
	// OnRetry is invoked before sleeping.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns three attempts starting at 100ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Jitter:       0.1,
	}
}

// Option adjusts a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.MaxAttempts = n
		}
	}
}

// WithBackoff sets the initial and maximum delay.
func WithBackoff(initial, max time.Duration) Option {
	return func(p *Policy) {
		if initial > 0 {
			p.InitialDelay = initial
		}
		if max >= initial {
			p.MaxDelay = max
		}
	}
}

// WithJitter sets the jitter fraction.
func WithJitter(j float64) Option {
	return func(p *Policy) {
		if j >= 0 && j <= 1 {
			p.Jitter = j
		}
	}
}

// WithClassifier sets the error classifier.
func WithClassifier(fn func(error) ErrorClass) Option {
	return func(p *Policy) { p.Classify = fn }
}

// WithOnRetry sets the retry callback.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(p *Policy) { p.OnRetry = fn }
}

// Retrier executes operations under a Policy.
type Retrier struct {
	policy Policy
}

// New creates a Retrier from DefaultPolicy and opts.
func New(opts ...Option) *Retrier {
	p := DefaultPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{policy: p}
}

// Policy returns a copy of the effective policy.
func (r *Retrier) Policy() Policy { return r.policy }

// Do calls op until it succeeds, returns a non-retryable error, the attempts
// run out or ctx ends. The last error is returned unwrapped from Permanent.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		last = err

		if r.classify(err) == Stop || attempt == r.policy.MaxAttempts {
			return err
		}

		delay := r.delay(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
	return last
}

func (r *Retrier) classify(err error) ErrorClass {
	if r.policy.Classify == nil {
		return Retry
	}
	return r.policy.Classify(err)
}

func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if d > float64(r.policy.MaxDelay) {
		d = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter > 0 {
		d += d * r.policy.Jitter * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// ContentRetrier is tuned for LLM calls: few attempts, slow backoff.
func ContentRetrier(classify func(error) ErrorClass, extra ...Option) *Retrier {
	return New(append([]Option{
		WithMaxAttempts(2),
		WithBackoff(500*time.Millisecond, 4*time.Second),
		WithJitter(0.2),
		WithClassifier(classify),
	}, extra...)...)
}

// StoreRetrier is tuned for short transactional conflicts.
func StoreRetrier(classify func(error) ErrorClass) *Retrier {
	return New(
		WithMaxAttempts(3),
		WithBackoff(20*time.Millisecond, 200*time.Millisecond),
		WithJitter(0.3),
		WithClassifier(classify),
	)
}
