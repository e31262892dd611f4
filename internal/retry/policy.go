// Package retry provides a bounded exponential backoff policy for calls that
// can signal rate limiting or transient failure.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/book-expert/podcast-service/internal/core"
)

const backoffMultiplier = 2.0

// Policy retries operations that fail with core.ErrRateLimited or
// core.ErrTransient. Any other error is returned immediately.
//
// After a rate-limited failure the policy sleeps and then runs Probe (when
// set) before resuming the original operation. A probe that is itself rate
// limited consumes one attempt and the policy backs off again. Transient
// failures back off without probing and are bounded by TransientMaxAttempts.
//
// Policies are plain values; every call site owns its own instance so that
// exhausting one never affects another.
type Policy struct {
	// Sleep blocks for the given delay or until ctx is done.
	Sleep func(ctx context.Context, delay time.Duration) error
	// Rand returns a uniform value in [0, 1) used for jitter.
	Rand func() float64
	// Probe is a cheap request that tests whether a rate limit has lifted.
	Probe func(ctx context.Context) error
	// OnRetry is invoked before every backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)

	Name                 string
	Base                 time.Duration
	MaxDelay             time.Duration
	JitterFraction       float64
	MaxAttempts          int
	TransientMaxAttempts int
}

// New returns a Policy with real sleeping and random jitter.
func New(name string, base time.Duration, maxAttempts, transientMaxAttempts int, jitterFraction float64) Policy {
	return Policy{
		Sleep:                SleepContext,
		Rand:                 rand.Float64,
		Probe:                nil,
		OnRetry:              nil,
		Name:                 name,
		Base:                 base,
		MaxDelay:             0,
		JitterFraction:       jitterFraction,
		MaxAttempts:          maxAttempts,
		TransientMaxAttempts: transientMaxAttempts,
	}
}

// WithProbe returns a copy of the policy using probe after rate-limit backoffs.
func (p Policy) WithProbe(probe func(ctx context.Context) error) Policy {
	p.Probe = probe

	return p
}

// WithOnRetry returns a copy of the policy reporting retries to hook.
func (p Policy) WithOnRetry(hook func(attempt int, delay time.Duration, err error)) Policy {
	p.OnRetry = hook

	return p
}

// Execute runs op until it succeeds, fails with a non-retryable error, or the
// attempt ceiling for its error class is reached. Exhaustion is reported as a
// *core.RetriesExhaustedError carrying the last underlying error.
func (p Policy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := 0

	for {
		err := op(ctx)
		attempts++

		if err == nil {
			return nil
		}

		limit, probe, retryable := p.classify(err)
		if !retryable {
			return err
		}

		for {
			if attempts >= limit {
				return &core.RetriesExhaustedError{Last: err, Attempts: attempts}
			}

			waitErr := p.wait(ctx, attempts-1, err)
			if waitErr != nil {
				return waitErr
			}

			if !probe || p.Probe == nil {
				break
			}

			probeErr := p.Probe(ctx)
			if !errors.Is(probeErr, core.ErrRateLimited) {
				break
			}

			attempts++
			err = probeErr
		}
	}
}

// Do is the value-returning form of Policy.Execute.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T

	err := policy.Execute(ctx, func(ctx context.Context) error {
		value, opErr := op(ctx)
		if opErr != nil {
			return opErr
		}

		result = value

		return nil
	})

	return result, err
}

// Backoff returns the delay before retry number attempt (zero based),
// including jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	delay := float64(p.Base) * math.Pow(backoffMultiplier, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	jitter := 0.0
	if p.JitterFraction > 0 && p.Rand != nil {
		jitter = p.Rand() * p.JitterFraction * delay
	}

	return time.Duration(delay + jitter)
}

func (p Policy) classify(err error) (limit int, probe bool, retryable bool) {
	switch {
	case errors.Is(err, core.ErrRateLimited):
		return max(p.MaxAttempts, 1), true, true
	case errors.Is(err, core.ErrTransient):
		return max(p.TransientMaxAttempts, 1), false, true
	default:
		return 0, false, false
	}
}

func (p Policy) wait(ctx context.Context, attempt int, cause error) error {
	delay := p.Backoff(attempt)

	if p.OnRetry != nil {
		p.OnRetry(attempt+1, delay, cause)
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	return sleep(ctx, delay)
}

// SleepContext blocks for delay or until ctx is done, whichever comes first.
func SleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
