package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, delay time.Duration) error {
	r.delays = append(r.delays, delay)

	return nil
}

func newTestPolicy(recorder *sleepRecorder, maxAttempts, transientMax int) retry.Policy {
	policy := retry.New("test", 100*time.Millisecond, maxAttempts, transientMax, 0.1)
	policy.Sleep = recorder.sleep
	policy.Rand = func() float64 { return 0.5 }

	return policy
}

func TestExecute_RateLimitedAlwaysExhaustsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	recorder := &sleepRecorder{delays: nil}
	policy := newTestPolicy(recorder, 4, 2)

	calls := 0
	err := policy.Execute(context.Background(), func(context.Context) error {
		calls++

		return fmt.Errorf("search: %w", core.ErrRateLimited)
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Len(t, recorder.delays, 3)
	assert.ErrorIs(t, err, core.ErrRetriesExhausted)
	assert.ErrorIs(t, err, core.ErrRateLimited)

	var exhausted *core.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
}

func TestExecute_RateLimitedTwiceThenSucceeds(t *testing.T) {
	t.Parallel()

	recorder := &sleepRecorder{delays: nil}
	probes := 0
	policy := newTestPolicy(recorder, 5, 2).WithProbe(func(context.Context) error {
		probes++

		return nil
	})

	calls := 0
	papers, err := retry.Do(context.Background(), policy, func(context.Context) ([]string, error) {
		calls++
		if calls <= 2 {
			return nil, core.ErrRateLimited
		}

		return []string{"2401.00001", "2401.00002"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"2401.00001", "2401.00002"}, papers)
	assert.Equal(t, 3, calls)
	assert.Len(t, recorder.delays, 2)
	assert.Equal(t, 2, probes)
}

func TestExecute_BackoffDoublesWithJitter(t *testing.T) {
	t.Parallel()

	recorder := &sleepRecorder{delays: nil}
	policy := newTestPolicy(recorder, 3, 3)

	_ = policy.Execute(context.Background(), func(context.Context) error {
		return core.ErrTransient
	})

	require.Len(t, recorder.delays, 2)
	assert.Equal(t, 105*time.Millisecond, recorder.delays[0])
	assert.Equal(t, 210*time.Millisecond, recorder.delays[1])
}

func TestExecute_TransientUsesOwnCeilingWithoutProbe(t *testing.T) {
	t.Parallel()

	recorder := &sleepRecorder{delays: nil}
	probes := 0
	policy := newTestPolicy(recorder, 10, 2).WithProbe(func(context.Context) error {
		probes++

		return nil
	})

	calls := 0
	err := policy.Execute(context.Background(), func(context.Context) error {
		calls++

		return core.ErrTransient
	})

	assert.ErrorIs(t, err, core.ErrRetriesExhausted)
	assert.ErrorIs(t, err, core.ErrTransient)
	assert.Equal(t, 2, calls)
	assert.Zero(t, probes)
}

func TestExecute_OtherErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	recorder := &sleepRecorder{delays: nil}
	policy := newTestPolicy(recorder, 5, 5)

	calls := 0
	err := policy.Execute(context.Background(), func(context.Context) error {
		calls++

		return errBoom
	})

	require.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, core.ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
	assert.Empty(t, recorder.delays)
}

func TestExecute_RateLimitedProbeConsumesAttempt(t *testing.T) {
	t.Parallel()

	recorder := &sleepRecorder{delays: nil}
	policy := newTestPolicy(recorder, 3, 1).WithProbe(func(context.Context) error {
		return core.ErrRateLimited
	})

	calls := 0
	err := policy.Execute(context.Background(), func(context.Context) error {
		calls++

		return core.ErrRateLimited
	})

	assert.ErrorIs(t, err, core.ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
	assert.Len(t, recorder.delays, 2)
}

func TestExecute_CancelledContextStopsBackoff(t *testing.T) {
	t.Parallel()

	policy := retry.New("test", time.Hour, 5, 5, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := policy.Execute(ctx, func(context.Context) error {
		return core.ErrTransient
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_IndependentPoliciesDoNotShareAttempts(t *testing.T) {
	t.Parallel()

	papersRecorder := &sleepRecorder{delays: nil}
	speechRecorder := &sleepRecorder{delays: nil}
	papersPolicy := newTestPolicy(papersRecorder, 2, 2)
	speechPolicy := newTestPolicy(speechRecorder, 2, 2)

	exhaustErr := papersPolicy.Execute(context.Background(), func(context.Context) error {
		return core.ErrRateLimited
	})
	require.ErrorIs(t, exhaustErr, core.ErrRetriesExhausted)

	calls := 0
	err := speechPolicy.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return core.ErrRateLimited
		}

		return nil
	})

	require.NoError(t, err)
	assert.Len(t, speechRecorder.delays, 1)
}

func TestExecute_OnRetryReportsEachBackoff(t *testing.T) {
	t.Parallel()

	recorder := &sleepRecorder{delays: nil}

	var attempts []int

	policy := newTestPolicy(recorder, 3, 3).WithOnRetry(func(attempt int, _ time.Duration, _ error) {
		attempts = append(attempts, attempt)
	})

	_ = policy.Execute(context.Background(), func(context.Context) error {
		return core.ErrRateLimited
	})

	assert.Equal(t, []int{1, 2}, attempts)
}
