// SPDX-License-Identifier: Apache-2.0

// Package resilience bounds the blocking waits on the remote service:
// fixed-interval status polling and wall-clock stage timeouts.
package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jllopis/trendsurf/pkg/errors"
)

// PollConfig controls a fixed-interval status poll.
type PollConfig struct {
	// Interval is the fixed delay between two status checks.
	Interval time.Duration

	// MaxAttempts caps the number of status checks (must be >= 1).
	MaxAttempts int

	// Timeout is a wall-clock deadline for the whole poll. Zero disables it.
	Timeout time.Duration
}

// DefaultPollConfig returns the run poll bounds used when nothing is configured.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    2 * time.Second,
		MaxAttempts: 300,
		Timeout:     10 * time.Minute,
	}
}

// WithInterval returns a new config with Interval set.
func (pc PollConfig) WithInterval(d time.Duration) PollConfig {
	pc.Interval = d
	return pc
}

// WithMaxAttempts returns a new config with MaxAttempts set.
func (pc PollConfig) WithMaxAttempts(max int) PollConfig {
	pc.MaxAttempts = max
	return pc
}

// WithTimeout returns a new config with Timeout set.
func (pc PollConfig) WithTimeout(d time.Duration) PollConfig {
	pc.Timeout = d
	return pc
}

// CheckFunc reports whether the polled resource reached a terminal state.
// A non-nil error stops polling immediately.
type CheckFunc func(ctx context.Context) (done bool, err error)

// Until calls check immediately and then every Interval until it reports done,
// returns an error, or the bounds are exhausted. It returns the number of
// checks performed. Exhausted bounds yield errors.CodeTimeout; a canceled
// parent context yields errors.CodeContextLost.
func (pc PollConfig) Until(ctx context.Context, operation string, check CheckFunc) (int, error) {
	if pc.MaxAttempts < 1 {
		pc.MaxAttempts = 1
	}
	if pc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pc.Timeout)
		defer cancel()
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		done, err := check(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return attempt, pc.contextError(ctx, operation, attempt)
			}
			return attempt, err
		}
		if done {
			return attempt, nil
		}
		if attempt >= pc.MaxAttempts {
			return attempt, errors.New(errors.CodeTimeout, operation+" did not reach a terminal state", nil).
				WithContext("attempts", attempt).
				WithContext("max_attempts", pc.MaxAttempts).
				WithRecoverable(true)
		}

		if timer == nil {
			timer = time.NewTimer(pc.Interval)
		} else {
			timer.Reset(pc.Interval)
		}
		select {
		case <-ctx.Done():
			return attempt, pc.contextError(ctx, operation, attempt)
		case <-timer.C:
		}
	}
}

func (pc PollConfig) contextError(ctx context.Context, operation string, attempt int) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.New(errors.CodeTimeout, operation+" exceeded its deadline", ctx.Err()).
			WithContext("attempts", attempt).
			WithContext("timeout", pc.Timeout.String()).
			WithRecoverable(true)
	}
	return errors.New(errors.CodeContextLost, operation+" canceled", ctx.Err()).
		WithContext("attempts", attempt)
}
