// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jllopis/trendsurf/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastPoll() PollConfig {
	return DefaultPollConfig().WithInterval(time.Millisecond).WithTimeout(0)
}

func TestPollSuccess(t *testing.T) {
	checks := 0
	attempts, err := fastPoll().Until(context.Background(), "run", func(context.Context) (bool, error) {
		checks++
		return checks == 3, nil
	})

	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
	if attempts != 3 || checks != 3 {
		t.Errorf("expected 3 attempts, got %d (checks %d)", attempts, checks)
	}
}

func TestPollFirstCheckIsImmediate(t *testing.T) {
	start := time.Now()
	_, err := DefaultPollConfig().WithInterval(time.Hour).Until(context.Background(), "run", func(context.Context) (bool, error) {
		return true, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("expected first check without waiting")
	}
}

func TestPollMaxAttemptsExceeded(t *testing.T) {
	checks := 0
	attempts, err := fastPoll().WithMaxAttempts(4).Until(context.Background(), "run", func(context.Context) (bool, error) {
		checks++
		return false, nil
	})

	if !errors.HasCode(err, errors.CodeTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if attempts != 4 || checks != 4 {
		t.Errorf("expected 4 attempts, got %d (checks %d)", attempts, checks)
	}
}

func TestPollStopsOnCheckError(t *testing.T) {
	boom := stderrors.New("transport down")
	checks := 0
	_, err := fastPoll().Until(context.Background(), "run", func(context.Context) (bool, error) {
		checks++
		return false, boom
	})

	if !stderrors.Is(err, boom) {
		t.Fatalf("expected check error, got %v", err)
	}
	if checks != 1 {
		t.Errorf("expected a single check, got %d", checks)
	}
}

func TestPollWallClockDeadline(t *testing.T) {
	cfg := DefaultPollConfig().WithInterval(10 * time.Millisecond).WithMaxAttempts(1000).WithTimeout(30 * time.Millisecond)
	_, err := cfg.Until(context.Background(), "index", func(context.Context) (bool, error) {
		return false, nil
	})

	if !errors.HasCode(err, errors.CodeTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestPollContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := DefaultPollConfig().WithInterval(50 * time.Millisecond).WithTimeout(0)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := cfg.Until(ctx, "run", func(context.Context) (bool, error) {
		return false, nil
	})
	if !errors.HasCode(err, errors.CodeContextLost) {
		t.Fatalf("expected context lost error, got %v", err)
	}
}

func TestWithTimeoutExceeded(t *testing.T) {
	err := WithTimeout(context.Background(), 20*time.Millisecond, "stage research", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if !errors.HasCode(err, errors.CodeTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestWithTimeoutSuccess(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, "stage research", func(context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
}

func TestWithTimeoutZeroDuration(t *testing.T) {
	boom := stderrors.New("boom")
	err := WithTimeout(context.Background(), 0, "stage", func(context.Context) error { return boom })
	if !stderrors.Is(err, boom) {
		t.Errorf("expected passthrough error, got %v", err)
	}
}
