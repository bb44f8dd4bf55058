package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fast(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	retries := 0
	cfg := fast(4)
	cfg.OnRetry = func(int, error, time.Duration) { retries++ }
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if calls != 3 || retries != 2 {
		t.Fatalf("calls=%d retries=%d", calls, retries)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	want := errors.New("down")
	calls := 0
	err := Do(context.Background(), fast(3), func(context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestDo_RetryIfStops(t *testing.T) {
	permanent := errors.New("bad request")
	cfg := fast(5)
	cfg.RetryIf = func(err error) bool { return !errors.Is(err, permanent) }
	calls := 0
	_ = Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return permanent
	})
	if calls != 1 {
		t.Fatalf("calls=%d want=1", calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fast(3), func(context.Context) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestDelay_Capped(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}
	if got := cfg.Delay(10); got != 3*time.Second {
		t.Fatalf("delay=%v want=3s", got)
	}
	if got := cfg.Delay(0); got != time.Second {
		t.Fatalf("delay=%v want=1s", got)
	}
}

func TestDoWithResult(t *testing.T) {
	got, err := DoWithResult(context.Background(), fast(2), func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("got=%d err=%v", got, err)
	}
}
