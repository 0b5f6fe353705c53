package rpc

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fastRetry = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    time.Millisecond,
	MaxDelay:        5 * time.Millisecond,
	BackoffMultiple: 2,
}

func TestCallWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	result, err := CallWithRetry(context.Background(), fastRetry, func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("CallWithRetry: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v", result)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestCallWithRetryRespectsMaxAttempts(t *testing.T) {
	calls := 0
	_, err := CallWithRetry(context.Background(), fastRetry, func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("rate limited (429)")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != fastRetry.MaxAttempts {
		t.Errorf("calls = %d, want %d", calls, fastRetry.MaxAttempts)
	}
	// The final error keeps the underlying cause for classification.
	if ClassifyError(err) != ActionThrottle {
		t.Errorf("final error lost throttle classification: %v", err)
	}
}

func TestCallWithRetryStopsOnFatal(t *testing.T) {
	calls := 0
	_, err := CallWithRetry(context.Background(), fastRetry, func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("query returned more than 10000 results")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("fatal error retried: calls = %d, want 1", calls)
	}
}

func TestCallWithRetryHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CallWithRetry(ctx, fastRetry, func(ctx context.Context) (any, error) {
		return nil, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		msg  string
		want ErrorAction
	}{
		{"rate limit exceeded", ActionThrottle},
		{"Too Many Requests", ActionThrottle},
		{"daily quota reached", ActionThrottle},
		{"rpc error: -32601 method not found", ActionFatal},
		{"block range too wide", ActionFatal},
		{"query returned more than 10000 results", ActionFatal},
		{"connection refused", ActionRetry},
		{"http 502: bad gateway", ActionRetry},
	}
	for _, c := range cases {
		if got := ClassifyError(errors.New(c.msg)); got != c.want {
			t.Errorf("ClassifyError(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}

func TestIsThrottleMessage(t *testing.T) {
	throttled := []string{
		"rate limit exceeded",
		"429 Too Many Requests",
		"compute units quota",
		"request throttled",
		"Your plan limit has been reached",
	}
	for _, s := range throttled {
		if !IsThrottleMessage(s) {
			t.Errorf("IsThrottleMessage(%q) = false, want true", s)
		}
	}
	if IsThrottleMessage("invalid params") {
		t.Error("IsThrottleMessage misclassified a plain error")
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        time.Second,
		BackoffMultiple: 2,
	}
	if d := calculateBackoff(0, cfg); d != 100*time.Millisecond {
		t.Errorf("attempt 0 delay = %s", d)
	}
	if d := calculateBackoff(1, cfg); d != 200*time.Millisecond {
		t.Errorf("attempt 1 delay = %s", d)
	}
	if d := calculateBackoff(10, cfg); d != time.Second {
		t.Errorf("attempt 10 delay = %s, want capped at 1s", d)
	}
}
