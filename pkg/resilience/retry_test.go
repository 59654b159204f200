package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyStopsOnSuccess(t *testing.T) {
	p := NewRetryPolicy(3, time.Millisecond)
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("handshake refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryPolicyZeroRetries(t *testing.T) {
	p := NewRetryPolicy(-1, 0)
	calls := 0
	boom := errors.New("boom")
	if err := p.Do(context.Background(), func() error { calls++; return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestRetryPolicyHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewRetryPolicy(5, time.Hour)
	err := p.Do(ctx, func() error { return errors.New("refused") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestIsRateLimit(t *testing.T) {
	if !IsRateLimit(RateLimitError{Provider: "asr", Message: "429"}) {
		t.Fatalf("expected rate limit error to be detected")
	}
	if IsRateLimit(errors.New("other")) {
		t.Fatalf("expected plain error not to be a rate limit")
	}
}
