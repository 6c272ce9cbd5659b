package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func TestBackoff(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{"fixed first", Fixed(5, time.Second), 1, time.Second},
		{"fixed later", Fixed(5, time.Second), 4, time.Second},
		{"exponential first", Exponential(5, time.Second, 10*time.Second), 1, time.Second},
		{"exponential third", Exponential(5, time.Second, 10*time.Second), 3, 4 * time.Second},
		{"exponential capped", Exponential(10, time.Second, 10*time.Second), 8, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Backoff(tt.attempt); got != tt.want {
				t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	notified := 0
	err := Fixed(5, time.Millisecond).Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errTransient
		}
		return nil
	}, nil, func(attempt int, wait time.Duration, err error) {
		notified++
	})

	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if notified != 2 {
		t.Errorf("notified = %d, want 2", notified)
	}
}

func TestDoExhausts(t *testing.T) {
	calls := 0
	err := Fixed(5, time.Millisecond).Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return errTransient
	}, nil, nil)

	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Do() = %v, want ErrExhausted", err)
	}
	if !errors.Is(err, errTransient) {
		t.Errorf("Do() = %v, want wrapped last error", err)
	}
	if calls != 5 {
		t.Errorf("calls = %d, want 5", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Fixed(5, time.Millisecond).Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return permanent
	}, func(err error) bool { return errors.Is(err, errTransient) }, nil)

	if !errors.Is(err, permanent) || errors.Is(err, ErrExhausted) {
		t.Fatalf("Do() = %v, want the permanent error unwrapped from exhaustion", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Fixed(5, time.Hour).Do(ctx, func(ctx context.Context, attempt int) error {
		return errTransient
	}, nil, nil)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() = %v, want context.Canceled", err)
	}
}

func TestValidate(t *testing.T) {
	if err := (Policy{MaxAttempts: 0}).Validate(); err == nil {
		t.Error("Validate() with zero attempts should fail")
	}
	if err := (Policy{MaxAttempts: 1, Delay: -time.Second}).Validate(); err == nil {
		t.Error("Validate() with negative delay should fail")
	}
	if err := Fixed(1, 0).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
