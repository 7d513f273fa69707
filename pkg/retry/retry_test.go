package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type providerErr struct {
	msg       string
	retryable bool
}

func (e *providerErr) Error() string     { return e.msg }
func (e *providerErr) IsRetryable() bool { return e.retryable }

func fastConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 100*time.Millisecond {
		t.Errorf("expected InitialDelay=100ms, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 5*time.Second {
		t.Errorf("expected MaxDelay=5s, got %v", cfg.MaxDelay)
	}
	if cfg.MaxSameErrorType != 5 {
		t.Errorf("expected MaxSameErrorType=5, got %d", cfg.MaxSameErrorType)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error after retries, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 2

	expectedErr := errors.New("persistent error")
	callCount := 0
	err := Do(context.Background(), cfg, func() error {
		callCount++
		return expectedErr
	})

	if err != expectedErr {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	// MaxRetries=2 means: initial attempt + 2 retries = 3 total calls
	if callCount != 3 {
		t.Errorf("expected 3 calls (1 initial + 2 retries), got %d", callCount)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	callCount := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func() error {
		callCount++
		return errors.New("error")
	})

	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", callCount)
	}
}

func TestDo_NilConfigUsesDefaults(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), nil, func() error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("expected no error with nil config, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestDoWithResult_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	result, err := DoWithResult(context.Background(), fastConfig(), func() (int, error) {
		callCount++
		if callCount < 3 {
			return 0, errors.New("transient error")
		}
		return 42, nil
	})

	if err != nil {
		t.Errorf("expected no error after retries, got %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %d", result)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDoWithResult_KeepsLastResultOnFailure(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 1

	expectedErr := errors.New("persistent error")
	result, err := DoWithResult(context.Background(), cfg, func() (string, error) {
		return "partial", expectedErr
	})

	if err != expectedErr {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	if result != "partial" {
		t.Errorf("expected 'partial' result, got %s", result)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("connection refused"), true},
		{"Connection Refused (uppercase)", errors.New("Connection Refused"), true},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"timeout", errors.New("context deadline exceeded: timeout"), true},
		{"deadlock", errors.New("deadlock detected"), true},
		{"rate limited", errors.New("429 too many requests"), true},
		{"service unavailable", errors.New("503 service unavailable"), true},
		{"auth error", errors.New("authentication failed"), false},
		{"syntax error", errors.New("syntax error at position 10"), false},
		{"not found", errors.New("table not found"), false},
		{"interface says retryable", &providerErr{msg: "provider overloaded", retryable: true}, true},
		// The interface overrides pattern matching even when the message
		// looks transient.
		{"interface says permanent", &providerErr{msg: "429 too many requests", retryable: false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestDoIfRetryable_NonRetryableReturnsImmediately(t *testing.T) {
	expectedErr := errors.New("authentication failed")
	callCount := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		callCount++
		return expectedErr
	})

	if err != expectedErr {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call (no retries), got %d", callCount)
	}
}

func TestDoIfRetryable_RetriesTransientErrors(t *testing.T) {
	callCount := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("connection timeout")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error after retries, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDoIfRetryable_EscalatesRepeatedErrorType(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 10
	cfg.MaxSameErrorType = 2

	baseErr := errors.New("connection refused")
	callCount := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		callCount++
		return baseErr
	})

	if err == nil {
		t.Fatal("expected escalated error")
	}
	if !errors.Is(err, baseErr) {
		t.Errorf("escalated error should wrap the original, got %v", err)
	}
	if callCount != 2 {
		t.Errorf("expected 2 calls before escalation, got %d", callCount)
	}
}
