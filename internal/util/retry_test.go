package util

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"ETIMEDOUT", syscall.ETIMEDOUT, true},
		{"ECONNREFUSED", syscall.ECONNREFUSED, true},
		{"wrapped ECONNRESET", fmt.Errorf("publish: %w", syscall.ECONNRESET), true},
		{"ENOENT (not retryable)", syscall.ENOENT, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"redis loading", errors.New("LOADING Redis is loading the dataset in memory"), true},
		{"context canceled", context.Canceled, false},
		{"generic error (not retryable)", errors.New("invalid argument"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.expected {
				t.Errorf("IsRetryableError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetry_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	cfg := &RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}

	err := RetryContext(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return syscall.ETIMEDOUT
		}
		return nil
	}, "test operation")

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestRetry_FailureAfterMaxRetries(t *testing.T) {
	attempts := 0
	cfg := &RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}

	err := RetryContext(context.Background(), cfg, func() error {
		attempts++
		return syscall.ETIMEDOUT
	}, "test operation")

	if !errors.Is(err, syscall.ETIMEDOUT) {
		t.Errorf("Expected wrapped ETIMEDOUT, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts (max), got: %d", attempts)
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	attempts := 0
	err := RetryContext(context.Background(), DefaultRetryConfig(), func() error {
		attempts++
		return syscall.ENOENT
	}, "test operation")

	if err == nil {
		t.Error("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (no retry for non-retryable), got: %d", attempts)
	}
}

func TestRetryContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxAttempts: 10, InitialWait: time.Hour, MaxWait: time.Hour}

	attempts := 0
	err := RetryContext(ctx, cfg, func() error {
		attempts++
		cancel()
		return syscall.ETIMEDOUT
	}, "test operation")

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestPublishRetryConfig(t *testing.T) {
	cfg := PublishRetryConfig()

	if cfg.MaxAttempts != 5 {
		t.Errorf("Expected MaxAttempts=5, got: %d", cfg.MaxAttempts)
	}
	if cfg.MaxWait != 10*time.Second {
		t.Errorf("Expected MaxWait=10s, got: %v", cfg.MaxWait)
	}
}
