package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	cfg := FixedRetryConfig(3, time.Millisecond)

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	cfg := FixedRetryConfig(2, time.Millisecond)

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return fmt.Errorf("always failing")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := FixedRetryConfig(10, 50*time.Millisecond)

	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error {
		attempts++
		return fmt.Errorf("failing")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, attempts, 5, "cancellation should cut the retry loop short")
}

func TestRetryWithResult(t *testing.T) {
	attempts := 0
	cfg := FixedRetryConfig(2, time.Millisecond)

	v, err := RetryWithResult(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", fmt.Errorf("not yet")
		}
		return "model-id-42", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "model-id-42", v)
}

func TestExponentialDelayCapped(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}

	start := time.Now()
	_ = Retry(context.Background(), cfg, func() error { return fmt.Errorf("nope") })
	elapsed := time.Since(start)

	// 1ms + 2ms + 2ms of delay; generous upper bound to avoid flakiness.
	assert.Less(t, elapsed, time.Second)
}
