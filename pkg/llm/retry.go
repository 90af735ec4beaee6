package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"medflow/pkg/llm/llmerrors"
)

// RetryConfig defines retry behavior for a wrapped client.
type RetryConfig struct {
	MaxRetries    int           // Maximum number of retry attempts
	InitialDelay  time.Duration // Delay before first retry
	MaxDelay      time.Duration // Upper bound on backoff delay
	BackoffFactor float64       // Multiplier for exponential backoff
	Jitter        bool          // Randomize delays to avoid thundering herd
}

// DefaultRetryConfig provides reasonable defaults for retry behavior.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// RetryableClient wraps a Client with classified-error retry logic.
type RetryableClient struct {
	client Client
	config RetryConfig
}

// NewRetryableClient creates a retrying wrapper around client.
func NewRetryableClient(client Client, config RetryConfig) *RetryableClient {
	return &RetryableClient{client: client, config: config}
}

// Complete implements Client with retry on retryable classified errors.
func (r *RetryableClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return CompletionResponse{}, ctx.Err()
			case <-time.After(r.calculateDelay(attempt)):
			}
		}

		resp, err := r.client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !llmerrors.IsRetryable(err) {
			break
		}
	}

	return CompletionResponse{}, fmt.Errorf("completion failed after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

func (r *RetryableClient) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		delay *= 0.5 + rand.Float64()/2 //nolint:gosec // jitter does not need crypto randomness
	}
	return time.Duration(delay)
}
