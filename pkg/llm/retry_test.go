package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medflow/pkg/llm/llmerrors"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetryableClientRecoversFromTransientErrors(t *testing.T) {
	mock := NewMockClient(
		[]CompletionResponse{{Content: "ok"}},
		[]error{
			llmerrors.NewError(llmerrors.ErrorTypeTransient, "blip"),
			llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow down"),
		},
	)
	client := NewRetryableClient(mock, fastRetryConfig(3))

	resp, err := client.Complete(context.Background(), NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Len(t, mock.Requests, 3)
}

func TestRetryableClientStopsOnNonRetryable(t *testing.T) {
	mock := NewMockClient(
		[]CompletionResponse{{Content: "never reached"}},
		[]error{llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")},
	)
	client := NewRetryableClient(mock, fastRetryConfig(3))

	_, err := client.Complete(context.Background(), NewCompletionRequest(nil))
	require.Error(t, err)
	assert.Equal(t, llmerrors.ErrorTypeAuth, llmerrors.TypeOf(err))
	assert.Len(t, mock.Requests, 1, "auth errors must not be retried")
}

func TestRetryableClientExhaustsRetries(t *testing.T) {
	errs := []error{
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "down"),
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "down"),
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "down"),
	}
	mock := NewMockClient(nil, errs)
	client := NewRetryableClient(mock, fastRetryConfig(2))

	_, err := client.Complete(context.Background(), NewCompletionRequest(nil))
	require.Error(t, err)
	assert.Len(t, mock.Requests, 3, "initial attempt plus two retries")
}

func TestRetryableClientHonorsCancellation(t *testing.T) {
	mock := NewMockClient(nil, []error{
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "down"),
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "down"),
	})
	cfg := fastRetryConfig(3)
	cfg.InitialDelay = time.Hour // force the retry sleep to block
	client := NewRetryableClient(mock, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.Complete(ctx, NewCompletionRequest(nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, llmerrors.IsRetryable(llmerrors.NewError(llmerrors.ErrorTypeTransient, "x")))
	assert.True(t, llmerrors.IsRetryable(llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "x")))
	assert.True(t, llmerrors.IsRetryable(llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "x")))
	assert.False(t, llmerrors.IsRetryable(llmerrors.NewError(llmerrors.ErrorTypeAuth, "x")))
	assert.False(t, llmerrors.IsRetryable(llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "x")))
	assert.False(t, llmerrors.IsRetryable(assert.AnError))
}
