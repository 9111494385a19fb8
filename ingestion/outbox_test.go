package ingestion

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRunsSubmittedJobs(t *testing.T) {
	outbox, err := NewOutbox(2)
	require.NoError(t, err)
	defer outbox.Close()

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, outbox.Submit("job", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}))
	}

	outbox.Drain()
	assert.Equal(t, int32(5), ran.Load())
}

func TestOutboxRetriesFailedJobs(t *testing.T) {
	outbox, err := NewOutbox(1, WithOutboxRetries(3, time.Millisecond))
	require.NoError(t, err)
	defer outbox.Close()

	var attempts atomic.Int32
	require.NoError(t, outbox.Submit("flaky", func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	outbox.Drain()
	assert.Equal(t, int32(3), attempts.Load())
}

func TestOutboxPermanentFailureDoesNotBlock(t *testing.T) {
	outbox, err := NewOutbox(1, WithOutboxRetries(2, time.Millisecond))
	require.NoError(t, err)
	defer outbox.Close()

	var attempts atomic.Int32
	require.NoError(t, outbox.Submit("doomed", func(ctx context.Context) error {
		attempts.Add(1)
		return errors.New("permanent")
	}))

	// Drain returns even though the job never succeeded.
	outbox.Drain()
	assert.Equal(t, int32(2), attempts.Load())
}
