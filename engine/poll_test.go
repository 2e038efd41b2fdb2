package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollSucceedsImmediately(t *testing.T) {
	var calls atomic.Int32
	err := Poll(context.Background(), func(context.Context) (bool, error) {
		calls.Add(1)
		return true, nil
	}, time.Second, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPollRetriesUntilTrue(t *testing.T) {
	var calls atomic.Int32
	err := Poll(context.Background(), func(context.Context) (bool, error) {
		if calls.Add(1) < 3 {
			return false, errors.New("not rendered")
		}
		return true, nil
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPollTimeout(t *testing.T) {
	start := time.Now()
	err := Poll(context.Background(), func(context.Context) (bool, error) {
		return false, errors.New("still loading")
	}, 30*time.Millisecond, 5*time.Millisecond)
	require.ErrorIs(t, err, ErrWaitTimeout)
	assert.Contains(t, err.Error(), "still loading")
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Poll(ctx, func(context.Context) (bool, error) {
		return false, nil
	}, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrWaitTimeout)
}
