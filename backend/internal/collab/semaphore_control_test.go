package collab

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreControl(t *testing.T) {
	sem := NewSemaphoreControl(2)
	ctx := context.Background()

	require.NoError(t, sem.Acquire(ctx))
	require.NoError(t, sem.Acquire(ctx))
	assert.Equal(t, 2, sem.InUse())

	timeout, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sem.Acquire(timeout), ErrAcquireTimeout)

	require.NoError(t, sem.Release())
	require.NoError(t, sem.Release())
	assert.ErrorIs(t, sem.Release(), ErrNotAcquired)
}

func TestSemaphoreControl_DefaultSize(t *testing.T) {
	sem := NewSemaphoreControl(0)
	assert.Equal(t, MaxSemaphore, cap(sem.ch))
}
