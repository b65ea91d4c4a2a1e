package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := New[int](4)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Enqueue(ctx, i))
	}
	require.Equal(t, 3, q.Len())

	for i := 1; i <= 3; i++ {
		item, ok, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i, item)
	}
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	t.Parallel()

	q := New[string](1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "first"))

	blockedCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(blockedCtx, "second")
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnqueueUnblocksAfterDequeue(t *testing.T) {
	t.Parallel()

	q := New[int](1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(ctx, 2)
	}()

	time.Sleep(20 * time.Millisecond)
	_, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not unblock")
	}
}

func TestCloseDrainsThenSignals(t *testing.T) {
	t.Parallel()

	q := New[int](4)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 42))
	q.Close()
	q.Close() // idempotent

	item, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 42, item)

	_, ok, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDequeueCanceled(t *testing.T) {
	t.Parallel()

	q := New[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := q.Dequeue(ctx)
	require.Error(t, err)
}
