package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/externalref"
)

func TestEnqueueDequeueOrder(t *testing.T) {
	q := New(2)
	ctx := context.Background()

	job1 := Job{Ref: externalref.New(1, 1, 1)}
	job2 := Job{Ref: externalref.New(1, 1, 2)}

	require.NoError(t, q.Enqueue(ctx, job1))
	require.NoError(t, q.Enqueue(ctx, job2))

	got1, ok := q.Dequeue(ctx)
	require.True(t, ok)
	require.Equal(t, job1, got1)

	got2, ok := q.Dequeue(ctx)
	require.True(t, ok)
	require.Equal(t, job2, got2)
}

func TestEnqueueBlocksWhenFullUntilContextCancelled(t *testing.T) {
	q := New(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Job{Ref: externalref.New(1, 1, 1)}))

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := q.Enqueue(cancelCtx, Job{Ref: externalref.New(1, 1, 2)})
	require.Error(t, err)
}

func TestDequeueAfterCloseDrainsBuffered(t *testing.T) {
	q := New(2)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Job{Ref: externalref.New(1, 1, 1)}))
	q.Close()

	job, ok := q.Dequeue(ctx)
	require.True(t, ok)
	require.Equal(t, int64(1), job.Ref.DocumentID)

	_, ok = q.Dequeue(ctx)
	require.False(t, ok)
}
