package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maturion/ingest/internal/ingest"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan ingest.RunRequest, 1)
	errCh := make(chan error, 1)

	go func() {
		run, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- run
	}()

	run := ingest.RunRequest{JobID: "job-1", Kind: ingest.RunKindCrawl, OrganizationID: "org-1"}
	require.NoError(t, q.Enqueue(context.Background(), run))

	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, "job-1", got.JobID)
		require.Equal(t, ingest.RunKindCrawl, got.Kind)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return run")
	}
}

func TestQueueCancelation(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// Fill the buffer so the next enqueue blocks, then cancel it.
	require.NoError(t, q.Enqueue(context.Background(), ingest.RunRequest{JobID: "primed"}))
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, q.Enqueue(ctx, ingest.RunRequest{}), context.Canceled)
}

func TestQueueCloseDrains(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), ingest.RunRequest{JobID: "job-1"}))
	q.Close()
	q.Close() // idempotent

	run, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "job-1", run.JobID)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ingest.ErrQueueClosed)
}

func TestQueueEnqueueAfterClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	q.Close()

	err := q.Enqueue(context.Background(), ingest.RunRequest{JobID: "late"})
	require.ErrorIs(t, err, ingest.ErrQueueClosed)
}

func TestQueueEnqueueCloseRace(t *testing.T) {
	t.Parallel()

	q := NewQueue(64)
	errCh := make(chan error, 1)
	go func() {
		for i := 0; i < 64; i++ {
			if err := q.Enqueue(context.Background(), ingest.RunRequest{JobID: "race"}); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	q.Close()
	select {
	case err := <-errCh:
		if err != nil {
			require.ErrorIs(t, err, ingest.ErrQueueClosed)
		}
	case <-time.After(time.Second):
		t.Fatal("enqueue loop did not finish")
	}
}
