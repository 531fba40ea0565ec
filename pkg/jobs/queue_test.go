package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var handled int32
	done := make(chan string, 1)
	q := NewQueue("test", func(_ context.Context, job Job) error {
		atomic.AddInt32(&handled, 1)
		done <- job.ID
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 2})

	require.Error(t, q.Enqueue(Job{Type: "x"}), "enqueue before start must fail")

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "x"}))
	select {
	case id := <-done:
		assert.NotEmpty(t, id, "job id assigned")
	case <-time.After(2 * time.Second):
		t.Fatal("job not handled")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&handled))
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	q := NewQueue("retry", func(_ context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "x"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestTryEnqueueReportsFullBuffer(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("full", func(ctx context.Context, _ Job) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()
	defer close(block)

	require.NoError(t, q.TryEnqueue(Job{Type: "a"}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.TryEnqueue(Job{Type: "b"}))
	assert.ErrorIs(t, q.TryEnqueue(Job{Type: "c"}), ErrQueueFull)
}

func TestQueueRecoversFromPanics(t *testing.T) {
	done := make(chan struct{}, 2)
	q := NewQueue("panic", func(_ context.Context, job Job) error {
		done <- struct{}{}
		if job.Type == "boom" {
			panic("boom")
		}
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "boom"}))
	require.NoError(t, q.Enqueue(Job{Type: "ok"}))
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker died after panic")
		}
	}
}
