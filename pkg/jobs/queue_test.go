package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) ObserveJob(queue, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, queue+":"+outcome)
}

func (r *recordingObserver) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("reports", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "job-1"})
	assert.True(t, errors.Is(err, ErrQueueNotStarted))
}

func TestQueueProcessesJobs(t *testing.T) {
	obs := &recordingObserver{}
	done := make(chan string, 2)
	q := NewQueue("mail", func(_ context.Context, j Job) error {
		done <- j.ID
		return nil
	}, QueueConfig{Workers: 2, Observer: obs})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.NoError(t, q.Enqueue(Job{ID: "b"}))

	got := []string{<-done, <-done}
	assert.ElementsMatch(t, []string{"a", "b"}, got)
	assert.Eventually(t, func() bool { return len(obs.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"mail:succeeded", "mail:succeeded"}, obs.snapshot())
}

func TestQueueRetriesThenDrops(t *testing.T) {
	obs := &recordingObserver{}
	var calls int32
	q := NewQueue("reports", func(_ context.Context, j Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("export failed")
	}, QueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond, Observer: obs})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1"}))

	assert.Eventually(t, func() bool { return len(obs.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"reports:retried", "reports:retried", "reports:dropped"}, obs.snapshot())
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestQueueFullAndStopped(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("reports", func(ctx context.Context, _ Job) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "running"}))
	// wait until the worker has taken the first job off the buffer
	require.Eventually(t, func() bool { return q.Depth() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(Job{ID: "buffered"}))
	assert.True(t, errors.Is(q.Enqueue(Job{ID: "overflow"}), ErrQueueFull))

	close(block)
	q.Stop()
	assert.True(t, errors.Is(q.Enqueue(Job{ID: "late"}), ErrQueueStopped))
}
