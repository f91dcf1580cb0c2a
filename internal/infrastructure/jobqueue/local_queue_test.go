package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errPermanent = errors.New("permanent")

func newTestQueue(onDeadLetter DeadLetterFunc) *LocalQueue {
	return NewLocalQueue(LocalQueueConfig{
		Workers:      4,
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
		JobTimeout:   time.Second,
		IsPermanent:  func(err error) bool { return errors.Is(err, errPermanent) },
		OnDeadLetter: onDeadLetter,
	}, logging.NewNop())
}

func drain(t *testing.T, q *LocalQueue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
}

func TestLocalQueue_DeliversEveryJob(t *testing.T) {
	t.Parallel()

	q := newTestQueue(nil)
	var handled atomic.Int32
	q.Handle("/jobs/phase", func(context.Context, []byte) error {
		handled.Add(1)
		return nil
	})

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, q.Enqueue(ctx, "jobs/phase", map[string]int{"n": i}, 0, ""))
	}
	drain(t, q)

	assert.EqualValues(t, 20, handled.Load())
	assert.EqualValues(t, 0, q.Outstanding())
}

func TestLocalQueue_DropsDuplicateIDs(t *testing.T) {
	t.Parallel()

	q := newTestQueue(nil)
	var handled atomic.Int32
	q.Handle("/jobs/phase", func(context.Context, []byte) error {
		handled.Add(1)
		return nil
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, "/jobs/phase", []byte(`{}`), 0, "map_alert_check-alice-20261017"))
	}
	require.NoError(t, q.Enqueue(ctx, "/jobs/phase", []byte(`{}`), 0, "driver_notification_check-alice-20261017"))
	drain(t, q)

	assert.EqualValues(t, 2, handled.Load())
}

func TestLocalQueue_RetriesThenDeadLetters(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		dead     []int
		attempts atomic.Int32
	)
	q := newTestQueue(func(_ context.Context, _ string, _ []byte, n int, _ error) {
		mu.Lock()
		defer mu.Unlock()
		dead = append(dead, n)
	})
	q.Handle("/jobs/phase", func(context.Context, []byte) error {
		attempts.Add(1)
		return errors.New("leaderboard unavailable")
	})

	require.NoError(t, q.Enqueue(context.Background(), "/jobs/phase", []byte(`{}`), 0, "job-1"))
	drain(t, q)

	assert.EqualValues(t, 3, attempts.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{3}, dead)
}

func TestLocalQueue_PermanentErrorSkipsRetries(t *testing.T) {
	t.Parallel()

	var deadAttempts atomic.Int32
	q := newTestQueue(func(_ context.Context, _ string, _ []byte, n int, _ error) {
		deadAttempts.Store(int32(n))
	})
	var attempts atomic.Int32
	q.Handle("/jobs/phase", func(context.Context, []byte) error {
		attempts.Add(1)
		return errPermanent
	})

	require.NoError(t, q.Enqueue(context.Background(), "/jobs/phase", []byte(`{}`), 0, ""))
	drain(t, q)

	assert.EqualValues(t, 1, attempts.Load())
	assert.EqualValues(t, 1, deadAttempts.Load())
}

func TestLocalQueue_RecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()

	q := newTestQueue(func(context.Context, string, []byte, int, error) {
		t.Errorf("job must not be dead lettered")
	})
	var attempts atomic.Int32
	q.Handle("/jobs/phase", func(context.Context, []byte) error {
		if attempts.Add(1) == 1 {
			return errors.New("rate limited")
		}
		return nil
	})

	require.NoError(t, q.Enqueue(context.Background(), "/jobs/phase", []byte(`{}`), 0, ""))
	drain(t, q)

	assert.EqualValues(t, 2, attempts.Load())
}

func TestLocalQueue_RejectsEmptyPath(t *testing.T) {
	t.Parallel()

	q := newTestQueue(nil)
	assert.Error(t, q.Enqueue(context.Background(), " ", nil, 0, ""))
	assert.EqualValues(t, 0, q.Outstanding())
}
