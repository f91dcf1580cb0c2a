package jobqueue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
)

var ErrQueueFull = crerr.New("local queue is full")

// Handler processes one delivery. A nil error acknowledges it.
type Handler func(ctx context.Context, body []byte) error

// DeadLetterFunc receives deliveries that will not be retried again.
type DeadLetterFunc func(ctx context.Context, path string, body []byte, attempts int, lastErr error)

type LocalQueueConfig struct {
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
	JobTimeout   time.Duration
	// DedupWindow is how long an accepted deduplication id rejects repeats.
	DedupWindow time.Duration
	Capacity    int
	// IsPermanent short-circuits retries for errors that can never succeed.
	IsPermanent  func(error) bool
	OnDeadLetter DeadLetterFunc
}

type delivery struct {
	path     string
	body     []byte
	dedupID  string
	attempts int
}

// LocalQueue is an in-process at-least-once queue backed by an ants pool.
// Deliveries are lost on process exit; use the hosted queue where that
// matters.
type LocalQueue struct {
	cfg    LocalQueueConfig
	logger *logging.Logger
	now    func() time.Time

	mu       sync.Mutex
	handlers map[string]Handler
	seen     map[string]time.Time

	pending     chan delivery
	outstanding atomic.Int64
	idle        chan struct{}
}

func NewLocalQueue(cfg LocalQueueConfig, logger *logging.Logger) *LocalQueue {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 30 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 48 * time.Hour
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}

	return &LocalQueue{
		cfg:      cfg,
		logger:   logger.Named("local_queue"),
		now:      time.Now,
		handlers: make(map[string]Handler),
		seen:     make(map[string]time.Time),
		pending:  make(chan delivery, cfg.Capacity),
		idle:     make(chan struct{}, 1),
	}
}

// Handle routes deliveries for path to h.
func (q *LocalQueue) Handle(path string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[normalizePath(path)] = h
}

// Enqueue accepts a job. A repeated deduplicationID inside the dedup window
// is accepted and dropped.
func (q *LocalQueue) Enqueue(ctx context.Context, path string, payload any, delay time.Duration, deduplicationID string) error {
	path = normalizePath(path)
	if path == "/" {
		return crerr.New("job path is required")
	}

	body, err := encodePayload(payload)
	if err != nil {
		return crerr.Wrap(err, "marshal job payload")
	}

	dedupID := strings.TrimSpace(deduplicationID)
	if dedupID != "" && !q.markSeen(dedupID) {
		q.logger.DebugContext(ctx, "duplicate job dropped", "path", path, "deduplication_id", dedupID)
		return nil
	}

	d := delivery{path: path, body: body, dedupID: dedupID}
	q.outstanding.Add(1)
	if delay > 0 {
		time.AfterFunc(delay, func() { q.push(d) })
		return nil
	}
	select {
	case q.pending <- d:
		return nil
	default:
		q.finish()
		q.forget(dedupID)
		return ErrQueueFull
	}
}

// Run consumes deliveries until ctx is done. In-flight jobs are awaited
// before it returns.
func (q *LocalQueue) Run(ctx context.Context) error {
	pool, err := ants.NewPool(q.cfg.Workers)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var workers sync.WaitGroup
	defer workers.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-q.pending:
			workers.Add(1)
			if err := pool.Submit(func() {
				defer workers.Done()
				q.deliver(ctx, d)
			}); err != nil {
				workers.Done()
				q.logger.ErrorContext(ctx, "submit job to worker pool failed", "path", d.path, "error", err)
				q.retryLater(d)
			}
		}
	}
}

// Drain runs the queue until every accepted job, retries included, has
// been acknowledged or dead lettered.
func (q *LocalQueue) Drain(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- q.Run(runCtx) }()

	for q.outstanding.Load() > 0 {
		select {
		case <-ctx.Done():
			cancel()
			<-done
			return ctx.Err()
		case <-q.idle:
		}
	}
	cancel()
	return <-done
}

// Outstanding reports jobs accepted but not yet finished.
func (q *LocalQueue) Outstanding() int64 {
	return q.outstanding.Load()
}

func (q *LocalQueue) deliver(ctx context.Context, d delivery) {
	q.mu.Lock()
	handler, ok := q.handlers[d.path]
	q.mu.Unlock()

	d.attempts++
	var err error
	if !ok {
		err = fmt.Errorf("no handler for path %s", d.path)
	} else {
		jobCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
		err = handler(jobCtx, d.body)
		cancel()
	}
	if err == nil {
		q.finish()
		return
	}

	if ctx.Err() != nil {
		// Shutdown: the job stays unacknowledged and is not retried here.
		q.logger.WarnContext(ctx, "job interrupted by shutdown", "path", d.path, "deduplication_id", d.dedupID)
		q.finish()
		return
	}

	permanent := !ok || (q.cfg.IsPermanent != nil && q.cfg.IsPermanent(err))
	if permanent || d.attempts >= q.cfg.MaxAttempts {
		q.logger.ErrorContext(ctx, "job exhausted deliveries",
			"path", d.path,
			"deduplication_id", d.dedupID,
			"attempts", d.attempts,
			"permanent", permanent,
			"error", err,
		)
		if q.cfg.OnDeadLetter != nil {
			q.cfg.OnDeadLetter(context.WithoutCancel(ctx), d.path, d.body, d.attempts, err)
		}
		q.finish()
		return
	}

	q.logger.WarnContext(ctx, "job failed, will retry",
		"path", d.path,
		"deduplication_id", d.dedupID,
		"attempt", d.attempts,
		"error", err,
	)
	q.retryLater(d)
}

func (q *LocalQueue) retryLater(d delivery) {
	shift := min(max(d.attempts-1, 0), 6)
	time.AfterFunc(q.cfg.RetryBackoff<<shift, func() { q.push(d) })
}

func (q *LocalQueue) push(d delivery) {
	select {
	case q.pending <- d:
	default:
		q.logger.Error("local queue full, dropping delivery", "path", d.path, "deduplication_id", d.dedupID)
		q.finish()
	}
}

func (q *LocalQueue) finish() {
	if q.outstanding.Add(-1) <= 0 {
		select {
		case q.idle <- struct{}{}:
		default:
		}
	}
}

func (q *LocalQueue) markSeen(dedupID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if at, ok := q.seen[dedupID]; ok && now.Sub(at) < q.cfg.DedupWindow {
		return false
	}
	if len(q.seen) >= 4096 {
		for k, at := range q.seen {
			if now.Sub(at) >= q.cfg.DedupWindow {
				delete(q.seen, k)
			}
		}
	}
	q.seen[dedupID] = now
	return true
}

func (q *LocalQueue) forget(dedupID string) {
	if dedupID == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.seen, dedupID)
}

func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return v, nil
	default:
		return sonic.Marshal(v)
	}
}

func normalizePath(path string) string {
	return "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
}
