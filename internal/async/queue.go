package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Enqueue after Shutdown has started.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one file waiting for analysis.
type Job struct {
	Path        string
	HashHex     string
	SubmittedAt time.Time
	TraceID     string
}

// Handler processes one job. Its error is logged; the queue does not retry.
type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// ProcessorQueue is a fixed pool of workers draining a bounded channel.
type ProcessorQueue struct {
	handle  Handler
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// stop is closed first on shutdown so blocked producers let go of mu
	// before ch is closed under the write lock.
	stop     chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(handle Handler, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		handle:  handle,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
		stop:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("async.worker.started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Debug("async.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("async.job.panic", "worker_id", workerID, "path", job.Path, "panic", r)
		}
	}()

	if err := q.handle(ctx, job); err != nil {
		q.logger.Error("async.job.failed", "worker_id", workerID, "path", job.Path, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return
	}
	q.logger.Info("async.job.ok", "worker_id", workerID, "path", job.Path,
		"wait_ms", start.Sub(job.SubmittedAt).Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds())
}

// Enqueue blocks while the queue is full, until ctx is done or Shutdown starts.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	select {
	case <-q.stop:
		q.logger.Warn("async.enqueue.closed", "path", job.Path)
		return ErrQueueClosed
	default:
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("async.enqueued", "path", job.Path)
		return nil
	default:
	}
	q.logger.Warn("async.queue_full", "path", job.Path, "capacity", cap(q.ch))
	select {
	case q.ch <- job:
		return nil
	case <-q.stop:
		q.logger.Warn("async.enqueue.closed", "path", job.Path)
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued jobs to finish or ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	first := false
	q.stopOnce.Do(func() {
		first = true
		close(q.stop)
	})
	if !first {
		return
	}
	q.mu.Lock()
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("async.shutdown.interrupted")
	case <-done:
		q.logger.Info("async.shutdown.drained")
	}
}
