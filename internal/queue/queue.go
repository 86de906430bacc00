// Package queue dispatches job ids to a bounded pool of workers.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/suPer8Hu/ai-podcaster/internal/pipeline"
)

var ErrClosed = errors.New("queue closed")

// Runner executes one job to a terminal status.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// HandlerFunc processes one delivered job id. A non-nil error means the
// delivery should be tried again later.
type HandlerFunc func(ctx context.Context, workerID int, jobID string) error

// Handler wraps r for delivery: job failures are already recorded on the job
// and count as handled, anything else is returned for redelivery.
func Handler(r Runner, logger *log.Logger) HandlerFunc {
	logger = logger.With("component", "worker")
	return func(ctx context.Context, workerID int, jobID string) error {
		start := time.Now()
		err := r.Run(ctx, jobID)
		cost := time.Since(start)
		switch {
		case err == nil:
			logger.Debug("job handled", "worker", workerID, "job", jobID, "cost", cost.Truncate(time.Millisecond))
			return nil
		case pipeline.IsJobFailure(err):
			logger.Info("job failed", "worker", workerID, "job", jobID, "cost", cost.Truncate(time.Millisecond), "error", err)
			return nil
		default:
			logger.Error("job not handled", "worker", workerID, "job", jobID, "cost", cost.Truncate(time.Millisecond), "error", err)
			return err
		}
	}
}

// Memory is an in-process queue: a buffered channel drained by a fixed
// number of workers. Ids still buffered at shutdown stay pending in the job
// store and are picked up again on the next start.
type Memory struct {
	jobs    chan string
	handle  HandlerFunc
	workers int
	logger  *log.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewMemory(handle HandlerFunc, workers, buffer int, logger *log.Logger) *Memory {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = workers * 2
	}
	return &Memory{
		jobs:    make(chan string, buffer),
		handle:  handle,
		workers: workers,
		logger:  logger.With("component", "queue"),
	}
}

// Enqueue hands jobID to the workers, waiting for buffer space.
func (q *Memory) Enqueue(ctx context.Context, jobID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.jobs <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the workers. ctx is passed to every job run.
func (q *Memory) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go func(workerID int) {
			defer q.wg.Done()
			for id := range q.jobs {
				if err := q.handle(ctx, workerID, id); err != nil {
					q.logger.Warn("job left pending", "worker", workerID, "job", id, "error", err)
				}
			}
		}(i)
	}
	q.logger.Info("queue workers started", "workers", q.workers, "buffer", cap(q.jobs))
}

// Stop refuses new ids and waits for the workers to drain the buffer.
func (q *Memory) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	started := q.started
	q.mu.Unlock()
	if started {
		q.wg.Wait()
	}
	q.logger.Info("queue stopped")
}
