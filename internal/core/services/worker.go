package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driving"
	"github.com/custodia-labs/docgraph/internal/logger"
	"github.com/custodia-labs/docgraph/internal/metrics"
)

var _ driving.WorkerPool = (*WorkerPool)(nil)

// JobHandler processes one job. A returned error counts as a failed attempt.
type JobHandler func(ctx context.Context, job *domain.Job) error

// Job outcomes recorded by the pool.
const (
	outcomeCompleted = "completed"
	outcomeRetried   = "retried"
	outcomeFailed    = "failed"
)

// WorkerPool runs a fixed number of workers per queue. Each worker polls
// its queue, claims one job at a time and dispatches it by job type.
type WorkerPool struct {
	queue        *JobQueue
	concurrency  int
	pollInterval time.Duration

	handlers   map[domain.JobType]JobHandler
	handlersMu sync.RWMutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorkerPool creates a pool pulling from queue. The pool is attached
// to queue so that JobQueue.Shutdown stops it.
func NewWorkerPool(queue *JobQueue, concurrency int, pollInterval time.Duration) *WorkerPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	p := &WorkerPool{
		queue:        queue,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		handlers:     make(map[domain.JobType]JobHandler),
	}
	queue.Attach(p)
	return p
}

// RegisterHandler registers the handler for a job type.
func (p *WorkerPool) RegisterHandler(jobType domain.JobType, handler JobHandler) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	p.handlers[jobType] = handler
	logger.Debug("worker pool: registered handler for %s", jobType)
}

// Start launches the workers and returns immediately.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.queue.Broker() == nil {
		return domain.ErrQueueNotConfigured
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	for _, queue := range domain.QueueNames() {
		for i := 0; i < p.concurrency; i++ {
			p.wg.Add(1)
			go p.worker(runCtx, queue, i)
		}
	}

	logger.WithFields(logger.Fields{
		"concurrency":   p.concurrency,
		"poll_interval": p.pollInterval,
	}).Info("worker pool started")
	return nil
}

// Stop signals the workers to stop polling and waits for in-flight jobs
// to finish, or for ctx to expire.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight jobs: %w", ctx.Err())
	}
}

func (p *WorkerPool) worker(ctx context.Context, queue domain.QueueName, id int) {
	defer p.wg.Done()

	// Stagger start so workers don't poll in lockstep.
	stagger := (p.pollInterval / time.Duration(p.concurrency)) * time.Duration(id)
	if stagger > 0 {
		select {
		case <-time.After(stagger):
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		// Drain whatever is runnable before waiting for the next tick.
		for ctx.Err() == nil {
			processed, err := p.ProcessNext(ctx, queue)
			if err != nil {
				logger.WithFields(logger.Fields{"queue": queue, "worker": id}).
					WithError(err).Warn("worker: receive failed")
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessNext claims and runs one job from queue. It reports whether a
// job was claimed. Handler failures are recorded on the job, not returned.
func (p *WorkerPool) ProcessNext(ctx context.Context, queue domain.QueueName) (bool, error) {
	broker := p.queue.Broker()
	job, err := broker.Receive(ctx, queue)
	if errors.Is(err, domain.ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	log := logger.WithFields(logger.Fields{
		"job_id":  job.ID,
		"queue":   queue,
		"type":    job.Type,
		"attempt": job.Attempts,
	})
	log.Debug("job claimed")

	// In-flight jobs run to completion even while the pool is stopping.
	jobErr := p.dispatch(context.WithoutCancel(ctx), job)
	policy := p.queue.Policy(queue)
	finishCtx := context.WithoutCancel(ctx)

	if jobErr == nil {
		if err := broker.Complete(finishCtx, job, policy); err != nil {
			log.WithError(err).Error("failed to mark job completed")
		}
		metrics.JobsProcessed.WithLabelValues(string(queue), outcomeCompleted).Inc()
		log.Info("job completed")
		return true, nil
	}

	if err := broker.Fail(finishCtx, job, jobErr, policy); err != nil {
		log.WithError(err).Error("failed to record job failure")
	}
	if job.State == domain.JobStateFailed {
		metrics.JobsProcessed.WithLabelValues(string(queue), outcomeFailed).Inc()
		log.WithError(jobErr).Error("job failed permanently")
	} else {
		metrics.JobsProcessed.WithLabelValues(string(queue), outcomeRetried).Inc()
		log.WithError(jobErr).WithField("retry_at", job.AvailableAt).Warn("job failed, will retry")
	}
	return true, nil
}

func (p *WorkerPool) dispatch(ctx context.Context, job *domain.Job) (err error) {
	p.handlersMu.RLock()
	handler, ok := p.handlers[job.Type]
	p.handlersMu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for job type %q", job.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}
