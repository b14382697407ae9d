package jobserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// pollInterval is how often an idle worker checks the queue for work.
const pollInterval = 100 * time.Millisecond

// Pool is the configurable worker pool of spec.md §5: a fixed number of
// workers, each executing one task at a time, a task owning exactly one
// sub-model directory for its duration.
type Pool struct {
	store    *Store
	registry *Registry
	workers  int
	logger   *logrus.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewPool creates a pool of workers workers consuming store's queue
// against registry's process table.
func NewPool(store *Store, registry *Registry, workers int, logger *logrus.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		store:    store,
		registry: registry,
		workers:  workers,
		logger:   logger,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start launches the worker goroutines. They run until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.workerLoop(ctx, i)
	}
}

func (p *Pool) workerLoop(ctx context.Context, idx int) {
	logger := p.logger.WithField("worker", idx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		job, err := p.store.Dequeue()
		if err != nil {
			if err == ErrQueueEmpty {
				select {
				case <-ctx.Done():
					return
				case <-time.After(pollInterval):
				}
				continue
			}
			logger.WithError(err).Error("dequeue failed")
			continue
		}
		p.execute(ctx, job)
	}
}

// execute runs job to completion (or cancellation), per spec.md §5's
// suspension-point model: the task is not preemptible internally, but
// responds to cancellation between suspension points via jobCtx.
func (p *Pool) execute(parent context.Context, job *Job) {
	jobCtx, cancel := context.WithCancel(parent)
	p.mu.Lock()
	p.cancels[job.ID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.cancels, job.ID)
		p.mu.Unlock()
		cancel()
	}()

	job.Status = StatusRunning
	job.Started = time.Now()
	if err := p.store.Save(job); err != nil {
		p.logger.WithError(err).WithField("job_id", job.ID).Error("save running job failed")
	}

	logger := p.logger.WithFields(logrus.Fields{"job_id": job.ID, "op": job.Process})

	proc, ok := p.registry.Get(job.Process)
	if !ok {
		job.Status = StatusFailed
		job.Err = fmt.Sprintf("unregistered process %q", job.Process)
		job.Finished = time.Now()
		logger.Error("unregistered process")
		_ = p.store.MoveToDone(job)
		return
	}

	result, err := proc.Run(jobCtx, job.Params)
	job.Finished = time.Now()

	if jobCtx.Err() == context.Canceled {
		logger.Warn("job cancelled")
		_ = p.store.MarkDismissed(job)
		return
	}

	if err != nil {
		job.Status = StatusFailed
		job.Err = err.Error()
		job.Traceback = fmt.Sprintf("%+v", err)
		logger.WithError(err).Error("job failed")
	} else {
		job.Status = StatusSuccessful
		job.Result = result
		logger.Info("job completed")
	}
	if err := p.store.MoveToDone(job); err != nil {
		p.logger.WithError(err).WithField("job_id", job.ID).Error("move to done failed")
	}
}

// Cancel signals the running job id to terminate, per spec.md §5's
// cancellation rule: "the worker process is signaled to terminate and the
// simulator subprocess is killed" — subprocess teardown is the
// Simulator implementation's responsibility once its context is done.
func (p *Pool) Cancel(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.cancels[id]
	if !ok {
		return false
	}
	cancel()
	return true
}
