// Package worker provides a bounded asynchronous worker pool for background
// side work: vector re-indexing, event publishing and read-through promotion.
//
// The pool keeps that work off the request and sync paths. Jobs are best
// effort; a full queue drops the job and logs it.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 30 * time.Second
)

// Job is a unit of work for the worker pool to execute.
type Job struct {
	// Name identifies the job in logs, e.g. "index" or "promote".
	Name string

	// Key is the memory key the job concerns.
	Key string

	Run func(ctx context.Context) error
}

// Config is the configuration options for the worker pool.
type Config struct {
	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds each job (defaults to 30s).
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool runs jobs asynchronously.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed", "job", job.Name, "key", job.Key)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued", "job", job.Name, "key", job.Key)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped", "job", job.Name, "key", job.Key)
		return false
	}
}

// Close stops accepting jobs and waits for queued jobs to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	if err := job.Run(ctx); err != nil {
		p.logger.Warn("background job failed",
			"job", job.Name,
			"key", job.Key,
			"error", err,
		)
		return
	}

	p.logger.Debug("background job done", "job", job.Name, "key", job.Key)
}
