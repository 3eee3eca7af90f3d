// Package worker executes submitted queries on a fixed set of workers and
// keeps job snapshots where the API can poll them.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free
	ErrQueueFull = errors.New("job queue is full")
	// ErrJobNotFound is returned by Get for unknown or expired jobs
	ErrJobNotFound = errors.New("job not found")
	// ErrStopped is returned by Submit after Stop
	ErrStopped = errors.New("worker pool stopped")
)

// Runner executes one query
type Runner interface {
	Run(ctx context.Context, q models.Query) (*models.QueryResult, error)
}

// Store keeps job snapshots
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error
}

// Options configures a Pool
type Options struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	JobTTL     time.Duration
}

// Stats are the pool counters
type Stats struct {
	Workers       int       `json:"workers"`
	ActiveWorkers int32     `json:"active_workers"`
	Pending       int       `json:"pending"`
	TotalJobs     int64     `json:"total_jobs"`
	CompletedJobs int64     `json:"completed_jobs"`
	FailedJobs    int64     `json:"failed_jobs"`
	StartTime     time.Time `json:"start_time"`
	Uptime        string    `json:"uptime"`
}

// Pool runs jobs on a fixed number of workers. Each job opens its own
// browsing session through the Runner.
type Pool struct {
	opts   Options
	runner Runner
	store  Store
	logger *logrus.Logger

	queue chan *models.Job

	totalJobs     int64
	completedJobs int64
	failedJobs    int64
	activeWorkers int32
	startTime     time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewPool creates a pool; call Start to launch the workers
func NewPool(opts Options, runner Runner, store Store, logger *logrus.Logger) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 100
	}
	if opts.JobTTL <= 0 {
		opts.JobTTL = 24 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		opts:      opts,
		runner:    runner,
		store:     store,
		logger:    logger,
		queue:     make(chan *models.Job, opts.QueueSize),
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func jobKey(id string) string {
	return "mca:job:" + id
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	p.logger.WithField("workers", p.opts.Workers).Info("Worker pool started")
}

// Stop cancels running jobs and waits for the workers to exit
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.logger.Info("Stopping worker pool...")
	p.cancel()
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// Submit queues a query and returns its pending job
func (p *Pool) Submit(ctx context.Context, q models.Query) (*models.Job, error) {
	job := &models.Job{
		ID:        uuid.New().String(),
		Query:     q,
		Status:    models.JobPending,
		CreatedAt: time.Now(),
	}
	if job.Query.ID == "" {
		job.Query.ID = job.ID
	}
	if job.Query.RequestedAt.IsZero() {
		job.Query.RequestedAt = job.CreatedAt
	}

	if err := p.save(ctx, job); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return nil, ErrStopped
	}

	select {
	case p.queue <- job:
		atomic.AddInt64(&p.totalJobs, 1)
	default:
		return nil, ErrQueueFull
	}

	p.logger.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"target":     q.Target,
		"identifier": q.Identifier,
	}).Info("Job queued")

	snapshot := *job
	return &snapshot, nil
}

// Get returns the latest snapshot of a job
func (p *Pool) Get(ctx context.Context, id string) (*models.Job, error) {
	raw, err := p.store.Get(ctx, jobKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	var job models.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// Stats returns the pool counters
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:       p.opts.Workers,
		ActiveWorkers: atomic.LoadInt32(&p.activeWorkers),
		Pending:       len(p.queue),
		TotalJobs:     atomic.LoadInt64(&p.totalJobs),
		CompletedJobs: atomic.LoadInt64(&p.completedJobs),
		FailedJobs:    atomic.LoadInt64(&p.failedJobs),
		StartTime:     p.startTime,
		Uptime:        time.Since(p.startTime).Round(time.Second).String(),
	}
}

// Health returns worker pool health status
func (p *Pool) Health() map[string]interface{} {
	p.mu.RLock()
	stopped := p.stopped
	p.mu.RUnlock()

	status := "healthy"
	if stopped {
		status = "stopped"
	}
	return map[string]interface{}{
		"status": status,
		"stats":  p.Stats(),
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	log := p.logger.WithField("worker_id", id)
	log.Debug("Worker started")

	for {
		select {
		case job, ok := <-p.queue:
			if !ok {
				log.Debug("Worker stopped")
				return
			}
			p.process(log, job)
		case <-p.ctx.Done():
			log.Debug("Worker stopped by context")
			return
		}
	}
}

func (p *Pool) process(log *logrus.Entry, job *models.Job) {
	atomic.AddInt32(&p.activeWorkers, 1)
	defer atomic.AddInt32(&p.activeWorkers, -1)

	log = log.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"target":     job.Query.Target,
		"identifier": job.Query.Identifier,
	})

	started := time.Now()
	job.Status = models.JobRunning
	job.StartedAt = &started
	if err := p.save(p.ctx, job); err != nil {
		log.WithError(err).Warn("Failed to save running job")
	}

	ctx := p.ctx
	if p.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.ctx, p.opts.JobTimeout)
		defer cancel()
	}

	result, err := p.runner.Run(ctx, job.Query)

	finished := time.Now()
	job.FinishedAt = &finished
	if err != nil {
		job.Status = models.JobError
		job.Error = err.Error()
		atomic.AddInt64(&p.failedJobs, 1)
		log.WithFields(logrus.Fields{
			"error":    err.Error(),
			"duration": finished.Sub(started),
		}).Error("Job failed")
	} else {
		job.Status = models.JobDone
		job.Result = result
		atomic.AddInt64(&p.completedJobs, 1)
		log.WithFields(logrus.Fields{
			"status":   result.Status,
			"duration": finished.Sub(started),
		}).Info("Job completed")
	}

	// the pool context may be cancelled by now; the final state must still land
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.save(saveCtx, job); err != nil {
		log.WithError(err).Error("Failed to save finished job")
	}
}

func (p *Pool) save(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := p.store.SetWithTTL(ctx, jobKey(job.ID), string(data), p.opts.JobTTL); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}
