package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nexconsult/mca-verify/internal/logger"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", errors.New("miss")
	}
	return v, nil
}

func (m *memStore) SetWithTTL(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

type runnerFunc func(ctx context.Context, q models.Query) (*models.QueryResult, error)

func (f runnerFunc) Run(ctx context.Context, q models.Query) (*models.QueryResult, error) {
	return f(ctx, q)
}

func waitForStatus(t *testing.T, p *Pool, id string, status models.JobStatus) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		j, err := p.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == status
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestPool_RunsSubmittedJob(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, q models.Query) (*models.QueryResult, error) {
		return &models.QueryResult{ID: q.ID, Target: q.Target, Identifier: q.Identifier, Status: models.StatusSucceeded}, nil
	})
	p := NewPool(Options{Workers: 2, QueueSize: 4}, runner, newMemStore(), logger.Discard())
	p.Start()
	defer p.Stop()

	job, err := p.Submit(context.Background(), models.Query{Target: "din-status", Identifier: "01234567"})
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, job.ID, job.Query.ID)

	done := waitForStatus(t, p, job.ID, models.JobDone)
	require.NotNil(t, done.Result)
	assert.Equal(t, models.StatusSucceeded, done.Result.Status)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.FinishedAt)

	stats := p.Stats()
	assert.EqualValues(t, 1, stats.TotalJobs)
	assert.EqualValues(t, 1, stats.CompletedJobs)
}

func TestPool_RecordsRunnerError(t *testing.T) {
	runner := runnerFunc(func(context.Context, models.Query) (*models.QueryResult, error) {
		return nil, errors.New("open browsing session: no chrome")
	})
	p := NewPool(Options{Workers: 1}, runner, newMemStore(), logger.Discard())
	p.Start()
	defer p.Stop()

	job, err := p.Submit(context.Background(), models.Query{Target: "annual-filing", Identifier: "X"})
	require.NoError(t, err)

	failed := waitForStatus(t, p, job.ID, models.JobError)
	assert.Contains(t, failed.Error, "no chrome")
	assert.EqualValues(t, 1, p.Stats().FailedJobs)
}

func TestPool_QueueFull(t *testing.T) {
	// workers are never started so the queue only fills up
	p := NewPool(Options{Workers: 1, QueueSize: 1}, runnerFunc(func(context.Context, models.Query) (*models.QueryResult, error) {
		return &models.QueryResult{}, nil
	}), newMemStore(), logger.Discard())

	_, err := p.Submit(context.Background(), models.Query{Target: "a"})
	require.NoError(t, err)
	_, err = p.Submit(context.Background(), models.Query{Target: "b"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestPool_GetUnknownJob(t *testing.T) {
	p := NewPool(Options{}, nil, newMemStore(), logger.Discard())
	_, err := p.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := NewPool(Options{}, nil, newMemStore(), logger.Discard())
	p.Start()
	p.Stop()
	p.Stop()

	_, err := p.Submit(context.Background(), models.Query{Target: "a"})
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, "stopped", p.Health()["status"])
}

func TestPool_JobTimeoutCancelsRun(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, _ models.Query) (*models.QueryResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p := NewPool(Options{Workers: 1, JobTimeout: 20 * time.Millisecond}, runner, newMemStore(), logger.Discard())
	p.Start()
	defer p.Stop()

	job, err := p.Submit(context.Background(), models.Query{Target: "a"})
	require.NoError(t, err)

	failed := waitForStatus(t, p, job.ID, models.JobError)
	assert.Contains(t, failed.Error, context.DeadlineExceeded.Error())
}
