package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/repository"
	"portfolio-advisor/internal/strategy"
	"portfolio-advisor/pkg/cache"
	"portfolio-advisor/pkg/logger"
)

type workerFixture struct {
	queue    JobQueue
	repo     repository.JobRepository
	executor TaskExecutor
	worker   Worker
}

func newWorkerFixture(gen *fakeGenerator, maxConcurrency int) *workerFixture {
	log := logger.NewNop()
	cfg := config.Queue{MaxConcurrency: maxConcurrency, PollInterval: 10 * time.Millisecond, JobTimeout: time.Second, JobTTL: time.Hour}
	repo := repository.NewMemoryJobRepository(cache.NewCache(time.Hour, time.Hour))
	queue := NewJobQueue(cfg, log, repo)

	cleaner := strategy.NewDataCleanUpStrategy(cfg, log, repo)
	strategies := map[strategy.JobType]strategy.JobExecutionStrategy{
		strategy.JobTypePortfolioRecommendation: strategy.NewPortfolioRecommendationStrategy(log, gen),
		strategy.JobTypeJobCleanUp:              cleaner,
	}
	executor := NewTaskExecutor(log, queue, strategies)
	return &workerFixture{
		queue:    queue,
		repo:     repo,
		executor: executor,
		worker:   NewWorker(cfg, log, queue, executor, cleaner),
	}
}

func (f *workerFixture) waitForStatus(t *testing.T, id string, want dto.JobStatus) *dto.Job {
	t.Helper()
	var job *dto.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = f.queue.GetJob(context.Background(), id)
		return err == nil && job != nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestWorker_PollCompletesJob(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	gen := &fakeGenerator{
		block: block,
		result: &dto.RecommendationResult{
			Recommendations: []dto.RecommendationItem{{Symbol: "VTI", Action: dto.ActionBuy, Amount: 1000}},
			Source:          "rule-based",
		},
	}
	f := newWorkerFixture(gen, 2)

	id, err := f.queue.AddJob(ctx, dto.UserProfile{RiskTolerance: 5, CapitalAvailable: 1000})
	require.NoError(t, err)

	started, err := f.worker.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, started)

	status, err := f.queue.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, dto.JobStatusProcessing, status.Status)

	// a second poll finds nothing pending
	started, err = f.worker.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, started)

	close(block)
	job := f.waitForStatus(t, id, dto.JobStatusCompleted)
	require.NotNil(t, job.Result)
	assert.Equal(t, "VTI", job.Result.Recommendations[0].Symbol)

	status, err = f.queue.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 100, status.Progress)
}

func TestWorker_FailedGenerationMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(&fakeGenerator{err: errors.New("recommendation unavailable")}, 1)

	id, err := f.queue.AddJob(ctx, dto.UserProfile{RiskTolerance: 5, CapitalAvailable: 1000})
	require.NoError(t, err)

	_, err = f.worker.Poll(ctx)
	require.NoError(t, err)

	job := f.waitForStatus(t, id, dto.JobStatusFailed)
	assert.Contains(t, job.Error, "recommendation unavailable")
	assert.Nil(t, job.Result)
}

func TestWorker_RespectsConcurrency(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	gen := &fakeGenerator{block: block, result: &dto.RecommendationResult{
		Recommendations: []dto.RecommendationItem{{Symbol: "VTI", Action: dto.ActionBuy, Amount: 1}},
	}}
	f := newWorkerFixture(gen, 2)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := f.queue.AddJob(ctx, dto.UserProfile{RiskTolerance: 5, CapitalAvailable: 1})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	started, err := f.worker.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, started)

	pending, err := f.queue.GetJobsByStatus(ctx, dto.JobStatusPending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	close(block)
	for _, id := range ids[:2] {
		f.waitForStatus(t, id, dto.JobStatusCompleted)
	}
}

func TestWorker_ConcurrentPollsClaimOnce(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{result: &dto.RecommendationResult{
		Recommendations: []dto.RecommendationItem{{Symbol: "VTI", Action: dto.ActionBuy, Amount: 1}},
	}}
	f := newWorkerFixture(gen, 1)
	other := NewWorker(config.Queue{MaxConcurrency: 1}, logger.NewNop(), f.queue,
		NewTaskExecutor(logger.NewNop(), f.queue, map[strategy.JobType]strategy.JobExecutionStrategy{
			strategy.JobTypePortfolioRecommendation: strategy.NewPortfolioRecommendationStrategy(logger.NewNop(), gen),
		}), nil)

	id, err := f.queue.AddJob(ctx, dto.UserProfile{RiskTolerance: 5, CapitalAvailable: 1})
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for _, w := range []Worker{f.worker, other} {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := w.Poll(ctx)
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
	f.waitForStatus(t, id, dto.JobStatusCompleted)
}

func TestWorker_StartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := &fakeGenerator{result: &dto.RecommendationResult{
		Recommendations: []dto.RecommendationItem{{Symbol: "BND", Action: dto.ActionBuy, Amount: 10}},
	}}
	f := newWorkerFixture(gen, 1)

	require.NoError(t, f.worker.Start(ctx))
	id, err := f.queue.AddJob(ctx, dto.UserProfile{RiskTolerance: 2, CapitalAvailable: 10})
	require.NoError(t, err)

	f.waitForStatus(t, id, dto.JobStatusCompleted)
	f.worker.Stop()
}

func TestWorker_CleanUp(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(&fakeGenerator{}, 1)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, f.repo.Create(ctx, &dto.Job{ID: "old", Type: dto.JobTypePortfolioRecommendation, Status: dto.JobStatusCompleted, CreatedAt: old, UpdatedAt: old}))

	f.worker.CleanUp(ctx)

	_, err := f.repo.Get(ctx, "old")
	assert.ErrorIs(t, err, repository.ErrJobNotFound)
}

func TestTaskExecutor_LateResultKeepsFailedJob(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{result: &dto.RecommendationResult{
		Recommendations: []dto.RecommendationItem{{Symbol: "VTI", Action: dto.ActionBuy, Amount: 1000}},
		Source:          "rule-based",
	}}
	f := newWorkerFixture(gen, 1)

	id, err := f.queue.AddJob(ctx, dto.UserProfile{RiskTolerance: 5, CapitalAvailable: 1000})
	require.NoError(t, err)
	claimed, err := f.queue.ClaimJob(ctx, id)
	require.NoError(t, err)
	require.True(t, claimed)
	job, err := f.queue.GetJob(ctx, id)
	require.NoError(t, err)

	failed := dto.JobStatusFailed
	msg := "job abandoned while processing"
	_, err = f.queue.UpdateJob(ctx, id, dto.JobUpdate{Status: &failed, Error: &msg})
	require.NoError(t, err)

	require.NoError(t, f.executor.Execute(ctx, job))

	got, err := f.queue.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, dto.JobStatusFailed, got.Status)
	assert.Equal(t, msg, got.Error)
	assert.Nil(t, got.Result)

	completed := dto.JobStatusCompleted
	_, err = f.queue.UpdateJob(ctx, id, dto.JobUpdate{Status: &completed})
	assert.ErrorIs(t, err, ErrJobFinished)
}
