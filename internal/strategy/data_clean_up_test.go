package strategy

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/repository"
	"portfolio-advisor/pkg/cache"
	"portfolio-advisor/pkg/logger"
)

func seedJob(t *testing.T, repo repository.JobRepository, id string, status dto.JobStatus, updatedAt time.Time) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &dto.Job{
		ID:        id,
		Type:      dto.JobTypePortfolioRecommendation,
		Status:    status,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}))
}

func TestDataCleanUpStrategy_Execute(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := repository.NewMemoryJobRepository(cache.NewCache(time.Hour, time.Hour))

	seedJob(t, repo, "old-done", dto.JobStatusCompleted, now.Add(-48*time.Hour))
	seedJob(t, repo, "new-done", dto.JobStatusCompleted, now.Add(-time.Hour))
	seedJob(t, repo, "old-failed", dto.JobStatusFailed, now.Add(-25*time.Hour))
	seedJob(t, repo, "stuck", dto.JobStatusProcessing, now.Add(-20*time.Minute))
	seedJob(t, repo, "running", dto.JobStatusProcessing, now.Add(-time.Minute))
	seedJob(t, repo, "waiting", dto.JobStatusPending, now.Add(-72*time.Hour))

	cleaner := NewDataCleanUpStrategy(config.Queue{JobTTL: 24 * time.Hour, ProcessingStaleAfter: 10 * time.Minute}, logger.NewNop(), repo).(*DataCleanUpStrategy)
	cleaner.now = func() time.Time { return now }

	result, err := cleaner.Execute(ctx, &dto.Job{ID: "clean-up", Type: string(JobTypeJobCleanUp)})
	require.NoError(t, err)
	assert.EqualValues(t, JOB_EXIT_CODE_SUCCESS, result.ExitCode)

	var out []DataCleanUpResult
	require.NoError(t, json.Unmarshal([]byte(result.Output), &out))
	assert.Equal(t, []DataCleanUpResult{
		{Status: dto.JobStatusCompleted, Total: 1},
		{Status: dto.JobStatusFailed, Total: 1},
		{Status: dto.JobStatusProcessing, Total: 1},
	}, out)

	for _, id := range []string{"old-done", "old-failed"} {
		_, err := repo.Get(ctx, id)
		assert.ErrorIs(t, err, repository.ErrJobNotFound, id)
	}
	for _, id := range []string{"new-done", "running", "waiting"} {
		_, err := repo.Get(ctx, id)
		assert.NoError(t, err, id)
	}

	stuck, err := repo.Get(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, dto.JobStatusFailed, stuck.Status)
	assert.Equal(t, staleJobError, stuck.Error)
	assert.Equal(t, JobTypeJobCleanUp, cleaner.GetType())
}
