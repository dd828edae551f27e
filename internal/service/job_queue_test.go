package service

import (
	"context"
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

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestQueue(clock *fakeClock) *jobQueue {
	repo := repository.NewMemoryJobRepository(cache.NewCache(time.Hour, time.Hour))
	return newJobQueue(config.Queue{ExpectedDuration: 100 * time.Second}, logger.NewNop(), repo, clock.Now)
}

func TestJobQueue_Lifecycle(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	q := newTestQueue(clock)

	profile := dto.UserProfile{RiskTolerance: 5, CapitalAvailable: 1000}
	id, err := q.AddJob(ctx, profile)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, dto.JobStatusPending, job.Status)
	assert.Equal(t, profile, job.Profile)
	assert.Equal(t, dto.JobTypePortfolioRecommendation, job.Type)

	status, err := q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, minProgress, status.Progress)

	claimed, err := q.ClaimJob(ctx, id)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = q.ClaimJob(ctx, id)
	require.NoError(t, err)
	assert.False(t, claimed)

	clock.now = clock.now.Add(40 * time.Second)
	status, err = q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, dto.JobStatusProcessing, status.Status)
	assert.Equal(t, 40, status.Progress)

	clock.now = clock.now.Add(10 * time.Minute)
	status, err = q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, maxProgress, status.Progress)

	completed := dto.JobStatusCompleted
	result := &dto.RecommendationResult{Source: "rule-based"}
	_, err = q.UpdateJob(ctx, id, dto.JobUpdate{Status: &completed, Result: result})
	require.NoError(t, err)

	status, err = q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, "rule-based", status.Result.Source)
	assert.Empty(t, status.Error)

	require.NoError(t, q.DeleteJob(ctx, id))
	_, err = q.Status(ctx, id)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobQueue_Missing(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(&fakeClock{now: time.Now()})

	job, err := q.GetJob(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, job)

	claimed, err := q.ClaimJob(ctx, "nope")
	assert.NoError(t, err)
	assert.False(t, claimed)

	failed := dto.JobStatusFailed
	_, err = q.UpdateJob(ctx, "nope", dto.JobUpdate{Status: &failed})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobQueue_FailedStatusCarriesError(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(&fakeClock{now: time.Now()})

	id, err := q.AddJob(ctx, dto.UserProfile{RiskTolerance: 1, CapitalAvailable: 10})
	require.NoError(t, err)

	failed := dto.JobStatusFailed
	msg := "generator exploded"
	_, err = q.UpdateJob(ctx, id, dto.JobUpdate{Status: &failed, Error: &msg})
	require.NoError(t, err)

	status, err := q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, dto.JobStatusFailed, status.Status)
	assert.Equal(t, msg, status.Error)
	assert.Nil(t, status.Result)
}
