package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/repository"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/utils"
)

const (
	minProgress = 5
	maxProgress = 95
)

// JobQueue owns the job lifecycle. Other components only read the profile and
// hand back the terminal state through UpdateJob.
type JobQueue interface {
	AddJob(ctx context.Context, profile dto.UserProfile) (string, error)
	// GetJob returns nil without error when the job does not exist.
	GetJob(ctx context.Context, id string) (*dto.Job, error)
	UpdateJob(ctx context.Context, id string, update dto.JobUpdate) (*dto.Job, error)
	GetJobsByStatus(ctx context.Context, status dto.JobStatus, limit int) ([]dto.Job, error)
	DeleteJob(ctx context.Context, id string) error
	// ClaimJob moves a pending job to processing. false means someone else got it.
	ClaimJob(ctx context.Context, id string) (bool, error)
	Status(ctx context.Context, id string) (*dto.JobStatusResponse, error)
}

type jobQueue struct {
	cfg     config.Queue
	log     *logger.Logger
	jobRepo repository.JobRepository
	now     func() time.Time
}

func NewJobQueue(cfg config.Queue, log *logger.Logger, jobRepo repository.JobRepository) JobQueue {
	return newJobQueue(cfg, log, jobRepo, utils.TimeNow)
}

func newJobQueue(cfg config.Queue, log *logger.Logger, jobRepo repository.JobRepository, now func() time.Time) *jobQueue {
	return &jobQueue{
		cfg:     cfg,
		log:     log,
		jobRepo: jobRepo,
		now:     now,
	}
}

func (q *jobQueue) AddJob(ctx context.Context, profile dto.UserProfile) (string, error) {
	now := q.now()
	job := &dto.Job{
		ID:        uuid.NewString(),
		Type:      dto.JobTypePortfolioRecommendation,
		Status:    dto.JobStatusPending,
		Profile:   profile,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.jobRepo.Create(ctx, job); err != nil {
		q.log.ErrorContext(ctx, "Failed to enqueue job", logger.ErrorField(err))
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.log.InfoContext(ctx, "Job enqueued", logger.StringField("job_id", job.ID))
	return job.ID, nil
}

func (q *jobQueue) GetJob(ctx context.Context, id string) (*dto.Job, error) {
	job, err := q.jobRepo.Get(ctx, id)
	if errors.Is(err, repository.ErrJobNotFound) {
		return nil, nil
	}
	if err != nil {
		q.log.ErrorContext(ctx, "Failed to get job", logger.ErrorField(err), logger.StringField("job_id", id))
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (q *jobQueue) UpdateJob(ctx context.Context, id string, update dto.JobUpdate) (*dto.Job, error) {
	job, err := q.jobRepo.Update(ctx, id, update, q.now())
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		if errors.Is(err, repository.ErrJobFinished) {
			return nil, ErrJobFinished
		}
		q.log.ErrorContext(ctx, "Failed to update job", logger.ErrorField(err), logger.StringField("job_id", id))
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return job, nil
}

func (q *jobQueue) GetJobsByStatus(ctx context.Context, status dto.JobStatus, limit int) ([]dto.Job, error) {
	jobs, err := q.jobRepo.GetByStatus(ctx, status, limit)
	if err != nil {
		q.log.ErrorContext(ctx, "Failed to list jobs", logger.ErrorField(err), logger.StringField("status", string(status)))
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

func (q *jobQueue) DeleteJob(ctx context.Context, id string) error {
	if err := q.jobRepo.Delete(ctx, id); err != nil {
		q.log.ErrorContext(ctx, "Failed to delete job", logger.ErrorField(err), logger.StringField("job_id", id))
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (q *jobQueue) ClaimJob(ctx context.Context, id string) (bool, error) {
	claimed, err := q.jobRepo.Claim(ctx, id, q.now())
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	return claimed, nil
}

func (q *jobQueue) Status(ctx context.Context, id string) (*dto.JobStatusResponse, error) {
	job, err := q.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}

	resp := &dto.JobStatusResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  q.progress(job),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	switch job.Status {
	case dto.JobStatusCompleted:
		resp.Result = job.Result
	case dto.JobStatusFailed:
		resp.Error = job.Error
	}
	return resp, nil
}

// progress is a coarse estimate from elapsed time against the expected run time.
func (q *jobQueue) progress(job *dto.Job) int {
	if job.Status.Terminal() {
		return 100
	}
	expected := q.cfg.ExpectedDuration
	if expected <= 0 {
		return minProgress
	}
	pct := int(q.now().Sub(job.CreatedAt) * 100 / expected)
	if pct < minProgress {
		return minProgress
	}
	if pct > maxProgress {
		return maxProgress
	}
	return pct
}
