package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/repository"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/utils"
)

const staleJobError = "job abandoned while processing"

type DataCleaner interface {
	JobExecutionStrategy
}

type DataCleanUpResult struct {
	Status dto.JobStatus `json:"status"`
	Total  int           `json:"total"`
	Error  string        `json:"error,omitempty"`
}

type DataCleanUpStrategy struct {
	cfg     config.Queue
	log     *logger.Logger
	JobRepo repository.JobRepository
	now     func() time.Time
}

// NewDataCleanUpStrategy deletes terminal jobs older than the job TTL and fails
// jobs stuck in processing, which happens when a worker dies mid-run.
func NewDataCleanUpStrategy(cfg config.Queue, log *logger.Logger, jobRepo repository.JobRepository) DataCleaner {
	return &DataCleanUpStrategy{
		cfg:     cfg,
		log:     log,
		JobRepo: jobRepo,
		now:     utils.TimeNow,
	}
}

func (s *DataCleanUpStrategy) Execute(ctx context.Context, job *dto.Job) (JobResult, error) {
	s.log.DebugContext(ctx, "Starting job clean up")

	now := s.now()
	outputMsg := []DataCleanUpResult{}
	failed := false

	for _, status := range []dto.JobStatus{dto.JobStatusCompleted, dto.JobStatusFailed} {
		total, err := s.deleteOlderThan(ctx, status, now.Add(-s.cfg.JobTTL))
		res := DataCleanUpResult{Status: status, Total: total}
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to delete expired jobs", logger.ErrorField(err), logger.StringField("status", string(status)))
			res.Error = err.Error()
			failed = true
		}
		outputMsg = append(outputMsg, res)
	}

	if s.cfg.ProcessingStaleAfter > 0 {
		total, err := s.failStale(ctx, now)
		res := DataCleanUpResult{Status: dto.JobStatusProcessing, Total: total}
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to fail stale jobs", logger.ErrorField(err))
			res.Error = err.Error()
			failed = true
		}
		outputMsg = append(outputMsg, res)
	}

	res, err := json.Marshal(outputMsg)
	if err != nil {
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED, Output: fmt.Sprintf("failed to marshal output message: %v", err)}, fmt.Errorf("failed to marshal output message: %w", err)
	}
	if failed {
		return JobResult{ExitCode: JOB_EXIT_CODE_PARTIAL_SUCCESS, Output: string(res)}, nil
	}
	return JobResult{ExitCode: JOB_EXIT_CODE_SUCCESS, Output: string(res)}, nil
}

func (s *DataCleanUpStrategy) deleteOlderThan(ctx context.Context, status dto.JobStatus, cutoff time.Time) (int, error) {
	jobs, err := s.JobRepo.GetByStatus(ctx, status, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s jobs: %w", status, err)
	}

	deleted := 0
	for _, job := range jobs {
		if !job.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.JobRepo.Delete(ctx, job.ID); err != nil {
			return deleted, fmt.Errorf("failed to delete job %s: %w", job.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

func (s *DataCleanUpStrategy) failStale(ctx context.Context, now time.Time) (int, error) {
	jobs, err := s.JobRepo.GetByStatus(ctx, dto.JobStatusProcessing, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list processing jobs: %w", err)
	}

	cutoff := now.Add(-s.cfg.ProcessingStaleAfter)
	failedStatus := dto.JobStatusFailed
	msg := staleJobError
	total := 0
	for _, job := range jobs {
		if !job.UpdatedAt.Before(cutoff) {
			continue
		}
		if _, err := s.JobRepo.Update(ctx, job.ID, dto.JobUpdate{Status: &failedStatus, Error: &msg}, now); err != nil {
			if errors.Is(err, repository.ErrJobFinished) || errors.Is(err, repository.ErrJobNotFound) {
				continue
			}
			return total, fmt.Errorf("failed to fail job %s: %w", job.ID, err)
		}
		s.log.WarnContext(ctx, "Stale job marked failed", logger.StringField("job_id", job.ID))
		total++
	}
	return total, nil
}

func (s *DataCleanUpStrategy) GetType() JobType {
	return JobTypeJobCleanUp
}
