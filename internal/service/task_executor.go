package service

import (
	"context"
	"errors"
	"fmt"

	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/strategy"
	"portfolio-advisor/pkg/logger"
)

type TaskExecutor interface {
	Execute(ctx context.Context, job *dto.Job) error
}

type taskExecutor struct {
	log                *logger.Logger
	queue              JobQueue
	executorStrategies map[strategy.JobType]strategy.JobExecutionStrategy
}

func NewTaskExecutor(log *logger.Logger, queue JobQueue, executorStrategies map[strategy.JobType]strategy.JobExecutionStrategy) TaskExecutor {
	return &taskExecutor{
		log:                log,
		queue:              queue,
		executorStrategies: executorStrategies,
	}
}

// Execute runs a claimed job and writes its terminal state.
func (t *taskExecutor) Execute(ctx context.Context, job *dto.Job) error {
	t.log.InfoContext(ctx, "Processing job", logger.StringField("job_id", job.ID), logger.StringField("job_type", job.Type))

	update := dto.JobUpdate{}
	status := dto.JobStatusCompleted

	executor := t.executorStrategies[strategy.JobType(job.Type)]
	if executor == nil {
		t.log.ErrorContext(ctx, "Job type not found", logger.StringField("job_id", job.ID), logger.StringField("job_type", job.Type))
		status = dto.JobStatusFailed
		msg := fmt.Sprintf("job type %q not supported", job.Type)
		update.Error = &msg
	} else {
		result, err := executor.Execute(ctx, job)
		if err != nil {
			t.log.ErrorContextWithAlert(ctx, "Failed to execute job",
				logger.ErrorField(err),
				logger.StringField("job_id", job.ID),
				logger.IntField("exit_code", int(result.ExitCode)),
			)
			status = dto.JobStatusFailed
			msg := err.Error()
			update.Error = &msg
		} else {
			update.Result = result.Result
			t.log.InfoContext(ctx, "Job completed",
				logger.StringField("job_id", job.ID),
				logger.IntField("exit_code", int(result.ExitCode)),
				logger.StringField("output", result.Output),
			)
		}
	}
	update.Status = &status

	// the job context may be spent, the terminal write still has to land
	writeCtx := context.WithoutCancel(ctx)
	if _, err := t.queue.UpdateJob(writeCtx, job.ID, update); err != nil {
		if errors.Is(err, ErrJobFinished) {
			// cleanup already failed it as stale
			t.log.WarnContext(ctx, "Job finished before its result was written, result discarded",
				logger.StringField("job_id", job.ID),
				logger.StringField("status", string(status)),
			)
			return nil
		}
		t.log.ErrorContext(ctx, "Failed to write job result", logger.ErrorField(err), logger.StringField("job_id", job.ID))
		return fmt.Errorf("failed to write job result: %w", err)
	}
	return nil
}
