package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/strategy"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/utils"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop()
	// Poll claims up to the free concurrency worth of pending jobs and starts them.
	Poll(ctx context.Context) (int, error)
	CleanUp(ctx context.Context)
}

type worker struct {
	cfg          config.Queue
	log          *logger.Logger
	queue        JobQueue
	taskExecutor TaskExecutor
	cleaner      strategy.JobExecutionStrategy
	cron         *cron.Cron
	semaphore    chan struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(
	cfg config.Queue,
	log *logger.Logger,
	queue JobQueue,
	taskExecutor TaskExecutor,
	cleaner strategy.JobExecutionStrategy,
) Worker {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &worker{
		cfg:          cfg,
		log:          log,
		queue:        queue,
		taskExecutor: taskExecutor,
		cleaner:      cleaner,
		cron:         cron.New(cron.WithLocation(time.UTC)),
		semaphore:    make(chan struct{}, maxConcurrency),
	}
}

func (w *worker) Start(ctx context.Context) error {
	if w.cleaner != nil && w.cfg.CleanupSpec != "" {
		if _, err := w.cron.AddFunc(w.cfg.CleanupSpec, func() { w.CleanUp(ctx) }); err != nil {
			w.log.Error("Failed to schedule job clean up", logger.ErrorField(err), logger.StringField("spec", w.cfg.CleanupSpec))
			return fmt.Errorf("failed to schedule job clean up: %w", err)
		}
	}
	w.cron.Start()

	interval := w.cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	w.log.Info("Worker started",
		logger.StringField("poll_interval", interval.String()),
		logger.IntField("max_concurrency", cap(w.semaphore)),
	)

	utils.GoSafe(func() {
		defer close(w.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if _, err := w.Poll(loopCtx); err != nil {
					w.log.WarnContext(loopCtx, "Worker poll failed", logger.ErrorField(err))
				}
			}
		}
	})
	return nil
}

// Stop ends polling and waits for in-flight jobs to finish.
func (w *worker) Stop() {
	w.log.Info("Stopping worker")
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
	<-w.cron.Stop().Done()
	w.wg.Wait()
	w.log.Info("Worker stopped")
}

func (w *worker) Poll(ctx context.Context) (int, error) {
	free := cap(w.semaphore) - len(w.semaphore)
	if free <= 0 {
		return 0, nil
	}

	jobs, err := w.queue.GetJobsByStatus(ctx, dto.JobStatusPending, free)
	if err != nil {
		return 0, err
	}

	started := 0
	for i := range jobs {
		if !utils.ShouldContinue(ctx, w.log) {
			break
		}
		job := jobs[i]

		claimed, err := w.queue.ClaimJob(ctx, job.ID)
		if err != nil {
			w.log.ErrorContext(ctx, "Failed to claim job", logger.ErrorField(err), logger.StringField("job_id", job.ID))
			continue
		}
		if !claimed {
			w.log.DebugContext(ctx, "Job already claimed", logger.StringField("job_id", job.ID))
			continue
		}
		job.Status = dto.JobStatusProcessing

		w.semaphore <- struct{}{}
		w.wg.Add(1)
		started++
		utils.GoSafe(func() {
			defer w.wg.Done()
			defer func() {
				<-w.semaphore
			}()

			timeout := w.cfg.JobTimeout
			if timeout <= 0 {
				timeout = 3 * time.Minute
			}
			jobCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := w.taskExecutor.Execute(jobCtx, &job); err != nil {
				w.log.ErrorContextWithAlert(jobCtx, "Failed to execute task", logger.ErrorField(err), logger.StringField("job_id", job.ID))
			}
		})
	}
	return started, nil
}

func (w *worker) CleanUp(ctx context.Context) {
	job := &dto.Job{
		ID:     fmt.Sprintf("clean-up-%d", utils.TimeNow().Unix()),
		Type:   string(strategy.JobTypeJobCleanUp),
		Status: dto.JobStatusProcessing,
	}
	result, err := w.cleaner.Execute(ctx, job)
	if err != nil {
		w.log.ErrorContext(ctx, "Job clean up failed", logger.ErrorField(err))
		return
	}
	w.log.InfoContext(ctx, "Job clean up finished",
		logger.IntField("exit_code", int(result.ExitCode)),
		logger.StringField("output", result.Output),
	)
}
