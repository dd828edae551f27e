package service

import (
	"errors"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/repository"
	"portfolio-advisor/internal/strategy"
	"portfolio-advisor/pkg/cache"
	"portfolio-advisor/pkg/logger"
)

var (
	// ErrNoAIBackendConfigured is a configuration error and is never retried.
	ErrNoAIBackendConfigured = errors.New("no AI backend configured: set at least one AI api key")
	// ErrNoValidRecommendations means the model output had no usable item after repair.
	ErrNoValidRecommendations = errors.New("no valid recommendations in AI response")
	// ErrRecommendationUnavailable is returned when every path, the rule-based one included, came up empty.
	ErrRecommendationUnavailable = errors.New("recommendation unavailable")
	ErrJobNotFound               = repository.ErrJobNotFound
	ErrJobFinished               = repository.ErrJobFinished
)

type Service struct {
	ProviderOrchestrator    ProviderOrchestrator
	MarketContext           MarketContextAssembler
	RecommendationGenerator RecommendationGenerator
	JobQueue                JobQueue
	TaskExecutor            TaskExecutor
	Worker                  Worker
}

func NewService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	providerSet ProviderSet,
	inmemoryCache cache.Cache,
) *Service {
	orchestrator := NewProviderOrchestrator(providerSet, log)
	marketContext := NewMarketContextAssembler(orchestrator, log)
	generator := NewRecommendationGenerator(cfg, log, repo.AIBackends, marketContext, repo.NewsRepo, inmemoryCache)

	jobQueue := NewJobQueue(cfg.Queue, log, repo.JobRepo)

	executorStrategies := make(map[strategy.JobType]strategy.JobExecutionStrategy)
	executorStrategies[strategy.JobTypePortfolioRecommendation] = strategy.NewPortfolioRecommendationStrategy(log, generator)
	cleaner := strategy.NewDataCleanUpStrategy(cfg.Queue, log, repo.JobRepo)
	executorStrategies[strategy.JobTypeJobCleanUp] = cleaner

	taskExecutor := NewTaskExecutor(log, jobQueue, executorStrategies)
	worker := NewWorker(cfg.Queue, log, jobQueue, taskExecutor, cleaner)

	return &Service{
		ProviderOrchestrator:    orchestrator,
		MarketContext:           marketContext,
		RecommendationGenerator: generator,
		JobQueue:                jobQueue,
		TaskExecutor:            taskExecutor,
		Worker:                  worker,
	}
}
