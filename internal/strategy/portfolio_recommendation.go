package strategy

import (
	"context"
	"errors"
	"fmt"

	"portfolio-advisor/internal/contract"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/pkg/logger"
)

type PortfolioRecommender interface {
	JobExecutionStrategy
}

type PortfolioRecommendationStrategy struct {
	log       *logger.Logger
	generator contract.RecommendationContract
}

func NewPortfolioRecommendationStrategy(log *logger.Logger, generator contract.RecommendationContract) PortfolioRecommender {
	return &PortfolioRecommendationStrategy{
		log:       log,
		generator: generator,
	}
}

func (s *PortfolioRecommendationStrategy) Execute(ctx context.Context, job *dto.Job) (JobResult, error) {
	s.log.InfoContext(ctx, "Generating recommendations", logger.StringField("job_id", job.ID))

	result, err := s.generator.Generate(ctx, job.Profile)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to generate recommendations", logger.ErrorField(err), logger.StringField("job_id", job.ID))
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED, Output: err.Error()}, fmt.Errorf("failed to generate recommendations: %w", err)
	}
	if result == nil || len(result.Recommendations) == 0 {
		err := errors.New("generator returned no recommendations")
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED, Output: err.Error()}, err
	}

	exitCode := int32(JOB_EXIT_CODE_SUCCESS)
	if len(result.Warnings) > 0 {
		exitCode = JOB_EXIT_CODE_PARTIAL_SUCCESS
	}
	return JobResult{
		ExitCode: exitCode,
		Output:   fmt.Sprintf("%d recommendations from %s", len(result.Recommendations), result.Source),
		Result:   result,
	}, nil
}

func (s *PortfolioRecommendationStrategy) GetType() JobType {
	return JobTypePortfolioRecommendation
}
