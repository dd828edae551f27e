package contract

import (
	"context"

	"portfolio-advisor/internal/dto"
)

type RecommendationContract interface {
	Generate(ctx context.Context, profile dto.UserProfile) (*dto.RecommendationResult, error)
}
