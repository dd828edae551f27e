package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/service"
	"portfolio-advisor/pkg/logger"
)

func (h *HttpAPIHandler) SetupRecommendations(base *echo.Group) {
	v1 := base.Group("/v1/recommendations")
	{
		v1.POST("", h.createRecommendation)
	}
}

// createRecommendation answers synchronously with ?mode=sync or when the queue
// is disabled, otherwise it enqueues a job and returns 202 with its id.
func (h *HttpAPIHandler) createRecommendation(c echo.Context) error {
	ctx := c.Request().Context()

	profile := new(dto.UserProfile)
	if err := c.Bind(profile); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body"))
	}
	profile.Normalize()
	if err := profile.Validate(h.validator); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	if c.QueryParam("mode") == "sync" || !h.cfg.Queue.Enabled {
		result, err := h.service.RecommendationGenerator.Generate(ctx, *profile)
		if err != nil {
			h.log.FromContext(ctx).ErrorContext(ctx, "Failed to generate recommendations", logger.ErrorField(err))
			code := http.StatusInternalServerError
			if errors.Is(err, service.ErrNoAIBackendConfigured) {
				code = http.StatusServiceUnavailable
			}
			return c.JSON(code, dto.NewErrorResponse(code, err.Error()))
		}
		return c.JSON(http.StatusOK, dto.NewSuccessResponse("Recommendations generated", result))
	}

	jobID, err := h.service.JobQueue.AddJob(ctx, *profile)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(http.StatusInternalServerError, "failed to enqueue job"))
	}
	return c.JSON(http.StatusAccepted, dto.NewAcceptedResponse("Job accepted, poll for the result",
		dto.JobAcceptedResponse{JobID: jobID, Status: dto.JobStatusPending}))
}
