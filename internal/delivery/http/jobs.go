package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/service"
)

func (h *HttpAPIHandler) SetupJobs(base *echo.Group) {
	v1 := base.Group("/v1/jobs")
	{
		v1.GET("/:id", h.getJob)
		v1.DELETE("/:id", h.deleteJob)
	}
}

func (h *HttpAPIHandler) getJob(c echo.Context) error {
	status, err := h.service.JobQueue.Status(c.Request().Context(), c.Param("id"))
	if errors.Is(err, service.ErrJobNotFound) {
		return c.JSON(http.StatusNotFound, dto.NewNotFoundResponse("job not found"))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(http.StatusInternalServerError, "failed to get job"))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse(string(status.Status), status))
}

func (h *HttpAPIHandler) deleteJob(c echo.Context) error {
	if err := h.service.JobQueue.DeleteJob(c.Request().Context(), c.Param("id")); err != nil {
		return c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(http.StatusInternalServerError, err.Error()))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Job deleted", nil))
}
