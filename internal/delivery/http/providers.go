package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"portfolio-advisor/internal/dto"
)

func (h *HttpAPIHandler) SetupProviders(base *echo.Group) {
	base.GET("/v1/providers", h.listProviders)
}

func (h *HttpAPIHandler) listProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Providers", h.service.ProviderOrchestrator.Providers()))
}
