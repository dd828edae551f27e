package http

import (
	"context"
	"net/http"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/service"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/middleware"
)

type HttpAPIHandler struct {
	cfg       *config.Config
	log       *logger.Logger
	echo      *echo.Echo
	validator *goValidator.Validate
	service   *service.Service
}

func NewHttpAPIHandler(ctx context.Context, cfg *config.Config, log *logger.Logger, echo *echo.Echo, validator *goValidator.Validate, service *service.Service) *HttpAPIHandler {
	return &HttpAPIHandler{
		cfg:       cfg,
		log:       log,
		echo:      echo,
		validator: validator,
		service:   service,
	}
}

func (h *HttpAPIHandler) SetupRoutes() {
	h.echo.HideBanner = true
	h.echo.Use(
		middleware.WithRequestContext(h.log, h.cfg.API.RequestTimeout),
		middleware.NewRateLimiterMiddleware(h.cfg.API.RateLimit, h.cfg.API.RateBurst),
	)

	h.echo.GET("/healthz", h.healthz)

	base := h.echo.Group("/api")
	h.SetupRecommendations(base)
	h.SetupJobs(base)
	h.SetupQuotes(base)
	h.SetupProviders(base)
}

func (h *HttpAPIHandler) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", nil))
}
