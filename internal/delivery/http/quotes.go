package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"portfolio-advisor/internal/dto"
)

const (
	defaultHistoryDays = 30
	maxHistoryDays     = 365
	maxSymbolLength    = 15
)

func (h *HttpAPIHandler) SetupQuotes(base *echo.Group) {
	v1 := base.Group("/v1/quotes")
	{
		v1.GET("/:symbol", h.getQuote)
		v1.GET("/:symbol/history", h.getHistory)
	}
}

func symbolParam(c echo.Context) (string, bool) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	return symbol, symbol != "" && len(symbol) <= maxSymbolLength
}

func (h *HttpAPIHandler) getQuote(c echo.Context) error {
	symbol, ok := symbolParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid symbol"))
	}

	quote := h.service.ProviderOrchestrator.GetStockData(c.Request().Context(), symbol)
	if quote == nil {
		return c.JSON(http.StatusNotFound, dto.NewNotFoundResponse("quote unavailable"))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Quote found", quote))
}

func (h *HttpAPIHandler) getHistory(c echo.Context) error {
	symbol, ok := symbolParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid symbol"))
	}

	days := defaultHistoryDays
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryDays {
			return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("days must be between 1 and 365"))
		}
		days = n
	}

	points := h.service.ProviderOrchestrator.GetHistoricalData(c.Request().Context(), symbol, days)
	if len(points) == 0 {
		return c.JSON(http.StatusNotFound, dto.NewNotFoundResponse("history unavailable"))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("History found", points))
}
