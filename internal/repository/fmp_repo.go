package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/utils"
)

type fmpQuote struct {
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Price             float64 `json:"price"`
	ChangesPercentage float64 `json:"changesPercentage"`
	Change            float64 `json:"change"`
	Volume            int64   `json:"volume"`
	MarketCap         float64 `json:"marketCap"`
	PE                float64 `json:"pe"`
	Timestamp         int64   `json:"timestamp"`
}

type fmpErrorResponse struct {
	ErrorMessage string `json:"Error Message"`
}

type fmpHistoricalResponse struct {
	Symbol     string `json:"symbol"`
	Historical []struct {
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume float64 `json:"volume"`
	} `json:"historical"`
}

type fmpRepository struct {
	quoteProviderBase
}

func NewFMPRepository(cfg config.Provider, limiter RequestLimiter, log *logger.Logger) HistoricalProvider {
	return &fmpRepository{
		quoteProviderBase: newQuoteProviderBase(dto.ProviderFMP, cfg, limiter, log),
	}
}

// checkError catches the {"Error Message": ...} object FMP sends in place of the usual payload.
func (r *fmpRepository) checkError(ctx context.Context, status int, body []byte) error {
	var errResp fmpErrorResponse
	if json.Unmarshal(body, &errResp) != nil || errResp.ErrorMessage == "" {
		return nil
	}
	kind := ErrKindInvalidResponse
	switch {
	case containsFold(errResp.ErrorMessage, "limit reach"):
		kind = ErrKindQuotaExhausted
	case containsFold(errResp.ErrorMessage, "invalid api key"):
		kind = ErrKindAuthFailed
	}
	return r.fail(ctx, kind, status, body, errors.New(errResp.ErrorMessage))
}

func (r *fmpRepository) GetQuote(ctx context.Context, symbol string) (*dto.Quote, error) {
	symbol = normalizeSymbol(symbol)
	resp, err := r.get(ctx, "/api/v3/quote/"+symbol, map[string]string{"apikey": r.apiKey})
	if err != nil {
		return nil, err
	}
	if err := r.checkError(ctx, resp.StatusCode, resp.Body); err != nil {
		return nil, err
	}

	var out []fmpQuote
	if err := r.decode(ctx, resp, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 || out[0].Price <= 0 {
		return nil, r.fail(ctx, ErrKindInvalidSymbol, resp.StatusCode, resp.Body, errors.New("no quote for "+symbol))
	}

	q := out[0]
	quote := &dto.Quote{
		Symbol:        symbol,
		Name:          q.Name,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangesPercentage,
		Volume:        q.Volume,
		Source:        dto.ProviderFMP,
		Timestamp:     utils.TimeNow(),
	}
	if quote.Name == "" {
		quote.Name = symbol
	}
	if q.MarketCap > 0 {
		quote.MarketCap = utils.ToPointer(q.MarketCap)
	}
	if q.PE > 0 {
		quote.PERatio = utils.ToPointer(q.PE)
	}
	if q.Timestamp > 0 {
		quote.Timestamp = time.Unix(q.Timestamp, 0).UTC()
	}
	return quote, nil
}

func (r *fmpRepository) GetHistory(ctx context.Context, symbol string, days int) ([]dto.PricePoint, error) {
	symbol = normalizeSymbol(symbol)
	resp, err := r.get(ctx, "/api/v3/historical-price-full/"+symbol, map[string]string{
		"timeseries": strconv.Itoa(days),
		"apikey":     r.apiKey,
	})
	if err != nil {
		return nil, err
	}
	if err := r.checkError(ctx, resp.StatusCode, resp.Body); err != nil {
		return nil, err
	}

	var out fmpHistoricalResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, r.fail(ctx, ErrKindInvalidResponse, resp.StatusCode, resp.Body, fmt.Errorf("failed to decode historical prices: %w", err))
	}

	points := make([]dto.PricePoint, 0, len(out.Historical))
	for _, h := range out.Historical {
		date, err := time.Parse("2006-01-02", h.Date)
		if err != nil {
			continue
		}
		points = append(points, dto.PricePoint{
			Date:   date,
			Open:   h.Open,
			High:   h.High,
			Low:    h.Low,
			Close:  h.Close,
			Volume: int64(h.Volume),
		})
	}
	if len(points) == 0 {
		return nil, r.fail(ctx, ErrKindInvalidSymbol, resp.StatusCode, resp.Body, errors.New("empty historical series"))
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}
