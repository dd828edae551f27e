package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/utils"
)

// Alpha Vantage answers rate limits and bad symbols with HTTP 200 and one of these keys.
type alphaVantageEnvelope struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

type alphaVantageQuoteResponse struct {
	alphaVantageEnvelope
	GlobalQuote struct {
		Symbol           string `json:"01. symbol"`
		Open             string `json:"02. open"`
		High             string `json:"03. high"`
		Low              string `json:"04. low"`
		Price            string `json:"05. price"`
		Volume           string `json:"06. volume"`
		LatestTradingDay string `json:"07. latest trading day"`
		PreviousClose    string `json:"08. previous close"`
		Change           string `json:"09. change"`
		ChangePercent    string `json:"10. change percent"`
	} `json:"Global Quote"`
}

type alphaVantageDailyResponse struct {
	alphaVantageEnvelope
	Series map[string]struct {
		Open   string `json:"1. open"`
		High   string `json:"2. high"`
		Low    string `json:"3. low"`
		Close  string `json:"4. close"`
		Volume string `json:"5. volume"`
	} `json:"Time Series (Daily)"`
}

type alphaVantageRepository struct {
	quoteProviderBase
}

func NewAlphaVantageRepository(cfg config.Provider, limiter RequestLimiter, log *logger.Logger) HistoricalProvider {
	return &alphaVantageRepository{
		quoteProviderBase: newQuoteProviderBase(dto.ProviderAlphaVantage, cfg, limiter, log),
	}
}

func (r *alphaVantageRepository) checkEnvelope(ctx context.Context, status int, body []byte, env alphaVantageEnvelope) error {
	switch {
	case env.ErrorMessage != "":
		return r.fail(ctx, ErrKindInvalidSymbol, status, body, errors.New(env.ErrorMessage))
	case env.Note != "":
		return r.fail(ctx, ErrKindRateLimited, status, body, errors.New(env.Note))
	case env.Information != "":
		// premium-only endpoints and invalid keys are also reported under "Information"
		kind := ErrKindRateLimited
		lower := strings.ToLower(env.Information)
		if strings.Contains(lower, "api key") && strings.Contains(lower, "invalid") {
			kind = ErrKindAuthFailed
		}
		return r.fail(ctx, kind, status, body, errors.New(env.Information))
	}
	return nil
}

func (r *alphaVantageRepository) GetQuote(ctx context.Context, symbol string) (*dto.Quote, error) {
	symbol = normalizeSymbol(symbol)
	resp, err := r.get(ctx, "/query", map[string]string{
		"function": "GLOBAL_QUOTE",
		"symbol":   symbol,
		"apikey":   r.apiKey,
	})
	if err != nil {
		return nil, err
	}

	var out alphaVantageQuoteResponse
	if err := r.decode(ctx, resp, &out); err != nil {
		return nil, err
	}
	if err := r.checkEnvelope(ctx, resp.StatusCode, resp.Body, out.alphaVantageEnvelope); err != nil {
		return nil, err
	}

	gq := out.GlobalQuote
	price := parseNumber(gq.Price)
	if gq.Symbol == "" || price <= 0 {
		return nil, r.fail(ctx, ErrKindInvalidSymbol, resp.StatusCode, resp.Body, errors.New("empty global quote for "+symbol))
	}

	ts := utils.TimeNow()
	if day, err := time.Parse("2006-01-02", gq.LatestTradingDay); err == nil {
		ts = day
	}
	return &dto.Quote{
		Symbol:        symbol,
		Name:          symbol,
		Price:         price,
		Change:        parseNumber(gq.Change),
		ChangePercent: parseNumber(gq.ChangePercent),
		Volume:        parseInt(gq.Volume),
		Source:        dto.ProviderAlphaVantage,
		Timestamp:     ts,
	}, nil
}

func (r *alphaVantageRepository) GetHistory(ctx context.Context, symbol string, days int) ([]dto.PricePoint, error) {
	symbol = normalizeSymbol(symbol)
	outputSize := "compact"
	if days > 100 {
		outputSize = "full"
	}
	resp, err := r.get(ctx, "/query", map[string]string{
		"function":   "TIME_SERIES_DAILY",
		"symbol":     symbol,
		"outputsize": outputSize,
		"apikey":     r.apiKey,
	})
	if err != nil {
		return nil, err
	}

	var out alphaVantageDailyResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, r.fail(ctx, ErrKindInvalidResponse, resp.StatusCode, resp.Body, fmt.Errorf("failed to decode daily series: %w", err))
	}
	if err := r.checkEnvelope(ctx, resp.StatusCode, resp.Body, out.alphaVantageEnvelope); err != nil {
		return nil, err
	}

	points := make([]dto.PricePoint, 0, len(out.Series))
	for day, bar := range out.Series {
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		points = append(points, dto.PricePoint{
			Date:   date,
			Open:   parseNumber(bar.Open),
			High:   parseNumber(bar.High),
			Low:    parseNumber(bar.Low),
			Close:  parseNumber(bar.Close),
			Volume: parseInt(bar.Volume),
		})
	}
	if len(points) == 0 {
		return nil, r.fail(ctx, ErrKindInvalidSymbol, resp.StatusCode, resp.Body, errors.New("empty daily series"))
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	if days > 0 && len(points) > days {
		points = points[len(points)-days:]
	}
	return points, nil
}
