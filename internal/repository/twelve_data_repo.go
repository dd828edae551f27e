package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/utils"
)

// Twelve Data reports most failures as {"status":"error","code":N} with HTTP 200.
type twelveDataEnvelope struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type twelveDataQuoteResponse struct {
	twelveDataEnvelope
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Close         string `json:"close"`
	Change        string `json:"change"`
	PercentChange string `json:"percent_change"`
	Volume        string `json:"volume"`
	Timestamp     int64  `json:"timestamp"`
}

type twelveDataSeriesResponse struct {
	twelveDataEnvelope
	Values []struct {
		Datetime string `json:"datetime"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
		Volume   string `json:"volume"`
	} `json:"values"`
}

type twelveDataRepository struct {
	quoteProviderBase
}

func NewTwelveDataRepository(cfg config.Provider, limiter RequestLimiter, log *logger.Logger) HistoricalProvider {
	return &twelveDataRepository{
		quoteProviderBase: newQuoteProviderBase(dto.ProviderTwelveData, cfg, limiter, log),
	}
}

func (r *twelveDataRepository) checkEnvelope(ctx context.Context, body []byte, env twelveDataEnvelope) error {
	if env.Status != "error" {
		return nil
	}
	kind := kindFromStatus(env.Code)
	if env.Code == http.StatusBadRequest {
		kind = ErrKindInvalidSymbol
	}
	return r.fail(ctx, kind, env.Code, body, errors.New(env.Message))
}

func (r *twelveDataRepository) GetQuote(ctx context.Context, symbol string) (*dto.Quote, error) {
	symbol = normalizeSymbol(symbol)
	resp, err := r.get(ctx, "/quote", map[string]string{
		"symbol": symbol,
		"apikey": r.apiKey,
	})
	if err != nil {
		return nil, err
	}

	var out twelveDataQuoteResponse
	if err := r.decode(ctx, resp, &out); err != nil {
		return nil, err
	}
	if err := r.checkEnvelope(ctx, resp.Body, out.twelveDataEnvelope); err != nil {
		return nil, err
	}

	price := parseNumber(out.Close)
	if price <= 0 {
		return nil, r.fail(ctx, ErrKindInvalidResponse, resp.StatusCode, resp.Body, errors.New("missing close price"))
	}

	name := out.Name
	if name == "" {
		name = symbol
	}
	ts := utils.TimeNow()
	if out.Timestamp > 0 {
		ts = time.Unix(out.Timestamp, 0).UTC()
	}
	return &dto.Quote{
		Symbol:        symbol,
		Name:          name,
		Price:         price,
		Change:        parseNumber(out.Change),
		ChangePercent: parseNumber(out.PercentChange),
		Volume:        parseInt(out.Volume),
		Source:        dto.ProviderTwelveData,
		Timestamp:     ts,
	}, nil
}

func (r *twelveDataRepository) GetHistory(ctx context.Context, symbol string, days int) ([]dto.PricePoint, error) {
	symbol = normalizeSymbol(symbol)
	resp, err := r.get(ctx, "/time_series", map[string]string{
		"symbol":     symbol,
		"interval":   "1day",
		"outputsize": strconv.Itoa(days),
		"apikey":     r.apiKey,
	})
	if err != nil {
		return nil, err
	}

	var out twelveDataSeriesResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, r.fail(ctx, ErrKindInvalidResponse, resp.StatusCode, resp.Body, fmt.Errorf("failed to decode time series: %w", err))
	}
	if err := r.checkEnvelope(ctx, resp.Body, out.twelveDataEnvelope); err != nil {
		return nil, err
	}

	points := make([]dto.PricePoint, 0, len(out.Values))
	for _, v := range out.Values {
		date, err := time.Parse("2006-01-02", v.Datetime)
		if err != nil {
			continue
		}
		points = append(points, dto.PricePoint{
			Date:   date,
			Open:   parseNumber(v.Open),
			High:   parseNumber(v.High),
			Low:    parseNumber(v.Low),
			Close:  parseNumber(v.Close),
			Volume: parseInt(v.Volume),
		})
	}
	if len(points) == 0 {
		return nil, r.fail(ctx, ErrKindInvalidSymbol, resp.StatusCode, resp.Body, errors.New("empty time series"))
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}
