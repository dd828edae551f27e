package repository

import (
	"context"
	"errors"
	"time"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/utils"
)

type finnhubQuoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

type finnhubRepository struct {
	quoteProviderBase
}

func NewFinnhubRepository(cfg config.Provider, limiter RequestLimiter, log *logger.Logger) QuoteProvider {
	return &finnhubRepository{
		quoteProviderBase: newQuoteProviderBase(dto.ProviderFinnhub, cfg, limiter, log),
	}
}

func (r *finnhubRepository) GetQuote(ctx context.Context, symbol string) (*dto.Quote, error) {
	symbol = normalizeSymbol(symbol)
	resp, err := r.get(ctx, "/quote", map[string]string{
		"symbol": symbol,
		"token":  r.apiKey,
	})
	if err != nil {
		return nil, err
	}

	var out finnhubQuoteResponse
	if err := r.decode(ctx, resp, &out); err != nil {
		return nil, err
	}

	// unknown symbols come back as an all-zero quote with status 200
	if out.Current <= 0 {
		return nil, r.fail(ctx, ErrKindInvalidSymbol, resp.StatusCode, resp.Body, errors.New("no price for symbol "+symbol))
	}

	ts := utils.TimeNow()
	if out.Timestamp > 0 {
		ts = time.Unix(out.Timestamp, 0).UTC()
	}
	return &dto.Quote{
		Symbol:        symbol,
		Name:          symbol,
		Price:         out.Current,
		Change:        out.Change,
		ChangePercent: out.ChangePercent,
		Source:        dto.ProviderFinnhub,
		Timestamp:     ts,
	}, nil
}
