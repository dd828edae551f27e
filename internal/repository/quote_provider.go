package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/pkg/httpclient"
	"portfolio-advisor/pkg/logger"
)

const defaultProviderTimeout = 15 * time.Second

// QuoteProvider normalizes one vendor's quote endpoint into dto.Quote.
type QuoteProvider interface {
	Info() dto.Provider
	GetQuote(ctx context.Context, symbol string) (*dto.Quote, error)
}

// HistoricalProvider is implemented by vendors that expose daily bars.
type HistoricalProvider interface {
	QuoteProvider
	GetHistory(ctx context.Context, symbol string, days int) ([]dto.PricePoint, error)
}

// RequestLimiter gates outgoing vendor calls. Satisfied by *ratelimit.Limiter.
type RequestLimiter interface {
	CanMakeRequest(key string, maxRequests int, window time.Duration) bool
}

var errLocalBudget = errors.New("local request budget exhausted")

type quoteProviderBase struct {
	info       dto.Provider
	apiKey     string
	httpClient httpclient.HTTPClient
	limiter    RequestLimiter
	log        *logger.Logger
}

func newQuoteProviderBase(name string, cfg config.Provider, limiter RequestLimiter, log *logger.Logger) quoteProviderBase {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return quoteProviderBase{
		info: dto.Provider{
			Name:        name,
			BaseURL:     cfg.BaseURL,
			MaxRequests: cfg.MaxRequests,
			Window:      cfg.Window,
			Active:      cfg.Active(),
			Priority:    cfg.Priority,
		},
		apiKey:     cfg.APIKey,
		httpClient: httpclient.New(cfg.BaseURL, timeout, ""),
		limiter:    limiter,
		log:        log.With(logger.StringField("provider", name)),
	}
}

func (b *quoteProviderBase) Info() dto.Provider {
	return b.info
}

// get consumes a limiter slot and issues the call. Non-2xx statuses come back
// as a ProviderError so adapters only deal with vendor envelopes.
func (b *quoteProviderBase) get(ctx context.Context, endpoint string, query map[string]string) (*httpclient.BaseResponse, error) {
	if b.limiter != nil && !b.limiter.CanMakeRequest(b.info.Name, b.info.MaxRequests, b.info.Window) {
		b.log.DebugContext(ctx, "request denied by local rate limiter", logger.StringField("endpoint", endpoint))
		return nil, &ProviderError{Provider: b.info.Name, Kind: ErrKindRateLimited, Err: errLocalBudget}
	}

	resp, err := b.httpClient.Get(ctx, endpoint, query, nil, nil)
	if err != nil {
		return nil, b.fail(ctx, ErrKindTransport, 0, nil, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, b.fail(ctx, kindFromStatus(resp.StatusCode), resp.StatusCode, resp.Body,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return resp, nil
}

// fail logs a vendor failure with enough context to diagnose it and returns the typed error.
func (b *quoteProviderBase) fail(ctx context.Context, kind ProviderErrorKind, status int, body []byte, err error) *ProviderError {
	pErr := &ProviderError{Provider: b.info.Name, Kind: kind, StatusCode: status, Err: err}
	fields := []zap.Field{
		logger.StringField("kind", string(kind)),
		logger.IntField("status_code", status),
		logger.ErrorField(err),
	}
	if len(body) > 0 {
		fields = append(fields, logger.BodyField(body))
	}
	if pErr.IsPermanent() {
		b.log.ErrorContext(ctx, "provider request failed permanently", fields...)
	} else {
		b.log.WarnContext(ctx, "provider request failed", fields...)
	}
	return pErr
}

func (b *quoteProviderBase) decode(ctx context.Context, resp *httpclient.BaseResponse, dest interface{}) error {
	if err := json.Unmarshal(resp.Body, dest); err != nil {
		return b.fail(ctx, ErrKindInvalidResponse, resp.StatusCode, resp.Body, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// parseNumber reads vendor numbers that may arrive as strings like "1.23%".
func parseNumber(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	return int64(parseNumber(s))
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
