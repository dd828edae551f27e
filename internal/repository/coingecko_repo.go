package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/pkg/common"
	"portfolio-advisor/pkg/httpclient"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/utils"
)

const defaultCryptoTimeout = 10 * time.Second

var coinGeckoIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
	"XRP":  "ripple",
	"LTC":  "litecoin",
}

var coinNames = map[string]string{
	"BTC":  "Bitcoin",
	"ETH":  "Ethereum",
	"SOL":  "Solana",
	"ADA":  "Cardano",
	"DOGE": "Dogecoin",
	"XRP":  "XRP",
	"LTC":  "Litecoin",
}

// last-known prices served when CoinGecko cannot be reached
var staticCryptoQuotes = map[string]float64{
	"BTC": 65000,
	"ETH": 3200,
}

// CryptoSymbol strips a -USD/USD suffix and reports whether symbol is on the crypto allow-list.
func CryptoSymbol(symbol string) (string, bool) {
	s := normalizeSymbol(symbol)
	s = strings.TrimSuffix(s, "-USD")
	if _, ok := coinGeckoIDs[s]; ok {
		return s, true
	}
	if trimmed := strings.TrimSuffix(s, "USD"); trimmed != s {
		if _, ok := coinGeckoIDs[trimmed]; ok {
			return trimmed, true
		}
	}
	return "", false
}

type CryptoProvider interface {
	HistoricalProvider
	Supports(symbol string) bool
}

type coinGeckoPrice struct {
	USD          float64 `json:"usd"`
	USD24hChange float64 `json:"usd_24h_change"`
	USD24hVol    float64 `json:"usd_24h_vol"`
	USDMarketCap float64 `json:"usd_market_cap"`
}

type coinGeckoChartResponse struct {
	Prices       [][2]float64 `json:"prices"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

type coinGeckoRepository struct {
	httpClient httpclient.HTTPClient
	baseURL    string
	timeout    time.Duration
	log        *logger.Logger
}

// NewCoinGeckoRepository talks to the public CoinGecko API. It needs no key
// and is not gated by the shared request limiter.
func NewCoinGeckoRepository(cfg config.CoinGecko, log *logger.Logger) CryptoProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCryptoTimeout
	}
	return &coinGeckoRepository{
		httpClient: httpclient.New(cfg.BaseURL, timeout, ""),
		baseURL:    cfg.BaseURL,
		timeout:    timeout,
		log:        log.With(logger.StringField("provider", dto.ProviderCoinGecko)),
	}
}

func (r *coinGeckoRepository) Info() dto.Provider {
	return dto.Provider{
		Name:     dto.ProviderCoinGecko,
		BaseURL:  r.baseURL,
		Active:   true,
		Priority: 0,
	}
}

func (r *coinGeckoRepository) Supports(symbol string) bool {
	_, ok := CryptoSymbol(symbol)
	return ok
}

func (r *coinGeckoRepository) fail(ctx context.Context, kind ProviderErrorKind, status int, body []byte, err error) *ProviderError {
	r.log.WarnContext(ctx, "coingecko request failed",
		logger.StringField("kind", string(kind)),
		logger.IntField("status_code", status),
		logger.BodyField(body),
		logger.ErrorField(err),
	)
	return &ProviderError{Provider: dto.ProviderCoinGecko, Kind: kind, StatusCode: status, Err: err}
}

func (r *coinGeckoRepository) GetQuote(ctx context.Context, symbol string) (*dto.Quote, error) {
	coin, ok := CryptoSymbol(symbol)
	if !ok {
		return nil, &ProviderError{Provider: dto.ProviderCoinGecko, Kind: ErrKindInvalidSymbol, Err: errors.New("unsupported crypto symbol " + symbol)}
	}
	id := coinGeckoIDs[coin]

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.httpClient.Get(ctx, "/simple/price", map[string]string{
		"ids":                 id,
		"vs_currencies":       "usd",
		"include_24hr_change": "true",
		"include_24hr_vol":    "true",
		"include_market_cap":  "true",
	}, nil, nil)
	if err != nil {
		pErr := r.fail(ctx, ErrKindTransport, 0, nil, err)
		if q := r.staticQuote(coin); q != nil {
			r.log.WarnContext(ctx, "serving static crypto quote", logger.StringField("symbol", coin))
			return q, nil
		}
		return nil, pErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := kindFromStatus(resp.StatusCode)
		pErr := r.fail(ctx, kind, resp.StatusCode, resp.Body, fmt.Errorf("unexpected status %d", resp.StatusCode))
		if kind == ErrKindTransport {
			if q := r.staticQuote(coin); q != nil {
				return q, nil
			}
		}
		return nil, pErr
	}

	var out map[string]coinGeckoPrice
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, r.fail(ctx, ErrKindInvalidResponse, resp.StatusCode, resp.Body, fmt.Errorf("failed to decode price: %w", err))
	}
	price, ok := out[id]
	if !ok || price.USD <= 0 {
		return nil, r.fail(ctx, ErrKindInvalidResponse, resp.StatusCode, resp.Body, errors.New("missing price for "+id))
	}

	// CoinGecko gives the 24h change in percent only, derive the absolute move from it.
	prev := price.USD / (1 + price.USD24hChange/100)
	quote := &dto.Quote{
		Symbol:        coin,
		Name:          coinNames[coin],
		Price:         price.USD,
		Change:        utils.RoundTo(price.USD-prev, 4),
		ChangePercent: utils.RoundTo(price.USD24hChange, 4),
		Volume:        int64(price.USD24hVol),
		Source:        dto.ProviderCoinGecko,
		Timestamp:     utils.TimeNow(),
	}
	if price.USDMarketCap > 0 {
		quote.MarketCap = utils.ToPointer(price.USDMarketCap)
	}
	return quote, nil
}

func (r *coinGeckoRepository) staticQuote(coin string) *dto.Quote {
	price, ok := staticCryptoQuotes[coin]
	if !ok {
		return nil
	}
	return &dto.Quote{
		Symbol:    coin,
		Name:      coinNames[coin],
		Price:     price,
		Source:    common.SOURCE_STATIC_FALLBACK,
		Timestamp: utils.TimeNow(),
	}
}

func (r *coinGeckoRepository) GetHistory(ctx context.Context, symbol string, days int) ([]dto.PricePoint, error) {
	coin, ok := CryptoSymbol(symbol)
	if !ok {
		return nil, &ProviderError{Provider: dto.ProviderCoinGecko, Kind: ErrKindInvalidSymbol, Err: errors.New("unsupported crypto symbol " + symbol)}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.httpClient.Get(ctx, "/coins/"+coinGeckoIDs[coin]+"/market_chart", map[string]string{
		"vs_currency": "usd",
		"days":        strconv.Itoa(days),
		"interval":    "daily",
	}, nil, nil)
	if err != nil {
		return nil, r.fail(ctx, ErrKindTransport, 0, nil, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, r.fail(ctx, kindFromStatus(resp.StatusCode), resp.StatusCode, resp.Body, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var out coinGeckoChartResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, r.fail(ctx, ErrKindInvalidResponse, resp.StatusCode, resp.Body, fmt.Errorf("failed to decode market chart: %w", err))
	}

	points := make([]dto.PricePoint, 0, len(out.Prices))
	for i, p := range out.Prices {
		price := p[1]
		point := dto.PricePoint{
			Date:  time.UnixMilli(int64(p[0])).UTC(),
			Open:  price,
			High:  price,
			Low:   price,
			Close: price,
		}
		if i < len(out.TotalVolumes) {
			point.Volume = int64(out.TotalVolumes[i][1])
		}
		points = append(points, point)
	}
	if len(points) == 0 {
		return nil, r.fail(ctx, ErrKindInvalidResponse, resp.StatusCode, resp.Body, errors.New("empty market chart"))
	}
	return points, nil
}
