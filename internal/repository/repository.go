package repository

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"portfolio-advisor/config"
	"portfolio-advisor/pkg/cache"
	"portfolio-advisor/pkg/common"
	"portfolio-advisor/pkg/logger"
)

type Repository struct {
	QuoteProviders []QuoteProvider
	CryptoRepo     CryptoProvider
	AIBackends     map[string]AIBackend
	NewsRepo       NewsRepository
	JobRepo        JobRepository
}

// Stores carries the optional shared backends. Nil fields are fine as long as
// the configured queue backend does not need them.
type Stores struct {
	DB    *gorm.DB
	Redis *goredis.Client
}

func NewRepository(ctx context.Context, cfg *config.Config, limiter RequestLimiter, inmemoryCache cache.Cache, stores Stores, log *logger.Logger) (*Repository, error) {
	jobRepo, err := newJobRepository(cfg, inmemoryCache, stores)
	if err != nil {
		return nil, err
	}

	aiBackends, err := NewAIBackends(ctx, cfg.AI, log)
	if err != nil {
		return nil, err
	}

	return &Repository{
		QuoteProviders: NewQuoteProviders(cfg.Providers, limiter, log),
		CryptoRepo:     NewCoinGeckoRepository(cfg.CoinGecko, log),
		AIBackends:     aiBackends,
		NewsRepo:       NewNewsRepository(cfg.News, inmemoryCache, log),
		JobRepo:        jobRepo,
	}, nil
}

// NewQuoteProviders builds every stock adapter, active or not. The orchestrator
// filters on Info().Active.
func NewQuoteProviders(cfg config.Providers, limiter RequestLimiter, log *logger.Logger) []QuoteProvider {
	return []QuoteProvider{
		NewFinnhubRepository(cfg.Finnhub, limiter, log),
		NewTwelveDataRepository(cfg.TwelveData, limiter, log),
		NewAlphaVantageRepository(cfg.AlphaVantage, limiter, log),
		NewFMPRepository(cfg.FMP, limiter, log),
	}
}

// NewAIBackends returns the credentialed backends keyed by name.
func NewAIBackends(ctx context.Context, cfg config.AI, log *logger.Logger) (map[string]AIBackend, error) {
	backends := make(map[string]AIBackend)
	if cfg.OpenAI.Active() {
		backends[AIBackendOpenAI] = NewOpenAIRepository(AIBackendOpenAI, cfg.OpenAI, log)
	}
	if cfg.Grok.Active() {
		backends[AIBackendGrok] = NewOpenAIRepository(AIBackendGrok, cfg.Grok, log)
	}
	if cfg.Claude.Active() {
		backends[AIBackendClaude] = NewClaudeAIRepository(cfg.Claude, log)
	}
	if cfg.Gemini.Active() {
		gemini, err := NewGeminiAIRepository(ctx, cfg.Gemini, log)
		if err != nil {
			return nil, err
		}
		backends[AIBackendGemini] = gemini
	}
	return backends, nil
}

func newJobRepository(cfg *config.Config, inmemoryCache cache.Cache, stores Stores) (JobRepository, error) {
	switch cfg.Queue.Backend {
	case "", common.QUEUE_BACKEND_MEMORY:
		return NewMemoryJobRepository(inmemoryCache), nil
	case common.QUEUE_BACKEND_REDIS:
		if stores.Redis == nil {
			return nil, fmt.Errorf("queue backend %q needs a redis client", cfg.Queue.Backend)
		}
		return NewRedisJobRepository(stores.Redis, cfg.Redis.KeyPrefix), nil
	case common.QUEUE_BACKEND_POSTGRES:
		if stores.DB == nil {
			return nil, fmt.Errorf("queue backend %q needs a database", cfg.Queue.Backend)
		}
		return NewPostgresJobRepository(stores.DB), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}
