package service

import (
	"context"
	"sort"
	"strings"

	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/repository"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/ratelimit"
)

// ProviderSet is the provider configuration built once at startup. The limiter
// belongs to the set, so two sets never share request budgets.
type ProviderSet struct {
	Limiter *ratelimit.Limiter
	Quotes  []repository.QuoteProvider
	Crypto  repository.CryptoProvider
}

type ProviderOrchestrator interface {
	// GetStockData returns the first successful quote, or nil when every
	// provider failed. It never returns an error.
	GetStockData(ctx context.Context, symbol string) *dto.Quote
	GetHistoricalData(ctx context.Context, symbol string, days int) []dto.PricePoint
	Providers() []dto.ProviderStatus
}

type providerOrchestrator struct {
	set    ProviderSet
	active []repository.QuoteProvider
	log    *logger.Logger
}

func NewProviderOrchestrator(set ProviderSet, log *logger.Logger) ProviderOrchestrator {
	active := make([]repository.QuoteProvider, 0, len(set.Quotes))
	for _, p := range set.Quotes {
		if p.Info().Active {
			active = append(active, p)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Info().Priority < active[j].Info().Priority
	})

	if len(active) == 0 {
		log.Warn("no quote provider has a credential configured, only crypto quotes are available")
	}

	return &providerOrchestrator{
		set:    set,
		active: active,
		log:    log,
	}
}

func (o *providerOrchestrator) GetStockData(ctx context.Context, symbol string) *dto.Quote {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil
	}

	if o.set.Crypto != nil && o.set.Crypto.Supports(symbol) {
		quote, err := o.set.Crypto.GetQuote(ctx, symbol)
		if err != nil {
			o.log.WarnContext(ctx, "crypto quote unavailable",
				logger.StringField("symbol", symbol),
				logger.ErrorField(err),
			)
			return nil
		}
		return quote
	}

	for _, p := range o.active {
		if ctx.Err() != nil {
			return nil
		}
		quote, err := p.GetQuote(ctx, symbol)
		if err != nil {
			o.log.DebugContext(ctx, "provider failed, trying next",
				logger.StringField("provider", p.Info().Name),
				logger.StringField("symbol", symbol),
				logger.StringField("kind", string(repository.ProviderErrorKindOf(err))),
			)
			continue
		}
		return quote
	}

	o.log.WarnContext(ctx, "all quote providers exhausted",
		logger.StringField("symbol", symbol),
		logger.IntField("active_providers", len(o.active)),
	)
	return nil
}

func (o *providerOrchestrator) GetHistoricalData(ctx context.Context, symbol string, days int) []dto.PricePoint {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil
	}
	if days <= 0 {
		days = 30
	}

	if o.set.Crypto != nil && o.set.Crypto.Supports(symbol) {
		points, err := o.set.Crypto.GetHistory(ctx, symbol, days)
		if err != nil {
			o.log.WarnContext(ctx, "crypto history unavailable", logger.StringField("symbol", symbol), logger.ErrorField(err))
			return nil
		}
		return points
	}

	for _, p := range o.active {
		hp, ok := p.(repository.HistoricalProvider)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		points, err := hp.GetHistory(ctx, symbol, days)
		if err != nil || len(points) == 0 {
			continue
		}
		return points
	}

	o.log.WarnContext(ctx, "no provider returned history", logger.StringField("symbol", symbol))
	return nil
}

func (o *providerOrchestrator) Providers() []dto.ProviderStatus {
	statuses := make([]dto.ProviderStatus, 0, len(o.set.Quotes)+1)
	for _, p := range o.set.Quotes {
		info := p.Info()
		_, historical := p.(repository.HistoricalProvider)
		remaining := info.MaxRequests
		if o.set.Limiter != nil {
			remaining = o.set.Limiter.Remaining(info.Name, info.MaxRequests, info.Window)
		}
		statuses = append(statuses, dto.ProviderStatus{
			Name:          info.Name,
			Active:        info.Active,
			Priority:      info.Priority,
			MaxRequests:   info.MaxRequests,
			WindowSeconds: int64(info.Window.Seconds()),
			Remaining:     remaining,
			Historical:    historical,
		})
	}
	sort.SliceStable(statuses, func(i, j int) bool {
		return statuses[i].Priority < statuses[j].Priority
	})

	if o.set.Crypto != nil {
		info := o.set.Crypto.Info()
		statuses = append(statuses, dto.ProviderStatus{
			Name:       info.Name,
			Active:     info.Active,
			Priority:   info.Priority,
			Remaining:  -1,
			Historical: true,
		})
	}
	return statuses
}
