package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/repository"
)

type fakeQuoteProvider struct {
	info    dto.Provider
	quotes  map[string]float64
	history []dto.PricePoint
	err     error

	mu    sync.Mutex
	calls int
}

func (p *fakeQuoteProvider) Info() dto.Provider { return p.info }

func (p *fakeQuoteProvider) GetQuote(ctx context.Context, symbol string) (*dto.Quote, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	price, ok := p.quotes[symbol]
	if !ok {
		return nil, &repository.ProviderError{Provider: p.info.Name, Kind: repository.ErrKindInvalidSymbol, Err: errors.New("unknown symbol")}
	}
	return &dto.Quote{Symbol: symbol, Price: price, Source: p.info.Name}, nil
}

func (p *fakeQuoteProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeHistoricalProvider struct {
	*fakeQuoteProvider
}

func (p fakeHistoricalProvider) GetHistory(ctx context.Context, symbol string, days int) ([]dto.PricePoint, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.history, nil
}

type fakeCryptoProvider struct {
	quotes map[string]*dto.Quote
}

func (p *fakeCryptoProvider) Info() dto.Provider {
	return dto.Provider{Name: dto.ProviderCoinGecko, Active: true}
}

func (p *fakeCryptoProvider) Supports(symbol string) bool {
	_, ok := repository.CryptoSymbol(symbol)
	return ok
}

func (p *fakeCryptoProvider) GetQuote(ctx context.Context, symbol string) (*dto.Quote, error) {
	if q, ok := p.quotes[symbol]; ok {
		return q, nil
	}
	return nil, errors.New("no quote")
}

func (p *fakeCryptoProvider) GetHistory(ctx context.Context, symbol string, days int) ([]dto.PricePoint, error) {
	return []dto.PricePoint{{Close: 1}}, nil
}

// fakeOrchestrator serves fixed quotes.
type fakeOrchestrator struct {
	quotes map[string]*dto.Quote
}

func (o *fakeOrchestrator) GetStockData(ctx context.Context, symbol string) *dto.Quote {
	return o.quotes[symbol]
}

func (o *fakeOrchestrator) GetHistoricalData(ctx context.Context, symbol string, days int) []dto.PricePoint {
	return nil
}

func (o *fakeOrchestrator) Providers() []dto.ProviderStatus { return nil }

// fakeAIBackend answers probes with "OK" and recommendation prompts with
// the scripted responses in turn.
type fakeAIBackend struct {
	name     string
	probeErr error
	errs     []error
	texts    []string

	mu          sync.Mutex
	probes      int
	completions int
	lastUser    string
}

func (b *fakeAIBackend) Name() string { return b.name }

func (b *fakeAIBackend) Complete(ctx context.Context, req repository.AIRequest) (*repository.AIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if req.System == probeSystemPrompt {
		b.probes++
		if b.probeErr != nil {
			return nil, b.probeErr
		}
		return &repository.AIResponse{Text: "OK"}, nil
	}

	i := b.completions
	b.completions++
	b.lastUser = req.User
	if i < len(b.errs) && b.errs[i] != nil {
		return nil, b.errs[i]
	}
	if len(b.texts) == 0 {
		return nil, errors.New("no scripted response")
	}
	if i >= len(b.texts) {
		i = len(b.texts) - 1
	}
	return &repository.AIResponse{Text: b.texts[i]}, nil
}

func (b *fakeAIBackend) Completions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completions
}

type fakeNewsRepo struct {
	headlines []dto.NewsHeadline
}

func (r *fakeNewsRepo) GetHeadlines(ctx context.Context) []dto.NewsHeadline {
	return r.headlines
}

// fakeGenerator returns a fixed result or error.
type fakeGenerator struct {
	result *dto.RecommendationResult
	err    error
	block  chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context, profile dto.UserProfile) (*dto.RecommendationResult, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.result, g.err
}

func hasWarning(ws []dto.Warning, code string, contains string) bool {
	for _, w := range ws {
		if w.Code == code && strings.Contains(w.Detail, contains) {
			return true
		}
	}
	return false
}
