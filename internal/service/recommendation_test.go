package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/repository"
	"portfolio-advisor/pkg/cache"
	"portfolio-advisor/pkg/common"
	"portfolio-advisor/pkg/logger"
)

const techResponse = `{
  "recommendations": [
    {"symbol":"MSFT","name":"Microsoft","action":"buy","amount":6000,"confidence":80,"reasoning":"cloud","sector":"Technology","expectedAnnualReturn":0.10},
    {"symbol":"QQQ","name":"Invesco QQQ","action":"buy","amount":4000,"confidence":75,"reasoning":"growth","sector":"Technology","expectedAnnualReturn":0.11}
  ],
  "summary":"Tech tilt","marketOutlook":"Constructive","riskAssessment":"Concentrated","strategy":"Stage entries"
}`

func newTestGenerator(t *testing.T, env string, backends ...*fakeAIBackend) RecommendationGenerator {
	t.Helper()
	cfg := &config.Config{
		App: config.App{Env: env},
		AI:  config.AI{ProbeCacheTTL: time.Minute},
	}
	bm := map[string]repository.AIBackend{}
	for _, b := range backends {
		cfg.AI.Order = append(cfg.AI.Order, b.name)
		bm[b.name] = b
	}
	orchestrator := &fakeOrchestrator{quotes: map[string]*dto.Quote{
		"SPY": {Symbol: "SPY", Price: 500, ChangePercent: 0.4},
		"VIX": {Symbol: "VIX", Price: 13},
	}}
	news := &fakeNewsRepo{headlines: []dto.NewsHeadline{{Title: "Fed holds rates steady", Source: "Reuters"}}}
	return NewRecommendationGenerator(cfg, logger.NewNop(), bm, NewMarketContextAssembler(orchestrator, logger.NewNop()), news, cache.NewCache(time.Minute, time.Minute))
}

func sumInvested(items []dto.RecommendationItem) decimal.Decimal {
	return investedTotal(items)
}

func TestGenerate_AIResponse(t *testing.T) {
	backend := &fakeAIBackend{name: repository.AIBackendOpenAI, texts: []string{techResponse}}
	gen := newTestGenerator(t, common.ENV_PRODUCTION, backend)

	result, err := gen.Generate(context.Background(), dto.UserProfile{RiskTolerance: 7, CapitalAvailable: 10000, SectorPreferences: []string{"technology"}})
	require.NoError(t, err)

	assert.Equal(t, "ai:openai", result.Source)
	require.Len(t, result.Recommendations, 2)
	assert.Equal(t, "MSFT", result.Recommendations[0].Symbol)
	assert.Equal(t, "Tech tilt", result.Summary)
	assert.Len(t, result.PortfolioProjections.MonthlyValues, projectionMonths)
	assert.Empty(t, result.Warnings)

	assert.Contains(t, backend.lastUser, "MARKET SNAPSHOT")
	assert.Contains(t, backend.lastUser, "Fed holds rates steady (Reuters)")
}

func TestGenerate_ExistingHoldingInjected(t *testing.T) {
	backend := &fakeAIBackend{name: repository.AIBackendClaude, texts: []string{techResponse}}
	gen := newTestGenerator(t, common.ENV_PRODUCTION, backend)

	profile := dto.UserProfile{
		RiskTolerance:     6,
		CapitalAvailable:  10000,
		ExistingPortfolio: []dto.Holding{{Symbol: "AAPL", Amount: 5000, Type: dto.HoldingTypeStock}},
	}
	result, err := gen.Generate(context.Background(), profile)
	require.NoError(t, err)

	var aapl *dto.RecommendationItem
	for i := range result.Recommendations {
		if result.Recommendations[i].Symbol == "AAPL" {
			aapl = &result.Recommendations[i]
		}
	}
	require.NotNil(t, aapl)
	assert.Equal(t, dto.ActionHold, aapl.Action)
	assert.Equal(t, 5000.0, aapl.Amount)
	assert.True(t, aapl.Synthetic)
	assert.True(t, hasWarning(result.Warnings, WarnHoldingInjected, ""))
	assert.True(t, sumInvested(result.Recommendations).LessThanOrEqual(decimal.NewFromInt(15000)))
}

func TestGenerate_ScalesToBudget(t *testing.T) {
	backend := &fakeAIBackend{name: repository.AIBackendGemini, texts: []string{techResponse}}
	gen := newTestGenerator(t, common.ENV_PRODUCTION, backend)

	result, err := gen.Generate(context.Background(), dto.UserProfile{RiskTolerance: 5, CapitalAvailable: 5000})
	require.NoError(t, err)
	assert.True(t, sumInvested(result.Recommendations).Equal(decimal.NewFromInt(5000)))
	assert.True(t, hasWarning(result.Warnings, WarnCapitalScaledDown, ""))
}

func TestGenerate_NoCapitalWithHoldings(t *testing.T) {
	backend := &fakeAIBackend{name: repository.AIBackendOpenAI, texts: []string{techResponse}}
	gen := newTestGenerator(t, common.ENV_PRODUCTION, backend)

	profile := dto.UserProfile{
		RiskTolerance:     5,
		ExistingPortfolio: []dto.Holding{{Symbol: "AAPL", Amount: 5000, Type: dto.HoldingTypeStock}},
	}
	result, err := gen.Generate(context.Background(), profile)
	require.NoError(t, err)

	require.Len(t, result.Recommendations, 1)
	aapl := result.Recommendations[0]
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.Equal(t, dto.ActionHold, aapl.Action)
	assert.Equal(t, 5000.0, aapl.Amount)
	assert.True(t, sumInvested(result.Recommendations).Equal(decimal.NewFromInt(5000)))
	assert.True(t, hasWarning(result.Warnings, WarnCapitalScaledDown, ""))
	assert.True(t, hasWarning(result.Warnings, WarnItemDropped, ""))
	assert.Equal(t, 5000.0, result.PortfolioProjections.TotalInvestment)
}

func TestGenerate_NoBackendRequired(t *testing.T) {
	cfg := &config.Config{AI: config.AI{RequireBackend: true, Order: []string{"openai"}}}
	gen := NewRecommendationGenerator(cfg, logger.NewNop(), nil, NewMarketContextAssembler(&fakeOrchestrator{}, logger.NewNop()), nil, cache.NewCache(time.Minute, time.Minute))

	_, err := gen.Generate(context.Background(), dto.UserProfile{RiskTolerance: 5, CapitalAvailable: 1000})
	assert.True(t, errors.Is(err, ErrNoAIBackendConfigured))
}

func TestGenerate_NoBackendRuleBased(t *testing.T) {
	gen := newTestGenerator(t, common.ENV_PRODUCTION)

	result, err := gen.Generate(context.Background(), dto.UserProfile{RiskTolerance: 2, CapitalAvailable: 10000})
	require.NoError(t, err)
	assert.Equal(t, common.SOURCE_RULE_BASED, result.Source)
	assert.True(t, sumInvested(result.Recommendations).Equal(decimal.NewFromInt(10000)))
}

func TestGenerate_FallsThroughChain(t *testing.T) {
	first := &fakeAIBackend{
		name:     repository.AIBackendOpenAI,
		probeErr: &repository.AIError{Backend: "openai", Kind: repository.AIErrAuthFailed, StatusCode: 401, Err: errors.New("bad key")},
	}
	second := &fakeAIBackend{name: repository.AIBackendGrok, texts: []string{"Sorry, I can't comply."}}
	third := &fakeAIBackend{name: repository.AIBackendClaude, texts: []string{techResponse}}
	gen := newTestGenerator(t, common.ENV_PRODUCTION, first, second, third)

	result, err := gen.Generate(context.Background(), dto.UserProfile{RiskTolerance: 5, CapitalAvailable: 10000})
	require.NoError(t, err)

	assert.Equal(t, "ai:claude", result.Source)
	assert.Equal(t, 0, first.Completions())
	assert.Equal(t, 1, second.Completions())
	assert.True(t, hasWarning(result.Warnings, WarnAIBackendFailed, "openai: probe failed"))
	assert.True(t, hasWarning(result.Warnings, WarnAIBackendFailed, "grok: response could not be parsed"))
}

func TestGenerate_ChainExhausted(t *testing.T) {
	quota := &repository.AIError{Backend: "openai", Kind: repository.AIErrQuotaExhausted, StatusCode: 429, Err: errors.New("insufficient_quota")}
	backend := &fakeAIBackend{name: repository.AIBackendOpenAI, errs: []error{quota}}
	gen := newTestGenerator(t, common.ENV_PRODUCTION, backend)

	result, err := gen.Generate(context.Background(), dto.UserProfile{RiskTolerance: 9, CapitalAvailable: 2000})
	require.NoError(t, err)
	assert.Equal(t, common.SOURCE_RULE_BASED, result.Source)
	assert.True(t, hasWarning(result.Warnings, WarnAIChainExhausted, "quota"))
	assert.NotEmpty(t, result.Recommendations)
}

func TestGenerate_RetryOutsideProduction(t *testing.T) {
	limited := &repository.AIError{Backend: "openai", Kind: repository.AIErrRateLimited, StatusCode: 429, Err: errors.New("slow down")}

	dev := &fakeAIBackend{name: repository.AIBackendOpenAI, errs: []error{limited}, texts: []string{techResponse}}
	result, err := newTestGenerator(t, common.ENV_DEVELOPMENT, dev).Generate(context.Background(), dto.UserProfile{RiskTolerance: 5, CapitalAvailable: 10000})
	require.NoError(t, err)
	assert.Equal(t, "ai:openai", result.Source)
	assert.Equal(t, 2, dev.Completions())

	prod := &fakeAIBackend{name: repository.AIBackendOpenAI, errs: []error{limited}, texts: []string{techResponse}}
	result, err = newTestGenerator(t, common.ENV_PRODUCTION, prod).Generate(context.Background(), dto.UserProfile{RiskTolerance: 5, CapitalAvailable: 10000})
	require.NoError(t, err)
	assert.Equal(t, common.SOURCE_RULE_BASED, result.Source)
	assert.Equal(t, 1, prod.Completions())
	assert.True(t, hasWarning(result.Warnings, WarnAIChainExhausted, "rate limit"))
}

func TestGenerate_ProbeCached(t *testing.T) {
	backend := &fakeAIBackend{name: repository.AIBackendOpenAI, texts: []string{techResponse}}
	gen := newTestGenerator(t, common.ENV_PRODUCTION, backend)

	for i := 0; i < 3; i++ {
		_, err := gen.Generate(context.Background(), dto.UserProfile{RiskTolerance: 5, CapitalAvailable: 10000})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, backend.probes)
	assert.Equal(t, 3, backend.Completions())
}

func TestExhaustionMessage(t *testing.T) {
	assert.Contains(t, exhaustionMessage([]repository.AIErrorKind{repository.AIErrAuthFailed}), "invalid key")
	assert.Contains(t, exhaustionMessage([]repository.AIErrorKind{repository.AIErrAuthFailed, repository.AIErrQuotaExhausted}), "usage limit")
	assert.Contains(t, exhaustionMessage(nil), "no usable response")
}
