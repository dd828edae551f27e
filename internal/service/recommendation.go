package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/repository"
	"portfolio-advisor/pkg/cache"
	"portfolio-advisor/pkg/common"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/utils"
)

const (
	nonProductionProbeFactor = 3
	defaultProbeTimeout      = 15 * time.Second
	defaultProbeCacheTTL     = 5 * time.Minute
	recommendationMaxTokens  = 4000
	WarnAIChainExhausted     = "ai_chain_exhausted"
	WarnAIBackendFailed      = "ai_backend_failed"
)

type RecommendationGenerator interface {
	Generate(ctx context.Context, profile dto.UserProfile) (*dto.RecommendationResult, error)
}

type recommendationGenerator struct {
	cfg           config.AI
	production    bool
	backends      map[string]repository.AIBackend
	marketContext MarketContextAssembler
	newsRepo      repository.NewsRepository
	cache         cache.Cache
	log           *logger.Logger
	now           func() time.Time
}

func NewRecommendationGenerator(
	cfg *config.Config,
	log *logger.Logger,
	backends map[string]repository.AIBackend,
	marketContext MarketContextAssembler,
	newsRepo repository.NewsRepository,
	inmemoryCache cache.Cache,
) RecommendationGenerator {
	return &recommendationGenerator{
		cfg:           cfg.AI,
		production:    cfg.App.IsProduction(),
		backends:      backends,
		marketContext: marketContext,
		newsRepo:      newsRepo,
		cache:         inmemoryCache,
		log:           log,
		now:           utils.TimeNow,
	}
}

// chain returns the credentialed backends in configured order.
func (g *recommendationGenerator) chain() []repository.AIBackend {
	var out []repository.AIBackend
	seen := map[string]bool{}
	for _, name := range g.cfg.Order {
		name = strings.ToLower(strings.TrimSpace(name))
		if seen[name] {
			continue
		}
		seen[name] = true
		if b, ok := g.backends[name]; ok && b != nil {
			out = append(out, b)
		}
	}
	return out
}

type promptInput struct {
	system string
	user   string
}

func (g *recommendationGenerator) Generate(ctx context.Context, profile dto.UserProfile) (*dto.RecommendationResult, error) {
	log := g.log.FromContext(ctx)
	chain := g.chain()
	if len(chain) == 0 {
		if g.cfg.RequireBackend {
			log.ErrorContext(ctx, "no AI backend configured", logger.ErrorField(ErrNoAIBackendConfigured))
			return nil, ErrNoAIBackendConfigured
		}
		log.InfoContext(ctx, "no AI backend configured, using rule-based recommendations")
		return g.finalize(BuildRuleBasedRecommendations(profile), profile, common.SOURCE_RULE_BASED, nil), nil
	}

	var (
		prompt   *promptInput
		failures []dto.Warning
		kinds    []repository.AIErrorKind
	)
	for _, backend := range chain {
		if ctx.Err() != nil {
			break
		}
		name := backend.Name()

		if err := g.probe(ctx, backend); err != nil {
			log.WarnContext(ctx, "AI backend probe failed, trying next",
				logger.StringField("ai_backend", name),
				logger.StringField("kind", string(repository.AIErrorKindOf(err))),
				logger.ErrorField(err),
			)
			kinds = append(kinds, repository.AIErrorKindOf(err))
			failures = append(failures, dto.Warning{Code: WarnAIBackendFailed, Detail: fmt.Sprintf("%s: probe failed", name)})
			continue
		}

		if prompt == nil {
			prompt = g.buildPrompt(ctx, profile)
		}

		parsed, err := g.recommend(ctx, backend, prompt)
		if err != nil {
			log.WarnContext(ctx, "AI backend failed, trying next",
				logger.StringField("ai_backend", name),
				logger.StringField("kind", string(repository.AIErrorKindOf(err))),
				logger.ErrorField(err),
			)
			kinds = append(kinds, repository.AIErrorKindOf(err))
			failures = append(failures, dto.Warning{Code: WarnAIBackendFailed, Detail: fmt.Sprintf("%s: %s", name, describeAIFailure(err))})
			continue
		}

		log.InfoContext(ctx, "recommendations generated",
			logger.StringField("ai_backend", name),
			logger.IntField("items", len(parsed.Items)),
			logger.IntField("repairs", len(parsed.Warnings)),
			logger.FloatField("budget", profile.Budget()),
		)
		return g.finalize(parsed, profile, common.SOURCE_AI_PREFIX+name, failures), nil
	}

	message := exhaustionMessage(kinds)
	log.ErrorContextWithAlert(ctx, "all AI backends failed, using rule-based recommendations",
		logger.IntField("backends", len(chain)),
		logger.StringField("reason", message),
	)
	failures = append(failures, dto.Warning{Code: WarnAIChainExhausted, Detail: message})

	result := g.finalize(BuildRuleBasedRecommendations(profile), profile, common.SOURCE_RULE_BASED, failures)
	if len(result.Recommendations) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecommendationUnavailable, message)
	}
	return result, nil
}

// probe checks the backend with a tiny request. A success is cached so a busy
// process does not pay for it on every run.
func (g *recommendationGenerator) probe(ctx context.Context, backend repository.AIBackend) error {
	key := fmt.Sprintf(common.KEY_AI_PROBE, backend.Name())
	if ok, found := cache.GetFromCache[bool](g.cache, key); found && ok {
		return nil
	}

	timeout := g.cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if !g.production {
		timeout *= nonProductionProbeFactor
	}

	req := repository.AIRequest{System: probeSystemPrompt, User: probeUserPrompt, MaxTokens: probeMaxTokens}
	if _, err := g.call(ctx, backend, req, timeout); err != nil {
		return err
	}

	ttl := g.cfg.ProbeCacheTTL
	if ttl <= 0 {
		ttl = defaultProbeCacheTTL
	}
	g.cache.Set(key, true, ttl)
	return nil
}

func (g *recommendationGenerator) buildPrompt(ctx context.Context, profile dto.UserProfile) *promptInput {
	marketContext := g.marketContext.Assemble(ctx, profile)

	var headlines []dto.NewsHeadline
	if g.newsRepo != nil {
		headlines = g.newsRepo.GetHeadlines(ctx)
	}

	return &promptInput{
		system: buildSystemPrompt(profile),
		user:   buildUserPrompt(profile, marketContext, AnalyzePortfolio(profile), headlines),
	}
}

func (g *recommendationGenerator) recommend(ctx context.Context, backend repository.AIBackend, prompt *promptInput) (*ParseResult, error) {
	resp, err := g.call(ctx, backend, repository.AIRequest{
		System:    prompt.system,
		User:      prompt.user,
		MaxTokens: recommendationMaxTokens,
	}, 0)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseRecommendations(resp.Text)
	if err != nil {
		g.log.WarnContext(ctx, "unusable AI response",
			logger.StringField("ai_backend", backend.Name()),
			logger.StringField("response", logger.Truncate(resp.Text, 300)),
			logger.ErrorField(err),
		)
		return nil, err
	}
	return parsed, nil
}

// call runs one completion under timeout (0 keeps the backend's own). Outside
// production a rate-limited or timed out call gets one more attempt.
func (g *recommendationGenerator) call(ctx context.Context, backend repository.AIBackend, req repository.AIRequest, timeout time.Duration) (*repository.AIResponse, error) {
	attempt := func() (*repository.AIResponse, error) {
		callCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return backend.Complete(callCtx, req)
	}

	resp, err := attempt()
	if err == nil || g.production {
		return resp, err
	}

	var aiErr *repository.AIError
	if !errors.As(err, &aiErr) || !aiErr.Retryable() {
		return nil, err
	}

	g.log.DebugContext(ctx, "retrying AI call",
		logger.StringField("ai_backend", backend.Name()),
		logger.StringField("kind", string(aiErr.Kind)),
	)
	if g.cfg.RetryDelay > 0 {
		timer := time.NewTimer(g.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		case <-timer.C:
		}
	}
	return attempt()
}

func (g *recommendationGenerator) finalize(parsed *ParseResult, profile dto.UserProfile, source string, extra []dto.Warning) *dto.RecommendationResult {
	warnings := append(append([]dto.Warning{}, extra...), parsed.Warnings...)

	items, coverage := EnsureHoldingsCoverage(parsed.Items, profile)
	warnings = append(warnings, coverage...)

	items, scaling := ScaleToBudget(items, profile)
	warnings = append(warnings, scaling...)

	sortForDisplay(items)

	return &dto.RecommendationResult{
		Recommendations:      items,
		PortfolioProjections: CalculateProjections(items, profile),
		Summary:              parsed.Summary,
		MarketOutlook:        parsed.MarketOutlook,
		RiskAssessment:       parsed.RiskAssessment,
		Strategy:             parsed.Strategy,
		Source:               source,
		Warnings:             warnings,
		GeneratedAt:          g.now(),
	}
}

func describeAIFailure(err error) string {
	if errors.Is(err, ErrNoValidRecommendations) {
		return "response could not be parsed"
	}
	if kind := repository.AIErrorKindOf(err); kind != "" {
		return string(kind)
	}
	return "request failed"
}

// exhaustionMessage is the human readable reason shown when no backend answered.
// Clients match on "quota", "rate limit", "invalid key" and "usage limit".
func exhaustionMessage(kinds []repository.AIErrorKind) string {
	counts := map[repository.AIErrorKind]int{}
	for _, k := range kinds {
		counts[k]++
	}
	switch {
	case counts[repository.AIErrQuotaExhausted] > 0:
		return "AI providers unavailable: quota exceeded or usage limit reached"
	case counts[repository.AIErrRateLimited] > 0:
		return "AI providers unavailable: rate limit reached, try again shortly"
	case counts[repository.AIErrAuthFailed] > 0:
		return "AI providers unavailable: invalid key or expired credential"
	case counts[repository.AIErrTimeout] > 0:
		return "AI providers unavailable: requests timed out"
	}
	return "AI providers unavailable: no usable response"
}
