package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"portfolio-advisor/config"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/ratelimit"
)

const (
	AIBackendOpenAI = "openai"
	AIBackendGrok   = "grok"
	AIBackendClaude = "claude"
	AIBackendGemini = "gemini"
)

type AIErrorKind string

const (
	AIErrRateLimited    AIErrorKind = "rate_limited"
	AIErrAuthFailed     AIErrorKind = "auth_failed"
	AIErrQuotaExhausted AIErrorKind = "quota_exhausted"
	AIErrTimeout        AIErrorKind = "timeout"
	AIErrUnavailable    AIErrorKind = "unavailable"
	AIErrBadResponse    AIErrorKind = "bad_response"
)

type AIError struct {
	Backend    string
	Kind       AIErrorKind
	StatusCode int
	Err        error
}

func (e *AIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Backend, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *AIError) Unwrap() error {
	return e.Err
}

// Retryable reports failures worth one more attempt after a short wait.
func (e *AIError) Retryable() bool {
	return e.Kind == AIErrRateLimited || e.Kind == AIErrTimeout
}

// AIErrorKindOf returns the kind of err, or "" when err is not an AIError.
func AIErrorKindOf(err error) AIErrorKind {
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.Kind
	}
	return ""
}

type AIRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

type AIResponse struct {
	Text       string
	TokensUsed int
}

// AIBackend is one chat-completion vendor.
type AIBackend interface {
	Name() string
	Complete(ctx context.Context, req AIRequest) (*AIResponse, error)
}

type aiBackendBase struct {
	name   string
	cfg    config.AIBackend
	budget *ratelimit.TokenBudget
	log    *logger.Logger
}

func newAIBackendBase(name string, cfg config.AIBackend, log *logger.Logger) aiBackendBase {
	return aiBackendBase{
		name:   name,
		cfg:    cfg,
		budget: ratelimit.NewTokenBudget(cfg.MaxTokensPerMinute),
		log:    log.With(logger.StringField("ai_backend", name)),
	}
}

func (b *aiBackendBase) Name() string {
	return b.name
}

// withDefaults fills unset request limits from config.
func (b *aiBackendBase) withDefaults(req AIRequest) AIRequest {
	if req.MaxTokens <= 0 {
		req.MaxTokens = b.cfg.MaxTokens
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = 4000
	}
	if req.Temperature <= 0 {
		req.Temperature = b.cfg.Temperature
	}
	return req
}

// reserve takes an estimate of the tokens req may spend from the per-minute budget.
func (b *aiBackendBase) reserve(ctx context.Context, req AIRequest) (int, error) {
	estimate := (len(req.System)+len(req.User))/4 + req.MaxTokens
	if !b.budget.Reserve(estimate) {
		b.log.WarnContext(ctx, "token budget exhausted",
			logger.IntField("estimate", estimate),
			logger.IntField("remaining", b.budget.GetRemaining()),
		)
		return 0, &AIError{Backend: b.name, Kind: AIErrRateLimited, Err: errors.New("local token budget exhausted")}
	}
	return estimate, nil
}

// settle hands back the part of a reservation the call did not use.
func (b *aiBackendBase) settle(reserved, used int) {
	if used > 0 && used < reserved {
		b.budget.Release(reserved - used)
	}
}

func (b *aiBackendBase) fail(ctx context.Context, kind AIErrorKind, status int, err error) *AIError {
	aiErr := &AIError{Backend: b.name, Kind: kind, StatusCode: status, Err: err}
	b.log.WarnContext(ctx, "ai backend call failed",
		logger.StringField("kind", string(kind)),
		logger.IntField("status_code", status),
		logger.StringField("error", logger.Truncate(err.Error(), 300)),
	)
	return aiErr
}

// classifyAIFailure maps a status code and error text to a kind. Vendors
// disagree on codes for quota problems, so the message is consulted too.
func classifyAIFailure(ctx context.Context, status int, err error) AIErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || (ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return AIErrTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient_quota"), strings.Contains(msg, "quota"),
		strings.Contains(msg, "credit balance"), strings.Contains(msg, "usage limit"), status == http.StatusPaymentRequired:
		return AIErrQuotaExhausted
	case status == http.StatusTooManyRequests, strings.Contains(msg, "rate limit"), strings.Contains(msg, "resource_exhausted"):
		return AIErrRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		strings.Contains(msg, "api key not valid"), strings.Contains(msg, "invalid api key"), strings.Contains(msg, "invalid x-api-key"):
		return AIErrAuthFailed
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout, strings.Contains(msg, "timeout"):
		return AIErrTimeout
	case status >= http.StatusInternalServerError || status == 0:
		return AIErrUnavailable
	default:
		return AIErrBadResponse
	}
}
