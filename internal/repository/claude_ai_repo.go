package repository

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"portfolio-advisor/config"
	"portfolio-advisor/pkg/logger"
)

type claudeAIRepository struct {
	aiBackendBase
	client anthropic.Client
}

func NewClaudeAIRepository(cfg config.AIBackend, log *logger.Logger) AIBackend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &claudeAIRepository{
		aiBackendBase: newAIBackendBase(AIBackendClaude, cfg, log),
		client:        anthropic.NewClient(opts...),
	}
}

func (r *claudeAIRepository) Complete(ctx context.Context, req AIRequest) (*AIResponse, error) {
	req = r.withDefaults(req)
	reserved, err := r.reserve(ctx, req)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(r.cfg.Model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := r.client.Messages.New(ctx, params)
	if err != nil {
		r.settle(reserved, 1)
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		// 529 is Anthropic's "overloaded"
		if status == 529 {
			return nil, r.fail(ctx, AIErrUnavailable, status, err)
		}
		return nil, r.fail(ctx, classifyAIFailure(ctx, status, err), status, err)
	}

	used := int(message.Usage.InputTokens + message.Usage.OutputTokens)
	r.settle(reserved, used)

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, r.fail(ctx, AIErrBadResponse, http.StatusOK, errors.New("no text content in message"))
	}
	return &AIResponse{Text: sb.String(), TokensUsed: used}, nil
}
