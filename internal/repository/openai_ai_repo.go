package repository

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"portfolio-advisor/config"
	"portfolio-advisor/pkg/logger"
)

// openAIRepository serves both OpenAI and Grok; xAI exposes an OpenAI-compatible API.
type openAIRepository struct {
	aiBackendBase
	client *openai.Client
}

func NewOpenAIRepository(name string, cfg config.AIBackend, log *logger.Logger) AIBackend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &openAIRepository{
		aiBackendBase: newAIBackendBase(name, cfg, log),
		client:        openai.NewClientWithConfig(clientCfg),
	}
}

func (r *openAIRepository) Complete(ctx context.Context, req AIRequest) (*AIResponse, error) {
	req = r.withDefaults(req)
	reserved, err := r.reserve(ctx, req)
	if err != nil {
		return nil, err
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.User})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		r.settle(reserved, 1)
		status := 0
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		switch {
		case errors.As(err, &apiErr):
			status = apiErr.HTTPStatusCode
		case errors.As(err, &reqErr):
			status = reqErr.HTTPStatusCode
		}
		return nil, r.fail(ctx, classifyAIFailure(ctx, status, err), status, err)
	}
	r.settle(reserved, resp.Usage.TotalTokens)

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, r.fail(ctx, AIErrBadResponse, http.StatusOK, errors.New("empty completion"))
	}
	return &AIResponse{Text: resp.Choices[0].Message.Content, TokensUsed: resp.Usage.TotalTokens}, nil
}
