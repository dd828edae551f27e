package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"portfolio-advisor/config"
	"portfolio-advisor/pkg/logger"
)

type geminiAIRepository struct {
	aiBackendBase
	genAiClient *genai.Client
}

// NewGeminiAIRepository creates the Gemini backend. The client is built eagerly
// so a malformed key surfaces at startup.
func NewGeminiAIRepository(ctx context.Context, cfg config.AIBackend, log *logger.Logger) (AIBackend, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	genAiClient, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &geminiAIRepository{
		aiBackendBase: newAIBackendBase(AIBackendGemini, cfg, log),
		genAiClient:   genAiClient,
	}, nil
}

func (r *geminiAIRepository) Complete(ctx context.Context, req AIRequest) (*AIResponse, error) {
	req = r.withDefaults(req)
	reserved, err := r.reserve(ctx, req)
	if err != nil {
		return nil, err
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := r.genAiClient.Models.GenerateContent(ctx, r.cfg.Model, genai.Text(req.User), genCfg)
	if err != nil {
		r.settle(reserved, 1)
		status := 0
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.Code
		}
		return nil, r.fail(ctx, classifyAIFailure(ctx, status, err), status, err)
	}

	used := 0
	if resp.UsageMetadata != nil {
		used = int(resp.UsageMetadata.TotalTokenCount)
	}
	r.settle(reserved, used)

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, r.fail(ctx, AIErrBadResponse, http.StatusOK, errors.New("empty gemini response"))
	}
	return &AIResponse{Text: text, TokensUsed: used}, nil
}
