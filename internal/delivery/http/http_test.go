package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/internal/repository"
	"portfolio-advisor/internal/service"
	"portfolio-advisor/pkg/cache"
	"portfolio-advisor/pkg/logger"
)

type stubGenerator struct {
	result *dto.RecommendationResult
	err    error
}

func (g *stubGenerator) Generate(ctx context.Context, profile dto.UserProfile) (*dto.RecommendationResult, error) {
	return g.result, g.err
}

type stubOrchestrator struct {
	quotes  map[string]*dto.Quote
	history []dto.PricePoint
	days    int
}

func (o *stubOrchestrator) GetStockData(ctx context.Context, symbol string) *dto.Quote {
	return o.quotes[symbol]
}

func (o *stubOrchestrator) GetHistoricalData(ctx context.Context, symbol string, days int) []dto.PricePoint {
	o.days = days
	return o.history
}

func (o *stubOrchestrator) Providers() []dto.ProviderStatus {
	return []dto.ProviderStatus{{Name: dto.ProviderFinnhub, Active: true, Remaining: 60}}
}

type fixture struct {
	echo         *echo.Echo
	generator    *stubGenerator
	orchestrator *stubOrchestrator
	queue        service.JobQueue
}

func newFixture(t *testing.T, queueEnabled bool) *fixture {
	t.Helper()
	cfg := &config.Config{Queue: config.Queue{Enabled: queueEnabled}}
	log := logger.NewNop()

	f := &fixture{
		echo:         echo.New(),
		generator:    &stubGenerator{},
		orchestrator: &stubOrchestrator{quotes: map[string]*dto.Quote{}},
		queue:        service.NewJobQueue(cfg.Queue, log, repository.NewMemoryJobRepository(cache.NewCache(time.Hour, time.Hour))),
	}
	svc := &service.Service{
		ProviderOrchestrator:    f.orchestrator,
		RecommendationGenerator: f.generator,
		JobQueue:                f.queue,
	}
	NewHttpAPIHandler(context.Background(), cfg, log, f.echo, goValidator.New(), svc).SetupRoutes()
	return f
}

func (f *fixture) do(method, target, body string) (*httptest.ResponseRecorder, dto.BaseResponse) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)

	var resp dto.BaseResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

const validProfile = `{"riskTolerance":5,"capitalAvailable":10000,"timeHorizon":"long","growthType":"growth","esgPriority":3,
	"sectorPreferences":["technology"],"existingPortfolio":[{"symbol":"aapl","amount":500,"type":"stock"}]}`

func TestCreateRecommendation_Sync(t *testing.T) {
	f := newFixture(t, false)
	f.generator.result = &dto.RecommendationResult{
		Recommendations: []dto.RecommendationItem{{Symbol: "VTI", Action: dto.ActionBuy, Amount: 10000}},
		Source:          "rule-based",
	}

	rec, resp := f.do(http.MethodPost, "/api/v1/recommendations", validProfile)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, rec.Body.String(), `"source":"rule-based"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateRecommendation_SyncErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no backend", service.ErrNoAIBackendConfigured, http.StatusServiceUnavailable},
		{"unavailable", service.ErrRecommendationUnavailable, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			f.generator.err = tt.err

			rec, resp := f.do(http.MethodPost, "/api/v1/recommendations", validProfile)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.err.Error(), resp.Message)
		})
	}
}

func TestCreateRecommendation_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"riskTolerance":`},
		{"risk out of range", `{"riskTolerance":11,"capitalAvailable":100}`},
		{"no capital and no holdings", `{"riskTolerance":5,"capitalAvailable":0}`},
		{"bad horizon", `{"riskTolerance":5,"capitalAvailable":100,"timeHorizon":"forever"}`},
		{"non positive holding", `{"riskTolerance":5,"capitalAvailable":100,"existingPortfolio":[{"symbol":"AAPL","amount":0}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			rec, resp := f.do(http.MethodPost, "/api/v1/recommendations", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestCreateRecommendation_QueuedThenPolled(t *testing.T) {
	f := newFixture(t, true)

	rec, resp := f.do(http.MethodPost, "/api/v1/recommendations", validProfile)
	require.Equal(t, http.StatusAccepted, rec.Code)

	raw, _ := json.Marshal(resp.Data)
	var accepted dto.JobAcceptedResponse
	require.NoError(t, json.Unmarshal(raw, &accepted))
	require.NotEmpty(t, accepted.JobID)
	assert.Equal(t, dto.JobStatusPending, accepted.Status)

	job, err := f.queue.GetJob(context.Background(), accepted.JobID)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", job.Profile.ExistingPortfolio[0].Symbol, "profile is normalized before enqueue")

	rec, resp = f.do(http.MethodGet, "/api/v1/jobs/"+accepted.JobID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(dto.JobStatusPending), resp.Message)
	assert.Contains(t, rec.Body.String(), `"progress":`)

	rec, _ = f.do(http.MethodDelete, "/api/v1/jobs/"+accepted.JobID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(http.MethodGet, "/api/v1/jobs/"+accepted.JobID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRecommendation_SyncModeOverridesQueue(t *testing.T) {
	f := newFixture(t, true)
	f.generator.result = &dto.RecommendationResult{Source: "ai:openai"}

	rec, _ := f.do(http.MethodPost, "/api/v1/recommendations?mode=sync", validProfile)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"ai:openai"`)
}

func TestGetJob_NotFound(t *testing.T) {
	f := newFixture(t, true)
	rec, resp := f.do(http.MethodGet, "/api/v1/jobs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "job not found", resp.Message)
}

func TestQuotes(t *testing.T) {
	f := newFixture(t, false)
	f.orchestrator.quotes["AAPL"] = &dto.Quote{Symbol: "AAPL", Price: 190, Source: dto.ProviderFinnhub}
	f.orchestrator.history = []dto.PricePoint{{Close: 1}, {Close: 2}}

	rec, _ := f.do(http.MethodGet, "/api/v1/quotes/aapl", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"price":190`)

	rec, _ = f.do(http.MethodGet, "/api/v1/quotes/MSFT", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(http.MethodGet, "/api/v1/quotes/"+strings.Repeat("X", 16), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(http.MethodGet, "/api/v1/quotes/AAPL/history", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHistoryDays, f.orchestrator.days)

	rec, _ = f.do(http.MethodGet, "/api/v1/quotes/AAPL/history?days=90", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 90, f.orchestrator.days)

	for _, days := range []string{"0", "366", "abc"} {
		rec, _ = f.do(http.MethodGet, "/api/v1/quotes/AAPL/history?days="+days, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, days)
	}
}

func TestProvidersAndHealth(t *testing.T) {
	f := newFixture(t, false)

	rec, _ := f.do(http.MethodGet, "/api/v1/providers", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"finnhub"`)

	rec, _ = f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
