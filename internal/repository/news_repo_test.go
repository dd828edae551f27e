package repository

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-advisor/config"
	"portfolio-advisor/pkg/cache"
	"portfolio-advisor/pkg/logger"
)

type stubFeedParser struct {
	feeds map[string]*gofeed.Feed
	calls int
}

func (s *stubFeedParser) ParseURLWithContext(feedURL string, ctx context.Context) (*gofeed.Feed, error) {
	s.calls++
	if f, ok := s.feeds[feedURL]; ok {
		return f, nil
	}
	return nil, errors.New("feed unavailable")
}

func TestNewsRepository_NewsAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/top-headlines", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("apiKey"))
		_, _ = w.Write([]byte(`{"status":"ok","articles":[
			{"source":{"name":"Reuters"},"title":"Fed holds rates","url":"https://x/1","publishedAt":"2025-01-02T10:00:00Z"},
			{"source":{"name":"X"},"title":"[Removed]","url":"","publishedAt":"2025-01-02T09:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	cfg := config.News{
		NewsAPI:      config.Provider{APIKey: "key", BaseURL: srv.URL, Timeout: time.Second},
		CacheTTL:     time.Minute,
		MaxHeadlines: 5,
	}
	repo := NewNewsRepository(cfg, cache.NewCache(time.Minute, time.Minute), logger.NewNop())

	headlines := repo.GetHeadlines(context.Background())
	require.Len(t, headlines, 1)
	assert.Equal(t, "Fed holds rates", headlines[0].Title)
	assert.Equal(t, "Reuters", headlines[0].Source)
}

func TestNewsRepository_FallsBackToRSSAndCaches(t *testing.T) {
	older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	parser := &stubFeedParser{feeds: map[string]*gofeed.Feed{
		"https://feed/a": {Title: "Feed A", Items: []*gofeed.Item{
			{Title: "Old story", Link: "https://a/1", PublishedParsed: &older},
			{Title: "New story", Link: "https://a/2", PublishedParsed: &newer},
		}},
	}}

	repo := &newsRepository{
		cfg:    config.News{RSSFeeds: []string{"https://feed/broken", "https://feed/a"}, CacheTTL: time.Minute},
		parser: parser,
		cache:  cache.NewCache(time.Minute, time.Minute),
		log:    logger.NewNop(),
	}

	headlines := repo.GetHeadlines(context.Background())
	require.Len(t, headlines, 2)
	assert.Equal(t, "New story", headlines[0].Title)

	_ = repo.GetHeadlines(context.Background())
	assert.Equal(t, 2, parser.calls, "second call is served from cache")
}

func TestNewsRepository_NothingAvailable(t *testing.T) {
	repo := &newsRepository{
		cfg:    config.News{RSSFeeds: []string{"https://feed/broken"}},
		parser: &stubFeedParser{},
		cache:  cache.NewCache(time.Minute, time.Minute),
		log:    logger.NewNop(),
	}
	assert.Empty(t, repo.GetHeadlines(context.Background()))
}
