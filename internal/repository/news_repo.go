package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/dto"
	"portfolio-advisor/pkg/cache"
	"portfolio-advisor/pkg/common"
	"portfolio-advisor/pkg/httpclient"
	"portfolio-advisor/pkg/logger"
)

type NewsRepository interface {
	// GetHeadlines never fails hard: an empty list means no news could be fetched.
	GetHeadlines(ctx context.Context) []dto.NewsHeadline
}

type feedParser interface {
	ParseURLWithContext(feedURL string, ctx context.Context) (*gofeed.Feed, error)
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

type newsRepository struct {
	cfg        config.News
	httpClient httpclient.HTTPClient
	parser     feedParser
	cache      cache.Cache
	log        *logger.Logger
}

func NewNewsRepository(cfg config.News, c cache.Cache, log *logger.Logger) NewsRepository {
	timeout := cfg.NewsAPI.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &newsRepository{
		cfg:        cfg,
		httpClient: httpclient.New(cfg.NewsAPI.BaseURL, timeout, ""),
		parser:     gofeed.NewParser(),
		cache:      c,
		log:        log.With(logger.StringField("component", "news")),
	}
}

func (r *newsRepository) limit() int {
	if r.cfg.MaxHeadlines > 0 {
		return r.cfg.MaxHeadlines
	}
	return 8
}

func (r *newsRepository) GetHeadlines(ctx context.Context) []dto.NewsHeadline {
	key := fmt.Sprintf(common.KEY_NEWS, "headlines")
	if cached, ok := cache.GetFromCache[[]dto.NewsHeadline](r.cache, key); ok {
		return cached
	}

	var headlines []dto.NewsHeadline
	if r.cfg.NewsAPI.Active() {
		var err error
		headlines, err = r.fromNewsAPI(ctx)
		if err != nil {
			r.log.WarnContext(ctx, "NewsAPI failed, falling back to RSS", logger.ErrorField(err))
		}
	}
	if len(headlines) == 0 {
		headlines = r.fromRSS(ctx)
	}
	if len(headlines) > r.limit() {
		headlines = headlines[:r.limit()]
	}

	if len(headlines) > 0 {
		r.cache.Set(key, headlines, r.cfg.CacheTTL)
	}
	return headlines
}

func (r *newsRepository) fromNewsAPI(ctx context.Context) ([]dto.NewsHeadline, error) {
	resp, err := r.httpClient.Get(ctx, "/top-headlines", map[string]string{
		"category": "business",
		"language": "en",
		"pageSize": strconv.Itoa(r.limit()),
		"apiKey":   r.cfg.NewsAPI.APIKey,
	}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call newsapi: %w", err)
	}

	var out newsAPIResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode newsapi response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.Status != "ok" {
		r.log.WarnContext(ctx, "NewsAPI returned an error",
			logger.IntField("status_code", resp.StatusCode),
			logger.BodyField(resp.Body),
		)
		return nil, fmt.Errorf("newsapi error %s: %s", out.Code, out.Message)
	}

	headlines := make([]dto.NewsHeadline, 0, len(out.Articles))
	for _, a := range out.Articles {
		title := strings.TrimSpace(a.Title)
		if title == "" || title == "[Removed]" {
			continue
		}
		headlines = append(headlines, dto.NewsHeadline{
			Title:       title,
			Source:      a.Source.Name,
			URL:         a.URL,
			PublishedAt: a.PublishedAt,
		})
	}
	return headlines, nil
}

func (r *newsRepository) fromRSS(ctx context.Context) []dto.NewsHeadline {
	var headlines []dto.NewsHeadline
	for _, feedURL := range r.cfg.RSSFeeds {
		feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			r.log.WarnContext(ctx, "Failed to parse RSS feed", logger.StringField("url", feedURL), logger.ErrorField(err))
			continue
		}
		for _, item := range feed.Items {
			h := dto.NewsHeadline{
				Title:  strings.TrimSpace(item.Title),
				Source: feed.Title,
				URL:    item.Link,
			}
			if item.PublishedParsed != nil {
				h.PublishedAt = item.PublishedParsed.UTC()
			}
			if h.Title != "" {
				headlines = append(headlines, h)
			}
		}
	}

	sort.SliceStable(headlines, func(i, j int) bool {
		return headlines[i].PublishedAt.After(headlines[j].PublishedAt)
	})
	return headlines
}
