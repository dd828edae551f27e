package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"portfolio-advisor/pkg/common"
)

type Config struct {
	App       App            `mapstructure:"app"`
	Log       Logger         `mapstructure:"logger"`
	API       API            `mapstructure:"api"`
	Cache     Cache          `mapstructure:"cache"`
	DB        Database       `mapstructure:"database"`
	Redis     Redis          `mapstructure:"redis"`
	Queue     Queue          `mapstructure:"queue"`
	Providers Providers      `mapstructure:"providers"`
	CoinGecko CoinGecko      `mapstructure:"coingecko"`
	News      News           `mapstructure:"news"`
	AI        AI             `mapstructure:"ai"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

type App struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

func (a App) IsProduction() bool {
	return strings.EqualFold(a.Env, common.ENV_PRODUCTION)
}

type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type API struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type Database struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
	MigrationsPath  string `mapstructure:"migrations_path"`
}

func (d Database) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

type Redis struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type Queue struct {
	Enabled              bool          `mapstructure:"enabled"`
	Backend              string        `mapstructure:"backend"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	MaxConcurrency       int           `mapstructure:"max_concurrency"`
	JobTimeout           time.Duration `mapstructure:"job_timeout"`
	JobTTL               time.Duration `mapstructure:"job_ttl"`
	CleanupSpec          string        `mapstructure:"cleanup_spec"`
	ExpectedDuration     time.Duration `mapstructure:"expected_duration"`
	ProcessingStaleAfter time.Duration `mapstructure:"processing_stale_after"`
}

type Provider struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
	Priority    int           `mapstructure:"priority"`
}

func (p Provider) Active() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

type Providers struct {
	AlphaVantage Provider `mapstructure:"alpha_vantage"`
	TwelveData   Provider `mapstructure:"twelve_data"`
	Finnhub      Provider `mapstructure:"finnhub"`
	FMP          Provider `mapstructure:"fmp"`
}

type CoinGecko struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type News struct {
	NewsAPI      Provider      `mapstructure:"newsapi"`
	RSSFeeds     []string      `mapstructure:"rss_feeds"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	MaxHeadlines int           `mapstructure:"max_headlines"`
}

type AIBackend struct {
	APIKey             string        `mapstructure:"api_key"`
	Model              string        `mapstructure:"model"`
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	Temperature        float64       `mapstructure:"temperature"`
	MaxTokensPerMinute int           `mapstructure:"max_tokens_per_minute"`
}

func (b AIBackend) Active() bool {
	return strings.TrimSpace(b.APIKey) != ""
}

type AI struct {
	Order          []string      `mapstructure:"order"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	ProbeCacheTTL  time.Duration `mapstructure:"probe_cache_ttl"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RequireBackend bool          `mapstructure:"require_backend"`
	OpenAI         AIBackend     `mapstructure:"openai"`
	Grok           AIBackend     `mapstructure:"grok"`
	Claude         AIBackend     `mapstructure:"claude"`
	Gemini         AIBackend     `mapstructure:"gemini"`
}

type TelegramConfig struct {
	BotToken                  string        `mapstructure:"bot_token"`
	ChatID                    int64         `mapstructure:"chat_id"`
	TimeoutDuration           time.Duration `mapstructure:"timeout_duration"`
	MaxGlobalRequestPerSecond int           `mapstructure:"max_global_request_per_second"`
}

func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "portfolio-advisor")
	v.SetDefault("app.env", common.ENV_DEVELOPMENT)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("api.port", 8080)
	v.SetDefault("api.request_timeout", 2*time.Minute)
	v.SetDefault("api.shutdown_timeout", 10*time.Second)
	v.SetDefault("api.rate_limit", 10)
	v.SetDefault("api.rate_burst", 30)

	v.SetDefault("cache.default_expiration", 5*time.Minute)
	v.SetDefault("cache.cleanup_interval", 10*time.Minute)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.migrations_path", "file://migrations")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "portfolio-advisor")

	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.backend", common.QUEUE_BACKEND_MEMORY)
	v.SetDefault("queue.poll_interval", 2*time.Second)
	v.SetDefault("queue.max_concurrency", 2)
	v.SetDefault("queue.job_timeout", 3*time.Minute)
	v.SetDefault("queue.job_ttl", time.Hour)
	v.SetDefault("queue.cleanup_spec", "@every 5m")
	v.SetDefault("queue.expected_duration", 45*time.Second)
	v.SetDefault("queue.processing_stale_after", 10*time.Minute)

	v.SetDefault("providers.finnhub.base_url", "https://finnhub.io/api/v1")
	v.SetDefault("providers.finnhub.max_requests", 60)
	v.SetDefault("providers.finnhub.window", time.Minute)
	v.SetDefault("providers.finnhub.priority", 1)
	v.SetDefault("providers.twelve_data.base_url", "https://api.twelvedata.com")
	v.SetDefault("providers.twelve_data.max_requests", 8)
	v.SetDefault("providers.twelve_data.window", time.Minute)
	v.SetDefault("providers.twelve_data.priority", 2)
	v.SetDefault("providers.alpha_vantage.base_url", "https://www.alphavantage.co")
	v.SetDefault("providers.alpha_vantage.max_requests", 5)
	v.SetDefault("providers.alpha_vantage.window", time.Minute)
	v.SetDefault("providers.alpha_vantage.priority", 3)
	v.SetDefault("providers.fmp.base_url", "https://financialmodelingprep.com")
	v.SetDefault("providers.fmp.max_requests", 250)
	v.SetDefault("providers.fmp.window", 24*time.Hour)
	v.SetDefault("providers.fmp.priority", 4)

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.timeout", 10*time.Second)

	v.SetDefault("news.newsapi.base_url", "https://newsapi.org/v2")
	v.SetDefault("news.newsapi.timeout", 10*time.Second)
	v.SetDefault("news.cache_ttl", 15*time.Minute)
	v.SetDefault("news.max_headlines", 8)

	v.SetDefault("ai.order", []string{"openai", "grok", "claude", "gemini"})
	v.SetDefault("ai.probe_timeout", 15*time.Second)
	v.SetDefault("ai.probe_cache_ttl", 5*time.Minute)
	v.SetDefault("ai.retry_delay", 3*time.Second)
	v.SetDefault("ai.require_backend", true)
	v.SetDefault("ai.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.grok.model", "grok-3-mini")
	v.SetDefault("ai.grok.base_url", "https://api.x.ai/v1")
	v.SetDefault("ai.claude.model", "claude-3-5-haiku-latest")
	v.SetDefault("ai.gemini.model", "gemini-2.0-flash")
	for _, backend := range []string{"openai", "grok", "claude", "gemini"} {
		v.SetDefault("ai."+backend+".timeout", 90*time.Second)
		v.SetDefault("ai."+backend+".max_tokens", 4000)
		v.SetDefault("ai."+backend+".temperature", 0.4)
	}

	v.SetDefault("telegram.timeout_duration", 10*time.Second)
	v.SetDefault("telegram.max_global_request_per_second", 1)
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file loaded:", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config file loaded:", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	q := c.Queue
	if q.ProcessingStaleAfter > 0 && q.ProcessingStaleAfter <= q.JobTimeout {
		return fmt.Errorf("queue.processing_stale_after (%s) must be longer than queue.job_timeout (%s)", q.ProcessingStaleAfter, q.JobTimeout)
	}
	return nil
}
