package cmd

import (
	"context"
	"fmt"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"portfolio-advisor/config"
	"portfolio-advisor/internal/repository"
	"portfolio-advisor/internal/service"
	"portfolio-advisor/pkg/cache"
	"portfolio-advisor/pkg/common"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/postgres"
	"portfolio-advisor/pkg/ratelimit"
	"portfolio-advisor/pkg/redis"
	"portfolio-advisor/pkg/telegram"
)

type AppDependency struct {
	db        *postgres.DB
	redis     *redis.Client
	cfg       *config.Config
	log       *logger.Logger
	validator *goValidator.Validate
	echo      *echo.Echo
	cache     cache.Cache
	limiter   *ratelimit.Limiter
	notifier  *telegram.Notifier
}

type dependencyOptions struct {
	memoryQueue bool
}

type DependencyOption func(*dependencyOptions)

// WithMemoryQueue skips the shared job store, for one-shot commands.
func WithMemoryQueue() DependencyOption {
	return func(o *dependencyOptions) {
		o.memoryQueue = true
	}
}

func NewAppDependency(ctx context.Context, opts ...DependencyOption) (*AppDependency, error) {
	options := &dependencyOptions{}
	for _, opt := range opts {
		opt(options)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if options.memoryQueue {
		cfg.Queue.Backend = common.QUEUE_BACKEND_MEMORY
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, err
	}

	dep := &AppDependency{
		cfg:       cfg,
		log:       log,
		validator: goValidator.New(),
		echo:      echo.New(),
		cache:     cache.NewCache(cfg.Cache.DefaultExpiration, cfg.Cache.CleanupInterval),
		limiter:   ratelimit.NewLimiter(),
	}

	if cfg.Telegram.Enabled() {
		bot, err := telegram.NewBot(&cfg.Telegram)
		if err != nil {
			log.Error("Failed to create telegram bot", zap.Error(err))
			return nil, err
		}
		dep.notifier = telegram.NewNotifier(&cfg.Telegram, log, bot)
		dep.log = log.WithAlerts(dep.notifier, zap.ErrorLevel)
	}

	switch cfg.Queue.Backend {
	case common.QUEUE_BACKEND_POSTGRES:
		db, err := postgres.NewDB(ctx, cfg.DB, dep.log)
		if err != nil {
			dep.log.Error("Failed to connect to database", zap.Error(err))
			return nil, err
		}
		dep.db = db
	case common.QUEUE_BACKEND_REDIS:
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			dep.log.Error("Failed to connect to redis", zap.Error(err))
			return nil, err
		}
		dep.redis = client
	}

	return dep, nil
}

// Services builds the repository and service graph on top of the dependencies.
func (d *AppDependency) Services(ctx context.Context) (*repository.Repository, *service.Service, error) {
	stores := repository.Stores{Redis: d.redis}
	if d.db != nil {
		stores.DB = d.db.DB
	}

	repo, err := repository.NewRepository(ctx, d.cfg, d.limiter, d.cache, stores, d.log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create repository: %w", err)
	}

	providerSet := service.ProviderSet{
		Limiter: d.limiter,
		Quotes:  repo.QuoteProviders,
		Crypto:  repo.CryptoRepo,
	}
	return repo, service.NewService(d.cfg, d.log, repo, providerSet, d.cache), nil
}

// StartNotifier runs the alert sender until ctx is done. No-op without telegram config.
func (d *AppDependency) StartNotifier(ctx context.Context) {
	if d.notifier != nil {
		d.notifier.Start(ctx)
	}
}

func (d *AppDependency) Close() error {
	d.log.Info("Closing app dependency")
	if d.notifier != nil {
		d.notifier.Stop()
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.log.Error("Failed to close redis", zap.Error(err))
		}
	}
	var err error
	if d.db != nil {
		err = d.db.Close()
	}
	_ = d.log.Sync()
	return err
}
