// Package app assembles the automation components from configuration. Both
// the HTTP server and triagectl build on it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/civic_complaints/backend/internal/ai"
	"github.com/civic_complaints/backend/internal/budget"
	"github.com/civic_complaints/backend/internal/config"
	"github.com/civic_complaints/backend/internal/lock"
	"github.com/civic_complaints/backend/internal/metrics"
	"github.com/civic_complaints/backend/internal/models"
	"github.com/civic_complaints/backend/internal/notify"
	"github.com/civic_complaints/backend/internal/scheduler"
	"github.com/civic_complaints/backend/internal/service"
	"github.com/civic_complaints/backend/internal/taxonomy"
)

// Store is everything the assembled application needs from persistence. Both
// db.Store and db.MemoryStore satisfy it.
type Store interface {
	service.Store
	scheduler.RunStore
	CountBacklog(ctx context.Context) (int, error)
	GetLatestRun(ctx context.Context, kind string) (models.Run, error)
}

type App struct {
	Config   config.Config
	Store    Store
	Taxonomy *taxonomy.Taxonomy
	Budget   budget.Tracker
	Provider ai.Provider
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger

	Classifier *service.ContentClassifier
	Scorer     service.PriorityScorer
	Selector   service.AssignmentSelector
	Executor   *service.AssignmentExecutor
	Processing *service.ProcessingService
	Rebalancer *service.WorkloadRebalancer
	Scheduler  *scheduler.Scheduler

	redis *redis.Client
}

// NewLogger builds the root logger the way every binary in this module does.
func NewLogger(cfg config.Config, serviceName string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).With().Timestamp().Str("service", serviceName).Logger()
	}
	return log.Level(level).With().Str("service", serviceName).Logger()
}

// New wires every component against store. The caller keeps ownership of the
// store; Close releases what New opened.
func New(ctx context.Context, cfg config.Config, store Store, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Store: store, Logger: logger}

	tx, err := taxonomy.Load(cfg.TaxonomyPath)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}
	a.Taxonomy = tx

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			_ = a.redis.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("redis connected")
	}

	limits := budget.Limits{Daily: cfg.AIDailyCostLimit, Monthly: cfg.AIMonthlyCostLimit}
	var locker lock.Locker
	if a.redis != nil {
		a.Budget = budget.NewRedisTracker(a.redis, limits)
		locker = lock.NewRedisLocker(a.redis, 10*time.Minute, logger.With().Str("component", "lock").Logger())
	} else {
		a.Budget = budget.NewMemoryTracker(limits)
		locker = lock.NewLocalLocker()
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	a.Provider = NewProvider(cfg, logger)

	var notifier notify.Notifier = notify.LogNotifier{Logger: logger}
	if cfg.NotifyURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.NotifyURL, cfg.NotifyTimeout)
	}

	tiers := service.TierThresholds{
		LightMax:    cfg.TierLightMax,
		ModerateMax: cfg.TierModerateMax,
		HeavyMax:    cfg.TierHeavyMax,
	}

	a.Classifier = &service.ContentClassifier{
		Provider: a.Provider,
		Budget:   a.Budget,
		Taxonomy: tx,
		Config: service.ClassifierConfig{
			AIEnabled:            cfg.AIEnabled,
			Timeout:              cfg.AITimeout,
			TextCallCost:         cfg.AITextCallCost,
			ImageCallCost:        cfg.AIImageCallCost,
			ImageAnalysisEnabled: cfg.ImageAnalysisEnabled,
			ImageSkipConfidence:  cfg.ImageSkipConfidence,
			MaxImages:            cfg.MaxImages,
		},
		Metrics: a.Metrics,
		Logger:  logger.With().Str("component", "classifier").Logger(),
	}
	a.Scorer = service.PriorityScorer{Taxonomy: tx}
	a.Selector = service.AssignmentSelector{
		Weights: service.SelectorWeights{
			Load:            cfg.ScoreLoadWeight,
			Experience:      cfg.ScoreExperienceWeight,
			Unavailable:     cfg.ScoreUnavailablePenalty,
			UrgentLoad:      cfg.ScoreUrgentLoadWeight,
			HighLoad:        cfg.ScoreHighLoadWeight,
			RotationPerDay:  cfg.ScoreRotationPerDay,
			RotationCapDays: cfg.ScoreRotationCapDays,
		},
		Taxonomy: tx,
	}
	a.Executor = &service.AssignmentExecutor{
		Store:         store,
		Notifier:      notifier,
		NotifyTimeout: cfg.NotifyTimeout,
		Metrics:       a.Metrics,
		Logger:        logger.With().Str("component", "executor").Logger(),
	}
	a.Processing = &service.ProcessingService{
		Store:      store,
		Classifier: a.Classifier,
		Scorer:     a.Scorer,
		Selector:   a.Selector,
		Executor:   a.Executor,
		Metrics:    a.Metrics,
		Logger:     logger.With().Str("component", "orchestrator").Logger(),
		BatchSize:  cfg.BatchSize,
		Workers:    cfg.BatchWorkers,
		AIMaxItems: cfg.AIMaxItemsPerBatch,
	}
	a.Rebalancer = &service.WorkloadRebalancer{
		Directory:        store,
		Complaints:       store,
		Executor:         a.Executor,
		Tiers:            tiers,
		MaxMovesPerStaff: cfg.RebalanceMaxMovesPerStaff,
		Metrics:          a.Metrics,
		Logger:           logger.With().Str("component", "rebalancer").Logger(),
	}
	a.Scheduler = scheduler.New(scheduler.Config{
		SweepInterval:      cfg.SweepInterval,
		HealthInterval:     cfg.HealthInterval,
		RebalanceInterval:  cfg.RebalanceInterval,
		BatchSize:          cfg.BatchSize,
		BusinessHoursOnly:  cfg.BusinessHoursOnly,
		BusinessHoursStart: cfg.BusinessHoursStart,
		BusinessHoursEnd:   cfg.BusinessHoursEnd,
		Location:           cfg.Location(),
		MaxHistory:         cfg.MaxRunHistory,
	}, scheduler.Deps{
		Batch:      a.Processing,
		Rebalancer: a.Rebalancer,
		Runs:       store,
		Health:     store,
		Budget:     a.Budget,
		Locker:     locker,
		Tiers:      tiers,
		Metrics:    a.Metrics,
		Logger:     logger.With().Str("component", "scheduler").Logger(),
	})
	return a, nil
}

// NewProvider picks the inference adapter. Without AI_URL the deterministic
// mock is used, matching local development.
func NewProvider(cfg config.Config, logger zerolog.Logger) ai.Provider {
	categories := make([]string, 0, len(models.Categories))
	for _, c := range models.Categories {
		categories = append(categories, string(c))
	}
	client := &http.Client{Timeout: cfg.AITimeout}

	if cfg.AIURL == "" || cfg.AIProvider == "mock" {
		logger.Info().Msg("using mock AI provider")
		return ai.MockProvider{ModelVersion: "mock-v1", Categories: categories}
	}
	switch cfg.AIProvider {
	case "openai":
		return &ai.OpenAICompatProvider{
			BaseURL:    cfg.AIURL,
			Model:      cfg.AIModel,
			APIKey:     cfg.AIAPIKey,
			MaxTokens:  300,
			Categories: categories,
			Client:     client,
			CacheTTL:   10 * time.Minute,
		}
	default:
		return ai.HTTPProvider{BaseURL: cfg.AIURL, APIKey: cfg.AIAPIKey, Client: client}
	}
}

func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
