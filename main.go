package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quickhelp/quickhelp/internal/config"
	"github.com/quickhelp/quickhelp/internal/file"
	"github.com/quickhelp/quickhelp/internal/llm"
	"github.com/quickhelp/quickhelp/internal/logger"
	"github.com/quickhelp/quickhelp/internal/metrics"
	"github.com/quickhelp/quickhelp/internal/ocr"
	"github.com/quickhelp/quickhelp/internal/quota"
	"github.com/quickhelp/quickhelp/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		var missing *config.MissingEnvError
		if errors.As(err, &missing) {
			log.Fatalf("Configuration incomplete: %v (set it in the environment or in .env)", err)
		}
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.InitLogger(cfg.LogLevel, cfg.LogDir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("QuickHelp stopped with error", logger.Fields{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger.Info("QuickHelp is starting", logger.Fields{
		"log_level":    cfg.LogLevel,
		"llm_provider": cfg.LLMProvider,
		"llm_model":    cfg.LLMModel,
		"ocr_provider": cfg.OCRProvider,
		"free_limit":   cfg.FreeLimit,
		"has_redis":    cfg.HasRedisConfig(),
		"has_metrics":  cfg.HasMetricsConfig(),
	})

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	tracker, err := quota.NewTracker(store, cfg.FreeLimit)
	if err != nil {
		return err
	}

	client, err := llm.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer client.Close()

	extractor, err := newExtractor(cfg)
	if err != nil {
		return fmt.Errorf("failed to create text extractor: %w", err)
	}

	var collector *metrics.Collector
	if cfg.HasMetricsConfig() {
		collector = metrics.NewCollector()
		go func() {
			if err := collector.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("Metrics server stopped", logger.Fields{
					"error": err.Error(),
				})
			}
		}()
	}

	bot, err := telegram.NewBot(cfg, telegram.Deps{
		Tracker:   tracker,
		Answerer:  client,
		Extractor: extractor,
		Files:     file.NewManager(cfg.TempDir),
		Metrics:   collector,
	})
	if err != nil {
		return err
	}
	defer bot.Stop()

	logger.InfoMsg("📚 Ready to answer homework questions!")

	return bot.Start(ctx)
}

// newStore picks Redis when REDIS_ADDR is set and process memory otherwise.
func newStore(ctx context.Context, cfg *config.Config) (quota.Store, error) {
	if !cfg.HasRedisConfig() {
		logger.WarnMsg("REDIS_ADDR not set, usage and premium state will not survive a restart")
		return quota.NewMemoryStore(), nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := quota.ConnectRedis(pingCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Using Redis for usage tracking", logger.Fields{
		"addr": cfg.RedisAddr,
		"db":   cfg.RedisDB,
	})
	return quota.NewRedisStore(client), nil
}

// newExtractor builds the OCR backend. The vision backend reuses the LLM
// credentials with the OCR model.
func newExtractor(cfg *config.Config) (ocr.Extractor, error) {
	var vision llm.Provider
	if cfg.OCRProvider == config.OCRProviderVision {
		p, err := llm.NewProvider(cfg.LLMProvider, cfg.LLMToken, cfg.LLMEndpoint, cfg.OCRModel)
		if err != nil {
			return nil, err
		}
		vision = p
	}
	return ocr.New(cfg, vision)
}
