package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alsolver/alsolver/internal/config"
	"github.com/alsolver/alsolver/internal/consts"
	"github.com/alsolver/alsolver/internal/database"
	"github.com/alsolver/alsolver/internal/limiter"
	"github.com/alsolver/alsolver/internal/llm"
	"github.com/alsolver/alsolver/internal/logger"
	"github.com/alsolver/alsolver/internal/metrics"
	"github.com/alsolver/alsolver/internal/ocr"
	"github.com/alsolver/alsolver/internal/server"
	"github.com/alsolver/alsolver/internal/solver"
	"github.com/alsolver/alsolver/internal/telegram"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.InitLogger(cfg.LogLevel, cfg.LogDir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Info("alsolver is starting", map[string]interface{}{
		"log_level":      cfg.LogLevel,
		"has_database":   cfg.HasDatabaseConfig(),
		"has_webhook":    cfg.HasWebhookConfig(),
		"llm_provider":   cfg.LLMProvider,
		"photo_strategy": cfg.PhotoStrategy,
		"daily_limit":    cfg.DailyFreeLimit,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("alsolver stopped with error", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	logger.InfoMsg("alsolver stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	store := openStore(ctx, cfg)
	defer store.Close()

	collector := metrics.NewCollector()

	quota := limiter.New(store, limiter.Options{
		DailyLimit: cfg.DailyFreeLimit,
		Strict:     cfg.StrictQuota,
	})
	defer quota.Close()

	textModel, err := llm.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create language model client: %w", err)
	}

	imageSolver, err := newImageSolver(ctx, cfg, textModel, collector)
	if err != nil {
		return err
	}

	platform, err := telegram.NewAPIPlatform(cfg.TelegramBotToken, cfg.HTTPTimeout)
	if err != nil {
		return err
	}

	bot, err := telegram.NewBot(telegram.Options{
		Platform:           platform,
		Quota:              quota,
		Audit:              store,
		Text:               solver.NewTextSolver(textModel, collector),
		Image:              imageSolver,
		Metrics:            collector,
		Limits:             telegram.DefaultRateLimits(),
		LimitTextQuestions: cfg.LimitTextQuestions,
	})
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	defer bot.Close()

	srv := server.NewServer(server.Options{
		Port:        cfg.Port,
		WebhookPath: server.WebhookPath(cfg.TelegramBotToken),
		Secret:      cfg.WebhookSecret,
		Metrics:     collector.Handler(),
	}, bot)

	if cfg.HasWebhookConfig() {
		if err := platform.SetWebhook(webhookURL(cfg.WebhookURL, srv.Path()), cfg.WebhookSecret); err != nil {
			return err
		}
	} else {
		logger.WarnMsg("WEBHOOK_URL not set, expecting the webhook to be registered elsewhere")
	}

	logger.Info("📚 Ready to solve A/L questions", map[string]interface{}{
		"bot": platform.Username(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to stop http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openStore connects to Postgres when POSTGRE_DSN is set. Without it, or if
// the connection fails, usage is kept in memory and lost on restart.
func openStore(ctx context.Context, cfg *config.Config) database.Store {
	if !cfg.HasDatabaseConfig() {
		logger.InfoMsg("No database configured, keeping usage in memory")
		return database.NewMemoryStore()
	}

	db, err := database.NewDB(ctx, cfg.PostgreDSN)
	if err != nil {
		logger.Warn("Failed to initialize database", map[string]interface{}{
			"error": err.Error(),
		})
		logger.InfoMsg("Continuing with in-memory usage store...")
		return database.NewMemoryStore()
	}

	logger.InfoMsg("Database initialized successfully")
	return db
}

func newImageSolver(ctx context.Context, cfg *config.Config, textModel llm.Client, observer solver.Observer) (solver.ImageSolver, error) {
	switch cfg.PhotoStrategy {
	case consts.PhotoStrategyVision:
		vision, err := llm.NewVisionClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create vision model client: %w", err)
		}
		return solver.NewVisionSolver(vision, observer), nil

	case consts.PhotoStrategyOCR, "":
		extractor, err := ocr.NewClient(ocr.Config{
			APIKey:     cfg.OCRAPIKey,
			Endpoint:   cfg.OCREndpoint,
			Language:   cfg.OCRLanguage,
			HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OCR client: %w", err)
		}
		return solver.NewOCRSolver(extractor, textModel, observer), nil

	default:
		return nil, fmt.Errorf("unknown photo strategy %q", cfg.PhotoStrategy)
	}
}

func webhookURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
