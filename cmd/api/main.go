package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/wa-navigator/cmd/mainconfig"
	"github.com/wolfman30/wa-navigator/internal/analytics"
	"github.com/wolfman30/wa-navigator/internal/api/router"
	"github.com/wolfman30/wa-navigator/internal/app/bootstrap"
	"github.com/wolfman30/wa-navigator/internal/chatbot"
	appconfig "github.com/wolfman30/wa-navigator/internal/config"
	"github.com/wolfman30/wa-navigator/internal/conversation"
	"github.com/wolfman30/wa-navigator/internal/http/handlers"
	"github.com/wolfman30/wa-navigator/internal/observability/metrics"
	sessionsworker "github.com/wolfman30/wa-navigator/internal/worker/sessions"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting wa-navigator API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApp(ctx, cfg, logger, mainconfig.LoadAWSConfig)
	if err != nil {
		logger.Error("failed to build app", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if cfg.SessionCleanupInAPI {
		janitor := sessionsworker.NewJanitor(app.engine, logger).
			WithInterval(cfg.SessionCleanupInterval).
			WithMaxIdle(cfg.SessionMaxIdle)
		go janitor.Run(ctx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr, "mode", app.mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server stopped")
}

type app struct {
	handler  http.Handler
	engine   *conversation.Engine
	recorder *analytics.Recorder
	pool     *pgxpool.Pool
	redis    *redis.Client
	mode     string
}

// Close drains pending analytics writes before releasing connections.
func (a *app) Close() {
	a.recorder.Wait()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func setupMetrics() (http.Handler, *metrics.ChatbotMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewChatbotMetrics(reg)
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, loadAWS bootstrap.AWSConfigLoader) (*app, error) {
	metricsHandler, m := setupMetrics()

	var pool *pgxpool.Pool
	if !cfg.UseMemoryStore {
		var err error
		pool, err = bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
	}
	a := &app{pool: pool}

	a.redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	sessions := bootstrap.BuildSessionStore(pool, logger)
	a.engine = bootstrap.BuildEngine(sessions, bootstrap.BuildLocker(cfg, a.redis), m, logger)

	msgLog := bootstrap.BuildMessageLog(pool, logger)
	dispatcher, reason := bootstrap.BuildDispatcher(cfg, msgLog, m, logger)
	a.mode = dispatcher.Mode()
	if reason != "" {
		logger.Warn("whatsapp live mode unavailable", "reason", reason)
	}

	sink, err := bootstrap.BuildAnalyticsSink(ctx, cfg, loadAWS, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.recorder = bootstrap.BuildAnalyticsRecorder(sink, cfg,
		analytics.WithLogger(logger),
		analytics.WithMetrics(m),
	)

	svc := chatbot.NewService(a.engine, dispatcher, msgLog,
		chatbot.WithAnalytics(a.recorder),
		chatbot.WithMetrics(m),
		chatbot.WithLogger(logger),
		chatbot.WithConcurrency(cfg.EventConcurrency),
	)

	routerCfg := &router.Config{
		Logger: logger,
		Webhook: handlers.NewWhatsAppWebhookHandler(handlers.WhatsAppWebhookConfig{
			Processor:   svc,
			VerifyToken: cfg.WhatsAppVerifyToken,
			AppSecret:   cfg.WhatsAppAppSecret,
			Logger:      logger,
			Metrics:     m,
		}),
		Admin: handlers.NewAdminChatbotHandler(handlers.AdminChatbotConfig{
			Sessions: sessions,
			Manager:  a.engine,
			Messages: msgLog,
			Sender:   dispatcher,
			Logger:   logger,
		}),
		MetricsHandler:   metricsHandler,
		AdminAuthSecret:  cfg.AdminJWTSecret,
		AdminCORSOrigins: cfg.AdminCORSOrigins,
		WebhookRate:      cfg.WebhookRateLimit,
		WebhookBurst:     cfg.WebhookRateBurst,
	}
	if pool != nil {
		routerCfg.Ready = pool.Ping
	}
	a.handler = router.New(routerCfg)
	return a, nil
}
