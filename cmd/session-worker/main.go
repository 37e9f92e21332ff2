package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wolfman30/wa-navigator/internal/app/bootstrap"
	"github.com/wolfman30/wa-navigator/internal/config"
	sessionsworker "github.com/wolfman30/wa-navigator/internal/worker/sessions"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

// session-worker ends idle sessions against the shared database so API
// replicas do not all sweep at once.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("session worker requires DATABASE_URL")
		os.Exit(1)
	}

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := bootstrap.BuildSessionStore(pool, logger)
	engine := bootstrap.BuildEngine(store, bootstrap.BuildLocker(cfg, nil), nil, logger)

	janitor := sessionsworker.NewJanitor(engine, logger).
		WithInterval(cfg.SessionCleanupInterval).
		WithMaxIdle(cfg.SessionMaxIdle)

	done := make(chan struct{})
	go func() {
		janitor.Run(ctx)
		close(done)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("session worker shutting down")
	cancel()
	<-done
}
