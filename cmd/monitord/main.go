package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/omniapi/monitor/internal/config"
	"github.com/omniapi/monitor/internal/incident"
	"github.com/omniapi/monitor/internal/logging"
	"github.com/omniapi/monitor/internal/monitor"
	"github.com/omniapi/monitor/internal/notify"
	"github.com/omniapi/monitor/internal/probe"
	"github.com/omniapi/monitor/internal/repo"
	"github.com/omniapi/monitor/internal/repo/memory"
	"github.com/omniapi/monitor/internal/repo/postgres"
	"github.com/omniapi/monitor/internal/repo/sqlite"
)

// monitord runs the batch scheduler on a cron schedule without the HTTP
// surface. Useful when the trigger is in-process rather than an external
// cron service.
func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		log.Fatal(err)
	}

	checker := probe.NewChecker(logger)
	tracker := incident.NewTracker(logger, store)
	dispatcher := notify.NewDispatcher(logger, store, notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		SSL:      cfg.SMTPSSL,
	})
	svc := monitor.NewService(logger, store, checker, tracker, dispatcher)
	svc.Region = cfg.Region

	runPass := func() {
		passCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		res, err := svc.CheckAll(passCtx, cfg.CronConcurrency)
		if err != nil {
			logger.Warn("pass_error", zap.Error(err))
			return
		}
		logger.Info("pass_done", zap.Int("checked", res.Checked))
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.CronSchedule, runPass); err != nil {
		log.Fatalf("bad CRON_SCHEDULE %q: %v", cfg.CronSchedule, err)
	}

	logger.Info("monitord_start", zap.String("schedule", cfg.CronSchedule))
	runPass() // immediate pass, then on schedule
	c.Start()

	<-ctx.Done()
	cronCtx := c.Stop()
	<-cronCtx.Done()
	logger.Info("monitord_stopped")
}

func openStore(ctx context.Context, dsn string, logger *zap.Logger) (repo.Store, error) {
	switch {
	case dsn == "":
		logger.Info("store_memory")
		return memory.New(), nil
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		logger.Info("store_postgres")
		return postgres.New(ctx, dsn, logger)
	default:
		logger.Info("store_sqlite", zap.String("path", dsn))
		return sqlite.New(ctx, dsn)
	}
}
