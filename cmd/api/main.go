package main

import (
	"context"
	"log"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/omniapi/monitor/internal/config"
	"github.com/omniapi/monitor/internal/httpapi"
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

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()
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

	api := httpapi.NewServer(logger, svc, tracker, cfg.CronSecret)
	api.Concurrency = cfg.Concurrency
	api.CronConcurrency = cfg.CronConcurrency

	logger.Info("api_listen", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, api.Router()); err != nil {
		log.Fatal(err)
	}
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
