package config

import (
	"os"
	"strconv"
)

type Config struct {
	Addr        string // API bind address
	LogDir      string // logs directory
	LogLevel    string // zap level name: debug, info, warn, error
	DatabaseURL string // postgres://... or a sqlite file path; empty means in-memory store
	Region      string // label stamped on every outcome

	Concurrency     int    // bound for direct check-all triggers
	CronConcurrency int    // bound for the cron trigger
	CronSecret      string // bearer token guarding GET /api/cron
	CronSchedule    string // cron expression for monitord

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string
	SMTPSSL  bool
}

func FromEnv() Config {
	cfg := Config{
		Addr:            getenv("API_ADDR", "127.0.0.1:8080"),
		LogDir:          getenv("LOG_DIR", "logs"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		Region:          getenv("CHECK_REGION", "default"),
		Concurrency:     getint("CHECK_CONCURRENCY", 5),
		CronConcurrency: getint("CRON_CONCURRENCY", 10),
		CronSecret:      os.Getenv("CRON_SECRET"),
		CronSchedule:    getenv("CRON_SCHEDULE", "@every 5m"),
		SMTPHost:        os.Getenv("SMTP_HOST"),
		SMTPPort:        getint("SMTP_PORT", 587),
		SMTPUser:        os.Getenv("SMTP_USER"),
		SMTPPass:        os.Getenv("SMTP_PASS"),
		SMTPFrom:        os.Getenv("SMTP_FROM"),
		SMTPSSL:         os.Getenv("SMTP_SSL") == "true",
	}
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
