package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cronSecret := strings.TrimSpace(os.Getenv("CRON_SECRET"))
	apiAddr := strings.TrimSpace(os.Getenv("API_ADDR"))
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	smtpHost := strings.TrimSpace(os.Getenv("SMTP_HOST"))
	smtpUser := strings.TrimSpace(os.Getenv("SMTP_USER"))

	if cronSecret == "" {
		fail("CRON_SECRET is empty (GET /api/cron will reject every call).")
	}
	ok("CRON_SECRET present")

	if apiAddr == "" {
		warn("API_ADDR is empty; the default bind address will be used.")
	} else {
		ok("API_ADDR=" + apiAddr)
	}

	if db == "" {
		warn("DATABASE_URL empty; checks will use the in-memory store and history is lost on restart.")
	} else {
		ok("DATABASE_URL present")
	}

	if smtpHost == "" {
		warn("SMTP_HOST empty; email channels will fail to deliver (other channels unaffected).")
	} else {
		ok("SMTP_HOST=" + smtpHost)
		if smtpUser == "" {
			warn("SMTP_USER empty; most SMTP relays require authentication.")
		}
	}

	ok("preflight passed")
}
