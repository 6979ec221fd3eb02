package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"telegram-relay-go/internal/config"
	"telegram-relay-go/internal/worker"
)

func main() {
	userID := flag.Uint("user-id", 0, "id of the user whose mappings this worker serves")
	sessionPath := flag.String("session", "", "path to the account session file")
	accountID := flag.Uint("account-id", 0, "telegram account id, 0 for unscoped")
	flag.Parse()

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	if *userID == 0 || *sessionPath == "" {
		logrus.Fatal("--user-id and --session are required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	opts := worker.Options{
		UserID:      uint(*userID),
		SessionPath: *sessionPath,
	}
	if *accountID != 0 {
		id := uint(*accountID)
		opts.AccountID = &id
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx, cfg, opts); err != nil {
		logrus.Fatalf("Worker exited with error: %v", err)
	}
}
