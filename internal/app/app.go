package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"telegram-relay-go/internal/cleanup"
	"telegram-relay-go/internal/config"
	"telegram-relay-go/internal/database"
	"telegram-relay-go/internal/handlers"
	"telegram-relay-go/internal/metrics"
	"telegram-relay-go/internal/repository"
	"telegram-relay-go/internal/server"
	"telegram-relay-go/internal/supervisor"
)

// Run initializes and starts the control plane: database, worker supervisor,
// cleanup scheduler, and the HTTP API.
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Telegram Relay Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	dbConn, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	repo := repository.New(dbConn)

	launcher := &supervisor.ExecLauncher{
		Binary:  cfg.Worker.Binary,
		DataDir: cfg.Worker.DataDir,
	}
	sup := supervisor.New(repo, launcher, cfg.Worker.StopGracePeriod, m)
	if err := sup.RestoreOnBoot(); err != nil {
		logrus.Errorf("Worker restore failed: %v", err)
	}

	cleaner := cleanup.NewCleaner(cfg.Cleanup, repo)
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("failed to start cleanup scheduler: %w", err)
	}

	h := handlers.NewHandlers(dbConn, sup, m)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cleaner.Stop()

	// Registry rows are kept so the next boot respawns the same workers.
	sup.TerminateAll()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}
