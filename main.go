package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"coherence/analysis"
	"coherence/config"
	"coherence/metrics"
	"coherence/processors"
	"coherence/server"
	"coherence/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.WithError(err).Fatal("failed to create data directory")
	}

	metrics.Register()

	jobs := storage.NewJobStore()
	results := storage.NewResultStore(cfg, logger)
	moments := storage.NewMomentIndex(cfg, logger)
	provider := analysis.NewProvider(cfg, logger)
	runner := processors.NewRunner(jobs, results, moments, provider, logger)

	srv := server.NewServer(cfg, jobs, results, moments, provider, runner, logger)
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":         cfg.Port,
			"analyzer":     provider.Name(),
			"moment_index": moments.Name(),
		}).Info("server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("shutdown did not finish cleanly")
	}
}
