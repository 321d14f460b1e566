package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	app "github.com/mohammadpnp/archive-migration/internal/application/migration"
	"github.com/mohammadpnp/archive-migration/internal/bootstrap"
	"github.com/mohammadpnp/archive-migration/internal/config"
	"github.com/mohammadpnp/archive-migration/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("invalid configuration")
	}
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap.NewApp(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to start")
	}
	defer a.Close()

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	worker := app.NewWorker(a.Sheets, a.Engine, log, app.WorkerConfig{
		Workers:      cfg.Workers,
		PollInterval: cfg.PollInterval,
	})
	worker.Start(workerCtx)

	recovery := a.NewRecovery(worker)
	scheduler := app.NewRecoveryScheduler(recovery, cfg.RecoverySchedule, log)
	if err := scheduler.Start(workerCtx); err != nil {
		log.WithError(err).Fatal("failed to schedule recovery")
	}
	if cfg.RecoverySchedule == "" {
		go scheduler.Sweep(workerCtx)
	}

	server := bootstrap.NewHTTPServer(a, recovery)
	go func() {
		log.WithField("addr", cfg.Addr).Info("api listening")
		if err := server.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}

	<-scheduler.Stop().Done()
	stopWorkers()
	worker.Wait()
}
