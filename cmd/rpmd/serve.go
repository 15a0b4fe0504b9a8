package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/rpm-engine/internal/job"
	"github.com/t77yq/rpm-engine/internal/notify"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled evaluations and expose metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := a.logger

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	eng, err := a.newEngine(store)
	if err != nil {
		return err
	}

	opts := []job.RunnerOption{
		job.WithWorkers(a.cfg.Job.Workers),
		job.WithActivityWindow(a.cfg.Job.ActivityWindow),
		job.WithPatientTimeout(a.cfg.Job.LockTTL),
	}

	if a.cfg.NATS.Enabled {
		nc, js, err := a.connectNATS()
		if err != nil {
			return err
		}
		defer nc.Drain()

		publisher := notify.NewPublisher(log, js, notify.WithRetry(
			a.cfg.NATS.PublishAttempts,
			&notify.ExponentialBackoff{
				InitialDelay: a.cfg.NATS.PublishBackoff,
				MaxDelay:     5 * time.Second,
				Multiplier:   2,
			},
		))
		if err := publisher.EnsureStream(); err != nil {
			return err
		}
		opts = append(opts, job.WithPublisher(publisher))
	}

	if a.cfg.Redis.Enabled {
		client, err := a.connectRedis(ctx)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, job.WithLocker(job.NewRedisLocker(client), a.cfg.Job.LockTTL))
	}

	runner := job.NewRunner(log, eng, store, opts...)
	scheduler := job.NewScheduler(log, runner, a.cfg.Job.RunTimeout)
	if err := scheduler.Start(ctx, a.cfg.Job.Schedule); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              a.cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("Metrics server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	case err = <-srvErr:
		log.Error("Metrics server failed", zap.Error(err))
	}

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("Metrics server shutdown", zap.Error(shutdownErr))
	}

	log.Info("Shutdown complete")
	if err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
