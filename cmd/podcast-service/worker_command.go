package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/spf13/cobra"

	"github.com/book-expert/podcast-service/internal/jobstore"
	"github.com/book-expert/podcast-service/internal/metrics"
	"github.com/book-expert/podcast-service/internal/tts/ttsutils"
	"github.com/book-expert/podcast-service/internal/worker"
)

const (
	workerLogFile         = "podcast-service.log"
	metricsReadTimeout    = 5 * time.Second
	metricsShutdownPeriod = 5 * time.Second
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume job events from NATS and run script and audio jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), ctx)
		},
	}
}

func runWorker(parent context.Context, cc *commandContext) error {
	cfg, log, err := cc.openLogger(workerLogFile)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	err = ttsutils.EnsureDir(cfg.Paths.WorkDir)
	if err != nil {
		return err
	}

	store, err := jobstore.Open(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open job store: %v", err)

		return err
	}

	defer func() { _ = store.Close() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	collectors := metrics.New()

	jobPipeline, err := newPipeline(ctx, cfg, store, log, collectors)
	if err != nil {
		log.Error("Failed to build job pipeline: %v", err)

		return err
	}

	defer jobPipeline.natsConnection.Close()

	natsWorker, err := worker.NewNatsWorker(jobPipeline.natsConnection, cfg.NATS.JobSubject, jobPipeline.runner, store, log, worker.Options{
		Timeouts: cfg.Worker.Timeouts(),
		Ready: func() {
			count, requeueErr := jobPipeline.runner.Requeue(ctx)
			if requeueErr != nil {
				log.Error("Failed to requeue pending jobs: %v", requeueErr)

				return
			}

			if count > 0 {
				log.Info("Requeued %d pending jobs", count)
			}
		},
		QueueGroup:  cfg.NATS.QueueGroup,
		Concurrency: cfg.Worker.Concurrency,
	})
	if err != nil {
		return err
	}

	if cfg.Metrics.Listen != "" {
		server := startMetricsServer(cfg.Metrics.Listen, collectors, log)

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownPeriod)
			defer cancel()

			_ = server.Shutdown(shutdownCtx)
		}()
	}

	log.System("Podcast-Service successfully initialized. Listening for jobs on subject: %s", cfg.NATS.JobSubject)

	err = natsWorker.Run(ctx)
	if err != nil {
		log.Error("Worker stopped with error: %v", err)

		return err
	}

	log.Info("Worker stopped.")

	return nil
}

func startMetricsServer(addr string, collectors *metrics.Collectors, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collectors.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadTimeout,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server on %s failed: %v", addr, err)
		}
	}()

	log.Info("Serving metrics on %s/metrics", addr)

	return server
}
