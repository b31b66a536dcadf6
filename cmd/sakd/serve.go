package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/groblegark/sakd/internal/arkiv"
	"github.com/groblegark/sakd/internal/client"
	"github.com/groblegark/sakd/internal/config"
	"github.com/groblegark/sakd/internal/consumer"
	"github.com/groblegark/sakd/internal/events"
	"github.com/groblegark/sakd/internal/jobs"
	"github.com/groblegark/sakd/internal/kravgrunnlag"
	"github.com/groblegark/sakd/internal/store/postgres"
	"github.com/groblegark/sakd/internal/tilbakekreving"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sakd daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Connect to Postgres. Pending migrations run here.
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Start the kravgrunnlag intake consumer if NATS is configured.
		var consumerCancel context.CancelFunc
		consumerDone := make(chan struct{})
		if cfg.NATSURL != "" {
			sub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			mottak := kravgrunnlag.NewMottak(store, nil, logger)
			cons := consumer.New(sub, mottak, logger)

			var consumerCtx context.Context
			consumerCtx, consumerCancel = context.WithCancel(context.Background())
			go func() {
				defer close(consumerDone)
				if err := cons.Run(consumerCtx); err != nil && consumerCtx.Err() == nil {
					logger.Error("intake consumer error", "err", err)
				}
				sub.Close()
			}()
			logger.Info("intake consumer started", "nats_url", cfg.NATSURL)
		} else {
			close(consumerDone)
			logger.Info("intake consumer disabled (SAKD_NATS_URL not set)")
		}

		// Start the sweep scheduler against the configured collaborators.
		var sweepScheduler *jobs.Scheduler
		if cfg.SweepInterval > 0 {
			var oppgaver client.Oppgaver
			var dokumenter client.Dokumenter
			var personer client.Personoppslag
			var simulering tilbakekreving.Simulator

			if k := cfg.Klienter.Oppgaver; k.URL != "" {
				oppgaver = client.NewOppgaveClient(k.URL, k.Token)
				logger.Info("oppgave client enabled", "url", k.URL)
			}
			if k := cfg.Klienter.Dokumenter; k.URL != "" {
				dokumenter = client.NewDokumentClient(k.URL, k.Token)
				logger.Info("dokument client enabled", "url", k.URL)
			}
			if k := cfg.Klienter.Personer; k.URL != "" {
				personer = client.NewPersonClient(k.URL, k.Token)
				logger.Info("person client enabled", "url", k.URL)
			}
			if k := cfg.Klienter.Simulering; k.URL != "" {
				simulering = client.NewSimuleringClient(k.URL, k.Token)
				logger.Info("simulering client enabled", "url", k.URL)
			}

			if oppgaver != nil || dokumenter != nil {
				sweeper := jobs.NewSweeper(store, oppgaver, dokumenter, personer, simulering, nil, logger)
				sweepScheduler = jobs.NewScheduler(sweeper, cfg.SweepInterval, logger)
				sweepScheduler.Start()
				logger.Info("sweep scheduler started", "interval", cfg.SweepInterval)
			}
		}

		// Start the archive scheduler if a destination is configured.
		var arkivScheduler *arkiv.Scheduler
		if cfg.ArkivInterval > 0 && cfg.ArkivS3Bucket != "" {
			s3Dest, err := arkiv.NewS3Destination(
				context.Background(),
				cfg.ArkivS3Bucket,
				cfg.ArkivS3Key,
				cfg.ArkivS3Region,
				cfg.ArkivS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 arkiv destination", "err", err)
			} else {
				arkivScheduler = arkiv.NewScheduler(store, []arkiv.Destination{s3Dest}, cfg.ArkivInterval, logger)
				arkivScheduler.Start()
				logger.Info("arkiv scheduler started",
					"interval", cfg.ArkivInterval, "bucket", cfg.ArkivS3Bucket, "key", cfg.ArkivS3Key)
			}
		}

		logger.Info("sakd started")

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if consumerCancel != nil {
			consumerCancel()
			<-consumerDone
			logger.Info("intake consumer stopped")
		}
		if sweepScheduler != nil {
			sweepScheduler.Stop()
			logger.Info("sweep scheduler stopped")
		}
		if arkivScheduler != nil {
			arkivScheduler.Stop()
			logger.Info("arkiv scheduler stopped")
		}

		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
