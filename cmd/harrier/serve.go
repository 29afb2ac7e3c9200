package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/worker"
)

var (
	servePoll   bool
	serveWorker bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&servePoll, "poll", false, "Poll the vendor for pending withdrawals every batch.poll_interval")
	serveCmd.Flags().BoolVar(&serveWorker, "worker", true, "Evaluate batches published on "+domain.TopicWithdrawalsPending)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the bus worker",
	Long: `Start the decision API. Withdrawals can be evaluated over HTTP, from
batches published on the event bus, or by polling the vendor backoffice.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			slog.Error("failed to release resources", "error", err)
		}
	}()

	var w *worker.Worker
	if serveWorker {
		w = worker.NewWorker(a.bus, a.processor)
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}
		slog.Info("worker started", "topic", domain.TopicWithdrawalsPending)
	}

	pollDone := make(chan struct{})
	if servePoll {
		go func() {
			defer close(pollDone)
			_ = a.processor.Run(ctx, cfg.Batch.PollInterval)
		}()
	} else {
		close(pollDone)
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:        a.repo,
		Cache:       a.cache,
		Bus:         a.bus,
		Evaluator:   a.processor,
		Catalog:     a.catalog,
		Registry:    a.registry,
		Expressions: a.expressions,
	}, Version)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"live", cfg.Batch.Live,
		"poll", servePoll,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-serveErr:
		stop()
		if err != nil {
			slog.Error("server failed", "error", err)
		}
	}

	if w != nil {
		if err := w.Stop(); err != nil {
			slog.Error("failed to stop worker", "error", err)
		}
	}
	<-pollDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
	return nil
}
