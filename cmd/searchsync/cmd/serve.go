package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/conexa-labs/searchsync/internal/lockfile"
	"github.com/conexa-labs/searchsync/internal/server"
	"github.com/conexa-labs/searchsync/internal/syncer"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Provision the engine, run the sync loop, and serve queries",
		Long: `Runs the full pipeline: provisions the search engine once, then
starts the periodic sync scheduler and the query HTTP API. Stops
cleanly on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Debug("configuration loaded", slog.Any("config", cfg.Redacted()))

	ctx, cancel := signalContext()
	defer cancel()

	lock := lockfile.New(cfg.DataDir)
	acquired, err := lock.TryAcquire()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("another searchsync instance is already running (lock: %s)", lock.Path())
	}
	defer func() { _ = lock.Release() }()

	client, gateway := buildGateway(cfg)
	defer client.Close()
	repoClient, source := buildChangeSource(cfg)
	defer repoClient.Close()

	provisioner := buildProvisioner(cfg, gateway)
	provCtx, provCancel := context.WithTimeout(ctx, cfg.OpenSearch.ProvisionTimeout.Std())
	result, err := provisioner.Provision(provCtx)
	provCancel()
	if err != nil {
		return fmt.Errorf("provisioning: %w", err)
	}

	s, err := syncer.New(gateway, provisioner, source, syncer.Config{
		MaxSegmentChars:     cfg.Indexer.MaxSegmentChars,
		Workers:             cfg.Indexer.Workers,
		DocumentWorkers:     cfg.Indexer.DocumentWorkers,
		DeleteRetryAttempts: cfg.Indexer.DeleteRetryAttempts,
		DeleteRetryDelay:    cfg.Indexer.DeleteRetryDelay.Std(),
	}, slog.Default())
	if err != nil {
		return err
	}
	defer s.Close()

	srv, err := server.New(server.Config{
		Addr:        cfg.Server.Addr,
		DefaultMode: cfg.Server.DefaultMode,
		ResultSize:  cfg.Server.ResultSize,
		CacheSize:   cfg.Server.CacheSize,
		CORSEnabled: cfg.Server.CORSEnabled,
	}, gateway, result.ModelID, slog.Default())
	if err != nil {
		return err
	}

	scheduler := syncer.NewScheduler(s, cfg.Indexer.Interval.Std(), slog.Default())
	schedDone := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(schedDone)
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	select {
	case err := <-serveErr:
		cancel()
		<-schedDone
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", slog.String("error", err.Error()))
	}
	<-schedDone
	slog.Info("searchsync stopped")
	return nil
}
