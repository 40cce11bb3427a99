package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/conexa-labs/searchsync/internal/lockfile"
	"github.com/conexa-labs/searchsync/internal/syncer"
)

func newSyncCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and exit",
		Long: `Provisions the engine if needed, then runs sync passes until the
change source reports no more pending work. Useful for cron-driven
setups and for backfilling after downtime.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(full)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Keep syncing until the repository is fully caught up")
	return cmd
}

func runSync(full bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Same data-dir lock as serve: a cron-fired sync racing a running
	// daemon would give two writers on the same cursor document.
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
	_, err = provisioner.Provision(provCtx)
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

	// Full catch-up: keep going while the change source reports pending
	// work. The cursor advanced, so each pass picks up where the previous
	// one stopped.
	for {
		more, err := s.RunOnce(ctx)
		if err != nil {
			return err
		}
		if !full {
			return nil
		}
		if !more {
			slog.Info("repository fully synchronized")
			return nil
		}
	}
}
