// Package cmd provides the CLI commands for searchsync.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conexa-labs/searchsync/internal/config"
	"github.com/conexa-labs/searchsync/internal/logging"
	"github.com/conexa-labs/searchsync/internal/opensearch"
	"github.com/conexa-labs/searchsync/internal/repo"
	"github.com/conexa-labs/searchsync/pkg/version"
)

var (
	cfgFile   string
	debugMode bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the searchsync CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searchsync",
		Short: "Neural search synchronization for content repositories",
		Long: `searchsync keeps a neural search index in sync with a content
repository. It provisions the search engine's ML resources once, then
incrementally mirrors repository changes into the index and serves
keyword, neural, and hybrid queries over HTTP.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("searchsync version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to searchsync.yaml")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newProvisionCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// loadConfig resolves the configuration from the --config flag, the
// default search path, or built-in defaults.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.FindConfigFile()
	}
	return config.Load(path)
}

// buildGateway wires the engine client and gateway from config.
func buildGateway(cfg *config.Config) (*opensearch.Client, *opensearch.Gateway) {
	client := opensearch.NewClient(opensearch.ClientConfig{
		URL:                cfg.OpenSearch.URL,
		Username:           cfg.OpenSearch.Username,
		Password:           cfg.OpenSearch.Password,
		Timeout:            cfg.OpenSearch.RequestTimeout.Std(),
		InsecureSkipVerify: cfg.OpenSearch.InsecureSkipVerify,
	})
	gateway := opensearch.NewGateway(client,
		cfg.OpenSearch.IndexName,
		cfg.OpenSearch.ControlIndexName(),
		cfg.OpenSearch.PipelineName,
		slog.Default())
	return client, gateway
}

func buildProvisioner(cfg *config.Config, gateway *opensearch.Gateway) *opensearch.Provisioner {
	return opensearch.NewProvisioner(gateway, opensearch.ProvisionerConfig{
		ModelName:        cfg.OpenSearch.ModelName,
		ModelGroupName:   cfg.OpenSearch.ModelGroupName,
		TaskPollInterval: cfg.OpenSearch.TaskPollInterval.Std(),
		TaskPollAttempts: cfg.OpenSearch.TaskPollAttempts,
		VerifyAttempts:   cfg.OpenSearch.VerifyAttempts,
		VerifyDelay:      cfg.OpenSearch.VerifyDelay.Std(),
	}, slog.Default())
}

// buildChangeSource selects the configured change-detection strategy.
func buildChangeSource(cfg *config.Config) (*repo.Client, repo.ChangeSource) {
	client := repo.NewClient(repo.ClientConfig{
		URL:          cfg.Repository.URL,
		Username:     cfg.Repository.Username,
		Password:     cfg.Repository.Password,
		SecretHeader: cfg.Repository.SecretHeader,
		Secret:       cfg.Repository.Secret,
		Timeout:      cfg.Repository.RequestTimeout.Std(),
	})

	var source repo.ChangeSource
	switch cfg.Repository.Strategy {
	case config.StrategyModified:
		source = repo.NewModifiedSource(client, repo.ModifiedConfig{
			RootPath:           cfg.Repository.RootPath,
			PageSize:           cfg.Repository.PageSize,
			RenditionPollDelay: cfg.Repository.RenditionPollDelay.Std(),
		}, slog.Default())
	default:
		source = repo.NewTxnLogSource(client, repo.TxnLogConfig{
			IndexableTypes: cfg.Repository.IndexableTypes,
			MaxResults:     cfg.Repository.MaxResults,
		}, slog.Default())
	}
	return client, source
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
