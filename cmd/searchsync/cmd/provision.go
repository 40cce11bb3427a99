package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newProvisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Provision the search engine and exit",
		Long: `Applies ML cluster settings, registers and deploys the embedding
model, installs the ingest and search pipelines, and creates the KNN
index. Safe to re-run: existing resources are reused.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision()
		},
	}
}

func runProvision() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	client, gateway := buildGateway(cfg)
	defer client.Close()

	provisioner := buildProvisioner(cfg, gateway)
	provCtx, provCancel := context.WithTimeout(ctx, cfg.OpenSearch.ProvisionTimeout.Std())
	defer provCancel()

	result, err := provisioner.Provision(provCtx)
	if err != nil {
		return err
	}

	fmt.Printf("Search engine provisioned\n")
	fmt.Printf("  index:          %s\n", cfg.OpenSearch.IndexName)
	fmt.Printf("  model id:       %s\n", result.ModelID)
	fmt.Printf("  model group id: %s\n", result.ModelGroupID)
	return nil
}
