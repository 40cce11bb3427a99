package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/conexa-labs/searchsync/internal/opensearch"
	"github.com/conexa-labs/searchsync/internal/segment"
)

type searchOptions struct {
	mode       string
	size       int
	jsonOutput bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index from the command line",
		Long: `Runs one query against the index and prints the results.

Examples:
  searchsync search "maternity leave policy"
  searchsync search --mode hybrid "quarterly report"
  searchsync search --mode keyword --json "invoice 2024"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLISearch(strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "neural", "Search mode: keyword, neural, hybrid")
	cmd.Flags().IntVarP(&opts.size, "size", "n", 5, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func runCLISearch(query string, opts searchOptions) error {
	mode, err := opensearch.ParseSearchMode(opts.mode)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	client, gateway := buildGateway(cfg)
	defer client.Close()

	// Neural and hybrid queries need the deployed model's id. Provisioning
	// is idempotent and cheap once the engine is set up.
	var modelID string
	if mode != opensearch.ModeKeyword {
		provisioner := buildProvisioner(cfg, gateway)
		provCtx, provCancel := context.WithTimeout(ctx, cfg.OpenSearch.ProvisionTimeout.Std())
		result, err := provisioner.Provision(provCtx)
		provCancel()
		if err != nil {
			return fmt.Errorf("provisioning: %w", err)
		}
		modelID = result.ModelID
	}

	hits, err := gateway.Search(ctx, mode, query, modelID, opts.size)
	if err != nil {
		return err
	}

	if opts.jsonOutput || !isatty.IsTerminal(os.Stdout.Fd()) {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	if len(hits) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, hit := range hits {
		fmt.Printf("%d. %s (score %.3f)\n", i+1, hit.Name, hit.Score)
		fmt.Printf("   id: %s\n", hit.ID)
		fmt.Printf("   %s\n", previewText(hit.Text, 160))
	}
	return nil
}

// previewText shortens and sanitizes result text for terminal output.
func previewText(text string, max int) string {
	text = segment.Normalize(text)
	if len(text) > max {
		text = text[:max] + "..."
	}
	return text
}
