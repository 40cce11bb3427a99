package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conexa-labs/searchsync/configs"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter searchsync.yaml to the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			const path = "searchsync.yaml"
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing searchsync.yaml")
	return cmd
}
