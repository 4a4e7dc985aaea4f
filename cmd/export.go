package cmd

import (
	"github.com/mealsnap/mealsnap/internal/config"
	"github.com/mealsnap/mealsnap/internal/export"
	"github.com/mealsnap/mealsnap/internal/persist"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var configPath string
	var userID string
	var output string
	var limit int

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a scan ledger to parquet or JSONL",
		Long: `Reads the global ledger (or one user's ledger with --user) and writes
it to a parquet or JSONL file, chosen by the output extension.`,
		Example: `  # Export the global ledger
  mealsnap export --output scans.parquet

  # Export one user's history as JSONL
  mealsnap export --user u_123 --output u123.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ledger, closeLedger, err := newLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeLedger()

			path := persist.GlobalLedgerPath
			if userID != "" {
				path = persist.UserLedgerPath(userID)
			}

			records, err := ledger.List(cmd.Context(), path, limit)
			if err != nil {
				return err
			}
			return export.Write(output, records)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "mealsnap.yaml", "Path to YAML config file")
	cmd.Flags().StringVar(&userID, "user", "", "Export this user's ledger instead of the global one")
	cmd.Flags().StringVarP(&output, "output", "o", "scans.parquet", "Output file (.parquet or .jsonl)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum records to export (0 for all)")

	return cmd
}
