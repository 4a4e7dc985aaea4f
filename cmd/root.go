package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mealsnap",
		Short: "Food scanning service with AI-powered portion estimation",
		Long: `Mealsnap points a capture device at food, sends the photo (optionally
paired with a depth frame) to a vision model for weight estimation, and
durably records the result.

The serve command runs the interactive capture API; scan analyzes a single
image from disk; export dumps a ledger for offline analysis.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newExportCmd())

	return cmd
}
