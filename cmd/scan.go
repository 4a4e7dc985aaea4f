package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mealsnap/mealsnap/internal/analysis"
	"github.com/mealsnap/mealsnap/internal/config"
	"github.com/mealsnap/mealsnap/internal/persist"
	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	var configPath string
	var userID string
	var save bool

	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Analyze a food image from disk",
		Long: `Runs a single image through the analysis orchestrator and prints the
estimation result as JSON. With --save and --user, the result is also
persisted through the same upload-and-dual-write pipeline the server uses.`,
		Example: `  # Analyze a photo
  mealsnap scan lunch.jpg

  # Analyze and persist for a user
  mealsnap scan lunch.jpg --save --user u_123`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			image, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			orchestrator, err := analysis.NewFromEnv(cfg.Provider,
				analysis.WithTimeout(cfg.AnalysisTimeout),
				analysis.WithModel(cfg.Model),
			)
			if err != nil {
				return err
			}

			result, err := orchestrator.Analyze(cmd.Context(), image)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			if !save {
				return nil
			}
			if userID == "" {
				return fmt.Errorf("--save requires --user")
			}

			ledger, closeLedger, err := newLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeLedger()

			objects, err := newObjects(cfg)
			if err != nil {
				return err
			}

			done := make(chan persist.Notification, 1)
			pipeline := persist.NewPipeline(objects, ledger, func(n persist.Notification) {
				done <- n
			})
			pipeline.Dispatch(result, image, userID)
			pipeline.Wait()

			if n := <-done; n.Err != nil {
				return n.Err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "mealsnap.yaml", "Path to YAML config file")
	cmd.Flags().StringVar(&userID, "user", "", "User id to persist the scan under")
	cmd.Flags().BoolVar(&save, "save", false, "Persist the result to the ledgers")

	return cmd
}
