package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mealsnap/mealsnap/internal/access"
	"github.com/mealsnap/mealsnap/internal/analysis"
	"github.com/mealsnap/mealsnap/internal/config"
	"github.com/mealsnap/mealsnap/internal/device"
	"github.com/mealsnap/mealsnap/internal/handlers"
	"github.com/mealsnap/mealsnap/internal/persist"
	"github.com/mealsnap/mealsnap/internal/session"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the capture session API",
		Long: `Starts the Mealsnap capture API on the specified port.

The API drives the capture session state machine: trigger a capture,
upload an image for analysis, switch capture mode, and read back the
session state and persisted scan history.`,
		Example: `  # Start server on default port 8888
  mealsnap serve

  # Start server on custom port with a config file
  mealsnap serve --port 3000 --config mealsnap.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			var hw device.Hardware
			if cfg.SimFrame != "" {
				sim, err := device.NewSimHardwareFromFile(cfg.SimFrame)
				if err != nil {
					return err
				}
				hw = sim
			} else {
				slog.Warn("no sensor frame configured, simulated sensor serves an empty test frame")
				hw = device.NewSimHardware([]byte("test-frame"))
			}

			orchestrator, err := analysis.NewFromEnv(cfg.Provider,
				analysis.WithTimeout(cfg.AnalysisTimeout),
				analysis.WithModel(cfg.Model),
			)
			if err != nil {
				return err
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

			signals := access.NewSignals()
			pipeline := persist.NewPipeline(objects, ledger, nil)
			machine := session.NewMachine(
				device.NewAdapter(hw),
				orchestrator,
				pipeline,
				signals,
				session.WithFocusDwell(cfg.FocusDwell),
			)
			if err := machine.Start(cmd.Context()); err != nil {
				return err
			}
			defer func() {
				if err := machine.Stop(); err != nil {
					slog.Error("failed to stop session machine", "err", err)
				}
				pipeline.Wait()
			}()

			handler := handlers.New(machine, ledger, signals)

			// Set up routes
			mux := http.NewServeMux()
			handler.Register(mux)
			mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
				if _, err := w.Write([]byte("OK")); err != nil {
					slog.Error("Unable to write healthcheck", "err", err)
				}
			})

			addr := ":" + port
			server := &http.Server{
				Addr:    addr,
				Handler: mux,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Mealsnap API available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().StringVarP(&configPath, "config", "c", "mealsnap.yaml", "Path to YAML config file")

	return cmd
}
