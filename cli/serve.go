/*
serve.go - Dashboard API server command

PURPOSE:
  `sentinel serve` runs the pipeline once, persists the run, and serves
  the scored table over the dashboard API until interrupted.

STARTUP SEQUENCE:
  1. Build loader, runner, detector and store from configuration
  2. Register Prometheus metrics
  3. Run the first pipeline pass and swap it in as the served view
  4. Start the HTTP server with graceful shutdown
  5. Optionally refresh the dataset on a timer

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the run store
  4. Exit
*/
package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haldar/aadhaar-sentinel/api"
	"github.com/haldar/aadhaar-sentinel/metrics"
)

var flagListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline and serve the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.ListenAddr = flagListenAddr
		}

		m := metrics.New()
		runner, err := buildRunner(cfg)
		if err != nil {
			return err
		}
		runner.Metrics = m

		st, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		h := api.NewHandler(runner, buildDetector(cfg))
		h.Store = st
		h.Metrics = m
		h.KeepRuns = cfg.KeepRuns
		h.Forecast = forecastAdapter(cfg)
		h.Cluster = clusterAdapter(cfg)

		log.Printf("📦 Loading dataset from %s", cfg.DataDir)
		refreshed, err := h.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		log.Printf("✅ Run %s: %d analysis rows, %d flagged", refreshed.RunID, refreshed.AnalysisRows, refreshed.FlaggedRows)

		srv := &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: api.NewRouter(h, cfg.CORSOrigins),
		}

		stopRefresh := make(chan struct{})
		if cfg.RefreshInterval > 0 {
			go backgroundRefresh(h, cfg.RefreshInterval, stopRefresh)
		}

		errCh := make(chan error, 1)
		go func() {
			log.Printf("🚀 Aadhaar Sentinel API listening on %s", cfg.ListenAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			close(stopRefresh)
			return err
		case sig := <-quit:
			log.Printf("Received %v, shutting down...", sig)
		}
		close(stopRefresh)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
		log.Println("✅ Server stopped")
		return nil
	},
}

// backgroundRefresh reloads the dataset on a timer until stop closes.
// Refresh failures are logged and the previous view stays served.
func backgroundRefresh(h *api.Handler, every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if refreshed, err := h.Refresh(context.Background()); err != nil {
				log.Printf("background refresh failed: %v", err)
			} else {
				log.Printf("background refresh: run %s, %d rows", refreshed.RunID, refreshed.AnalysisRows)
			}
		}
	}
}

func init() {
	serveCmd.Flags().StringVar(&flagListenAddr, "addr", ":8080", "HTTP listen address")
	rootCmd.AddCommand(serveCmd)
}
