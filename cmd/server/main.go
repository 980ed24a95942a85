/*
main.go - Application entry point

PURPOSE:
  The clubd command: runs the front-desk API server and the operational
  one-shots that share its wiring.

COMMANDS:
  clubd serve    HTTP API, expiry scheduler, graceful shutdown
  clubd sweep    One reservation expiry sweep, then exit (cron friendly)
  clubd seed     Load a demo scenario (empty-club | busy-weekend)

  Global flag --config points at a YAML/TOML file. Every key can also be
  set through the environment, e.g. CLUB_DB_PATH or CLUB_SERVER_PORT.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the expiry scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Flush traces, close Redis and the database

SEE ALSO:
  - app.go: Dependency wiring
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/warp/club-engine/api"
	"github.com/warp/club-engine/telemetry"
)

const shutdownTimeout = 30 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:           "clubd",
	Short:         "Club facility access and allocation engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ./config.yaml or ./config/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringP("scenario", "s", api.ScenarioBusyWeekend, "Scenario to load (empty-club, busy-weekend)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// ─── serve ──────────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	shutdownTracing := telemetry.Setup(ctx, a.cfg.Telemetry, a.logger)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			a.logger.Warn("trace flush failed", zap.Error(err))
		}
	}()

	scheduler := api.NewExpiryScheduler(a.handler.Kiosks, a.logger)
	scheduler.Interval = a.cfg.Scheduler.Interval
	scheduler.Enabled = a.cfg.Scheduler.Enabled
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(a.handler, api.RouterConfig{
		AllowedOrigins: a.cfg.Server.CORS.AllowOrigins,
		Logger:         a.logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      otelhttp.NewHandler(router, "clubd"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", zap.Int("port", a.cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

// ─── sweep ──────────────────────────────────────────────────────────────────

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire overdue kiosk reservations once and exit",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := api.NewExpiryScheduler(a.handler.Kiosks, a.logger).RunNow(cmd.Context())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "expired %d reservation(s) at %s\n", res.Expired, res.At.Format(time.RFC3339))
	return nil
}

// ─── seed ───────────────────────────────────────────────────────────────────

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo lockers, kiosks and people",
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, _ []string) error {
	scenario, _ := cmd.Flags().GetString("scenario")

	a, err := newApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := api.Seed(cmd.Context(), a.handler, scenario); err != nil {
		return fmt.Errorf("seed %s: %w", scenario, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "loaded scenario %s\n", scenario)
	return nil
}
