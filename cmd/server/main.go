/*
main.go - Application entry point

PURPOSE:
  Runs the profit-sharing year-end engine as an HTTP server or as one-shot
  batch commands. Handles configuration, dependency injection, and graceful
  shutdown.

COMMANDS:
  serve                      HTTP API (+ optional close scheduler)
  close <year> [--commit]    Year-end close, preview by default
  summaries <year>           Member-year summaries as a table or CSV
  eligibility <year>         Eligible members with control counts
  breakdown <year>           Paginated store breakdown report
  seed-calendar <from> <to>  Default fiscal periods and vesting schedule
  load-scenario <id>         Demo population (resets the database)
  version                    Build information

GLOBAL FLAGS:
  --config   YAML configuration file (optional)
  --env      .env file (default: .env, ignored when missing)
  --db       SQLite database path, overrides configuration
             Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection and log files

EXAMPLES:
  ./server serve --config=./profit-sharing.yaml
  ./server close 2024 --commit
  ./server breakdown 2024 --store=10 > breakdown.txt

SEE ALSO:
  - commands.go: Batch command implementations
  - api/server.go: Router configuration
  - config/config.go: Configuration layers
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warp/profit-sharing/api"
	"github.com/warp/profit-sharing/config"
	"github.com/warp/profit-sharing/logging"
	"github.com/warp/profit-sharing/report"
	"github.com/warp/profit-sharing/store/sqlite"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath string
	envPath    string
	dbOverride string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "server",
		Short:         "Profit-sharing plan year-end engine",
		Long:          "Aggregates member balances, evaluates eligibility, renders the store breakdown report and runs the year-end close.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&envPath, "env", ".env", ".env file with PROFITSHARE_* overrides")
	root.PersistentFlags().StringVar(&dbOverride, "db", "", "SQLite database path (overrides configuration)")

	root.AddCommand(
		serveCmd(),
		closeCmd(),
		summariesCmd(),
		eligibilityCmd(),
		breakdownCmd(),
		seedCalendarCmd(),
		loadScenarioCmd(),
		versionCmd(),
	)
	return root
}

// =============================================================================
// WIRING
// =============================================================================

// app holds everything a command needs.
type app struct {
	cfg     *config.Config
	store   *sqlite.Store
	service *report.Service
	log     *logrus.Logger
}

// setup loads configuration, initializes logging and opens the store.
func setup(component string) (*app, error) {
	cfg, err := config.Load(configPath, envPath)
	if err != nil {
		return nil, err
	}
	if dbOverride != "" {
		cfg.DBPath = dbOverride
	}
	if err := logging.Init(cfg.Logging); err != nil {
		return nil, err
	}
	log := logging.Get(component)

	opts, err := cfg.ReportOptions()
	if err != nil {
		return nil, err
	}
	st, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	log.WithField("db", cfg.DBPath).Debug("database opened")

	return &app{
		cfg:     cfg,
		store:   st,
		service: report.NewService(st, opts, log),
		log:     log,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close database")
	}
	logging.Close()
}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup("server")
			if err != nil {
				return err
			}
			defer a.close()
			if cmd.Flags().Changed("port") {
				a.cfg.Port = port
			}
			return serve(a)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port (overrides configuration)")
	return cmd
}

func serve(a *app) error {
	handler := api.NewHandler(a.service, logging.Get("api"))
	router := api.NewRouter(handler, a.cfg.AllowedOrigins)

	scheduler := api.NewClosingScheduler(a.service, logging.Get("scheduler"))
	scheduler.Enabled = a.cfg.Scheduler.Enabled
	scheduler.CheckInterval = a.cfg.Scheduler.Interval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         a.cfg.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		a.log.WithField("signal", sig.String()).Info("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}

// =============================================================================
// VERSION
// =============================================================================

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "profit-sharing %s (commit %s, built %s)\n", version, commit, date)
			if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
				fmt.Fprintln(cmd.OutOrStdout(), bi.GoVersion)
			}
		},
	}
}
