/*
main.go - Application entry point

PURPOSE:
  Starts the sprint engine server and exposes the calculator and sprint-day
  helpers on the command line.

COMMANDS:
  serve        Run the HTTP API (graceful shutdown on SIGINT/SIGTERM)
  config init  Write the default YAML config
  split        Print the compensation split for a total
  sprint-day   Print the suggested sprint day for a date

GLOBAL FLAGS:
  --verbose  Debug logging regardless of logging.level

FLAGS (serve):
  --config   YAML config file (default: sprint-engine.yaml, optional)
  --port     Overrides server.port
  --db       Overrides database.path; ":memory:" for an in-memory database

ENVIRONMENT:
  SPRINT_ENGINE_PORT, SPRINT_ENGINE_DB, SPRINT_ENGINE_LOG_LEVEL,
  SPRINT_ENGINE_ALLOWED_ORIGINS, SPRINT_ENGINE_MAIL_FROM (also read from .env)

EXAMPLES:
  sprint-engine serve --db=":memory:"
  sprint-engine split --total 10000 --upfront 0.4 --equity 0.5
  sprint-engine sprint-day --start 2025-01-06 --weeks 2 --date 2025-01-13

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/sprint-engine/api"
	"github.com/warp/sprint-engine/compensation"
	"github.com/warp/sprint-engine/config"
	"github.com/warp/sprint-engine/generic"
	"github.com/warp/sprint-engine/notify"
	"github.com/warp/sprint-engine/sprint"
	"github.com/warp/sprint-engine/store/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "sprint-engine",
		Short:         "Sprint scheduling and compensation planning service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging (overrides logging.level)")
	root.AddCommand(newServeCmd(&verbose), newConfigCmd(), newSplitCmd(), newSprintDayCmd())
	return root
}

// =============================================================================
// SERVE
// =============================================================================

func newServeCmd(verbose *bool) *cobra.Command {
	var (
		configPath string
		port       int
		dbPath     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("db") {
				cfg.Database.Path = dbPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.Logging, *verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return serve(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "sprint-engine.yaml", "YAML config file")
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port")
	cmd.Flags().StringVar(&dbPath, "db", "sprints.db", "SQLite database path")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	handler := api.NewHandler(store, notify.NewLogMailer(logger), logger)
	handler.MailFrom = cfg.Mail.From

	readTimeout, err := time.ParseDuration(cfg.Server.ReadTimeout)
	if err != nil {
		return fmt.Errorf("invalid server.read_timeout: %w", err)
	}
	writeTimeout, err := time.ParseDuration(cfg.Server.WriteTimeout)
	if err != nil {
		return fmt.Errorf("invalid server.write_timeout: %w", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server.AllowedOrigins),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("db", cfg.Database.Path),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	name := cfg.Level
	if verbose {
		name = "debug"
	}
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// =============================================================================
// CONFIG
// =============================================================================

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the YAML config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default config (default path: sprint-engine.yaml)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "sprint-engine.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}

// =============================================================================
// SPLIT
// =============================================================================

func newSplitCmd() *cobra.Command {
	var total, upfront, equity float64

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Print the upfront / equity / deferred split for a total",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan := compensation.NewPlan().
				WithTotalProjectValueFloat(total).
				WithUpfrontFractionFloat(upfront).
				WithEquitySplitFractionFloat(equity)
			printBreakdown(cmd.OutOrStdout(), plan.Compute())
			return nil
		},
	}

	cmd.Flags().Float64Var(&total, "total", 0, "Total project value")
	cmd.Flags().Float64Var(&upfront, "upfront", 0.5, "Upfront fraction (0.20-1.00)")
	cmd.Flags().Float64Var(&equity, "equity", 0.5, "Equity share of the remainder (0.00-0.80)")
	return cmd
}

func printBreakdown(w io.Writer, b compensation.Breakdown) {
	fmt.Fprintf(w, "%-20s %s\n", compensation.LabelTotalProjectValue, compensation.FormatCurrency(b.TotalProjectValue))
	fmt.Fprintf(w, "%-20s %-5s %s\n", "Upfront", compensation.FormatPercent(b.UpfrontFraction), compensation.FormatCurrency(b.UpfrontAmount))
	fmt.Fprintf(w, "%-20s %-5s %s\n", "Equity", compensation.FormatPercent(b.EquityFraction), compensation.FormatCurrency(b.EquityAmount))
	fmt.Fprintf(w, "%-20s %-5s %s\n", "Deferred", compensation.FormatPercent(b.DeferredFraction), compensation.FormatCurrency(b.DeferredAmount))
}

// =============================================================================
// SPRINT DAY
// =============================================================================

func newSprintDayCmd() *cobra.Command {
	var start, date string
	var weeks int

	cmd := &cobra.Command{
		Use:   "sprint-day",
		Short: "Print the suggested sprint day for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			window := sprint.Window{Weeks: weeks}
			if start != "" {
				tp, ok := generic.ParseDate(start)
				if !ok {
					return fmt.Errorf("invalid --start date: %q", start)
				}
				window.StartDate = &tp
			}

			now := time.Now()
			if date != "" {
				tp, ok := generic.ParseDate(date)
				if !ok {
					return fmt.Errorf("invalid --date: %q", date)
				}
				now = tp.Time
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Day %d of %d\n", window.DefaultSprintDay(now), window.TotalDays())
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Sprint start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&weeks, "weeks", sprint.DefaultWeeks, "Sprint length in weeks")
	cmd.Flags().StringVar(&date, "date", "", "Date to evaluate (default today)")
	return cmd
}
