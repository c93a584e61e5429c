package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leobar37/gymspace-sub006/internal/app"
	"github.com/leobar37/gymspace-sub006/internal/shared/config"
	"github.com/leobar37/gymspace-sub006/internal/shared/database"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "gymspace-subscriptions",
	Short:   "Subscription and entitlement lifecycle engine",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var sweepAt string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one expiry sweep and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd.Context())
	},
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Compute and store one analytics snapshot per configured currency",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalytics(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepAt, "at", "", "sweep as of this RFC 3339 time (default now)")

	rootCmd.AddCommand(serveCmd, sweepCmd, analyticsCmd, migrateCmd)
	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Version}} (%s)\n", GitCommit))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	log := application.Logger()

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      application.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	application.StartJobs()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("address", cfg.Server.Address), zap.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
		log.Info("shutting down server")
	case serveErr = <-errCh:
		log.Error("server failed", zap.Error(serveErr))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}
	application.Stop(ctx)

	return serveErr
}

func runSweep(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer application.Stop(context.Background())

	ctx, cancel := context.WithTimeout(ctx, cfg.Scheduler.JobTimeout)
	defer cancel()

	if sweepAt != "" {
		at, err := time.Parse(time.RFC3339, sweepAt)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		result, err := application.Domain().RunExpirySweep(ctx, at)
		printJSON(result)
		return err
	}

	result, err := application.Scheduler().RunSweep(ctx)
	printJSON(result)
	return err
}

func runAnalytics(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer application.Stop(context.Background())

	ctx, cancel := context.WithTimeout(ctx, cfg.Scheduler.JobTimeout)
	defer cancel()
	return application.Scheduler().RunAnalytics(ctx)
}

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Println("schema up to date")
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
