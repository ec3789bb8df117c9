// Package cli wires the majisync commands: capture, sync, status, conflicts,
// and the daemon mode. Commands build their dependencies lazily in the
// persistent pre-run so `--help` and flag errors never touch the database.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dmaganga/majisync/internal/config"
	"github.com/dmaganga/majisync/internal/engine"
	"github.com/dmaganga/majisync/internal/gateway"
	"github.com/dmaganga/majisync/internal/logging"
	"github.com/dmaganga/majisync/internal/services"
	"github.com/dmaganga/majisync/internal/store"
)

type app struct {
	cfg       *config.Config
	log       logging.Logger
	store     *store.Store
	gw        gateway.Gateway
	engine    *engine.Engine
	capture   *services.CaptureService
	conflicts *services.ConflictService
}

var (
	cfgFile string
	verbose bool
	theApp  *app
)

var rootCmd = &cobra.Command{
	Use:   "majisync",
	Short: "Offline-first meter reading client for water utility billing",
	Long: `majisync keeps a local copy of billing cycles, meter assignments and
readings so that field staff can capture meter values without connectivity.
Captured readings are queued durably and pushed to the billing server when a
link is available; server-side changes are pulled down and merged.`,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	defer func() {
		if theApp != nil && theApp.store != nil {
			_ = theApp.store.Close()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.Open(cmd.Context(), cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open local cache: %w", err)
	}

	gw := gateway.NewHTTPGateway(cfg.ServerBaseURL, cfg.APIToken, cfg.RequestTimeout, log)
	eng := engine.New(st, gw, cfg.RetainedCycles, log)
	capture := services.NewCaptureService(st, cfg.DeviceID, version, cfg.MaxReading, log)

	theApp = &app{
		cfg:       cfg,
		log:       log,
		store:     st,
		gw:        gw,
		engine:    eng,
		capture:   capture,
		conflicts: services.NewConflictService(st, gw, capture, log),
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a JSON configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
