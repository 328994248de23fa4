package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/mvrvdca/internal/config"
	"github.com/rewired-gh/mvrvdca/internal/logger"
	"github.com/rewired-gh/mvrvdca/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "mvrvdca",
		Short:        "MVRV Z-Score momentum analyzer and DCA-out sizer",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml",
		"Path to configuration file (empty for defaults and environment only)")

	root.AddCommand(
		runCmd(&configPath),
		backtestCmd(&configPath),
		analyzeCmd(&configPath),
	)
	return root
}

// loadConfig loads and validates the configuration, then initializes logging.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if path != "" {
		logger.Info("Configuration loaded from %s", path)
	}
	return cfg, nil
}

// openJournal opens the results journal, or returns nil when it is disabled.
func openJournal(cfg *config.Config) (*storage.Storage, error) {
	if !cfg.Journal.Enabled {
		logger.Debug("Results journal disabled")
		return nil, nil
	}
	store, err := storage.New(cfg.Journal.KeepRuns, cfg.Journal.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}
	return store, nil
}

func closeJournal(store *storage.Storage) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Error("Failed to close journal: %v", err)
	}
}
