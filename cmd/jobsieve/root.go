package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobsieve/internal/config"
	"github.com/amishk599/jobsieve/internal/logging"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobsieve",
	Short: "Job alert sieve: parse, score and deduplicate job notifications",
	Long: "jobsieve ingests job-board alert messages, scores the listings they contain " +
		"and keeps the relevant ones, running live searches and imports as background jobs.",
	SilenceUsage: true,
	// With no subcommand, run the server.
	RunE: runServe,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env file is normal.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBSIEVE_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBSIEVE_CONFIG env var > "./config.yaml".
// Without any of them the built-in defaults are used.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("JOBSIEVE_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("config.yaml"); err != nil {
			return config.Default(), nil
		}
		path = "config.yaml"
	}
	return config.Load(path)
}

func setupLogger(cfg *config.Config, dbg bool) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if dbg {
		level = "debug"
	}
	return logging.New(logging.Config{Level: level, Format: cfg.Logging.Format, Output: os.Stderr})
}

// mustLoad loads config and logger or exits, the way every command starts.
func mustLoad() (*config.Config, *slog.Logger) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger, err := setupLogger(cfg, debug)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}
