package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"comicsqueeze/internal/config"
	"comicsqueeze/internal/history"

	"github.com/spf13/cobra"
)

var (
	// Config flags - bound in init()
	cfgFile   string
	dbPath    string
	logFormat string
	logLevel  string
	logOutput string

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	histStore  *history.Store
	appConfig  config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "comicsqueeze",
	Short: "Shrink comic book archives by recompressing their page images.",
	Long: `ComicSqueeze unpacks CBZ, CBR and PDF comic archives, re-encodes every
page image with a lossy codec, and repacks the pages into a new CBZ. A page
is only replaced when the re-encoded version is actually smaller, so output
archives never grow. A DuckDB database tracks conversion history.

The primary command is 'run', which converts a file or a directory of comics.
'watch' converts comics as they appear in a directory, 'history' queries past
conversions, and 'inspect' examines exported stats files.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// --- 1. Initialize Logger ---
		var level slog.Level
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var logWriter io.Writer = os.Stderr // Default to stderr
		if logOutput != "" && strings.ToLower(logOutput) != "stderr" {
			if strings.ToLower(logOutput) == "stdout" {
				logWriter = os.Stdout
			} else {
				// Use O_APPEND|O_CREATE|O_WRONLY for appending to log file
				f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
				if err != nil {
					return fmt.Errorf("failed to open log file %s: %w", logOutput, err)
				}
				// The handle stays open for the life of the process; the OS
				// reclaims it on exit.
				logWriter = f
			}
		}

		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(logWriter, opts)
		} else {
			handler = slog.NewTextHandler(logWriter, opts)
		}
		rootLogger = slog.New(handler)
		slog.SetDefault(rootLogger) // Set for packages using global slog
		rootLogger.Info("Logger initialized", "level", level.String(), "format", logFormat, "output", logOutput)

		// --- 2. Load Config (file, then flag overrides) ---
		appConfig = config.Default()
		if cfgFile != "" {
			loaded, err := config.LoadFile(cfgFile)
			if err != nil {
				return err
			}
			appConfig = loaded
			rootLogger.Info("Config file loaded", "path", cfgFile)
		}
		// An explicit flag beats both the default and the config file.
		if cmd.Flags().Changed("db-path") {
			appConfig.DBPath = dbPath
		}
		rootLogger.Debug("Configuration loaded", slog.Any("config", appConfig))

		if appConfig.DBPath == "" {
			return fmt.Errorf("--db-path must not be empty (:memory: for in-memory)")
		}
		if appConfig.DBPath != ":memory:" {
			dbDir := filepath.Dir(appConfig.DBPath)
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}

		// --- 3. Open History Store ---
		rootLogger.Info("Opening conversion history", "path", appConfig.DBPath)
		var err error
		histStore, err = history.Open(appConfig.DBPath, rootLogger)
		if err != nil {
			return fmt.Errorf("failed to open history database (%s): %w", appConfig.DBPath, err)
		}

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if histStore != nil {
			rootLogger.Debug("Closing history database.")
			if err := histStore.Close(); err != nil {
				// Log but keep the command's own exit status
				rootLogger.Error("Failed to close history database cleanly", "error", err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.AddCommand(runCmd)     // Convert a file or directory
	rootCmd.AddCommand(watchCmd)   // Convert comics as they arrive
	rootCmd.AddCommand(historyCmd) // View conversion history
	rootCmd.AddCommand(inspectCmd) // Inspect exported stats parquet files

	err := rootCmd.Execute()
	if err != nil {
		// Cobra usually prints the error, but log it just in case
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	// Define persistent flags available to root and all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file with conversion defaults")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db-path", "d", config.DefaultDBPath, "Path to DuckDB history database file (:memory: for in-memory)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "0.1.0"
}

// Helper to get logger (could use context propagation instead)
func getLogger() *slog.Logger {
	if rootLogger == nil {
		// Fallback if PersistentPreRun hasn't run (e.g., during tests or init failures)
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

// Helper to get the history store
func getStore() *history.Store {
	return histStore
}

// Helper to get Config
func getConfig() config.Config {
	return appConfig
}
