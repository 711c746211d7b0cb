// Package cli wires configuration, sources, output backends and the
// session journal into the resound command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/resoundio/resound/internal/config"
	"github.com/resoundio/resound/internal/tracking"
)

const Version = "0.5.0"

// CLI represents the command-line interface
type CLI struct {
	rootCmd       *cobra.Command
	configManager *config.ConfigManager
	terminal      TerminalDetector
	journal       *tracking.Journal
}

// NewCLI creates a new CLI instance
func NewCLI() *CLI {
	slog.Debug("creating new CLI instance")

	c := &CLI{
		configManager: config.NewConfigManager(),
		terminal:      &DefaultTerminalDetector{},
	}

	rootCmd := &cobra.Command{
		Use:     "resound",
		Short:   "Command-line PCM audio player",
		Long:    "Resound plays audio files, generated tones and raw PCM streams\nthrough pluggable output backends.",
		Version: Version,
		// Runtime failures are reported once, not with a usage dump
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "log to this file with rotation")
	rootCmd.PersistentFlags().Bool("no-tracking", false, "disable session tracking")

	rootCmd.AddCommand(newPlayCommand())
	rootCmd.AddCommand(newBackendsCommand())
	rootCmd.AddCommand(newSessionsCommand())
	rootCmd.AddCommand(newConfigCommand())

	c.rootCmd = rootCmd
	return c
}

type cliContextKey struct{}

// contextWithCLI stores the CLI instance in a context for command handlers
func contextWithCLI(c *CLI) context.Context {
	return context.WithValue(context.Background(), cliContextKey{}, c)
}

// cliFromContext extracts the CLI instance from a command context
func cliFromContext(ctx context.Context) *CLI {
	if c, ok := ctx.Value(cliContextKey{}).(*CLI); ok {
		return c
	}
	return nil
}

// Run executes the CLI with the given arguments and I/O streams
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	slog.Debug("CLI run started", "args", args)

	c.rootCmd.SetArgs(args[1:]) // Skip program name
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)

	// Store CLI instance for access in command handlers
	c.rootCmd.SetContext(contextWithCLI(c))

	// Ensure the journal is closed on exit
	defer func() {
		if c.journal != nil {
			if err := c.journal.Close(); err != nil {
				slog.Debug("journal close failed", "error", err)
			}
		}
	}()

	if err := c.rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		return 1
	}

	return 0
}

// loadAndValidateConfig loads configuration, applies environment and
// persistent flag overrides, validates the result and configures logging
func (c *CLI) loadAndValidateConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configFile != "" {
		loaded, err := c.configManager.LoadFromFile(configFile)
		if err != nil {
			// An explicit config path that does not load falls back to defaults
			slog.Warn("config file not usable, using defaults", "file", configFile, "error", err)
			cfg = c.configManager.GetDefaultConfig()
		} else {
			cfg = c.configManager.MergeConfigs(c.configManager.GetDefaultConfig(), loaded)
		}
	} else {
		cfg, err = c.configManager.LoadConfig()
		if err != nil {
			cmd.PrintErrf("Error loading config: %v\n", err)
			slog.Error("config load failed", "error", err)
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	// Apply environment overrides
	cfg = c.configManager.ApplyEnvironmentOverrides(cfg)

	// Apply persistent flag overrides
	if logLevel, _ := cmd.Flags().GetString("log-level"); logLevel != "" {
		cfg.LogLevel = logLevel
		slog.Debug("log level override applied", "value", logLevel)
	}

	if logFile, _ := cmd.Flags().GetString("log-file"); logFile != "" {
		if cfg.FileLogging == nil {
			cfg.FileLogging = &config.FileLoggingConfig{
				MaxSizeMB:  10,
				MaxBackups: 5,
				MaxAgeDays: 30,
				Compress:   true,
			}
		}
		cfg.FileLogging.Enabled = true
		cfg.FileLogging.Filename = logFile
		slog.Debug("log file override applied", "value", logFile)
	}

	if noTracking, _ := cmd.Flags().GetBool("no-tracking"); noTracking {
		if cfg.Tracking == nil {
			cfg.Tracking = &config.TrackingConfig{}
		}
		cfg.Tracking.Enabled = false
		slog.Debug("tracking disabled by flag")
	}

	// Validate final configuration
	if err := c.configManager.ValidateConfig(cfg); err != nil {
		cmd.PrintErrf("Error: invalid configuration: %v\n", err)
		slog.Error("config validation failed", "error", err)
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c.setupLogging(cfg, cmd.ErrOrStderr())

	return cfg, nil
}

// setupLogging configures slog on stderr plus an optional rotated log file
func (c *CLI) setupLogging(cfg *config.Config, stderr io.Writer) {
	level := c.resolveLogLevel(cfg.LogLevel, stderr)

	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})

	if cfg.FileLogging == nil || !cfg.FileLogging.Enabled {
		slog.SetDefault(slog.New(stderrHandler))
		slog.Debug("logging configured", "level", level.String())
		return
	}

	logPath := c.configManager.ResolveLogFilePath(cfg.FileLogging.Filename)
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		// Continue without file logging rather than failing
		slog.SetDefault(slog.New(stderrHandler))
		slog.Error("failed to create log directory, file logging disabled", "path", logPath, "error", err)
		return
	}

	fileWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    cfg.FileLogging.MaxSizeMB,
		MaxBackups: cfg.FileLogging.MaxBackups,
		MaxAge:     cfg.FileLogging.MaxAgeDays,
		Compress:   cfg.FileLogging.Compress,
	}

	// The file captures everything; the terminal level only filters stderr
	fileHandler := slog.NewTextHandler(fileWriter, &slog.HandlerOptions{Level: slog.LevelDebug})

	slog.SetDefault(slog.New(newMultiHandler(stderrHandler, fileHandler)))
	slog.Debug("logging configured", "level", level.String(), "log_file", logPath)
}

// resolveLogLevel maps the configured level to slog. An empty level is
// quiet on an interactive terminal and chattier when output is piped.
func (c *CLI) resolveLogLevel(configured string, stderr io.Writer) slog.Level {
	if configured != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(configured)); err == nil {
			return level
		}
		slog.Warn("unparseable log level, using info", "log_level", configured)
		return slog.LevelInfo
	}

	if f, ok := stderr.(*os.File); ok && c.terminal.IsTerminal(int(f.Fd())) {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// openJournal opens the session journal once per run. Tracking failures
// degrade to a disabled journal, never to a playback failure.
func (c *CLI) openJournal(cfg *config.Config) *tracking.Journal {
	if c.journal != nil {
		return c.journal
	}

	if cfg.Tracking == nil || !cfg.Tracking.Enabled {
		slog.Debug("session tracking disabled")
		c.journal = tracking.NewJournal(nil)
		return c.journal
	}

	path := c.configManager.ResolveTrackingDBPath(cfg.Tracking.DatabasePath)
	db, err := tracking.NewDatabase(path)
	if err != nil {
		slog.Error("failed to open tracking database, continuing without tracking",
			"path", path, "error", err)
		c.journal = tracking.NewJournal(nil)
		return c.journal
	}

	slog.Debug("tracking database opened", "path", path)
	c.journal = tracking.NewJournal(db)
	return c.journal
}
