package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`      // Whether file logging is enabled
	Filename   string `json:"filename"`     // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb"`  // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups"`  // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress"`     // Whether to compress rotated files
}

// TrackingConfig represents playback session tracking configuration
type TrackingConfig struct {
	Enabled      bool   `json:"enabled"`       // Whether session tracking is enabled
	DatabasePath string `json:"database_path"` // SQLite path (empty = XDG data path)
}

// Config represents Resound configuration
type Config struct {
	Backend        string             `json:"backend"`                // Output backend name (empty = auto-select)
	BackendOrder   []string           `json:"backend_order"`          // Auto-selection order (empty = built-in order)
	Device         string             `json:"device"`                 // Device name (empty = system default)
	Rate           int                `json:"rate"`                   // Requested sample rate in Hz
	Volume         float64            `json:"volume"`                 // Playback volume (0.0 to 1.0)
	ChunkBytes     int                `json:"chunk_bytes"`            // Bytes pulled from the source per write
	PollIntervalMs int                `json:"poll_interval_ms"`       // Backend readiness poll interval
	MaxBits        int                `json:"max_bits"`               // Cap reported sample depth (0, 8 or 16)
	ForceMono      bool               `json:"force_mono"`             // Cap reported channels at mono
	LogLevel       string             `json:"log_level"`              // Log level (debug, info, warn, error)
	FileLogging    *FileLoggingConfig `json:"file_logging,omitempty"` // File logging configuration
	Tracking       *TrackingConfig    `json:"tracking,omitempty"`     // Session tracking configuration
}

// XDGInterface defines the interface for XDG directory operations
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetCachePath(purpose string) string
	GetDataPath(purpose string) string
}

// ConfigManager handles loading, saving, and validating configuration
type ConfigManager struct {
	xdg XDGInterface
	fs  afero.Fs
}

// NewConfigManager creates a new configuration manager backed by the OS filesystem
func NewConfigManager() *ConfigManager {
	return NewConfigManagerWithFs(afero.NewOsFs())
}

// NewConfigManagerWithFs creates a configuration manager on the given filesystem
func NewConfigManagerWithFs(fsys afero.Fs) *ConfigManager {
	slog.Debug("creating new config manager")
	return &ConfigManager{
		xdg: NewXDGDirs(),
		fs:  fsys,
	}
}

// GetDefaultConfig returns the default configuration
func (cm *ConfigManager) GetDefaultConfig() *Config {
	defaultConfig := &Config{
		Backend:        "", // registry picks the first available backend
		BackendOrder:   nil,
		Device:         "",
		Rate:           44100,
		Volume:         1.0,
		ChunkBytes:     16384,
		PollIntervalMs: 20,
		MaxBits:        0,
		ForceMono:      false,
		LogLevel:       "", // resolved at startup: warn on a terminal, info otherwise
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			Filename:   "", // Empty = XDG cache path
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Tracking: &TrackingConfig{
			Enabled:      true,
			DatabasePath: "", // Empty = XDG data path
		},
	}

	slog.Debug("generated default config",
		"backend", defaultConfig.Backend,
		"rate", defaultConfig.Rate,
		"volume", defaultConfig.Volume,
		"chunk_bytes", defaultConfig.ChunkBytes,
		"poll_interval_ms", defaultConfig.PollIntervalMs,
		"tracking_enabled", defaultConfig.Tracking.Enabled)

	return defaultConfig
}

// LoadFromFile loads configuration from a specific file
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(cm.fs, filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = json.Unmarshal(data, &config)
	if err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	err = cm.ValidateConfig(&config)
	if err != nil {
		slog.Error("config validation failed", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	slog.Debug("config loaded successfully",
		"file_path", filePath,
		"backend", config.Backend,
		"rate", config.Rate,
		"volume", config.Volume)

	return &config, nil
}

// SaveToFile saves configuration to a specific file
func (cm *ConfigManager) SaveToFile(config *Config, filePath string) error {
	slog.Debug("saving config to file", "file_path", filePath)

	err := cm.ValidateConfig(config)
	if err != nil {
		slog.Error("cannot save invalid config", "error", err)
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(filePath)
	err = cm.fs.MkdirAll(dir, 0755)
	if err != nil {
		slog.Error("failed to create config directory", "directory", dir, "error", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal with indentation for readability
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		slog.Error("failed to marshal config", "error", err)
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = afero.WriteFile(cm.fs, filePath, data, 0644)
	if err != nil {
		slog.Error("failed to write config file", "file_path", filePath, "error", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved successfully", "file_path", filePath)
	return nil
}

// LoadConfig loads configuration using XDG path discovery.
// A found file is merged over the defaults so sparse configs keep sane
// values for the fields they omit.
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	slog.Debug("loading config using XDG path discovery")

	configPaths := cm.xdg.GetConfigPaths("config.json")

	slog.Debug("searching for config file", "paths", configPaths)

	// Try to load from each path in priority order
	for i, configPath := range configPaths {
		slog.Debug("checking config path", "path_index", i, "path", configPath)

		if _, err := cm.fs.Stat(configPath); err == nil {
			slog.Debug("found config file", "path", configPath)
			loaded, err := cm.LoadFromFile(configPath)
			if err != nil {
				return nil, err
			}
			return cm.MergeConfigs(cm.GetDefaultConfig(), loaded), nil
		} else {
			slog.Debug("config file not found", "path", configPath, "error", err)
		}
	}

	slog.Debug("no config file found, using defaults")
	return cm.GetDefaultConfig(), nil
}

// ValidateConfig validates configuration values
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	var errs []string

	// Validate volume
	if config.Volume < 0.0 || config.Volume > 1.0 {
		errs = append(errs, fmt.Sprintf("volume must be between 0.0 and 1.0, got %f", config.Volume))
	}

	// Validate sample rate (0 = use default)
	if config.Rate < 0 {
		errs = append(errs, fmt.Sprintf("rate must be >= 0, got %d", config.Rate))
	}

	// Validate chunk size (0 = use default); one stereo 16-bit frame minimum
	if config.ChunkBytes != 0 && config.ChunkBytes < 4 {
		errs = append(errs, fmt.Sprintf("chunk_bytes must be at least 4, got %d", config.ChunkBytes))
	}

	// Validate poll interval
	if config.PollIntervalMs < 0 {
		errs = append(errs, fmt.Sprintf("poll_interval_ms must be >= 0, got %d", config.PollIntervalMs))
	}

	// Validate sample depth cap
	if config.MaxBits != 0 && config.MaxBits != 8 && config.MaxBits != 16 {
		errs = append(errs, fmt.Sprintf("max_bits must be 0, 8 or 16, got %d", config.MaxBits))
	}

	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if config.LogLevel != "" {
		valid := false
		for _, level := range validLogLevels {
			if config.LogLevel == level {
				valid = true
				break
			}
		}
		if !valid {
			errs = append(errs, fmt.Sprintf("invalid log level '%s', must be one of: %s",
				config.LogLevel, strings.Join(validLogLevels, ", ")))
		}
	}

	// Backend names are not validated here: the set of registered
	// backends depends on platform and build tags, and selection
	// reports unknown names with the registry's own error.

	// Validate file logging configuration
	if config.FileLogging != nil {
		fileLogging := config.FileLogging

		if fileLogging.MaxSizeMB < 0 {
			errs = append(errs, fmt.Sprintf("file logging max_size_mb must be >= 0, got %d", fileLogging.MaxSizeMB))
		}

		if fileLogging.MaxBackups < 0 {
			errs = append(errs, fmt.Sprintf("file logging max_backups must be >= 0, got %d", fileLogging.MaxBackups))
		}

		if fileLogging.MaxAgeDays < 0 {
			errs = append(errs, fmt.Sprintf("file logging max_age_days must be >= 0, got %d", fileLogging.MaxAgeDays))
		}
	}

	if len(errs) > 0 {
		errMsg := strings.Join(errs, "; ")
		slog.Error("config validation failed", "errors", errMsg)
		return fmt.Errorf("config validation failed: %s", errMsg)
	}

	slog.Debug("config validation passed")
	return nil
}

// MergeConfigs merges two configurations, with override taking precedence
func (cm *ConfigManager) MergeConfigs(base, override *Config) *Config {
	slog.Debug("merging configurations")

	// Start with a copy of base
	merged := *base

	// Apply overrides (only non-zero values)
	if override.Backend != "" {
		merged.Backend = override.Backend
		slog.Debug("merged backend override", "value", override.Backend)
	}

	if len(override.BackendOrder) > 0 {
		merged.BackendOrder = override.BackendOrder
		slog.Debug("merged backend order override", "order", override.BackendOrder)
	}

	if override.Device != "" {
		merged.Device = override.Device
		slog.Debug("merged device override", "value", override.Device)
	}

	if override.Rate != 0 {
		merged.Rate = override.Rate
		slog.Debug("merged rate override", "value", override.Rate)
	}

	if override.Volume != 0.0 {
		merged.Volume = override.Volume
		slog.Debug("merged volume override", "value", override.Volume)
	}

	if override.ChunkBytes != 0 {
		merged.ChunkBytes = override.ChunkBytes
		slog.Debug("merged chunk size override", "value", override.ChunkBytes)
	}

	if override.PollIntervalMs != 0 {
		merged.PollIntervalMs = override.PollIntervalMs
		slog.Debug("merged poll interval override", "value", override.PollIntervalMs)
	}

	if override.MaxBits != 0 {
		merged.MaxBits = override.MaxBits
		slog.Debug("merged max bits override", "value", override.MaxBits)
	}

	if override.ForceMono {
		merged.ForceMono = true
		slog.Debug("merged force mono override")
	}

	if override.LogLevel != "" {
		merged.LogLevel = override.LogLevel
		slog.Debug("merged log level override", "value", override.LogLevel)
	}

	if override.FileLogging != nil {
		merged.FileLogging = override.FileLogging
		slog.Debug("merged file logging override", "enabled", override.FileLogging.Enabled)
	}

	if override.Tracking != nil {
		merged.Tracking = override.Tracking
		slog.Debug("merged tracking override", "enabled", override.Tracking.Enabled)
	}

	slog.Debug("configurations merged successfully")
	return &merged
}

// ApplyEnvironmentOverrides applies environment variable overrides to config
func (cm *ConfigManager) ApplyEnvironmentOverrides(config *Config) *Config {
	slog.Debug("applying environment variable overrides")

	// Create a copy to modify
	result := *config

	// RESOUND_VOLUME
	if volStr := os.Getenv("RESOUND_VOLUME"); volStr != "" {
		if vol, err := strconv.ParseFloat(volStr, 64); err == nil {
			result.Volume = vol
			slog.Debug("applied volume override from environment", "value", vol)
		} else {
			slog.Warn("invalid RESOUND_VOLUME environment variable", "value", volStr, "error", err)
		}
	}

	// RESOUND_BACKEND
	if backend := os.Getenv("RESOUND_BACKEND"); backend != "" {
		result.Backend = backend
		slog.Debug("applied backend override from environment", "value", backend)
	}

	// RESOUND_DEVICE
	if device := os.Getenv("RESOUND_DEVICE"); device != "" {
		result.Device = device
		slog.Debug("applied device override from environment", "value", device)
	}

	// RESOUND_RATE
	if rateStr := os.Getenv("RESOUND_RATE"); rateStr != "" {
		if rate, err := strconv.Atoi(rateStr); err != nil {
			slog.Warn("invalid RESOUND_RATE environment variable", "value", rateStr, "error", err)
		} else if rate <= 0 {
			slog.Warn("RESOUND_RATE must be positive", "value", rate)
		} else {
			result.Rate = rate
			slog.Debug("applied rate override from environment", "value", rate)
		}
	}

	// RESOUND_LOG_LEVEL
	if logLevel := os.Getenv("RESOUND_LOG_LEVEL"); logLevel != "" {
		result.LogLevel = logLevel
		slog.Debug("applied log level override from environment", "value", logLevel)
	}

	// RESOUND_TRACKING
	if trackingStr := os.Getenv("RESOUND_TRACKING"); trackingStr != "" {
		if enabled, err := strconv.ParseBool(trackingStr); err == nil {
			tracking := TrackingConfig{Enabled: enabled}
			if config.Tracking != nil {
				tracking.DatabasePath = config.Tracking.DatabasePath
			}
			result.Tracking = &tracking
			slog.Debug("applied tracking override from environment", "value", enabled)
		} else {
			slog.Warn("invalid RESOUND_TRACKING environment variable", "value", trackingStr, "error", err)
		}
	}

	slog.Debug("environment overrides applied")
	return &result
}

// ErrConfigExists is returned by InitUserConfig when the target file is
// already present and force is false.
var ErrConfigExists = errors.New("config file already exists")

// InitUserConfig writes the default configuration to the user XDG
// config path, creating parent directories as needed. An existing file
// is only replaced when force is set. Returns the target path.
func (cm *ConfigManager) InitUserConfig(force bool) (string, error) {
	path := cm.xdg.GetConfigPaths("config.json")[0]

	if !force {
		if _, err := cm.fs.Stat(path); err == nil {
			slog.Debug("config file already present", "file_path", path)
			return path, fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	if err := cm.SaveToFile(cm.GetDefaultConfig(), path); err != nil {
		return path, err
	}

	return path, nil
}

// ResolveLogFilePath resolves the log file path using XDG cache directory when filename is empty
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}

	// Use XDG cache directory for log files
	return filepath.Join(cm.xdg.GetCachePath("logs"), "resound.log")
}

// ResolveTrackingDBPath resolves the tracking database path using XDG data directory when empty
func (cm *ConfigManager) ResolveTrackingDBPath(databasePath string) string {
	if databasePath != "" {
		return databasePath
	}

	// Use XDG data directory for the session journal
	return filepath.Join(cm.xdg.GetDataPath(""), "sessions.db")
}
