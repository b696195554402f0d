// Package config provides configuration management for molft.
//
// This package handles all configuration-related functionality including:
//   - Storage paths (config directory, data directory, run history)
//   - Launcher environment (cache paths, API keys, GPU selection)
//   - User task presets loaded from tasks.yaml
//
// Values come from three layers with increasing precedence: built-in
// defaults, the process environment, and command-line flags applied by the
// CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultConfigDirName is the configuration directory created under the
	// user's home directory.
	DefaultConfigDirName = ".molft"

	// DefaultDataDirName is the data subdirectory under the config dir.
	DefaultDataDirName = "data"

	// DefaultRunsDir holds per-run artifacts such as rendered launch scripts.
	DefaultRunsDir = "runs"

	// DefaultHistoryDB is the SQLite file recording every launch.
	DefaultHistoryDB = "history.db"

	// DefaultTasksFile is the user preset file looked up in the config dir.
	DefaultTasksFile = "tasks.yaml"
)

// Config represents the complete application configuration.
type Config struct {
	// Storage holds the directories molft reads from and writes to.
	Storage StorageConfig `json:"storage"`

	// Env is the launcher environment parsed from the process environment.
	Env EnvConfig `json:"-"`
}

// StorageConfig represents the storage and persistence configuration.
type StorageConfig struct {
	// ConfigDir contains tasks.yaml.
	// Example: "/home/user/.molft"
	ConfigDir string `json:"config_dir"`

	// DataDir contains the run history database and per-run artifacts.
	// Example: "/home/user/.molft/data"
	DataDir string `json:"data_dir"`
}

// GetRunsDir returns the directory holding per-run artifacts.
func (s *StorageConfig) GetRunsDir() string {
	return filepath.Join(s.DataDir, DefaultRunsDir)
}

// GetHistoryPath returns the path of the SQLite run ledger.
func (s *StorageConfig) GetHistoryPath() string {
	return filepath.Join(s.DataDir, DefaultHistoryDB)
}

// GetTasksPath returns the default location of the user preset file.
func (s *StorageConfig) GetTasksPath() string {
	return filepath.Join(s.ConfigDir, DefaultTasksFile)
}

// NewConfigWithCustomDirs creates a configuration rooted at the given
// directories.
//
// Parameters:
//   - configDir: configuration directory (empty uses $MOLFT_HOME, then ~/.molft)
//   - dataDir: data directory (empty uses configDir/data)
//
// Returns:
//   - A pointer to a newly created Config
//
// Example:
//
//	cfg := config.NewConfigWithCustomDirs("/opt/molft", "")
//	// tasks file: /opt/molft/tasks.yaml
//	// history:    /opt/molft/data/history.db
func NewConfigWithCustomDirs(configDir, dataDir string) *Config {
	if configDir == "" {
		configDir = os.Getenv("MOLFT_HOME")
	}
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "/tmp"
		}
		configDir = filepath.Join(homeDir, DefaultConfigDirName)
	}

	if dataDir == "" {
		dataDir = filepath.Join(configDir, DefaultDataDirName)
	}

	return &Config{
		Storage: StorageConfig{
			ConfigDir: configDir,
			DataDir:   dataDir,
		},
	}
}

// NewDefaultConfig creates a configuration with default directories.
func NewDefaultConfig() *Config {
	return NewConfigWithCustomDirs("", "")
}

// EnsureDirectories creates all required directories if they don't exist.
//
// Directories are created with 0755 permissions.
//
// Returns:
//   - nil if all directories exist afterwards
//   - error if any directory creation fails
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.ConfigDir,
		c.Storage.DataDir,
		c.Storage.GetRunsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
