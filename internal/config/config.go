// Package config loads and saves cherry's on-disk TOML configuration: the
// knobs that the assembler, VM, and debugger read at startup but that the
// core spec itself never names (max operation count, load address, display
// format, and so on).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config holds every cherry setting, grouped by the subcommand that reads
// it. Zero value is never used directly; DefaultConfig fills in every field.
type Config struct {
	Assembler struct {
		LoadAddress uint16 `toml:"load_address"`
		PageSize    int    `toml:"page_size"`
	} `toml:"assembler"`

	VM struct {
		MaxOperations   uint64 `toml:"max_operations"`
		BufferedOutput  bool   `toml:"buffered_output"`
	} `toml:"vm"`

	Debugger struct {
		HistorySize  int    `toml:"history_size"`
		NumberFormat string `toml:"number_format"` // "hex" or "dec"
	} `toml:"debugger"`
}

// DefaultConfig returns the configuration cherry runs with when no config
// file exists yet, or when a field is missing from one that does.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Assembler.LoadAddress = 0x0000
	cfg.Assembler.PageSize = 4096

	cfg.VM.MaxOperations = 10_000_000
	cfg.VM.BufferedOutput = true

	cfg.Debugger.HistorySize = 1000
	cfg.Debugger.NumberFormat = "hex"

	return cfg
}

// GetConfigPath returns the platform-specific config file path, creating its
// parent directory if needed.
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "cherry")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "cherry")

	default:
		return "config.toml"
	}

	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "config.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// GetLogPath returns the platform-specific log directory path, creating it
// if needed.
func GetLogPath() string {
	var logDir string

	switch runtime.GOOS {
	case "windows":
		logDir = os.Getenv("APPDATA")
		if logDir == "" {
			logDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		logDir = filepath.Join(logDir, "cherry", "logs")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "logs"
		}
		logDir = filepath.Join(homeDir, ".local", "share", "cherry", "logs")

	default:
		return "logs"
	}

	if err := os.MkdirAll(logDir, 0750); err != nil {
		return "logs"
	}

	return logDir
}

// Load reads configuration from the default config path.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom reads configuration from path, falling back to defaults when the
// file does not exist yet.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes c to the default config path.
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo writes c to path as TOML, creating the parent directory if needed.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("config: create directory %s: %w", dir, err)
	}

	f, err := os.Create(path) // #nosec G304 -- user config file path
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}

	return nil
}
