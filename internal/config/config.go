package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	Simulation    SimulationConfig    `toml:"simulation"`
	Advisory      AdvisoryConfig      `toml:"advisory"`
	Policy        PolicyConfig        `toml:"policy"`
	Dispatch      DispatchConfig      `toml:"dispatch"`
	Storage       StorageConfig       `toml:"storage"`
	Notifications NotificationsConfig `toml:"notifications"`
	Daemon        DaemonConfig        `toml:"daemon"`
}

// SimulationConfig holds workday settings
type SimulationConfig struct {
	PersonaPath string  `toml:"persona_path"`
	Compression float64 `toml:"compression"`
	DayStart    string  `toml:"day_start"` // overrides the persona's work schedule when set
	DayEnd      string  `toml:"day_end"`
	Seed        int64   `toml:"seed"` // 0 seeds from the current time
}

// AdvisoryConfig holds advisory model settings
type AdvisoryConfig struct {
	Enabled         bool   `toml:"enabled"`
	Model           string `toml:"model"`
	MaxTokens       int    `toml:"max_tokens"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	Retries         int    `toml:"retries"`
	CooldownSeconds int    `toml:"cooldown_seconds"`
}

// PolicyConfig tunes the heuristic decision weights
type PolicyConfig struct {
	RepeatWindow    int `toml:"repeat_window"`
	RepeatThreshold int `toml:"repeat_threshold"`
}

// DispatchConfig holds executor connection settings
type DispatchConfig struct {
	URL                    string       `toml:"url"`
	WorkerID               string       `toml:"worker_id"`
	DialTimeoutSeconds     int          `toml:"dial_timeout_seconds"`
	ResponseTimeoutSeconds int          `toml:"response_timeout_seconds"`
	ReconnectAttempts      int          `toml:"reconnect_attempts"`
	Shell                  *ShellConfig `toml:"shell"`
}

// ShellConfig holds the secondary ssh transport settings
type ShellConfig struct {
	Host           string `toml:"host"`
	User           string `toml:"user"`
	Port           int    `toml:"port"`
	KeyPath        string `toml:"key_path"`
	Command        string `toml:"command"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// StorageConfig holds run persistence settings
type StorageConfig struct {
	DatabasePath string `toml:"database_path"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// DaemonConfig holds scheduled-run settings
type DaemonConfig struct {
	BatchConfigPath string `toml:"batch_config_path"`
	WatchPersonas   bool   `toml:"watch_personas"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Simulation: SimulationConfig{
			Compression: 60,
		},
		Advisory: AdvisoryConfig{
			Enabled:         true,
			Model:           "gemini-3-flash",
			MaxTokens:       256,
			TimeoutSeconds:  5,
			Retries:         1,
			CooldownSeconds: 30,
		},
		Policy: PolicyConfig{
			RepeatWindow:    5,
			RepeatThreshold: 2,
		},
		Dispatch: DispatchConfig{
			URL:                    "ws://127.0.0.1:8765/ws",
			WorkerID:               "default",
			DialTimeoutSeconds:     10,
			ResponseTimeoutSeconds: 120,
			ReconnectAttempts:      5,
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(home, ".worksim", "runs.db"),
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.Simulation.PersonaPath = ExpandPath(cfg.Simulation.PersonaPath)
	cfg.Storage.DatabasePath = ExpandPath(cfg.Storage.DatabasePath)
	cfg.Daemon.BatchConfigPath = ExpandPath(cfg.Daemon.BatchConfigPath)
	if cfg.Dispatch.Shell != nil {
		cfg.Dispatch.Shell.KeyPath = ExpandPath(cfg.Dispatch.Shell.KeyPath)
	}

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "worksim", "config.toml")
}

// LocalConfigName is the per-directory config file discovered by
// FindLocalConfig.
const LocalConfigName = ".worksim.toml"

// FindLocalConfig walks from the working directory upward looking for a
// local config file. Returns the empty string when none is found.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadWithLocalFallback loads the explicit path when given, otherwise a
// discovered local config, otherwise the default location.
func LoadWithLocalFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}
