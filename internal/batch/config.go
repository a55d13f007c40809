// Package batch schedules unattended simulation runs from cron
// expressions, one entry per persona and cadence.
package batch

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// RunConfig represents one scheduled simulation run
type RunConfig struct {
	Name             string  `toml:"name"`
	Persona          string  `toml:"persona"` // path to the persona file
	Cron             string  `toml:"cron"`
	Compression      float64 `toml:"compression"`
	Seed             int64   `toml:"seed"`
	NotifyOnComplete bool    `toml:"notify_on_complete"`
}

// ScheduleConfig holds all scheduled run configurations
type ScheduleConfig struct {
	Runs []RunConfig `toml:"run"`
}

// Validate checks if the config is valid
func (c *RunConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("run name is required")
	}
	if c.Persona == "" {
		return fmt.Errorf("persona path is required")
	}
	if c.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if c.Compression <= 0 {
		c.Compression = 60 // Default
	}
	return nil
}

// LoadScheduleConfig loads scheduled runs from a TOML file
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Validate all runs
	for i := range cfg.Runs {
		if err := cfg.Runs[i].Validate(); err != nil {
			return nil, fmt.Errorf("run %d: %w", i, err)
		}
	}

	return &cfg, nil
}
