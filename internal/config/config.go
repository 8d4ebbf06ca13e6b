package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models medtrack.yml.
type Config struct {
	// HomeZone is the zone used when the host supplies none; empty means
	// the process-local zone.
	HomeZone string `yaml:"home_zone"`
	Transitions struct {
		// RetentionYears bounds how old a recorded transition instant may be.
		RetentionYears int `yaml:"retention_years"`
		// GradualShiftDays is the step count for the gradual_shift strategy.
		GradualShiftDays int `yaml:"gradual_shift_days"`
		// AssociationWindowHours bounds dose-to-event association around the
		// transition instant.
		AssociationWindowHours int `yaml:"association_window_hours"`
	} `yaml:"transitions"`
	Doses struct {
		// TakenFutureToleranceMinutes caps how far in the future a taken
		// timestamp may lie.
		TakenFutureToleranceMinutes int `yaml:"taken_future_tolerance_minutes"`
		// TakenBackfillDays caps how long before the scheduled instant a
		// taken timestamp may lie.
		TakenBackfillDays int `yaml:"taken_backfill_days"`
	} `yaml:"doses"`
	// ZoneAliases extends the built-in identifier alias table.
	ZoneAliases map[string]string `yaml:"zone_aliases"`
}

// Default returns the configuration used when no medtrack.yml exists.
func Default() *Config {
	var cfg Config
	cfg.Transitions.RetentionYears = 2
	cfg.Transitions.GradualShiftDays = 3
	cfg.Transitions.AssociationWindowHours = 24
	cfg.Doses.TakenFutureToleranceMinutes = 60
	cfg.Doses.TakenBackfillDays = 7
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Transitions.RetentionYears <= 0 {
		return fmt.Errorf("config.transitions.retention_years must be positive")
	}
	if c.Transitions.GradualShiftDays <= 0 {
		return fmt.Errorf("config.transitions.gradual_shift_days must be positive")
	}
	if c.Transitions.AssociationWindowHours <= 0 {
		return fmt.Errorf("config.transitions.association_window_hours must be positive")
	}
	if c.Doses.TakenFutureToleranceMinutes < 0 {
		return fmt.Errorf("config.doses.taken_future_tolerance_minutes must not be negative")
	}
	if c.Doses.TakenBackfillDays <= 0 {
		return fmt.Errorf("config.doses.taken_backfill_days must be positive")
	}
	for alias, canonical := range c.ZoneAliases {
		if alias == "" || canonical == "" {
			return fmt.Errorf("config.zone_aliases contains an empty identifier")
		}
	}
	return nil
}

// RetentionHorizon converts the retention setting to a duration.
func (c *Config) RetentionHorizon() time.Duration {
	return time.Duration(c.Transitions.RetentionYears) * 365 * 24 * time.Hour
}

// AssociationWindow converts the association setting to a duration.
func (c *Config) AssociationWindow() time.Duration {
	return time.Duration(c.Transitions.AssociationWindowHours) * time.Hour
}

// TakenFutureTolerance converts the future-tolerance setting to a duration.
func (c *Config) TakenFutureTolerance() time.Duration {
	return time.Duration(c.Doses.TakenFutureToleranceMinutes) * time.Minute
}

// TakenBackfillWindow converts the backfill setting to a duration.
func (c *Config) TakenBackfillWindow() time.Duration {
	return time.Duration(c.Doses.TakenBackfillDays) * 24 * time.Hour
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "medtrack.yml")
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Absent fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
