package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/banshee-data/wear.report/internal/units"
	"github.com/banshee-data/wear.report/internal/window"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// AnalysisConfig holds the settings shared by the wear-report subcommands.
// Unset fields fall back to the defaults returned by the Get* methods, so
// partial configs are safe.
type AnalysisConfig struct {
	// Input
	SamplingRate *float64 `json:"sampling_rate,omitempty" toml:"sampling_rate"` // Hz
	Timezone     *string  `json:"timezone,omitempty" toml:"timezone"`           // tz database name
	AccUnit      *string  `json:"acc_unit,omitempty" toml:"acc_unit"`           // "g" or "mps2"

	// Generic windowing for the windows subcommand
	WindowSec      *float64 `json:"window_sec,omitempty" toml:"window_sec"`
	OverlapPercent *float64 `json:"overlap_percent,omitempty" toml:"overlap_percent"`

	// Results store
	DBPath *string `json:"db_path,omitempty" toml:"db_path"`
	Listen *string `json:"listen,omitempty" toml:"listen"`
}

// EmptyAnalysisConfig returns an AnalysisConfig with all fields unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON or TOML file,
// chosen by extension. The file must be under 1MB. TOML files may not carry
// keys the config does not know.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".toml" {
		return nil, fmt.Errorf("config file must have .json or .toml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if ext == ".toml" {
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config keys: %v", undecoded)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Intended for tests.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from cmd/<tool>/ subpackages
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *AnalysisConfig) Validate() error {
	if c.SamplingRate != nil && *c.SamplingRate <= 0 {
		return fmt.Errorf("sampling_rate must be positive, got %g", *c.SamplingRate)
	}
	if c.Timezone != nil && !units.IsTimezoneValid(*c.Timezone) {
		return fmt.Errorf("invalid timezone %q", *c.Timezone)
	}
	if c.AccUnit != nil && !units.IsValid(*c.AccUnit) {
		return fmt.Errorf("invalid acc_unit %q (valid: %s)", *c.AccUnit, units.GetValidUnitsString())
	}
	if c.WindowSec != nil && *c.WindowSec <= 0 {
		return fmt.Errorf("window_sec must be positive, got %g", *c.WindowSec)
	}
	if c.OverlapPercent != nil && (*c.OverlapPercent < 0 || *c.OverlapPercent >= 1) {
		return fmt.Errorf("overlap_percent must be in [0, 1), got %g", *c.OverlapPercent)
	}
	if c.DBPath != nil && *c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	return nil
}

// GetSamplingRate returns the sampling_rate value or the default.
func (c *AnalysisConfig) GetSamplingRate() float64 {
	if c.SamplingRate == nil {
		return 30 // default
	}
	return *c.SamplingRate
}

// GetTimezone returns the timezone value or the default.
func (c *AnalysisConfig) GetTimezone() string {
	if c.Timezone == nil {
		return "UTC"
	}
	return *c.Timezone
}

// GetAccUnit returns the acc_unit value or the default.
func (c *AnalysisConfig) GetAccUnit() string {
	if c.AccUnit == nil {
		return units.G
	}
	return *c.AccUnit
}

// GetWindowSec returns the window_sec value or the default.
func (c *AnalysisConfig) GetWindowSec() float64 {
	if c.WindowSec == nil {
		return 60
	}
	return *c.WindowSec
}

// GetOverlapPercent returns the overlap_percent value or the default.
func (c *AnalysisConfig) GetOverlapPercent() float64 {
	if c.OverlapPercent == nil {
		return 0
	}
	return *c.OverlapPercent
}

// GetDBPath returns the db_path value or the default.
func (c *AnalysisConfig) GetDBPath() string {
	if c.DBPath == nil {
		return "wear_report.db"
	}
	return *c.DBPath
}

// GetListen returns the listen value or the default.
func (c *AnalysisConfig) GetListen() string {
	if c.Listen == nil {
		return ":8082"
	}
	return *c.Listen
}

// WindowConfig builds the generic window configuration for a series
// sampled at samplingRate.
func (c *AnalysisConfig) WindowConfig(samplingRate float64) window.Config {
	return window.Config{
		WindowSec:      window.Seconds(c.GetWindowSec()),
		SamplingRate:   samplingRate,
		OverlapPercent: window.Fraction(c.GetOverlapPercent()),
	}
}
