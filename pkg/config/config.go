// Package config loads pipeline settings from file, environment and flags.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ChrisMcGann/SedKey/pkg/calibrate"
	"github.com/ChrisMcGann/SedKey/pkg/drift"
	"github.com/ChrisMcGann/SedKey/pkg/penetration"
	"github.com/ChrisMcGann/SedKey/pkg/sigmoid"
	"github.com/ChrisMcGann/SedKey/pkg/sulfide"
	"github.com/ChrisMcGann/SedKey/pkg/swi"
)

// EnvPrefix is prepended to environment overrides, e.g. SEDKEY_FIT_STEP.
const EnvPrefix = "SEDKEY"

// Config holds every tunable of the pipeline.
type Config struct {
	Fit         FitConfig         `mapstructure:"fit"`
	SWI         SWIConfig         `mapstructure:"swi"`
	Anchors     AnchorsConfig     `mapstructure:"anchors"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Penetration PenetrationConfig `mapstructure:"penetration"`
	Sulfide     SulfideConfig     `mapstructure:"sulfide"`
	Drift       DriftConfig       `mapstructure:"drift"`
	Workers     int               `mapstructure:"workers"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// FitConfig holds the sigmoid fitter settings.
type FitConfig struct {
	Step          float64 `mapstructure:"step"`
	SeedB         float64 `mapstructure:"seed_b"`
	SeedC         float64 `mapstructure:"seed_c"`
	MaxIterations int     `mapstructure:"max_iterations"`
}

// SWIConfig holds the interface detector settings.
type SWIConfig struct {
	Window int `mapstructure:"window"`
}

// AnchorsConfig holds the plateau windows, in depth units.
type AnchorsConfig struct {
	Window       float64 `mapstructure:"window"`
	HighFallback float64 `mapstructure:"high_fallback"`
	LowFallback  float64 `mapstructure:"low_fallback"`
	MinPoints    int     `mapstructure:"min_points"`
}

// CalibrationConfig selects the calibration scope and its physical bounds.
// The external slope and intercept are used by the external scope only.
type CalibrationConfig struct {
	Scope             string  `mapstructure:"scope"`
	Reference         string  `mapstructure:"reference"`
	Saturation        float64 `mapstructure:"saturation"`
	Zero              float64 `mapstructure:"zero"`
	Unit              string  `mapstructure:"unit"`
	ExternalSlope     float64 `mapstructure:"external_slope"`
	ExternalIntercept float64 `mapstructure:"external_intercept"`
}

// PenetrationConfig holds the threshold and background settings. A zero
// threshold falls back to the analyte default.
type PenetrationConfig struct {
	Threshold       float64 `mapstructure:"threshold"`
	BaselineSamples int     `mapstructure:"baseline_samples"`
}

// SulfideConfig holds the in situ conditions of the sulfide equilibrium.
type SulfideConfig struct {
	Temperature float64 `mapstructure:"temperature"` // °C
	Salinity    float64 `mapstructure:"salinity"`    // per mille
}

// DriftConfig holds the drift regression settings.
type DriftConfig struct {
	Samples   int      `mapstructure:"samples"`
	Kind      string   `mapstructure:"kind"`
	Method    string   `mapstructure:"method"`
	Reference *float64 `mapstructure:"reference"`
}

// LoggingConfig selects the log level and handler format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	fit := sigmoid.DefaultOptions()
	v.SetDefault("fit.step", fit.Step)
	v.SetDefault("fit.seed_b", fit.SeedB)
	v.SetDefault("fit.seed_c", fit.SeedC)
	v.SetDefault("fit.max_iterations", fit.MaxIterations)

	v.SetDefault("swi.window", swi.DefaultOptions().Window)

	anchors := calibrate.DefaultAnchorOptions()
	v.SetDefault("anchors.window", anchors.Window)
	v.SetDefault("anchors.high_fallback", anchors.HighFallback)
	v.SetDefault("anchors.low_fallback", anchors.LowFallback)
	v.SetDefault("anchors.min_points", anchors.MinPoints)

	v.SetDefault("calibration.scope", calibrate.ScopePerCore.String())
	v.SetDefault("calibration.reference", "")
	v.SetDefault("calibration.saturation", 100.0)
	v.SetDefault("calibration.zero", 0.0)
	v.SetDefault("calibration.unit", "")
	v.SetDefault("calibration.external_slope", 0.0)
	v.SetDefault("calibration.external_intercept", 0.0)

	v.SetDefault("penetration.threshold", 1.0)
	v.SetDefault("penetration.baseline_samples", penetration.DefaultOptions().BaselineSamples)

	v.SetDefault("sulfide.temperature", 13.0)
	v.SetDefault("sulfide.salinity", 0.0)

	d := drift.DefaultOptions()
	v.SetDefault("drift.samples", d.Samples)
	v.SetDefault("drift.kind", d.Kind.String())
	v.SetDefault("drift.method", d.Method.String())

	v.SetDefault("workers", 4)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// New returns a viper instance with defaults and environment overrides
// registered.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadFile reads a YAML config file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	v := New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Load(v)
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.Fit.Step <= 0 {
		return fmt.Errorf("fit.step must be positive, got %g", c.Fit.Step)
	}
	if c.SWI.Window < 1 {
		return fmt.Errorf("swi.window must be at least 1, got %d", c.SWI.Window)
	}
	if c.Anchors.Window <= 0 || c.Anchors.HighFallback <= 0 || c.Anchors.LowFallback <= 0 {
		return fmt.Errorf("anchor windows must be positive")
	}
	if c.Anchors.MinPoints < 1 {
		return fmt.Errorf("anchors.min_points must be at least 1, got %d", c.Anchors.MinPoints)
	}
	scope, err := calibrate.ParseScope(c.Calibration.Scope)
	if err != nil {
		return err
	}
	if scope == calibrate.ScopeSingleCore && c.Calibration.Reference == "" {
		return fmt.Errorf("calibration.reference is required for single-core scope")
	}
	if scope == calibrate.ScopeExternal && c.Calibration.ExternalSlope == 0 {
		return fmt.Errorf("calibration.external_slope is required for external scope")
	}
	if c.Calibration.Saturation == c.Calibration.Zero {
		return fmt.Errorf("calibration.saturation and calibration.zero must differ")
	}
	if err := (sulfide.Conditions{TemperatureC: c.Sulfide.Temperature, Salinity: c.Sulfide.Salinity}).Validate(); err != nil {
		return err
	}
	if c.Drift.Samples < 1 {
		return fmt.Errorf("drift.samples must be at least 1, got %d", c.Drift.Samples)
	}
	if _, err := drift.ParseFitKind(c.Drift.Kind); err != nil {
		return err
	}
	if _, err := drift.ParseMethod(c.Drift.Method); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

// SigmoidOptions returns the fitter options.
func (c *Config) SigmoidOptions() sigmoid.Options {
	return sigmoid.Options{
		Step:          c.Fit.Step,
		SeedB:         c.Fit.SeedB,
		SeedC:         c.Fit.SeedC,
		MaxIterations: c.Fit.MaxIterations,
	}
}

// SWIOptions returns the interface detector options.
func (c *Config) SWIOptions() swi.Options {
	opts := swi.DefaultOptions()
	opts.Fit = c.SigmoidOptions()
	opts.Window = c.SWI.Window
	return opts
}

// AnchorOptions returns the anchor estimation options.
func (c *Config) AnchorOptions() calibrate.AnchorOptions {
	return calibrate.AnchorOptions{
		Window:       c.Anchors.Window,
		HighFallback: c.Anchors.HighFallback,
		LowFallback:  c.Anchors.LowFallback,
		MinPoints:    c.Anchors.MinPoints,
	}
}

// Engine returns a calibration engine for the configured bounds.
func (c *Config) Engine() *calibrate.Engine {
	return &calibrate.Engine{
		Anchors: c.AnchorOptions(),
		Bounds:  calibrate.Bounds{High: c.Calibration.Saturation, Low: c.Calibration.Zero},
		Unit:    c.Calibration.Unit,
	}
}

// CalibrationMode returns the configured calibration mode.
func (c *Config) CalibrationMode() (calibrate.Mode, error) {
	scope, err := calibrate.ParseScope(c.Calibration.Scope)
	if err != nil {
		return calibrate.Mode{}, err
	}
	mode := calibrate.Mode{Scope: scope, Reference: c.Calibration.Reference}
	if scope == calibrate.ScopeExternal {
		mode.External, err = calibrate.External(c.Calibration.ExternalSlope, c.Calibration.ExternalIntercept, c.Calibration.Unit)
		if err != nil {
			return calibrate.Mode{}, err
		}
	}
	return mode, nil
}

// PenetrationOptions returns the penetration estimator options.
func (c *Config) PenetrationOptions() penetration.Options {
	opts := penetration.DefaultOptions()
	opts.Fit = c.SigmoidOptions()
	opts.BaselineSamples = c.Penetration.BaselineSamples
	return opts
}

// Conditions returns the sulfide equilibrium conditions.
func (c *Config) Conditions() sulfide.Conditions {
	return sulfide.Conditions{TemperatureC: c.Sulfide.Temperature, Salinity: c.Sulfide.Salinity}
}

// DriftOptions returns the drift correction options.
func (c *Config) DriftOptions() (drift.Options, error) {
	kind, err := drift.ParseFitKind(c.Drift.Kind)
	if err != nil {
		return drift.Options{}, err
	}
	method, err := drift.ParseMethod(c.Drift.Method)
	if err != nil {
		return drift.Options{}, err
	}
	opts := drift.DefaultOptions()
	opts.Samples = c.Drift.Samples
	opts.Method = method
	opts.Kind = kind
	opts.Reference = c.Drift.Reference
	return opts, nil
}
