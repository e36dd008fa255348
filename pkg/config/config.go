// Package config provides configuration loading and management for the
// geological reconstruction pipeline. It handles loading configuration
// from YAML files, applying caller-supplied option mappings, and
// documented default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the modeling configuration loaded from YAML
type Config struct {
	// Grid parameters
	Grid struct {
		// Resolution is the grid cell size in world units
		Resolution float64 `yaml:"resolution"`

		// DomainExpansionX is the margin added beyond the sample bounding
		// box on the x axis, in world units
		DomainExpansionX float64 `yaml:"domainExpansionX"`

		// DomainExpansionY is the margin added beyond the sample bounding
		// box on the y axis, in world units
		DomainExpansionY float64 `yaml:"domainExpansionY"`
	} `yaml:"grid"`

	// Interpolation parameters
	Interpolation struct {
		// KrigingVariant selects the estimator: ordinary, universal or simple
		KrigingVariant string `yaml:"krigingVariant"`

		// VariogramModel selects the spatial-correlation model:
		// gaussian, exponential, spherical, matern or linear
		VariogramModel string `yaml:"variogramModel"`

		// AutoFitVariogram enables non-linear least-squares fitting of the
		// variogram parameters; when disabled the heuristic defaults are used
		AutoFitVariogram bool `yaml:"autoFitVariogram"`

		// TimeoutSeconds bounds the wall-clock time of a single
		// interpolation pass. Zero disables the timeout.
		TimeoutSeconds float64 `yaml:"timeoutSeconds"`
	} `yaml:"interpolation"`

	// Output parameters
	Output struct {
		// ColormapHint is passed through to the scene export stage
		ColormapHint string `yaml:"colormapHint"`

		// RunUncertaintyAnalysis enables leave-one-out cross-validation
		RunUncertaintyAnalysis bool `yaml:"runUncertaintyAnalysis"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default grid parameters. The 50-unit expansion guarantees every
	// sample lies strictly inside the interpolation grid bounds.
	cfg.Grid.Resolution = 2.0
	cfg.Grid.DomainExpansionX = 50.0
	cfg.Grid.DomainExpansionY = 50.0

	// Set default interpolation parameters
	cfg.Interpolation.KrigingVariant = "ordinary"
	cfg.Interpolation.VariogramModel = "exponential"
	cfg.Interpolation.AutoFitVariogram = true
	cfg.Interpolation.TimeoutSeconds = 0

	// Set default output parameters
	cfg.Output.ColormapHint = "terrain"
	cfg.Output.RunUncertaintyAnalysis = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// ApplyOptions overrides configuration fields from a caller-supplied
// option mapping. Recognized keys:
//
//	grid_resolution          float
//	domain_expansion         [2]float (x margin, y margin)
//	kriging_variant          string
//	variogram_model          string
//	auto_fit_variogram       bool
//	colormap_hint            string
//	run_uncertainty_analysis bool
//
// Unrecognized keys are ignored; missing keys keep their current values.
func (c *Config) ApplyOptions(opts map[string]any) {
	for key, raw := range opts {
		switch key {
		case "grid_resolution":
			if v, ok := asFloat(raw); ok && v > 0 {
				c.Grid.Resolution = v
			}
		case "domain_expansion":
			if x, y, ok := asFloatPair(raw); ok {
				c.Grid.DomainExpansionX = x
				c.Grid.DomainExpansionY = y
			}
		case "kriging_variant":
			if v, ok := raw.(string); ok {
				c.Interpolation.KrigingVariant = v
			}
		case "variogram_model":
			if v, ok := raw.(string); ok {
				c.Interpolation.VariogramModel = v
			}
		case "auto_fit_variogram":
			if v, ok := raw.(bool); ok {
				c.Interpolation.AutoFitVariogram = v
			}
		case "colormap_hint":
			if v, ok := raw.(string); ok {
				c.Output.ColormapHint = v
			}
		case "run_uncertainty_analysis":
			if v, ok := raw.(bool); ok {
				c.Output.RunUncertaintyAnalysis = v
			}
		}
	}
}

func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

func asFloatPair(raw any) (float64, float64, bool) {
	switch v := raw.(type) {
	case [2]float64:
		return v[0], v[1], true
	case []float64:
		if len(v) == 2 {
			return v[0], v[1], true
		}
	case []any:
		if len(v) == 2 {
			x, okx := asFloat(v[0])
			y, oky := asFloat(v[1])
			if okx && oky {
				return x, y, true
			}
		}
	}
	return 0, 0, false
}
