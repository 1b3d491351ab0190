// Package config provides configuration loading and management for rtviewer.
// It handles loading configuration from YAML files, applies RTVIEWER_*
// environment overrides and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "RTVIEWER"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Slice alignment parameters
	Navigation struct {
		// ZTolerance is the exclusive distance in mm within which a dose slice
		// matches a reference slice
		ZTolerance float64 `yaml:"zTolerance"`

		// ContourEpsilon is the inclusive Z distance for nearest-contour fallback
		ContourEpsilon float64 `yaml:"contourEpsilon"`

		// ContourKeyPrecision is the number of decimals in contour Z keys
		ContourKeyPrecision int `yaml:"contourKeyPrecision"`
	} `yaml:"navigation"`

	// Touch and pointer gesture parameters
	Gesture struct {
		// SensitivityPixels is the vertical drag distance per slice
		SensitivityPixels float64 `yaml:"sensitivityPixels"`

		// PinchMode is "direct" or "damped"
		PinchMode string `yaml:"pinchMode"`

		// PinchDamping scales pinch factors in damped mode
		PinchDamping float64 `yaml:"pinchDamping"`

		MinScale float64 `yaml:"minScale"`

		// MaxScale of zero disables the zoom ceiling
		MaxScale float64 `yaml:"maxScale"`
	} `yaml:"gesture"`

	// Dose overlay parameters
	Overlay struct {
		// WindowMin is the display threshold; lower doses are not painted
		WindowMin float64 `yaml:"windowMin"`
		WindowMax float64 `yaml:"windowMax"`

		// Opacity is applied to the whole dose layer
		Opacity float64 `yaml:"opacity"`

		// VoxelAlpha is the alpha of each painted dose voxel
		VoxelAlpha uint8 `yaml:"voxelAlpha"`

		// Resampler is "nearest" or "bilinear"
		Resampler string `yaml:"resampler"`
	} `yaml:"overlay"`

	// Structure contour parameters
	Contour struct {
		// LineWidth is the stroke width in screen pixels
		LineWidth float64 `yaml:"lineWidth"`
	} `yaml:"contour"`

	// Dose unit parameters
	Units struct {
		// Unit is "Gy" or "percent"
		Unit string `yaml:"unit"`

		// Prescription is the reference dose in Gy
		Prescription float64 `yaml:"prescription"`

		// MaxPercent is the slider limit in percent of prescription
		MaxPercent float64 `yaml:"maxPercent"`
	} `yaml:"units"`

	// Pane synchronization parameters
	Sync struct {
		// LockTransform shares pan, zoom and window/level across panes
		LockTransform bool `yaml:"lockTransform"`
	} `yaml:"sync"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`

		// Format is "png" or "jpeg" for rendered snapshots
		Format string `yaml:"format"`
	} `yaml:"output"`
}

// overrides lists the settings that may be changed from the environment.
// Pointers distinguish unset variables from zero values.
type overrides struct {
	ZTolerance    *float64 `envconfig:"Z_TOLERANCE"`
	Sensitivity   *float64 `envconfig:"SENSITIVITY"`
	PinchMode     *string  `envconfig:"PINCH_MODE"`
	WindowMin     *float64 `envconfig:"WINDOW_MIN"`
	WindowMax     *float64 `envconfig:"WINDOW_MAX"`
	Opacity       *float64 `envconfig:"OPACITY"`
	Unit          *string  `envconfig:"UNIT"`
	Prescription  *float64 `envconfig:"PRESCRIPTION"`
	LockTransform *bool    `envconfig:"LOCK_TRANSFORM"`
	Verbose       *bool    `envconfig:"VERBOSE"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Navigation.ZTolerance = 2.0
	cfg.Navigation.ContourEpsilon = 0.1
	cfg.Navigation.ContourKeyPrecision = 2

	cfg.Gesture.SensitivityPixels = 15
	cfg.Gesture.PinchMode = "direct"
	cfg.Gesture.PinchDamping = 0.1
	cfg.Gesture.MinScale = 0.1
	cfg.Gesture.MaxScale = 10

	cfg.Overlay.WindowMin = 5
	cfg.Overlay.WindowMax = 70
	cfg.Overlay.Opacity = 0.5
	cfg.Overlay.VoxelAlpha = 200
	cfg.Overlay.Resampler = "nearest"

	cfg.Contour.LineWidth = 1.5

	cfg.Units.Unit = "Gy"
	cfg.Units.Prescription = 60
	cfg.Units.MaxPercent = 130

	cfg.Sync.LockTransform = true

	cfg.Output.Verbose = false
	cfg.Output.Format = "png"

	return cfg
}

// LoadConfig loads configuration from a YAML file and applies environment
// overrides. If the file doesn't exist, the defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from RTVIEWER_* environment variables.
func (c *Config) ApplyEnv() error {
	var o overrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return fmt.Errorf("error reading environment overrides: %w", err)
	}
	setFloat(&c.Navigation.ZTolerance, o.ZTolerance)
	setFloat(&c.Gesture.SensitivityPixels, o.Sensitivity)
	setFloat(&c.Overlay.WindowMin, o.WindowMin)
	setFloat(&c.Overlay.WindowMax, o.WindowMax)
	setFloat(&c.Overlay.Opacity, o.Opacity)
	setFloat(&c.Units.Prescription, o.Prescription)
	if o.PinchMode != nil {
		c.Gesture.PinchMode = *o.PinchMode
	}
	if o.Unit != nil {
		c.Units.Unit = *o.Unit
	}
	if o.LockTransform != nil {
		c.Sync.LockTransform = *o.LockTransform
	}
	if o.Verbose != nil {
		c.Output.Verbose = *o.Verbose
	}
	return nil
}

// Validate rejects settings the viewer cannot work with.
func (c *Config) Validate() error {
	switch {
	case !(c.Navigation.ZTolerance > 0):
		return fmt.Errorf("navigation.zTolerance must be positive, got %g", c.Navigation.ZTolerance)
	case !(c.Navigation.ContourEpsilon > 0):
		return fmt.Errorf("navigation.contourEpsilon must be positive, got %g", c.Navigation.ContourEpsilon)
	case c.Navigation.ContourKeyPrecision < 0:
		return fmt.Errorf("navigation.contourKeyPrecision must not be negative, got %d", c.Navigation.ContourKeyPrecision)
	case !(c.Gesture.SensitivityPixels > 0):
		return fmt.Errorf("gesture.sensitivityPixels must be positive, got %g", c.Gesture.SensitivityPixels)
	case !(c.Gesture.MinScale > 0):
		return fmt.Errorf("gesture.minScale must be positive, got %g", c.Gesture.MinScale)
	case c.Gesture.MaxScale != 0 && c.Gesture.MaxScale < c.Gesture.MinScale:
		return fmt.Errorf("gesture.maxScale %g is below minScale %g", c.Gesture.MaxScale, c.Gesture.MinScale)
	case !(c.Overlay.WindowMin < c.Overlay.WindowMax):
		return fmt.Errorf("overlay window [%g, %g] is empty", c.Overlay.WindowMin, c.Overlay.WindowMax)
	case c.Overlay.Opacity < 0 || c.Overlay.Opacity > 1:
		return fmt.Errorf("overlay.opacity must be within [0, 1], got %g", c.Overlay.Opacity)
	case !(c.Units.Prescription > 0):
		return fmt.Errorf("units.prescription must be positive, got %g", c.Units.Prescription)
	case !oneOf(c.Units.Unit, "Gy", "gy", "absolute", "%", "percent"):
		return fmt.Errorf("units.unit must be Gy or percent, got %q", c.Units.Unit)
	case !oneOf(c.Gesture.PinchMode, "", "direct", "damped"):
		return fmt.Errorf("gesture.pinchMode must be direct or damped, got %q", c.Gesture.PinchMode)
	case !oneOf(c.Overlay.Resampler, "", "nearest", "bilinear"):
		return fmt.Errorf("overlay.resampler must be nearest or bilinear, got %q", c.Overlay.Resampler)
	case !oneOf(c.Output.Format, "png", "jpeg", "jpg"):
		return fmt.Errorf("output.format must be png or jpeg, got %q", c.Output.Format)
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
