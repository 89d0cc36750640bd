// Package speedchange injects print speed (M220) and part fan (M106)
// overrides over a contiguous range of layers in a sliced GCode stream
// and restores the previous values when the range ends.
//
// Each Config describes one independent instance. Several instances can
// be chained over the same stream with a Processor; every instance sees
// the previous instance's output as plain text and computes its print
// speed against the slicer's 100% baseline.
package speedchange

import (
	"fmt"
	"math"

	"klipper-layerspeed/pkg/errors"
	"klipper-layerspeed/pkg/gcode"
)

// Config is the immutable configuration of one instance.
type Config struct {
	// Name labels the instance in annotations, logs and metrics.
	Name string `yaml:"name"`

	// StartLayer is the 1-based layer number shown in the slicer preview.
	StartLayer int `yaml:"layer_number"`

	// LayerCount is how many layers, starting at StartLayer, are affected.
	LayerCount int `yaml:"number_of_layers"`

	ChangePrintSpeed  bool `yaml:"change_print_speed"`
	PrintSpeedPercent int  `yaml:"print_speed"`

	// FanSpeedPercent is a percentage of full duty (255), not of the
	// slicer's fan speed.
	ChangeFanSpeed  bool `yaml:"change_fan_speed"`
	FanSpeedPercent int  `yaml:"fan_speed"`

	// Annotate adds explanatory comments to injected lines.
	Annotate bool `yaml:"annotate"`

	// StripFanCommands drops the stream's own part fan commands inside the
	// range so the injected fan speed holds for the whole range.
	StripFanCommands bool `yaml:"strip_fan_commands"`
}

// DefaultInstanceName is used when a configuration carries no name.
const DefaultInstanceName = "default"

// DefaultConfig returns the settings of a freshly added instance.
func DefaultConfig() Config {
	return Config{
		Name:              DefaultInstanceName,
		StartLayer:        1,
		LayerCount:        1,
		ChangePrintSpeed:  true,
		PrintSpeedPercent: 100,
		ChangeFanSpeed:    true,
		FanSpeedPercent:   100,
		Annotate:          true,
	}
}

// Validate rejects configurations that cannot be applied. It is always
// called before any output is produced.
func (c Config) Validate() error {
	section := c.section()
	if c.LayerCount < 1 {
		return errors.ConfigValidationError(section, "number_of_layers",
			fmt.Sprintf("must be at least 1, got %d", c.LayerCount)).
			SetContext("value", c.LayerCount)
	}
	if c.PrintSpeedPercent < 1 {
		return errors.ConfigValidationError(section, "print_speed",
			fmt.Sprintf("must be at least 1, got %d", c.PrintSpeedPercent)).
			SetContext("value", c.PrintSpeedPercent)
	}
	if c.FanSpeedPercent < 0 || c.FanSpeedPercent > 100 {
		return errors.ConfigValidationError(section, "fan_speed",
			fmt.Sprintf("must be between 0 and 100, got %d", c.FanSpeedPercent)).
			SetContext("value", c.FanSpeedPercent)
	}
	if !c.ChangePrintSpeed && !c.ChangeFanSpeed {
		return errors.ConfigValidationError(section, "change_print_speed",
			"at least one of change_print_speed or change_fan_speed must be enabled")
	}
	return nil
}

// Range returns the affected zero-based layer indices, inclusive. A start
// before the first layer is clamped to layer 0.
func (c Config) Range() (start, end int) {
	start = c.StartLayer - 1
	if start < 0 {
		start = 0
	}
	return start, start + c.LayerCount - 1
}

// FanDuty converts a fan percentage to the 0-255 M106 scale.
func FanDuty(percent int) int {
	return int(math.Round(float64(percent) * gcode.MaxFanDuty / 100))
}

func (c Config) label() string {
	if c.Name == "" {
		return DefaultInstanceName
	}
	return c.Name
}

func (c Config) section() string {
	return "speed_change_by_layer " + c.label()
}
