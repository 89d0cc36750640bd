package config

import (
	"path/filepath"
	"strings"

	"klipper-layerspeed/pkg/errors"
	"klipper-layerspeed/pkg/speedchange"
)

// InstanceSection is the section prefix of a speed change instance:
// [speed_change_by_layer NAME].
const InstanceSection = "speed_change_by_layer"

// instanceOptions lists every option an instance section may carry.
var instanceOptions = []string{
	"layer_number",
	"number_of_layers",
	"change_print_speed",
	"print_speed",
	"change_fan_speed",
	"fan_speed",
	"annotate",
	"strip_fan_commands",
}

// LoadProfile reads the instances of a profile file. Files ending in
// .yaml or .yml are YAML profiles; anything else is parsed as a .cfg
// profile.
func LoadProfile(path string) ([]speedchange.Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Instances(c)
}

// Instances returns one configuration per instance section, in file
// order. Unknown sections and unknown options are rejected.
func Instances(c *Config) ([]speedchange.Config, error) {
	sections := c.GetPrefixSections(InstanceSection)
	if len(sections) == 0 {
		return nil, errors.ConfigSectionError(InstanceSection, "no ["+InstanceSection+" NAME] sections found")
	}

	configs := make([]speedchange.Config, 0, len(sections))
	for _, sec := range sections {
		cfg, err := parseInstance(sec)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	if err := c.CheckUnusedSections(); err != nil {
		return nil, err
	}
	if err := c.CheckUnusedOptions(); err != nil {
		return nil, err
	}
	return configs, nil
}

func parseInstance(sec *Section) (speedchange.Config, error) {
	cfg := speedchange.DefaultConfig()
	if name := sec.Suffix(); name != "" {
		cfg.Name = name
	}

	one, zero, hundred := 1, 0, 100
	var err error
	if cfg.StartLayer, err = sec.GetInt("layer_number", cfg.StartLayer); err != nil {
		return cfg, err
	}
	if cfg.LayerCount, err = sec.GetIntWithBounds("number_of_layers", &one, nil, cfg.LayerCount); err != nil {
		return cfg, err
	}
	if cfg.ChangePrintSpeed, err = sec.GetBool("change_print_speed", cfg.ChangePrintSpeed); err != nil {
		return cfg, err
	}
	if cfg.PrintSpeedPercent, err = sec.GetIntWithBounds("print_speed", &one, nil, cfg.PrintSpeedPercent); err != nil {
		return cfg, err
	}
	if cfg.ChangeFanSpeed, err = sec.GetBool("change_fan_speed", cfg.ChangeFanSpeed); err != nil {
		return cfg, err
	}
	if cfg.FanSpeedPercent, err = sec.GetIntWithBounds("fan_speed", &zero, &hundred, cfg.FanSpeedPercent); err != nil {
		return cfg, err
	}
	if cfg.Annotate, err = sec.GetBool("annotate", cfg.Annotate); err != nil {
		return cfg, err
	}
	if cfg.StripFanCommands, err = sec.GetBool("strip_fan_commands", cfg.StripFanCommands); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}
