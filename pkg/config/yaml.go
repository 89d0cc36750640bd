package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"klipper-layerspeed/pkg/errors"
	"klipper-layerspeed/pkg/speedchange"
)

// yamlProfile is the document layout of a YAML profile:
//
//	instances:
//	  - name: bridge
//	    layer_number: 12
//	    number_of_layers: 3
//	    print_speed: 50
type yamlProfile struct {
	Instances []yaml.Node `yaml:"instances"`
}

// LoadYAML reads a YAML profile file.
func LoadYAML(path string) ([]speedchange.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigSection, fmt.Sprintf("unable to open %s", path))
	}
	return ParseYAML(data)
}

// ParseYAML decodes the instances of a YAML profile, in list order.
// Options left out take the defaults of a new instance.
func ParseYAML(data []byte) ([]speedchange.Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc yamlProfile
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, errors.ErrConfigType, "invalid YAML profile")
	}
	if len(doc.Instances) == 0 {
		return nil, errors.ConfigSectionError("instances", "no instances defined")
	}

	configs := make([]speedchange.Config, 0, len(doc.Instances))
	for i := range doc.Instances {
		cfg, err := decodeInstance(&doc.Instances[i], i)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func decodeInstance(node *yaml.Node, index int) (speedchange.Config, error) {
	cfg := speedchange.DefaultConfig()
	section := fmt.Sprintf("instances[%d]", index)
	if node.Kind != yaml.MappingNode {
		return cfg, errors.ConfigSectionError(section, "expected a mapping of options").SetLine(node.Line)
	}

	known := map[string]bool{"name": true}
	for _, opt := range instanceOptions {
		known[opt] = true
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if !known[key.Value] {
			return cfg, ErrUnknownOption(section, key.Value).SetLine(key.Line)
		}
	}

	if err := node.Decode(&cfg); err != nil {
		return cfg, errors.Wrap(err, errors.ErrConfigType, "invalid option value").
			SetSection(section).
			SetLine(node.Line)
	}
	if cfg.Name == "" {
		cfg.Name = speedchange.DefaultInstanceName
	}
	return cfg, cfg.Validate()
}
