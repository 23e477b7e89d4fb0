package strategy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is one strategy entry in the YAML settings file.
type Config struct {
	Name     string   `yaml:"name"`
	Symbols  []string `yaml:"symbols"`
	Settings Setting  `yaml:"settings"`
}

// ConfigFile is the top-level YAML structure.
type ConfigFile struct {
	Strategies []Config `yaml:"strategies"`
}

// LoadConfig reads strategy configurations from a YAML file.
func LoadConfig(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse strategy config %s: %w", path, err)
	}

	for i, cfg := range file.Strategies {
		if cfg.Name == "" {
			return nil, fmt.Errorf("strategy entry %d has no name", i)
		}
		if len(cfg.Symbols) == 0 {
			return nil, fmt.Errorf("strategy %s has no symbols", cfg.Name)
		}
	}

	return file.Strategies, nil
}
