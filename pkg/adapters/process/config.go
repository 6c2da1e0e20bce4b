package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProcessConfig represents the configuration for an external tool execution.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
	// Schema is the JSON Schema of the arguments. Empty accepts any object.
	Schema map[string]any `yaml:"schema" json:"schema"`
}

// ConfigFile represents the structure of tools.yaml
type ConfigFile struct {
	Tools []ProcessConfig `yaml:"tools" json:"tools"`
}

// LoadTools reads a configuration file (YAML or JSON) and returns the tool configs in file order.
// A missing file means no tools are configured.
func LoadTools(path string) ([]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tools config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	out := make([]ProcessConfig, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		if t.Name == "" || t.Command == "" {
			return nil, fmt.Errorf("tools config: every tool needs a name and a command")
		}
		out = append(out, t)
	}
	return out, nil
}
