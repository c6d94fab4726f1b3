package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Target is one control plane to observe: where its inventory lives and
// which metric store records its traffic.
type Target struct {
	Name          string        `yaml:"name"`
	APIURL        string        `yaml:"api_url,omitempty"`
	MetricsURL    string        `yaml:"metrics_url"`
	MetricsIndex  string        `yaml:"metrics_index,omitempty"`
	InventoryFile string        `yaml:"inventory_file,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
}

// TargetsFile is the parsed YAML structure for multi-target configuration:
// targets: [{name, api_url, metrics_url, metrics_index, inventory_file, timeout}]
type TargetsFile struct {
	Targets []Target `yaml:"targets"`
}

// LoadTargetsFile parses a YAML targets file from the given path.
// Returns nil if path is empty (no targets file).
func LoadTargetsFile(path string) ([]Target, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	var tf TargetsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}

	if err := validateTargets(tf.Targets); err != nil {
		return nil, err
	}

	return tf.Targets, nil
}

func validateTargets(targets []Target) error {
	if len(targets) == 0 {
		return fmt.Errorf("targets file contains no targets")
	}

	seen := make(map[string]bool)

	for i, t := range targets {
		if t.Name == "" {
			return fmt.Errorf("target %d: name is required", i)
		}

		if seen[t.Name] {
			return fmt.Errorf("target %q: duplicate name", t.Name)
		}
		seen[t.Name] = true

		if t.MetricsURL == "" {
			return fmt.Errorf("target %q: metrics_url is required", t.Name)
		}
		if err := validateURL(t.MetricsURL, "metrics_url"); err != nil {
			return fmt.Errorf("target %q: %w", t.Name, err)
		}

		if t.APIURL == "" && t.InventoryFile == "" {
			return fmt.Errorf("target %q: api_url or inventory_file is required", t.Name)
		}
		if t.APIURL != "" {
			if err := validateURL(t.APIURL, "api_url"); err != nil {
				return fmt.Errorf("target %q: %w", t.Name, err)
			}
		}
		if isRemote(t.InventoryFile) {
			if err := validateURL(t.InventoryFile, "inventory_file"); err != nil {
				return fmt.Errorf("target %q: %w", t.Name, err)
			}
		}

		if t.Timeout < 0 {
			return fmt.Errorf("target %q: timeout cannot be negative", t.Name)
		}
	}

	return nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
