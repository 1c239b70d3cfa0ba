// Package config holds nodelet daemon configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NodeConfig holds configuration for the nodelet daemon.
type NodeConfig struct {
	Addr       string `yaml:"addr"`        // Listen address (default ":8080")
	LogLevel   string `yaml:"log_level"`   // Log level: debug, info, warn, error
	LogFormat  string `yaml:"log_format"`  // Log format: text, json
	DBPath     string `yaml:"db_path"`     // Journal path (default ~/.nodelet/nodelet.db, ":memory:" for testing)
	Workers    int    `yaml:"workers"`     // Worker pool size (default 4)
	QueueDepth int    `yaml:"queue_depth"` // Worker submission queue depth (default 2×workers)
}

// DefaultNodeConfig returns sensible defaults.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		Workers:   4,
	}
}

// LoadFile overlays the YAML file at path onto cfg. Only keys present
// in the file are changed.
func LoadFile(path string, cfg *NodeConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
