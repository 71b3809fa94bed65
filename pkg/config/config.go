// Package config holds the node-level runtime configuration and the YAML
// loader for location/rule fixtures, in the same apiVersion/kind/spec shape
// the teacher CLI uses for its resource files.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/latticefs/core/pkg/workerpool"
	"gopkg.in/yaml.v3"
)

// NodeConfig is the process-wide configuration for one latticefs engine
// instance.
type NodeConfig struct {
	DataDir       string `yaml:"dataDir"`
	JobSlots      int    `yaml:"jobSlots"`
	TaskFanOut    int    `yaml:"taskFanOut"`
	MetricsListen string `yaml:"metricsListen"`
}

// Default returns the built-in defaults, overridable per field by the
// caller or a loaded file.
func Default() NodeConfig {
	return NodeConfig{
		DataDir:       "./data",
		JobSlots:      workerpool.DefaultJobSlots(),
		TaskFanOut:    workerpool.DefaultTaskFanOut,
		MetricsListen: ":9090",
	}
}

// Load reads a NodeConfig from a YAML file, falling back to Default() for
// any field the file omits.
func Load(path string) (NodeConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ThumbnailDir is the cache directory thumbnails are written under.
func (c NodeConfig) ThumbnailDir() string {
	return filepath.Join(c.DataDir, "thumbnails")
}

// CatalogDir is where the embedded catalog and sync log live.
func (c NodeConfig) CatalogDir() string {
	return c.DataDir
}
