package config

import (
	"fmt"
	"os"

	"github.com/latticefs/core/pkg/types"
	"gopkg.in/yaml.v3"
)

// LocationResource is the YAML shape used by `latticefs apply -f` to
// register a location and its indexer rules.
type LocationResource struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ResourceMetadata `yaml:"metadata"`
	Spec       LocationSpec     `yaml:"spec"`
}

type ResourceMetadata struct {
	Name string `yaml:"name"`
}

type LocationSpec struct {
	Path  string     `yaml:"path"`
	Rules []RuleSpec `yaml:"rules"`
}

type RuleSpec struct {
	Kind     string   `yaml:"kind"`
	Globs    []string `yaml:"globs,omitempty"`
	DirNames []string `yaml:"dirNames,omitempty"`
}

// LoadLocationResource reads and validates one location fixture file.
func LoadLocationResource(path string) (*LocationResource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read location resource %s: %w", path, err)
	}

	var res LocationResource
	if err := yaml.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse location resource %s: %w", path, err)
	}
	if res.Kind != "Location" {
		return nil, fmt.Errorf("unsupported resource kind %q, expected Location", res.Kind)
	}
	if res.Spec.Path == "" {
		return nil, fmt.Errorf("location resource %s: spec.path is required", path)
	}
	return &res, nil
}

// IndexerRules converts the YAML rule specs into the engine's IndexerRule type.
func (s LocationSpec) IndexerRules() []types.IndexerRule {
	out := make([]types.IndexerRule, 0, len(s.Rules))
	for _, r := range s.Rules {
		out = append(out, types.IndexerRule{
			Kind:     types.IndexerRuleKind(r.Kind),
			Globs:    r.Globs,
			DirNames: r.DirNames,
		})
	}
	return out
}
