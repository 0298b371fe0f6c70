package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidationProfile is the operator-tuned validation policy, loaded from
// YAML. Environment variables override nothing here: the profile owns
// policy, the environment owns wiring.
type ValidationProfile struct {
	Name string `yaml:"name" json:"name"`

	// SafeModeCategories lists catalog issue codes tolerated as warnings
	// during rollout (e.g. UNKNOWN_CONNECTOR while the registry lags).
	SafeModeCategories []string `yaml:"safe_mode_categories,omitempty" json:"safe_mode_categories,omitempty"`

	// MaxRules caps the rule count a single generation may propose.
	MaxRules int `yaml:"max_rules,omitempty" json:"max_rules,omitempty"`

	// GeneratorRPS and GeneratorBurst throttle generator traffic.
	GeneratorRPS   float64 `yaml:"generator_rps,omitempty" json:"generator_rps,omitempty"`
	GeneratorBurst int     `yaml:"generator_burst,omitempty" json:"generator_burst,omitempty"`

	// ConnectionTTLHours overrides the preload connection validity window.
	ConnectionTTLHours int `yaml:"connection_ttl_hours,omitempty" json:"connection_ttl_hours,omitempty"`
}

// DefaultProfile is used when no profile file is configured.
func DefaultProfile() *ValidationProfile {
	return &ValidationProfile{
		Name:           "default",
		MaxRules:       10,
		GeneratorRPS:   5,
		GeneratorBurst: 2,
	}
}

// LoadProfile reads a validation profile from a YAML file. An empty path
// returns the default profile.
func LoadProfile(path string) (*ValidationProfile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read profile %s: %w", path, err)
	}

	profile := DefaultProfile()
	if err := yaml.Unmarshal(raw, profile); err != nil {
		return nil, fmt.Errorf("config: parse profile %s: %w", path, err)
	}
	if profile.Name == "" {
		return nil, fmt.Errorf("config: profile %s has no name", path)
	}
	return profile, nil
}

// SafeModeEnabled reports whether the given issue code is tolerated.
func (p *ValidationProfile) SafeModeEnabled(code string) bool {
	for _, c := range p.SafeModeCategories {
		if c == code {
			return true
		}
	}
	return false
}
