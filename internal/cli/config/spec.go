package config

import (
	"fmt"
	"maps"
	"slices"
)

// CLIConfig is the content of the profile file.
type CLIConfig struct {
	// CurrentProfile is used when no profile is selected explicitly.
	CurrentProfile string `yaml:"current_profile,omitempty"`

	// Output is the default output format: table, json or yaml.
	Output string `yaml:"output,omitempty"`

	Profiles map[string]Profile `yaml:"profiles,omitempty"`
}

// Profile stores connection details for one orchestrator.
type Profile struct {
	Address    string `yaml:"address,omitempty"`
	CAFile     string `yaml:"ca_file,omitempty"`
	ServerName string `yaml:"server_name,omitempty"`
	AuthToken  string `yaml:"auth_token,omitempty"`
}

// Default returns an empty configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Profiles: make(map[string]Profile),
	}
}

// Profile returns the named profile, or the current one when name is
// empty. With neither set it returns the zero Profile.
func (c *CLIConfig) Profile(name string) (Profile, error) {
	if name == "" {
		name = c.CurrentProfile
	}
	if name == "" {
		return Profile{}, nil
	}
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile %q not found", name)
	}
	return p, nil
}

// Names returns the profile names in sorted order.
func (c *CLIConfig) Names() []string {
	return slices.Sorted(maps.Keys(c.Profiles))
}

// hasSecrets reports whether any profile stores an auth token.
func (c *CLIConfig) hasSecrets() bool {
	for _, p := range c.Profiles {
		if p.AuthToken != "" {
			return true
		}
	}
	return false
}
