// Package waterfall enriches leads by querying an ordered list of email
// providers one at a time until one yields a verified address.
package waterfall

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// Config is the top-level waterfall configuration.
type Config struct {
	// Order lists providers cheapest/most reliable first.
	Order []string `yaml:"order"`
	// Verifier, when set, runs every verification call instead of the
	// provider that found the address.
	Verifier  string                    `yaml:"verifier"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig overrides the retry budget for one provider.
type ProviderConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	Timeout     string `yaml:"timeout"` // "short" or "long"
}

// DefaultConfig returns a config using order and the executor's budgets.
func DefaultConfig(order ...string) *Config {
	return &Config{Order: order, Providers: map[string]ProviderConfig{}}
}

// LoadConfig reads waterfall config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "waterfall: read config %s", path)
	}

	// The YAML has a top-level "waterfall" key
	var wrapper struct {
		Waterfall Config `yaml:"waterfall"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "waterfall: parse config")
	}

	cfg := &wrapper.Waterfall
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the order is non-empty and free of duplicates.
func (c *Config) Validate() error {
	if len(c.Order) == 0 {
		return eris.New("waterfall: provider order is empty")
	}
	seen := make(map[string]bool, len(c.Order))
	for _, name := range c.Order {
		name = strings.TrimSpace(name)
		if name == "" {
			return eris.New("waterfall: empty provider name in order")
		}
		if seen[name] {
			return eris.Errorf("waterfall: provider %q listed twice", name)
		}
		seen[name] = true
	}
	for name, pc := range c.Providers {
		switch pc.Timeout {
		case "", "short", "long":
		default:
			return eris.Errorf("waterfall: provider %q: unknown timeout class %q", name, pc.Timeout)
		}
	}
	return nil
}

// Budget returns the retry budget for a provider. Zero MaxAttempts defers
// to the executor policy.
func (c *Config) Budget(name string) resilience.Budget {
	pc := c.Providers[name]
	b := resilience.Budget{MaxAttempts: pc.MaxAttempts, Timeout: resilience.TimeoutShort}
	if pc.Timeout == "long" {
		b.Timeout = resilience.TimeoutLong
	}
	return b
}
