package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models weekendwill.yml: product defaults, per-state execution
// rules, premium feature gating, and outbound webhook targets.
type Config struct {
	Product struct {
		Name         string `yaml:"name"`
		DefaultState string `yaml:"default_state"`
	} `yaml:"product"`
	States  map[string]StateRule `yaml:"states"`
	Premium struct {
		Features []string `yaml:"features"`
	} `yaml:"premium"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// StateRule is the per-state compliance rule applied at execution time.
type StateRule struct {
	MinWitnesses  int  `yaml:"min_witnesses"`
	RequireNotary bool `yaml:"require_notary"`
	SelfProving   bool `yaml:"self_proving"`
}

// WebhookConfig declares one outbound event delivery target.
type WebhookConfig struct {
	ID     string   `yaml:"id"`
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Product.Name == "" {
		return fmt.Errorf("config.product.name is required")
	}
	if c.Product.DefaultState == "" {
		return fmt.Errorf("config.product.default_state is required")
	}
	if len(c.States) == 0 {
		return fmt.Errorf("config.states is required")
	}
	if _, ok := c.States[c.Product.DefaultState]; !ok {
		return fmt.Errorf("config.product.default_state %s has no state rule", c.Product.DefaultState)
	}
	for code, rule := range c.States {
		if len(code) != 2 || code != strings.ToUpper(code) {
			return fmt.Errorf("state code %s must be a two-letter uppercase code", code)
		}
		if rule.MinWitnesses < 2 {
			return fmt.Errorf("state %s: min_witnesses must be at least 2", code)
		}
	}
	for _, feature := range c.Premium.Features {
		if feature == "" {
			return fmt.Errorf("config.premium.features contains empty feature id")
		}
	}
	seen := map[string]bool{}
	for _, wh := range c.Webhooks {
		if wh.ID == "" {
			return fmt.Errorf("webhook with empty id")
		}
		if seen[wh.ID] {
			return fmt.Errorf("duplicate webhook id %s", wh.ID)
		}
		seen[wh.ID] = true
		if wh.URL == "" {
			return fmt.Errorf("webhook %s has empty url", wh.ID)
		}
		for _, ev := range wh.Events {
			if ev == "" {
				return fmt.Errorf("webhook %s has empty event filter", wh.ID)
			}
		}
	}
	return nil
}

// Rule returns the execution rule for a state, or the default state's rule
// when the code is unknown.
func (c *Config) Rule(state string) StateRule {
	if rule, ok := c.States[state]; ok {
		return rule
	}
	return c.States[c.Product.DefaultState]
}

// PremiumFeature reports whether a feature id is gated behind an active
// subscription.
func (c *Config) PremiumFeature(id string) bool {
	for _, f := range c.Premium.Features {
		if f == id {
			return true
		}
	}
	return false
}

// Default returns the built-in default Config.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config template invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns the default config YAML for export.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `product:
  name: weekendwill
  default_state: CA

states:
  CA:
    min_witnesses: 2
    require_notary: false
    self_proving: false
  NY:
    min_witnesses: 2
    require_notary: false
    self_proving: true
  TX:
    min_witnesses: 2
    require_notary: false
    self_proving: true
  FL:
    min_witnesses: 2
    require_notary: false
    self_proving: true
  WA:
    min_witnesses: 2
    require_notary: false
    self_proving: true
  LA:
    min_witnesses: 2
    require_notary: true
    self_proving: false
  NH:
    min_witnesses: 2
    require_notary: false
    self_proving: true
  VT:
    min_witnesses: 2
    require_notary: false
    self_proving: false

premium:
  features: [photos, wishes-pdf]

webhooks: []
`
