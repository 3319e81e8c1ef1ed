package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// override is the YAML shape for customizing a named chain's stall/retry
// ceilings without recompiling (spec §9: "a chain configuration selects
// which workers participate"; overrides narrow only the numeric budgets,
// never the frozen worker/dependency lists).
type override struct {
	Chain      string `yaml:"chain"`
	MaxStalls  *int   `yaml:"maxStalls,omitempty"`
	MaxRetries *int   `yaml:"maxRetries,omitempty"`
}

// LoadFromFile reads a YAML override document and returns the named chain
// with MaxStalls/MaxRetries overridden if present.
func LoadFromFile(path string) (Chain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Chain{}, fmt.Errorf("config: read override file: %w", err)
	}

	var o override
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Chain{}, fmt.Errorf("config: parse override file: %w", err)
	}

	chain, err := Lookup(o.Chain)
	if err != nil {
		return Chain{}, err
	}
	if o.MaxStalls != nil {
		chain.MaxStalls = *o.MaxStalls
	}
	if o.MaxRetries != nil {
		chain.MaxRetries = *o.MaxRetries
	}
	return chain, nil
}
