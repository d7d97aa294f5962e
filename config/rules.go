package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules is the affiliate and plausibility configuration loaded from YAML.
//
//	tracking:
//	  source: deallinker
//	  medium: chat
//	  campaign: deals
//	networks:
//	  - id: amazon_associates
//	    platform: amazon
//	    kind: param
//	    params: {tag: mytag-21}
//	    commission_rate: 0.04
//	channels:
//	  main: [amazon_associates]
//	platforms:
//	  amazon: {min_price: 100, max_attempts: 3}
type Rules struct {
	Tracking  TrackingRule            `yaml:"tracking"`
	Networks  []NetworkRule           `yaml:"networks"`
	Channels  map[string][]string     `yaml:"channels"`
	Platforms map[string]PlatformRule `yaml:"platforms"`
}

// TrackingRule holds the non-monetized attribution parameters
type TrackingRule struct {
	Source   string `yaml:"source"`
	Medium   string `yaml:"medium"`
	Campaign string `yaml:"campaign"`
}

// NetworkRule describes one affiliate network
type NetworkRule struct {
	ID             string            `yaml:"id"`
	Platform       string            `yaml:"platform"`
	Kind           string            `yaml:"kind"`
	Params         map[string]string `yaml:"params"`
	StripParams    []string          `yaml:"strip_params"`
	Template       string            `yaml:"template"`
	Suffix         string            `yaml:"suffix"`
	CommissionRate *float64          `yaml:"commission_rate"`
}

// PlatformRule holds per-platform extraction tuning
type PlatformRule struct {
	MinPrice    *float64 `yaml:"min_price"`
	MaxAttempts int      `yaml:"max_attempts"`
}

// LoadRules reads the rules file at path. A missing file yields empty rules so the
// pipeline still runs with generic tracking only.
func LoadRules(path string) (*Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Rules{}, nil
		}
		return nil, fmt.Errorf("open rules %s: %w", path, err)
	}
	defer f.Close()

	return ParseRules(f)
}

// ParseRules decodes and validates rules from r
func ParseRules(r io.Reader) (*Rules, error) {
	var rules Rules
	if err := yaml.NewDecoder(r).Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &rules, nil
}

// Validate checks network kinds and channel references
func (r *Rules) Validate() error {
	ids := make(map[string]bool, len(r.Networks))
	for i, n := range r.Networks {
		if n.ID == "" {
			return fmt.Errorf("network #%d has no id", i)
		}
		if ids[n.ID] {
			return fmt.Errorf("duplicate network id %q", n.ID)
		}
		ids[n.ID] = true

		switch n.Kind {
		case "param":
			if len(n.Params) == 0 {
				return fmt.Errorf("network %q: param kind needs params", n.ID)
			}
		case "template":
			if n.Template == "" {
				return fmt.Errorf("network %q: template kind needs a template", n.ID)
			}
		case "suffix":
			if n.Suffix == "" {
				return fmt.Errorf("network %q: suffix kind needs a suffix", n.ID)
			}
		case "generic":
			// attribution only; lets a channel place plain tracking in its waterfall
		default:
			return fmt.Errorf("network %q: unknown kind %q", n.ID, n.Kind)
		}

		if n.CommissionRate != nil && (*n.CommissionRate < 0 || *n.CommissionRate > 1) {
			return fmt.Errorf("network %q: commission_rate must be within [0,1]", n.ID)
		}
	}

	for channel, networks := range r.Channels {
		for _, id := range networks {
			if !ids[id] {
				return fmt.Errorf("channel %q references unknown network %q", channel, id)
			}
		}
	}
	return nil
}
