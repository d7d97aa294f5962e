// Package affiliate rewrites product URLs into trackable affiliate links.
package affiliate

import (
	"github.com/shopspring/decimal"

	"sjsage522/deallinker/config"
)

// Kind is the rewriting technique of a network
type Kind string

const (
	KindParam    Kind = "param"
	KindTemplate Kind = "template"
	KindSuffix   Kind = "suffix"
	KindGeneric  Kind = "generic"
)

// GenericNetwork names the attribution-only fallback
const GenericNetwork = "generic"

// AnyPlatform lets a network convert URLs of every platform
const AnyPlatform = "*"

// NetworkConfig describes one affiliate network
type NetworkConfig struct {
	ID             string
	Platform       string
	Kind           Kind
	Params         map[string]string
	StripParams    []string
	Template       string
	Suffix         string
	CommissionRate *decimal.Decimal
}

// Tracking holds the non-monetized attribution values
type Tracking struct {
	Source   string
	Medium   string
	Campaign string
}

// Channel is an ordered list of networks tried for one destination
type Channel struct {
	Name     string
	Networks []NetworkConfig
}

// Snapshot is an immutable view of the affiliate configuration
type Snapshot struct {
	tracking Tracking
	networks map[string]NetworkConfig
	order    []string
	channels map[string][]string
}

// NewSnapshot copies rules into a snapshot. Missing tracking values get defaults.
func NewSnapshot(rules *config.Rules) *Snapshot {
	s := &Snapshot{
		tracking: Tracking{Source: "deallinker", Medium: "chat", Campaign: "deals"},
		networks: make(map[string]NetworkConfig),
		channels: make(map[string][]string),
	}
	if rules == nil {
		return s
	}

	if rules.Tracking.Source != "" {
		s.tracking.Source = rules.Tracking.Source
	}
	if rules.Tracking.Medium != "" {
		s.tracking.Medium = rules.Tracking.Medium
	}
	if rules.Tracking.Campaign != "" {
		s.tracking.Campaign = rules.Tracking.Campaign
	}

	for _, n := range rules.Networks {
		cfg := NetworkConfig{
			ID:          n.ID,
			Platform:    n.Platform,
			Kind:        Kind(n.Kind),
			Params:      make(map[string]string, len(n.Params)),
			StripParams: append([]string(nil), n.StripParams...),
			Template:    n.Template,
			Suffix:      n.Suffix,
		}
		if cfg.Platform == "" {
			cfg.Platform = AnyPlatform
		}
		for k, v := range n.Params {
			cfg.Params[k] = v
		}
		if n.CommissionRate != nil {
			rate := decimal.NewFromFloat(*n.CommissionRate)
			cfg.CommissionRate = &rate
		}
		s.networks[n.ID] = cfg
		s.order = append(s.order, n.ID)
	}

	for name, ids := range rules.Channels {
		s.channels[name] = append([]string(nil), ids...)
	}
	return s
}

// Tracking returns the attribution values
func (s *Snapshot) Tracking() Tracking {
	return s.tracking
}

// Network looks up a network by id
func (s *Snapshot) Network(id string) (NetworkConfig, bool) {
	n, ok := s.networks[id]
	return n, ok
}

// Channel resolves a channel's networks in priority order. An empty or unknown
// name yields every configured network in file order.
func (s *Snapshot) Channel(name string) Channel {
	ids, ok := s.channels[name]
	if !ok {
		ids = s.order
	}
	ch := Channel{Name: name, Networks: make([]NetworkConfig, 0, len(ids))}
	for _, id := range ids {
		if n, ok := s.networks[id]; ok {
			ch.Networks = append(ch.Networks, n)
		}
	}
	return ch
}
