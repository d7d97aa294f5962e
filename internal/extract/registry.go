package extract

import "sjsage522/deallinker/internal/platform"

// Registry maps platforms to strategies; unknown platforms get the fallback
type Registry struct {
	strategies map[platform.ID]Strategy
	fallback   Strategy
}

// NewRegistry creates a registry whose default entry is fallback
func NewRegistry(fallback Strategy, strategies ...Strategy) *Registry {
	r := &Registry{
		strategies: make(map[platform.ID]Strategy, len(strategies)),
		fallback:   fallback,
	}
	for _, s := range strategies {
		r.Register(platform.ID(s.Name()), s)
	}
	return r
}

// NewDefaultRegistry wires the builtin platform strategies and the generic one
func NewDefaultRegistry(fetcher Fetcher, settings Settings) *Registry {
	return NewRegistry(NewGenericStrategy(fetcher, settings), CreateStrategies(fetcher, settings)...)
}

// Register sets the strategy of id
func (r *Registry) Register(id platform.ID, s Strategy) {
	r.strategies[id] = s
}

// For returns the strategy of id, or the fallback
func (r *Registry) For(id platform.ID) Strategy {
	if s, ok := r.strategies[id]; ok {
		return s
	}
	return r.fallback
}
