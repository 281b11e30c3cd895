package strategy

import (
	"sort"
	"sync"

	"github.com/newthinker/tpsl/internal/core"
	"go.uber.org/zap"
)

// Registry manages named strategies
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	logger     *zap.Logger
}

// NewRegistry creates a new strategy registry
func NewRegistry(logger ...*zap.Logger) *Registry {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Registry{
		strategies: make(map[string]Strategy),
		logger:     l,
	}
}

// Register adds a strategy to the registry
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// MustGet retrieves a strategy or returns ErrStrategyNotFound
func (r *Registry) MustGet(name string) (Strategy, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, &core.Error{
			Code:    core.ErrStrategyNotFound.Code,
			Message: core.ErrStrategyNotFound.Message + ": " + name,
		}
	}
	return s, nil
}

// GetAll returns all registered strategies ordered by name
func (r *Registry) GetAll() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// Names returns the sorted names of registered strategies
func (r *Registry) Names() []string {
	all := r.GetAll()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.Name()
	}
	return names
}

// Configure initializes registered strategies from configuration. Disabled
// strategies are removed; strategies that fail Init are removed and logged.
func (r *Registry) Configure(cfgs map[string]Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, cfg := range cfgs {
		s, ok := r.strategies[name]
		if !ok {
			r.logger.Warn("configuration for unknown strategy", zap.String("strategy", name))
			continue
		}
		if !cfg.Enabled {
			delete(r.strategies, name)
			r.logger.Debug("strategy disabled", zap.String("strategy", name))
			continue
		}
		if err := s.Init(cfg); err != nil {
			delete(r.strategies, name)
			r.logger.Warn("strategy init failed",
				zap.String("strategy", name),
				zap.Error(err),
			)
		}
	}
}
