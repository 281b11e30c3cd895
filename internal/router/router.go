package router

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/backtest"
	"github.com/newthinker/tpsl/internal/notifier"
)

// Config holds router configuration
type Config struct {
	OnlyPassing bool          `mapstructure:"only_passing"`
	MinTrades   int           `mapstructure:"min_trades"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

// DefaultConfig returns default router configuration
func DefaultConfig() Config {
	return Config{
		OnlyPassing: true,
		MinTrades:   1,
		Cooldown:    6 * time.Hour,
	}
}

// Router forwards backtest results to notifiers. Cooldowns are tracked per
// strategy and symbol pair so a strategy that keeps passing on every cycle
// does not repeat itself.
type Router struct {
	cfg       Config
	registry  *notifier.Registry
	logger    *zap.Logger
	cooldowns map[string]time.Time
	now       func() time.Time
	mu        sync.RWMutex
}

// New creates a new result router
func New(cfg Config, registry *notifier.Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:       cfg,
		registry:  registry,
		logger:    logger,
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
	}
}

func key(res *backtest.Result) string {
	return res.Strategy + "/" + res.Symbol
}

// Route processes a result through filters and sends it to notifiers
func (r *Router) Route(ctx context.Context, res *backtest.Result) error {
	if !r.passesFilters(res) {
		r.logger.Debug("result filtered out",
			zap.String("strategy", res.Strategy),
			zap.String("symbol", res.Symbol),
			zap.Bool("meets_criteria", res.Stats.MeetsCriteria),
			zap.Int("closed_trades", res.Stats.ClosedTrades),
		)
		return nil
	}

	r.mu.Lock()
	r.cooldowns[key(res)] = r.now()
	r.mu.Unlock()

	// nil registry is allowed
	if r.registry == nil {
		return nil
	}
	errors := r.registry.NotifyAll(ctx, res)

	for name, err := range errors {
		r.logger.Error("notifier failed",
			zap.String("notifier", name),
			zap.Error(err),
		)
	}

	r.logger.Info("result routed",
		zap.String("strategy", res.Strategy),
		zap.String("symbol", res.Symbol),
		zap.Int("notifiers", r.registry.Len()),
		zap.Int("errors", len(errors)),
	)

	return nil
}

// RouteBatch filters a cycle's results and sends the survivors as one batch.
// It returns the number of results forwarded.
func (r *Router) RouteBatch(ctx context.Context, results []*backtest.Result) int {
	var filtered []*backtest.Result

	for _, res := range results {
		if r.passesFilters(res) {
			filtered = append(filtered, res)

			r.mu.Lock()
			r.cooldowns[key(res)] = r.now()
			r.mu.Unlock()
		}
	}

	if len(filtered) == 0 || r.registry == nil {
		return len(filtered)
	}

	errors := r.registry.NotifyAllBatch(ctx, filtered)

	for name, err := range errors {
		r.logger.Error("notifier failed on batch",
			zap.String("notifier", name),
			zap.Error(err),
		)
	}

	r.logger.Info("batch routed",
		zap.Int("total", len(results)),
		zap.Int("filtered", len(filtered)),
		zap.Int("errors", len(errors)),
	)

	return len(filtered)
}

func (r *Router) passesFilters(res *backtest.Result) bool {
	if res == nil {
		return false
	}
	if r.cfg.OnlyPassing && !res.Stats.MeetsCriteria {
		return false
	}
	if res.Stats.ClosedTrades < r.cfg.MinTrades {
		return false
	}

	r.mu.RLock()
	last, exists := r.cooldowns[key(res)]
	r.mu.RUnlock()

	if exists && r.now().Sub(last) < r.cfg.Cooldown {
		return false
	}

	return true
}

// ClearCooldown removes the cooldown for a strategy and symbol
func (r *Router) ClearCooldown(strategy, symbol string) {
	r.mu.Lock()
	delete(r.cooldowns, strategy+"/"+symbol)
	r.mu.Unlock()
}

// ClearAllCooldowns removes all cooldowns
func (r *Router) ClearAllCooldowns() {
	r.mu.Lock()
	r.cooldowns = make(map[string]time.Time)
	r.mu.Unlock()
}

// CleanupExpiredCooldowns removes cooldown entries older than 2x the cooldown duration.
func (r *Router) CleanupExpiredCooldowns() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	expiry := r.cfg.Cooldown * 2
	removed := 0

	for k, last := range r.cooldowns {
		if now.Sub(last) > expiry {
			delete(r.cooldowns, k)
			removed++
		}
	}

	return removed
}

// StartCleanupRoutine starts a background goroutine that periodically cleans up expired cooldowns.
func (r *Router) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := r.CleanupExpiredCooldowns()
				if removed > 0 {
					r.logger.Debug("cleaned up expired cooldowns", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// GetStats returns router statistics
func (r *Router) GetStats() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]any{
		"cooldowns_active": len(r.cooldowns),
		"only_passing":     r.cfg.OnlyPassing,
		"min_trades":       r.cfg.MinTrades,
		"cooldown_seconds": r.cfg.Cooldown.Seconds(),
	}
}
