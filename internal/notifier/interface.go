package notifier

import (
	"context"

	"github.com/newthinker/tpsl/internal/backtest"
)

// Config holds notifier configuration
type Config struct {
	Type   string         `mapstructure:"type"`
	Params map[string]any `mapstructure:"params"`
}

// Notifier publishes backtest verdicts to an external channel
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Init initializes the notifier with configuration
	Init(cfg Config) error

	// Send publishes a single backtest result
	Send(ctx context.Context, result *backtest.Result) error

	// SendBatch publishes the results of one scheduler cycle
	SendBatch(ctx context.Context, results []*backtest.Result) error
}
