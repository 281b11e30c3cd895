package collector

import (
	"context"
	"time"

	"github.com/newthinker/tpsl/internal/core"
)

// Collector defines the interface for historical bar sources
type Collector interface {
	Name() string

	// FetchHistory returns bars opened in [start, end], ascending by time
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error)
}
