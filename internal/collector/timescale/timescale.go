package timescale

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/core"
)

const queryTimeout = 30 * time.Second

// historyQuery reads klines stored by the Binance ingester: one row per
// open_time in binance.kline, keyed by (symbol, interval) through
// binance.symbol_intervals
const historyQuery = `SELECT
        kd.open_time,
        kd.open,
        kd.high,
        kd.low,
        kd.close,
        kd.volume
    FROM binance.kline AS kd
    JOIN binance.symbol_intervals AS si ON kd.symbol_interval_id = si.symbol_interval_id
    WHERE si.symbol = $1 AND si.interval = $2 AND kd.open_time >= $3 AND kd.open_time <= $4
    ORDER BY kd.open_time ASC`

// Timescale reads historical bars from a TimescaleDB kline hypertable
type Timescale struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens a pgx-backed connection pool and pings it
func New(ctx context.Context, dsn string, logger ...*zap.Logger) (*Timescale, error) {
	if dsn == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("timescale dsn"))
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("ping timescale: %w", err))
	}

	return NewWithDB(db, logger...), nil
}

// NewWithDB wraps an existing connection pool
func NewWithDB(db *sql.DB, logger ...*zap.Logger) *Timescale {
	l := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Timescale{db: db, logger: l}
}

func (ts *Timescale) Name() string {
	return "timescale"
}

// Close releases the connection pool
func (ts *Timescale) Close() error {
	return ts.db.Close()
}

// FetchHistory returns stored bars opened in [start, end]
func (ts *Timescale) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	begin := time.Now()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := ts.db.QueryContext(ctx, historyQuery, symbol, interval, start.UTC(), end.UTC())
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("querying klines: %w", err))
	}
	defer rows.Close()

	var bars []core.Bar
	for rows.Next() {
		b := core.Bar{Symbol: symbol, Interval: interval}
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("scanning kline: %w", err))
		}
		b.Time = b.Time.UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, err)
	}

	ts.logger.Debug("fetched klines",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("bars", len(bars)),
		zap.Duration("took", time.Since(begin)),
	)
	return bars, nil
}
