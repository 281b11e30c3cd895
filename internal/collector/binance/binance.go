package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/core"
)

const (
	baseURL      = "https://api.binance.com"
	klinesPath   = "/api/v3/klines"
	maxPageLimit = 1000
)

// Binance fetches historical klines from the Binance spot REST API
type Binance struct {
	client  *http.Client
	baseURL string
	limit   int
	logger  *zap.Logger
}

// New creates a new Binance collector
func New(logger ...*zap.Logger) *Binance {
	l := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Binance{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
		limit:   maxPageLimit,
		logger:  l,
	}
}

// NewWithBaseURL creates a Binance collector with custom base URL (for testing)
func NewWithBaseURL(url string, logger ...*zap.Logger) *Binance {
	b := New(logger...)
	if url != "" {
		b.baseURL = url
	}
	return b
}

func (b *Binance) Name() string {
	return "binance"
}

// FetchHistory pages through klines from start until end or until the
// exchange returns a short page.
func (b *Binance) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	binanceInterval, ok := Interval(interval)
	if !ok {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("unsupported interval %q", interval))
	}

	var bars []core.Bar
	cursor := start
	for pages := 0; ; pages++ {
		page, err := b.fetchPage(ctx, symbol, binanceInterval, cursor, end)
		if err != nil {
			return nil, err
		}
		for _, bar := range page {
			bar.Symbol = symbol
			bar.Interval = interval
			bars = append(bars, bar)
		}

		if len(page) < b.limit {
			break
		}
		last := page[len(page)-1].Time
		if !last.Before(end) {
			break
		}
		cursor = last.Add(time.Millisecond)
	}

	b.logger.Debug("fetched klines",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}

func (b *Binance) fetchPage(ctx context.Context, symbol, interval string, start, end time.Time) ([]core.Bar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(b.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+klinesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("fetching history: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		return nil, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("binance rejected %s", symbol))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var klines [][]any
	if err := json.NewDecoder(resp.Body).Decode(&klines); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	bars := make([]core.Bar, 0, len(klines))
	for _, k := range klines {
		bar, err := parseKline(k)
		if err != nil {
			return nil, core.WrapError(core.ErrCollectorFailed, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// parseKline decodes [openTime, open, high, low, close, volume, ...]
func parseKline(k []any) (core.Bar, error) {
	if len(k) < 6 {
		return core.Bar{}, fmt.Errorf("kline has %d fields, want at least 6", len(k))
	}

	openTime, ok := k[0].(float64)
	if !ok {
		return core.Bar{}, fmt.Errorf("kline open time %v is not a number", k[0])
	}

	var prices [5]float64
	for i := range prices {
		s, ok := k[i+1].(string)
		if !ok {
			return core.Bar{}, fmt.Errorf("kline field %d is not a string", i+1)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return core.Bar{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		prices[i] = v
	}

	return core.Bar{
		Time:   time.UnixMilli(int64(openTime)).UTC(),
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: prices[4],
	}, nil
}

// Interval maps a bar interval to its Binance name. Empty means daily.
func Interval(interval string) (string, bool) {
	switch interval {
	case "1s", "1m", "3m", "5m", "15m", "30m":
		return interval, true
	case "1h", "2h", "4h", "6h", "8h", "12h":
		return interval, true
	case "1d", "3d", "1w", "1M":
		return interval, true
	case "":
		return "1d", true
	default:
		return "", false
	}
}
