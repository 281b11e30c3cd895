package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/collector"
	"github.com/newthinker/tpsl/internal/core"
)

const (
	baseURL       = "https://www.okx.com"
	candlesPath   = "/api/v5/market/history-candles"
	maxPageLimit  = 100
	codeNoSuchIns = "51001"
)

// OKX fetches historical candles from the OKX public market API
type OKX struct {
	client  *http.Client
	baseURL string
	limit   int
	logger  *zap.Logger
}

// New creates a new OKX collector
func New(logger ...*zap.Logger) *OKX {
	l := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &OKX{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
		limit:   maxPageLimit,
		logger:  l,
	}
}

// NewWithBaseURL creates an OKX collector with custom base URL (for testing)
func NewWithBaseURL(url string, logger ...*zap.Logger) *OKX {
	o := New(logger...)
	if url != "" {
		o.baseURL = url
	}
	return o
}

func (o *OKX) Name() string {
	return "okx"
}

// InstID converts a normalized symbol to an OKX instrument id.
// BTCUSDT -> BTC-USDT
func InstID(symbol string) string {
	base, quote := collector.ParseSymbol(symbol)
	if quote == "" {
		return base
	}
	return base + "-" + quote
}

// FetchHistory walks backwards from end, since OKX pages newest first, and
// returns the bars opened in [start, end] in ascending order.
func (o *OKX) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	bar, ok := Interval(interval)
	if !ok {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("unsupported interval %q", interval))
	}
	instID := InstID(symbol)

	var bars []core.Bar
	cursor := end.Add(time.Millisecond) // after is exclusive
	for {
		page, err := o.fetchPage(ctx, instID, bar, cursor)
		if err != nil {
			return nil, err
		}

		for _, b := range page {
			if b.Time.Before(start) || b.Time.After(end) {
				continue
			}
			b.Symbol = symbol
			b.Interval = interval
			bars = append(bars, b)
		}

		if len(page) < o.limit {
			break
		}
		oldest := page[len(page)-1].Time
		if !oldest.After(start) {
			break
		}
		cursor = oldest
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	o.logger.Debug("fetched candles",
		zap.String("symbol", symbol),
		zap.String("inst_id", instID),
		zap.String("interval", interval),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}

// fetchPage returns up to limit candles opened strictly before cursor,
// newest first
func (o *OKX) fetchPage(ctx context.Context, instID, bar string, cursor time.Time) ([]core.Bar, error) {
	q := url.Values{}
	q.Set("instId", instID)
	q.Set("bar", bar)
	q.Set("after", strconv.FormatInt(cursor.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(o.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+candlesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("fetching history: %w", err))
	}
	defer resp.Body.Close()

	var result candleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode))
		}
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	switch {
	case result.Code == codeNoSuchIns:
		return nil, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("okx: %s", result.Msg))
	case resp.StatusCode != http.StatusOK:
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	case result.Code != "0":
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("okx error %s: %s", result.Code, result.Msg))
	}

	bars := make([]core.Bar, 0, len(result.Data))
	for _, c := range result.Data {
		b, err := parseCandle(c)
		if err != nil {
			return nil, core.WrapError(core.ErrCollectorFailed, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// parseCandle decodes [ts, open, high, low, close, vol, ...]
func parseCandle(c []string) (core.Bar, error) {
	if len(c) < 6 {
		return core.Bar{}, fmt.Errorf("candle has %d fields, want at least 6", len(c))
	}

	ts, err := strconv.ParseInt(c[0], 10, 64)
	if err != nil {
		return core.Bar{}, fmt.Errorf("candle timestamp: %w", err)
	}

	var vals [5]float64
	for i := range vals {
		v, err := strconv.ParseFloat(c[i+1], 64)
		if err != nil {
			return core.Bar{}, fmt.Errorf("candle field %d: %w", i+1, err)
		}
		vals[i] = v
	}

	return core.Bar{
		Time:   time.UnixMilli(ts).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// Interval maps a bar interval to its OKX name. Intervals of six hours and
// up use the UTC-aligned variants. Empty means daily.
func Interval(interval string) (string, bool) {
	switch interval {
	case "1m", "3m", "5m", "15m", "30m":
		return interval, true
	case "1h":
		return "1H", true
	case "2h":
		return "2H", true
	case "4h":
		return "4H", true
	case "6h":
		return "6Hutc", true
	case "12h":
		return "12Hutc", true
	case "1d", "":
		return "1Dutc", true
	case "1w":
		return "1Wutc", true
	case "1M":
		return "1Mutc", true
	default:
		return "", false
	}
}

type candleResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}
