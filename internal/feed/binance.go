package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/collector/binance"
	"github.com/newthinker/tpsl/internal/config"
	"github.com/newthinker/tpsl/internal/core"
)

const (
	readTimeout  = 90 * time.Second
	pingInterval = 30 * time.Second
)

type klineEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Kline  kline  `json:"k"`
}

type kline struct {
	OpenTime int64  `json:"t"`
	Interval string `json:"i"`
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	Volume   string `json:"v"`
	Closed   bool   `json:"x"`
}

// Binance streams klines from the Binance websocket API
type Binance struct {
	url        string
	delay      time.Duration
	maxBackoff time.Duration
	logger     *zap.Logger
}

// NewBinance creates a kline stream from the feed configuration
func NewBinance(cfg config.FeedConfig, logger ...*zap.Logger) *Binance {
	b := &Binance{
		url:        strings.TrimSuffix(cfg.WSURL, "/"),
		delay:      cfg.ReconnectDelay,
		maxBackoff: cfg.MaxReconnect,
		logger:     zap.NewNop(),
	}
	if len(logger) > 0 && logger[0] != nil {
		b.logger = logger[0]
	}
	if b.url == "" {
		b.url = config.Defaults().Feed.WSURL
	}
	if b.delay <= 0 {
		b.delay = time.Second
	}
	if b.maxBackoff < b.delay {
		b.maxBackoff = b.delay
	}
	return b
}

// BinanceKlines streams closed klines for symbol with the default endpoint.
func BinanceKlines(ctx context.Context, symbol, interval string, out chan<- core.Bar) error {
	return NewBinance(config.Defaults().Feed).Klines(ctx, symbol, interval, out)
}

// Klines sends every closed kline for symbol to out until ctx is done,
// reconnecting with exponential backoff. Bars are strictly increasing in
// time across reconnects. It returns ctx.Err() on cancellation.
func (b *Binance) Klines(ctx context.Context, symbol, interval string, out chan<- core.Bar) error {
	bi, ok := binance.Interval(interval)
	if !ok {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unsupported interval %q", interval))
	}
	symbol = strings.ToUpper(symbol)
	url := fmt.Sprintf("%s/%s@kline_%s", b.url, strings.ToLower(symbol), bi)

	var last time.Time
	backoff := b.delay
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		received, err := b.consume(ctx, url, symbol, interval, &last, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			backoff = b.delay
		}
		b.logger.Warn("kline stream disconnected, retrying",
			zap.String("symbol", symbol),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(math.Min(float64(b.maxBackoff), float64(backoff)*2))
	}
}

// consume reads one connection until it fails. received reports whether any
// message arrived, which resets the backoff.
func (b *Binance) consume(ctx context.Context, url, symbol, interval string, last *time.Time, out chan<- core.Bar) (received bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("dialing: %w", err)
	}
	defer conn.Close()

	b.logger.Info("connected kline stream", zap.String("symbol", symbol), zap.String("interval", interval))

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-ctx.Done():
				// unblocks ReadMessage
				conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return received, err
		}
		received = true
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		bar, ok, err := parseKlineEvent(message)
		if err != nil {
			b.logger.Warn("failed to decode kline message", zap.Error(err))
			continue
		}
		if !ok || !bar.Time.After(*last) {
			continue
		}
		bar.Symbol = symbol
		bar.Interval = interval

		select {
		case out <- bar:
			*last = bar.Time
		case <-ctx.Done():
			return received, ctx.Err()
		}
	}
}

// parseKlineEvent decodes a kline event. ok is false for events that are
// not klines or whose kline is still open.
func parseKlineEvent(message []byte) (bar core.Bar, ok bool, err error) {
	var ev klineEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		return core.Bar{}, false, err
	}
	if ev.Event != "kline" || !ev.Kline.Closed {
		return core.Bar{}, false, nil
	}

	var prices [5]float64
	for i, s := range []string{ev.Kline.Open, ev.Kline.High, ev.Kline.Low, ev.Kline.Close, ev.Kline.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return core.Bar{}, false, fmt.Errorf("kline field %d: %w", i, err)
		}
		prices[i] = v
	}

	return core.Bar{
		Symbol: ev.Symbol,
		Time:   time.UnixMilli(ev.Kline.OpenTime).UTC(),
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: prices[4],
	}, true, nil
}
