package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newthinker/tpsl/internal/core"
	"github.com/newthinker/tpsl/internal/strategy"
)

type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Backtest   BacktestConfig            `mapstructure:"backtest"`
	Strategies map[string]StrategyConfig `mapstructure:"strategies"`
	Collectors CollectorsConfig          `mapstructure:"collectors"`
	Archive    ArchiveConfig             `mapstructure:"archive"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`
	Feed       FeedConfig                `mapstructure:"feed"`
	Notifiers  map[string]NotifierConfig `mapstructure:"notifiers"`
	Router     RouterConfig              `mapstructure:"router"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

type BacktestConfig struct {
	Workers    int              `mapstructure:"workers"`   // simulation pool size, 0 = GOMAXPROCS
	TieBreak   string           `mapstructure:"tie_break"` // "tp_first" or "sl_first"
	Interval   string           `mapstructure:"interval"`
	Source     string           `mapstructure:"source"` // collector name
	Symbols    []string         `mapstructure:"symbols"`
	Lookback   time.Duration    `mapstructure:"lookback"`
	Timeout    time.Duration    `mapstructure:"timeout"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
}

type ThresholdsConfig struct {
	PnL          float64 `mapstructure:"pnl"`
	WinRate      float64 `mapstructure:"win_rate"`
	ProfitFactor float64 `mapstructure:"profit_factor"`
}

type StrategyConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	SLPct     float64        `mapstructure:"sl_pct"`
	TPPct     float64        `mapstructure:"tp_pct"`
	Quantity  float64        `mapstructure:"quantity"`
	Precision *int           `mapstructure:"precision"`
	Params    map[string]any `mapstructure:"params"`
}

type CollectorsConfig struct {
	Binance   BinanceConfig   `mapstructure:"binance"`
	OKX       OKXConfig       `mapstructure:"okx"`
	Timescale TimescaleConfig `mapstructure:"timescale"`
}

type BinanceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
}

type OKXConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
}

type TimescaleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

type ArchiveConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Type    string   `mapstructure:"type"` // "localfs" or "s3"
	Path    string   `mapstructure:"path"` // For localfs
	S3      S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// FeedConfig holds the live kline stream settings.
type FeedConfig struct {
	WSURL          string        `mapstructure:"ws_url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnect   time.Duration `mapstructure:"max_reconnect_delay"`
}

type NotifierConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIURL   string `mapstructure:"api_url"`
	// Webhook notifier fields
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

// RouterConfig filters which cycle results reach the notifiers.
type RouterConfig struct {
	OnlyPassing bool          `mapstructure:"only_passing"`
	MinTrades   int           `mapstructure:"min_trades"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

// Load reads configuration from file on top of Defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Backtest: BacktestConfig{
			TieBreak: "tp_first",
			Interval: "1m",
			Source:   "binance",
			Symbols:  []string{"BTCUSDT", "ETHUSDT", "ETHBTC", "BNBUSDT"},
			Lookback: 24 * time.Hour,
			Timeout:  5 * time.Minute,
			Thresholds: ThresholdsConfig{
				PnL:          0.5,
				WinRate:      0.4,
				ProfitFactor: 1.3,
			},
		},
		Strategies: map[string]StrategyConfig{
			"cci_adx":    {Enabled: true},
			"confluence": {Enabled: true},
			"ma_trend":   {Enabled: false},
		},
		Collectors: CollectorsConfig{
			Binance: BinanceConfig{
				Enabled: true,
				BaseURL: "https://api.binance.com",
			},
			OKX: OKXConfig{
				BaseURL: "https://www.okx.com",
			},
		},
		Archive: ArchiveConfig{
			Type: "localfs",
			Path: "./data/archive",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Feed: FeedConfig{
			WSURL:          "wss://stream.binance.com:9443/ws",
			ReconnectDelay: time.Second,
			MaxReconnect:   30 * time.Second,
		},
		Router: RouterConfig{
			OnlyPassing: true,
			MinTrades:   1,
			Cooldown:    6 * time.Hour,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	// Backtest validation
	if c.Backtest.Workers < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("backtest workers cannot be negative, got %d", c.Backtest.Workers))
	}
	switch c.Backtest.TieBreak {
	case "", "tp_first", "sl_first":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("tie_break must be tp_first or sl_first, got %q", c.Backtest.TieBreak))
	}
	if wr := c.Backtest.Thresholds.WinRate; wr < 0 || wr > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("thresholds.win_rate must be between 0 and 1, got %f", wr))
	}

	for name, s := range c.Strategies {
		if s.SLPct < 0 || s.SLPct >= 1 || s.TPPct < 0 || s.TPPct >= 1 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("strategy %s: sl_pct and tp_pct must be in [0, 1)", name))
		}
		if s.Quantity < 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("strategy %s: quantity cannot be negative", name))
		}
	}

	// Collector validation - enabled sources need their endpoints
	if c.Collectors.Timescale.Enabled && c.Collectors.Timescale.DSN == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("timescale dsn required when timescale collector is enabled"))
	}

	// Archive validation
	if c.Archive.Enabled {
		switch c.Archive.Type {
		case "localfs":
			if c.Archive.Path == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("archive path required for localfs"))
			}
		case "s3":
			if c.Archive.S3.Bucket == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("archive s3 bucket required for s3"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("archive type must be localfs or s3, got %q", c.Archive.Type))
		}
	}

	// Notifier validation
	for name, n := range c.Notifiers {
		if !n.Enabled {
			continue
		}
		switch name {
		case "telegram":
			if n.BotToken == "" || n.ChatID == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("telegram notifier requires bot_token and chat_id"))
			}
		case "webhook":
			if n.URL == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("webhook notifier requires url"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown notifier %q", name))
		}
	}
	if c.Router.MinTrades < 0 || c.Router.Cooldown < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("router min_trades and cooldown cannot be negative"))
	}

	return nil
}

// StrategyConfigs converts the strategies section for strategy.Registry.Configure
func (c *Config) StrategyConfigs() map[string]strategy.Config {
	out := make(map[string]strategy.Config, len(c.Strategies))
	for name, s := range c.Strategies {
		out[name] = strategy.Config{
			Enabled:   s.Enabled,
			SLPct:     s.SLPct,
			TPPct:     s.TPPct,
			Quantity:  s.Quantity,
			Precision: s.Precision,
			Params:    s.Params,
		}
	}
	return out
}
