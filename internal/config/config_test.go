package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newthinker/tpsl/internal/core"
)

func TestLoad_FromFile(t *testing.T) {
	content := []byte(`
server:
  host: "127.0.0.1"
  port: 9090

backtest:
  tie_break: sl_first
  workers: 4
  thresholds:
    pnl: 1.0

strategies:
  cci_adx:
    enabled: true
    sl_pct: 0.02
    tp_pct: 0.1
    precision: 0
    params:
      adx_min: 20

collectors:
  timescale:
    enabled: true
    dsn: "${TPSL_TEST_DSN}"

archive:
  enabled: true
  type: localfs
  path: "/tmp/tpsl/archive"

notifiers:
  webhook:
    enabled: true
    url: "http://hooks.local/tpsl"

router:
  min_trades: 3
`)

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TPSL_TEST_DSN", "postgres://localhost:5432/tpsl")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Backtest.TieBreak != "sl_first" || cfg.Backtest.Workers != 4 {
		t.Errorf("unexpected backtest section %+v", cfg.Backtest)
	}
	if cfg.Backtest.Thresholds.PnL != 1.0 {
		t.Errorf("expected pnl threshold 1.0, got %f", cfg.Backtest.Thresholds.PnL)
	}
	if cfg.Backtest.Interval != "1m" {
		t.Errorf("expected default interval to survive, got %q", cfg.Backtest.Interval)
	}
	if cfg.Collectors.Timescale.DSN != "postgres://localhost:5432/tpsl" {
		t.Errorf("expected expanded dsn, got %q", cfg.Collectors.Timescale.DSN)
	}
	if cfg.Archive.Type != "localfs" {
		t.Errorf("expected localfs, got %s", cfg.Archive.Type)
	}

	if wh := cfg.Notifiers["webhook"]; !wh.Enabled || wh.URL != "http://hooks.local/tpsl" {
		t.Errorf("unexpected webhook notifier %+v", wh)
	}
	if cfg.Router.MinTrades != 3 || !cfg.Router.OnlyPassing || cfg.Router.Cooldown != 6*time.Hour {
		t.Errorf("expected router override on top of defaults, got %+v", cfg.Router)
	}

	cci, ok := cfg.Strategies["cci_adx"]
	if !ok {
		t.Fatal("expected cci_adx strategy")
	}
	if cci.SLPct != 0.02 || cci.Precision == nil || *cci.Precision != 0 {
		t.Errorf("unexpected cci_adx config %+v", cci)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	th := cfg.Backtest.Thresholds
	if th.PnL != 0.5 || th.WinRate != 0.4 || th.ProfitFactor != 1.3 {
		t.Errorf("unexpected default thresholds %+v", th)
	}
	if cfg.Backtest.Lookback != 24*time.Hour {
		t.Errorf("expected 24h lookback, got %v", cfg.Backtest.Lookback)
	}
	if len(cfg.Backtest.Symbols) != 4 {
		t.Errorf("expected 4 default symbols, got %v", cfg.Backtest.Symbols)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func(mut func(*Config)) Config {
		cfg := *Defaults()
		mut(&cfg)
		return cfg
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name: "valid config",
			cfg:  valid(func(*Config) {}),
		},
		{
			name:    "invalid port - zero",
			cfg:     valid(func(c *Config) { c.Server.Port = 0 }),
			wantErr: core.ErrConfigInvalid,
		},
		{
			name:    "invalid port - too high",
			cfg:     valid(func(c *Config) { c.Server.Port = 70000 }),
			wantErr: core.ErrConfigInvalid,
		},
		{
			name:    "negative workers",
			cfg:     valid(func(c *Config) { c.Backtest.Workers = -1 }),
			wantErr: core.ErrConfigInvalid,
		},
		{
			name:    "unknown tie break",
			cfg:     valid(func(c *Config) { c.Backtest.TieBreak = "random" }),
			wantErr: core.ErrConfigInvalid,
		},
		{
			name:    "win rate above one",
			cfg:     valid(func(c *Config) { c.Backtest.Thresholds.WinRate = 40 }),
			wantErr: core.ErrConfigInvalid,
		},
		{
			name: "strategy tp out of range",
			cfg: valid(func(c *Config) {
				c.Strategies = map[string]StrategyConfig{"cci_adx": {Enabled: true, TPPct: 1.5}}
			}),
			wantErr: core.ErrConfigInvalid,
		},
		{
			name:    "timescale without dsn",
			cfg:     valid(func(c *Config) { c.Collectors.Timescale.Enabled = true }),
			wantErr: core.ErrConfigMissing,
		},
		{
			name: "s3 archive without bucket",
			cfg: valid(func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Type = "s3"
			}),
			wantErr: core.ErrConfigMissing,
		},
		{
			name: "telegram without chat id",
			cfg: valid(func(c *Config) {
				c.Notifiers = map[string]NotifierConfig{"telegram": {Enabled: true, BotToken: "t"}}
			}),
			wantErr: core.ErrConfigMissing,
		},
		{
			name: "disabled webhook without url",
			cfg: valid(func(c *Config) {
				c.Notifiers = map[string]NotifierConfig{"webhook": {}}
			}),
		},
		{
			name: "unknown notifier",
			cfg: valid(func(c *Config) {
				c.Notifiers = map[string]NotifierConfig{"pager": {Enabled: true}}
			}),
			wantErr: core.ErrConfigInvalid,
		},
		{
			name:    "negative router cooldown",
			cfg:     valid(func(c *Config) { c.Router.Cooldown = -time.Minute }),
			wantErr: core.ErrConfigInvalid,
		},
		{
			name: "unknown archive type",
			cfg: valid(func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Type = "ftp"
			}),
			wantErr: core.ErrConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_StrategyConfigs(t *testing.T) {
	two := 2
	cfg := Defaults()
	cfg.Strategies["confluence"] = StrategyConfig{Enabled: true, TPPct: 0.03, Precision: &two}

	out := cfg.StrategyConfigs()
	if len(out) != 3 {
		t.Fatalf("expected 3 strategy configs, got %d", len(out))
	}
	if out["ma_trend"].Enabled {
		t.Error("ma_trend should be disabled by default")
	}
	c := out["confluence"]
	if !c.Enabled || c.TPPct != 0.03 || c.Precision == nil || *c.Precision != 2 {
		t.Errorf("unexpected converted config %+v", c)
	}
}
