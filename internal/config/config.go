// Package config defines the top-level configuration for the trading loop
// and provides validation helpers.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADELOOP_* environment variables.
type Config struct {
	DefaultVenue string                 `toml:"default_venue"`
	Venues       map[string]VenueConfig `toml:"venues"`
	Watchlists   WatchlistConfig        `toml:"watchlists"`
	Loop         LoopConfig             `toml:"loop"`
	Risk         RiskConfig             `toml:"risk"`
	Catalog      CatalogConfig          `toml:"catalog"`
	Calendar     CalendarConfig         `toml:"calendar"`
	MarketData   MarketDataConfig       `toml:"marketdata"`
	Signals      SignalsConfig          `toml:"signals"`
	Postgres     PostgresConfig         `toml:"postgres"`
	Redis        RedisConfig            `toml:"redis"`
	S3           S3Config               `toml:"s3"`
	Server       ServerConfig           `toml:"server"`
	Notify       NotifyConfig           `toml:"notify"`
	Mode         string                 `toml:"mode"`
	LogLevel     string                 `toml:"log_level"`
}

// VenueConfig describes one brokerage connection. Kind selects the adapter
// implementation: "alpaca", "mtbridge" or "paper".
type VenueConfig struct {
	Enabled    bool     `toml:"enabled"`
	Kind       string   `toml:"kind"`
	Type       string   `toml:"type"`
	BaseURL    string   `toml:"base_url"`
	DataURL    string   `toml:"data_url"`
	APIKey     string   `toml:"api_key"`
	APISecret  string   `toml:"api_secret"`
	Account    string   `toml:"account"`
	Live       bool     `toml:"live"`
	RatePerMin int      `toml:"rate_per_min"`
	Timeout    duration `toml:"timeout"`
	Retries    int      `toml:"retries"`
	RetryDelay duration `toml:"retry_delay"`
	PaperCash  float64  `toml:"paper_cash"`
}

// WatchlistConfig lists watched symbols per venue type.
type WatchlistConfig struct {
	Equities []string `toml:"equities"`
	Forex    []string `toml:"forex"`
	Crypto   []string `toml:"crypto"`
}

// For returns the watchlist for a venue type.
func (w WatchlistConfig) For(t domain.VenueType) []string {
	switch t {
	case domain.VenueTypeForex:
		return w.Forex
	case domain.VenueTypeCrypto:
		return w.Crypto
	default:
		return w.Equities
	}
}

// LoopConfig holds orchestrator cadence and entry/exit thresholds.
type LoopConfig struct {
	OpenInterval      duration `toml:"open_interval"`
	ClosedInterval    duration `toml:"closed_interval"`
	AuditInterval     duration `toml:"audit_interval"`
	ReconnectInterval duration `toml:"reconnect_interval"`
	StopTimeout       duration `toml:"stop_timeout"`
	FillTimeout       duration `toml:"fill_timeout"`
	Timeframe         string   `toml:"timeframe"`
	CandleLimit       int      `toml:"candle_limit"`
	MinBars           int      `toml:"min_bars"`
	BuyThreshold      float64  `toml:"buy_threshold"`
	ExitThreshold     float64  `toml:"exit_threshold"`
	MinNotional       float64  `toml:"min_notional"`
	MaxTradesPerDay   int      `toml:"max_trades_per_day"`
	LockTTL           duration `toml:"lock_ttl"`
}

// RiskConfig holds portfolio-level limits that are not part of a profile.
type RiskConfig struct {
	MaxDrawdownPct      float64  `toml:"max_drawdown_pct"`
	MaxTotalRiskPct     float64  `toml:"max_total_risk_pct"`
	VolatilityThreshold float64  `toml:"volatility_threshold"`
	EmergencyStopPct    float64  `toml:"emergency_stop_pct"`
	RiskRewardLookback  duration `toml:"risk_reward_lookback"`
	HistorySize         int      `toml:"history_size"`
	MediumAlertMin      int      `toml:"medium_alert_min"`
}

// CatalogConfig selects where risk profiles are stored.
type CatalogConfig struct {
	Store         string `toml:"store"` // "file" or "postgres"
	File          string `toml:"file"`
	DefaultActive string `toml:"default_active"`
}

// CalendarConfig is the static trading-calendar fallback for equities.
type CalendarConfig struct {
	Timezone string `toml:"timezone"`
	Open     string `toml:"open"`
	Close    string `toml:"close"`
}

// MarketDataConfig controls the failover feed.
type MarketDataConfig struct {
	SecondaryEnabled bool     `toml:"secondary_enabled"`
	MaxFailures      int      `toml:"max_failures"`
	PriceCacheTTL    duration `toml:"price_cache_ttl"`
	// StalePriceAge is the oldest cached price served when both sources
	// fail. Zero disables the fallback.
	StalePriceAge duration `toml:"stale_price_age"`
}

// SignalsConfig weights the registered signal providers.
type SignalsConfig struct {
	Weights    map[string]float64 `toml:"weights"`
	FastPeriod int                `toml:"fast_period"`
	SlowPeriod int                `toml:"slow_period"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	AuthToken       string   `toml:"auth_token"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		DefaultVenue: "alpaca",
		Venues: map[string]VenueConfig{
			"alpaca": {
				Enabled:    true,
				Kind:       "alpaca",
				Type:       string(domain.VenueTypeEquities),
				BaseURL:    "https://paper-api.alpaca.markets",
				DataURL:    "https://data.alpaca.markets",
				RatePerMin: 200,
				Timeout:    duration{30 * time.Second},
				Retries:    3,
				RetryDelay: duration{5 * time.Second},
			},
			"metatrader": {
				Enabled:    false,
				Kind:       "mtbridge",
				Type:       string(domain.VenueTypeForex),
				BaseURL:    "http://localhost:5000",
				RatePerMin: 120,
				Timeout:    duration{30 * time.Second},
				Retries:    3,
				RetryDelay: duration{5 * time.Second},
			},
			"paper": {
				Enabled:   true,
				Kind:      "paper",
				Type:      string(domain.VenueTypeEquities),
				PaperCash: 100_000,
			},
		},
		Watchlists: WatchlistConfig{
			Equities: []string{"AAPL", "MSFT", "NVDA", "AMZN", "SPY"},
			Forex:    []string{"EURUSD", "GBPUSD", "USDJPY"},
		},
		Loop: LoopConfig{
			OpenInterval:      duration{10 * time.Second},
			ClosedInterval:    duration{60 * time.Second},
			AuditInterval:     duration{60 * time.Second},
			ReconnectInterval: duration{30 * time.Second},
			StopTimeout:       duration{30 * time.Second},
			FillTimeout:       duration{20 * time.Second},
			Timeframe:         "15Min",
			CandleLimit:       100,
			MinBars:           30,
			BuyThreshold:      0.6,
			ExitThreshold:     0.7,
			MinNotional:       100,
			MaxTradesPerDay:   10,
			LockTTL:           duration{2 * time.Minute},
		},
		Risk: RiskConfig{
			MaxDrawdownPct:      0.10,
			MaxTotalRiskPct:     0.20,
			VolatilityThreshold: 0.20,
			EmergencyStopPct:    0.02,
			RiskRewardLookback:  duration{24 * time.Hour},
			HistorySize:         1440,
			MediumAlertMin:      2,
		},
		Catalog: CatalogConfig{
			Store:         "file",
			File:          "data/strategies.yaml",
			DefaultActive: "moderate",
		},
		Calendar: CalendarConfig{
			Timezone: "America/New_York",
			Open:     "09:30",
			Close:    "16:00",
		},
		MarketData: MarketDataConfig{
			SecondaryEnabled: true,
			MaxFailures:      3,
			PriceCacheTTL:    duration{5 * time.Minute},
			StalePriceAge:    duration{30 * time.Second},
		},
		Signals: SignalsConfig{
			Weights:    map[string]float64{"sma_cross": 1.0},
			FastPeriod: 10,
			SlowPeriod: 30,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "tradeloop",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradeloop-reports",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"trade", "violation", "system"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"paper":   true,
	"monitor": true,
	"server":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validKinds = map[string]bool{
	"alpaca":   true,
	"mtbridge": true,
	"paper":    true,
}

var validVenueTypes = map[string]bool{
	string(domain.VenueTypeEquities): true,
	string(domain.VenueTypeForex):    true,
	string(domain.VenueTypeCrypto):   true,
}

// VenueIDs returns configured venue ids in a stable order.
func (c *Config) VenueIDs() []string {
	ids := make([]string, 0, len(c.Venues))
	for id := range c.Venues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper, monitor, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venues
	if len(c.Venues) == 0 {
		errs = append(errs, "venues: at least one venue must be configured")
	}
	for _, id := range c.VenueIDs() {
		v := c.Venues[id]
		if !validKinds[v.Kind] {
			errs = append(errs, fmt.Sprintf("venues.%s: unknown kind %q (valid: alpaca, mtbridge, paper)", id, v.Kind))
		}
		if !validVenueTypes[v.Type] {
			errs = append(errs, fmt.Sprintf("venues.%s: unknown type %q (valid: equities, forex, crypto)", id, v.Type))
		}
		if !v.Enabled || v.Kind == "paper" {
			continue
		}
		if v.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: base_url must not be empty", id))
		}
		if v.Retries < 0 {
			errs = append(errs, fmt.Sprintf("venues.%s: retries must be >= 0", id))
		}
		if v.Timeout.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("venues.%s: timeout must be > 0", id))
		}
	}
	if dv, ok := c.Venues[c.DefaultVenue]; !ok {
		errs = append(errs, fmt.Sprintf("default_venue %q is not configured", c.DefaultVenue))
	} else if !dv.Enabled {
		errs = append(errs, fmt.Sprintf("default_venue %q is disabled", c.DefaultVenue))
	}

	// Loop
	if c.Loop.OpenInterval.Duration <= 0 || c.Loop.ClosedInterval.Duration <= 0 {
		errs = append(errs, "loop: open_interval and closed_interval must be > 0")
	}
	if c.Loop.AuditInterval.Duration <= 0 {
		errs = append(errs, "loop: audit_interval must be > 0")
	}
	if _, err := domain.ParseTimeframe(c.Loop.Timeframe); err != nil {
		errs = append(errs, "loop: "+err.Error())
	}
	if c.Loop.MinBars < 1 || c.Loop.CandleLimit < c.Loop.MinBars {
		errs = append(errs, "loop: min_bars must be >= 1 and <= candle_limit")
	}
	if c.Loop.BuyThreshold <= 0 || c.Loop.BuyThreshold > 1 {
		errs = append(errs, "loop: buy_threshold must be in (0, 1]")
	}
	if c.Loop.MaxTradesPerDay < 1 {
		errs = append(errs, "loop: max_trades_per_day must be >= 1")
	}

	// Risk
	if c.Risk.MaxDrawdownPct <= 0 || c.Risk.MaxDrawdownPct >= 1 {
		errs = append(errs, "risk: max_drawdown_pct must be in (0, 1)")
	}
	if c.Risk.MaxTotalRiskPct <= 0 {
		errs = append(errs, "risk: max_total_risk_pct must be > 0")
	}
	if c.Risk.EmergencyStopPct <= 0 || c.Risk.EmergencyStopPct >= 1 {
		errs = append(errs, "risk: emergency_stop_pct must be in (0, 1)")
	}
	if c.Risk.HistorySize < 1 {
		errs = append(errs, "risk: history_size must be >= 1")
	}

	// Catalog
	switch c.Catalog.Store {
	case "file":
		if c.Catalog.File == "" {
			errs = append(errs, "catalog: file must be set when store = \"file\"")
		}
	case "postgres":
		if !c.Postgres.Enabled {
			errs = append(errs, "catalog: store = \"postgres\" requires postgres.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("catalog: unknown store %q (valid: file, postgres)", c.Catalog.Store))
	}

	// Calendar
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("calendar: invalid timezone %q", c.Calendar.Timezone))
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
