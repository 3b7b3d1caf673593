package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADELOOP_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load. An empty path skips the
// file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, err
		}
		mergeVenueDefaults(&cfg, md)
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// mergeVenueDefaults fills per-venue transport settings the file left out.
// TOML decoding replaces whole map entries, so a venue declared with only
// base_url and keys would otherwise lose its timeout and retry policy.
func mergeVenueDefaults(cfg *Config, md toml.MetaData) {
	for id, v := range cfg.Venues {
		if !md.IsDefined("venues", id, "timeout") && v.Timeout.Duration == 0 {
			v.Timeout = duration{30 * time.Second}
		}
		if !md.IsDefined("venues", id, "retries") && v.Retries == 0 {
			v.Retries = 3
		}
		if !md.IsDefined("venues", id, "retry_delay") && v.RetryDelay.Duration == 0 {
			v.RetryDelay = duration{5 * time.Second}
		}
		if v.Type == "" {
			v.Type = string(domain.VenueTypeEquities)
		}
		cfg.Venues[id] = v
	}
}

// applyEnvOverrides reads well-known TRADELOOP_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Venues ──
	// Per-venue keys use the upper-cased venue id: TRADELOOP_VENUE_ALPACA_API_KEY.
	setStr(&cfg.DefaultVenue, "TRADELOOP_DEFAULT_VENUE")
	for id, v := range cfg.Venues {
		prefix := "TRADELOOP_VENUE_" + strings.ToUpper(id) + "_"
		setBool(&v.Enabled, prefix+"ENABLED")
		setStr(&v.BaseURL, prefix+"BASE_URL")
		setStr(&v.DataURL, prefix+"DATA_URL")
		setStr(&v.APIKey, prefix+"API_KEY")
		setStr(&v.APISecret, prefix+"API_SECRET")
		setStr(&v.Account, prefix+"ACCOUNT")
		setBool(&v.Live, prefix+"LIVE")
		setInt(&v.RatePerMin, prefix+"RATE_PER_MIN")
		setDuration(&v.Timeout, prefix+"TIMEOUT")
		setInt(&v.Retries, prefix+"RETRIES")
		cfg.Venues[id] = v
	}

	// ── Watchlists ──
	setStringSlice(&cfg.Watchlists.Equities, "TRADELOOP_WATCHLIST_EQUITIES")
	setStringSlice(&cfg.Watchlists.Forex, "TRADELOOP_WATCHLIST_FOREX")
	setStringSlice(&cfg.Watchlists.Crypto, "TRADELOOP_WATCHLIST_CRYPTO")

	// ── Loop ──
	setDuration(&cfg.Loop.OpenInterval, "TRADELOOP_LOOP_OPEN_INTERVAL")
	setDuration(&cfg.Loop.ClosedInterval, "TRADELOOP_LOOP_CLOSED_INTERVAL")
	setDuration(&cfg.Loop.AuditInterval, "TRADELOOP_LOOP_AUDIT_INTERVAL")
	setDuration(&cfg.Loop.StopTimeout, "TRADELOOP_LOOP_STOP_TIMEOUT")
	setStr(&cfg.Loop.Timeframe, "TRADELOOP_LOOP_TIMEFRAME")
	setFloat64(&cfg.Loop.BuyThreshold, "TRADELOOP_LOOP_BUY_THRESHOLD")
	setFloat64(&cfg.Loop.ExitThreshold, "TRADELOOP_LOOP_EXIT_THRESHOLD")
	setFloat64(&cfg.Loop.MinNotional, "TRADELOOP_LOOP_MIN_NOTIONAL")
	setInt(&cfg.Loop.MaxTradesPerDay, "TRADELOOP_LOOP_MAX_TRADES_PER_DAY")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxDrawdownPct, "TRADELOOP_RISK_MAX_DRAWDOWN_PCT")
	setFloat64(&cfg.Risk.MaxTotalRiskPct, "TRADELOOP_RISK_MAX_TOTAL_RISK_PCT")
	setFloat64(&cfg.Risk.VolatilityThreshold, "TRADELOOP_RISK_VOLATILITY_THRESHOLD")
	setFloat64(&cfg.Risk.EmergencyStopPct, "TRADELOOP_RISK_EMERGENCY_STOP_PCT")

	// ── Catalog ──
	setStr(&cfg.Catalog.Store, "TRADELOOP_CATALOG_STORE")
	setStr(&cfg.Catalog.File, "TRADELOOP_CATALOG_FILE")
	setStr(&cfg.Catalog.DefaultActive, "TRADELOOP_CATALOG_DEFAULT_ACTIVE")

	// ── Calendar ──
	setStr(&cfg.Calendar.Timezone, "TRADELOOP_CALENDAR_TIMEZONE")

	// ── Market data ──
	setBool(&cfg.MarketData.SecondaryEnabled, "TRADELOOP_MARKETDATA_SECONDARY_ENABLED")
	setDuration(&cfg.MarketData.StalePriceAge, "TRADELOOP_MARKETDATA_STALE_PRICE_AGE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "TRADELOOP_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "TRADELOOP_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TRADELOOP_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADELOOP_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADELOOP_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADELOOP_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADELOOP_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADELOOP_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADELOOP_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADELOOP_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADELOOP_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRADELOOP_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADELOOP_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADELOOP_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADELOOP_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADELOOP_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADELOOP_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADELOOP_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRADELOOP_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRADELOOP_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADELOOP_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADELOOP_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADELOOP_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADELOOP_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADELOOP_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADELOOP_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADELOOP_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADELOOP_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADELOOP_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AuthToken, "TRADELOOP_SERVER_AUTH_TOKEN")
	setInt(&cfg.Server.RateLimitPerMin, "TRADELOOP_SERVER_RATE_LIMIT_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADELOOP_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADELOOP_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADELOOP_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADELOOP_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADELOOP_MODE")
	setStr(&cfg.LogLevel, "TRADELOOP_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
