// Package config loads service configuration from config.yaml, .env files and
// PHOENIX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g. PHOENIX_SERVER_PORT.
const EnvPrefix = "PHOENIX"

// BaseConfig holds settings shared by every binary.
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// StorageConfig selects the persistence backends.
type StorageConfig struct {
	UseMemory     bool   `mapstructure:"use_memory"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"` // optional snapshot history
	Migrate       bool   `mapstructure:"migrate"`        // apply migrations on startup
}

// RedisConfig holds the snapshot cache connection. An empty Addr selects the in-process cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds snapshot cache settings.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// DexScreenerConfig holds market data client settings.
type DexScreenerConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	SearchDelay       time.Duration `mapstructure:"search_delay"`
}

// DiscoveryConfig holds discovery cycle settings.
type DiscoveryConfig struct {
	Chains       []string      `mapstructure:"chains"`
	Interval     time.Duration `mapstructure:"interval"`
	MinLiquidity float64       `mapstructure:"min_liquidity"`
	MinVolume    float64       `mapstructure:"min_volume"`
	MinMarketCap float64       `mapstructure:"min_market_cap"`
}

// AlertsConfig holds alert delivery settings.
type AlertsConfig struct {
	DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
}

// TelegramConfig holds the Telegram bot credentials.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// Enabled reports whether both credentials are set.
func (c TelegramConfig) Enabled() bool {
	return c.BotToken != "" && c.ChatID != ""
}

// RetentionConfig controls history pruning. Days 0 keeps everything.
type RetentionConfig struct {
	Days     int           `mapstructure:"days"`
	Interval time.Duration `mapstructure:"interval"`
}

// Window returns the retention window, or 0 when pruning is off.
func (c RetentionConfig) Window() time.Duration {
	return time.Duration(c.Days) * 24 * time.Hour
}

// ServiceConfig is the full configuration of the scanner.
type ServiceConfig struct {
	BaseConfig  `mapstructure:",squash"`
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Cache       CacheConfig       `mapstructure:"cache"`
	DexScreener DexScreenerConfig `mapstructure:"dexscreener"`
	Discovery   DiscoveryConfig   `mapstructure:"discovery"`
	Alerts      AlertsConfig      `mapstructure:"alerts"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Retention   RetentionConfig   `mapstructure:"retention"`
}

// Load reads configuration for service. configFile may be empty, in which case
// config.yaml is searched for and its absence is not an error.
func Load(service, configFile, envPath string) (*ServiceConfig, error) {
	v := configureViper(service, configFile, envPath)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg ServiceConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Discovery.Chains = normalizeChains(cfg.Discovery.Chains)
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *ServiceConfig) Validate() error {
	var errs []error
	if !c.Storage.UseMemory && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required unless storage.use_memory is set"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if len(c.Discovery.Chains) == 0 {
		errs = append(errs, errors.New("discovery.chains must not be empty"))
	}

	positive := map[string]time.Duration{
		"discovery.interval":       c.Discovery.Interval,
		"alerts.dispatch_interval": c.Alerts.DispatchInterval,
		"cache.ttl":                c.Cache.TTL,
		"dexscreener.timeout":      c.DexScreener.Timeout,
	}
	if c.Retention.Days > 0 {
		positive["retention.interval"] = c.Retention.Interval
	}
	for key, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}

	nonNegative := map[string]float64{
		"discovery.min_liquidity":         c.Discovery.MinLiquidity,
		"discovery.min_volume":            c.Discovery.MinVolume,
		"discovery.min_market_cap":        c.Discovery.MinMarketCap,
		"dexscreener.max_retries":         float64(c.DexScreener.MaxRetries),
		"dexscreener.requests_per_minute": float64(c.DexScreener.RequestsPerMinute),
		"retention.days":                  float64(c.Retention.Days),
	}
	for key, f := range nonNegative {
		if f < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", key))
		}
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("storage.use_memory", false)
	v.SetDefault("storage.migrate", true)
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.ttl", "2m")
	v.SetDefault("dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("dexscreener.timeout", "10s")
	v.SetDefault("dexscreener.max_retries", 3)
	v.SetDefault("dexscreener.requests_per_minute", 300)
	v.SetDefault("dexscreener.search_delay", "200ms")
	v.SetDefault("discovery.chains", []string{"solana"})
	v.SetDefault("discovery.interval", "15m")
	v.SetDefault("discovery.min_liquidity", 5000)
	v.SetDefault("discovery.min_volume", 50000)
	v.SetDefault("discovery.min_market_cap", 500000)
	v.SetDefault("alerts.dispatch_interval", "30s")
	v.SetDefault("retention.days", 0)
	v.SetDefault("retention.interval", "24h")
}

func configureViper(service, configFile, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath, service)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars binds every key so Unmarshal sees env values without a config file.
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		// Storage
		"storage.use_memory",
		"storage.postgres_dsn",
		"storage.clickhouse_dsn",
		"storage.migrate",
		// Cache
		"redis.addr",
		"redis.password",
		"redis.db",
		"cache.ttl",
		// Provider
		"dexscreener.base_url",
		"dexscreener.timeout",
		"dexscreener.max_retries",
		"dexscreener.requests_per_minute",
		"dexscreener.search_delay",
		// Discovery
		"discovery.chains",
		"discovery.interval",
		"discovery.min_liquidity",
		"discovery.min_volume",
		"discovery.min_market_cap",
		// Alerts
		"alerts.dispatch_interval",
		"telegram.bot_token",
		"telegram.chat_id",
		// Retention
		"retention.days",
		"retention.interval",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

func loadEnv(envPath, service string) {
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}
	if envPath == "" {
		envPath = "config/"
	}
	for _, f := range envFiles {
		_ = godotenv.Overload(filepath.Join(envPath, f)) // later files win
	}
}

// normalizeChains lowercases, trims and dedupes chain tags. A single
// comma-separated entry from the environment is split.
func normalizeChains(in []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for _, c := range strings.Split(raw, ",") {
			c = strings.ToLower(strings.TrimSpace(c))
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
