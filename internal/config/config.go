package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"lending-snapshots/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig                `mapstructure:"app"`
	Logging   logging.Config           `mapstructure:"logging"`
	Subgraph  SubgraphConfig           `mapstructure:"subgraph"`
	Chain     ChainConfig              `mapstructure:"chain"`
	Normalize NormalizeConfig          `mapstructure:"normalize"`
	Networks  map[string]NetworkConfig `mapstructure:"networks"`
	Aggregate AggregateConfig          `mapstructure:"aggregate"`
	Database  DatabaseConfig           `mapstructure:"database"`
	Export    ExportConfig             `mapstructure:"export"`
	S3        S3Config                 `mapstructure:"s3"`
	Sync      SyncConfig               `mapstructure:"sync"`
	Alerting  AlertingConfig           `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name           string `mapstructure:"name"`
	Environment    string `mapstructure:"environment"`
	LookbackDays   int    `mapstructure:"lookback_days"`
	DefaultNetwork string `mapstructure:"default_network"`
}

// SubgraphConfig tunes the GraphQL client and the paging loop.
type SubgraphConfig struct {
	PageSize          int           `mapstructure:"page_size"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// ChainConfig covers the optional RPC head lookup.
type ChainConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// NormalizeConfig controls how timestamps become calendar days.
type NormalizeConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// NetworkConfig is one subgraph deployment.
type NetworkConfig struct {
	Label       string `mapstructure:"label"`
	Endpoint    string `mapstructure:"endpoint"`
	RPCURL      string `mapstructure:"rpc_url"`
	Backfilling bool   `mapstructure:"backfilling"`
}

// AggregateConfig bounds the rates used in averages.
type AggregateConfig struct {
	MinRate float64 `mapstructure:"min_rate"`
	MaxRate float64 `mapstructure:"max_rate"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Dir                string   `mapstructure:"dir"`
	Formats            []string `mapstructure:"formats"`
	MaxDataPoints      int      `mapstructure:"max_data_points"`
	ChartWidth         int      `mapstructure:"chart_width"`
	ChartHeight        int      `mapstructure:"chart_height"`
	ParquetCompression string   `mapstructure:"parquet_compression"`
}

// S3Config describes the optional upload target for exports.
type S3Config struct {
	Enabled         bool          `mapstructure:"enabled"`
	Bucket          string        `mapstructure:"bucket"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	Prefix          string        `mapstructure:"prefix"`
	PathStyle       bool          `mapstructure:"path_style"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// SyncConfig governs the periodic refresh job.
type SyncConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Align           bool          `mapstructure:"align"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	Lookback        time.Duration `mapstructure:"lookback"`
	Retention       time.Duration `mapstructure:"retention"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	Networks        []string      `mapstructure:"networks"`
}

// AlertingConfig defines sync alert thresholds and routing.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	MaxLagBlocks uint64         `mapstructure:"max_lag_blocks"`
	Cooldown     time.Duration  `mapstructure:"cooldown"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// Export formats understood by the export command.
const (
	FormatCSV     = "csv"
	FormatPNG     = "png"
	FormatParquet = "parquet"
)

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LENDINGDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

const messariBase = "https://api.thegraph.com/subgraphs/name/messari/"

func defaultNetworks() map[string]any {
	network := func(label, subgraph string, backfilling bool) map[string]any {
		return map[string]any{
			"label":       label,
			"endpoint":    messariBase + subgraph,
			"backfilling": backfilling,
		}
	}
	return map[string]any{
		"avalanche-v2": network("Avalanche v2", "aave-v2-avalanche-extended", false),
		"avalanche-v3": network("Avalanche v3", "aave-v3-avalanche", false),
		"ethereum":     network("Ethereum", "aave-v2-ethereum-extended", false),
		"optimism":     network("Optimism", "aave-v3-optimism-extended", false),
		"polygon-v3":   network("Polygon v3", "aave-v3-polygon-extended", false),
		"polygon-v2":   network("Polygon v2", "aave-v2-polygon-extended", true),
		"harmony":      network("Harmony", "aave-v3-harmony-extended", false),
		"fantom":       network("Fantom", "aave-v3-fantom-extended", false),
		"arbitrum":     network("Arbitrum", "aave-v3-arbitrum-extended", false),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "lendingdash")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.lookback_days", 30)
	v.SetDefault("app.default_network", "ethereum")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 14)

	v.SetDefault("subgraph.page_size", 1000)
	v.SetDefault("subgraph.request_timeout", "30s")
	v.SetDefault("subgraph.requests_per_second", 5.0)
	v.SetDefault("subgraph.burst", 1)
	v.SetDefault("subgraph.user_agent", "")

	v.SetDefault("chain.request_timeout", "10s")

	v.SetDefault("normalize.timezone", "UTC")

	v.SetDefault("networks", defaultNetworks())

	v.SetDefault("aggregate.min_rate", 0.0)
	v.SetDefault("aggregate.max_rate", 10.0)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("export.dir", "exports")
	v.SetDefault("export.formats", []string{FormatCSV, FormatPNG})
	v.SetDefault("export.max_data_points", 2000)
	v.SetDefault("export.chart_width", 1280)
	v.SetDefault("export.chart_height", 720)
	v.SetDefault("export.parquet_compression", "snappy")

	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.prefix", "lendingdash")
	v.SetDefault("s3.timeout", "2m")

	v.SetDefault("sync.interval", "24h")
	v.SetDefault("sync.align", true)
	v.SetDefault("sync.run_on_start", true)
	v.SetDefault("sync.lookback", "72h")
	v.SetDefault("sync.retention", "0s")
	v.SetDefault("sync.advisory_lock_key", int64(0x6c656e64))
	v.SetDefault("sync.networks", []string{})

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.max_lag_blocks", 0)
	v.SetDefault("alerting.cooldown", "6h")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("at least one network must be configured")
	}
	for name, n := range c.Networks {
		if n.Endpoint == "" {
			return fmt.Errorf("networks.%s.endpoint is required", name)
		}
	}
	if c.Subgraph.PageSize <= 0 {
		return fmt.Errorf("subgraph.page_size must be greater than zero")
	}
	if c.Subgraph.RequestTimeout <= 0 {
		return fmt.Errorf("subgraph.request_timeout must be greater than zero")
	}
	if c.Subgraph.RequestsPerSecond < 0 {
		return fmt.Errorf("subgraph.requests_per_second cannot be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Aggregate.MaxRate <= c.Aggregate.MinRate {
		return fmt.Errorf("aggregate.max_rate must be greater than aggregate.min_rate")
	}
	if c.App.LookbackDays <= 0 {
		return fmt.Errorf("app.lookback_days must be greater than zero")
	}
	if c.App.DefaultNetwork != "" {
		if _, err := c.Network(c.App.DefaultNetwork); err != nil {
			return fmt.Errorf("app.default_network: %w", err)
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	for _, f := range c.Export.Formats {
		switch strings.ToLower(f) {
		case FormatCSV, FormatPNG, FormatParquet:
		default:
			return fmt.Errorf("export.formats: unknown format %q", f)
		}
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket 必须配置")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be greater than zero")
	}
	if c.Sync.Lookback <= 0 {
		return fmt.Errorf("sync.lookback must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	for _, name := range c.Sync.Networks {
		if _, err := c.Network(name); err != nil {
			return fmt.Errorf("sync.networks: %w", err)
		}
	}
	return nil
}

// Location resolves normalize.timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Normalize.Timezone
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("normalize.timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Network looks up a configured network by name, case-insensitively.
func (c *Config) Network(name string) (NetworkConfig, error) {
	n, ok := c.Networks[strings.ToLower(name)]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("unknown network %q (known: %s)", name, strings.Join(c.NetworkNames(), ", "))
	}
	return n, nil
}

// NetworkNames lists configured networks in name order.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
