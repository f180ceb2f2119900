package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"gigawatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Mikrotik  MikrotikConfig  `mapstructure:"mikrotik"`
	Carrier   CarrierConfig   `mapstructure:"carrier"`
	Server    ServerConfig    `mapstructure:"server"`
	Usage     UsageConfig     `mapstructure:"usage"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects the observation store backend. URL accepts either a
// postgres DSN or a sqlite file path; when empty a sqlite file under DataDir
// is used.
type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	DataDir      string `mapstructure:"data_dir"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// ResolveLocation returns the effective store location, creating the data
// directory for the default sqlite file when needed.
func (c DatabaseConfig) ResolveLocation() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	dir := c.DataDir
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return filepath.Join(dir, "data.db"), nil
}

// SchedulerConfig governs observation cadence.
type SchedulerConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	InitialRunTimeout time.Duration `mapstructure:"initial_run_timeout"`
	FreshnessTimeout  time.Duration `mapstructure:"freshness_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
}

// MaxAge is the staleness horizon handed to the freshness engine: one minute
// short of the cadence so every tick finds the previous reading stale.
func (c SchedulerConfig) MaxAge() time.Duration {
	return c.Interval - time.Minute
}

// MikrotikConfig covers the router management surface.
type MikrotikConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	AuthBase64     string        `mapstructure:"auth_base64"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CarrierConfig holds the carrier-specific balance query constants.
type CarrierConfig struct {
	Shortcode string `mapstructure:"shortcode"`
	Keyword   string `mapstructure:"keyword"`
}

// ServerConfig sets the read-only query surface.
type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	Metrics bool   `mapstructure:"metrics"`
}

// UsageConfig tunes the daily-usage projection.
type UsageConfig struct {
	WindowDays int `mapstructure:"window_days"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GIGAWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindWellKnownEnv(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "gigawatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.data_dir", "data")
	v.SetDefault("database.max_open_conns", 3)

	v.SetDefault("scheduler.interval", "60m")
	v.SetDefault("scheduler.initial_run_timeout", "10s")
	v.SetDefault("scheduler.freshness_timeout", "30s")
	v.SetDefault("scheduler.poll_interval", "2s")

	v.SetDefault("mikrotik.connect_timeout", "2s")
	v.SetDefault("mikrotik.request_timeout", "10s")

	v.SetDefault("carrier.shortcode", "4155")
	v.SetDefault("carrier.keyword", "Dati")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics", true)

	v.SetDefault("usage.window_days", 90)
}

// bindWellKnownEnv wires the unprefixed environment variables the deployment
// contract recognises. MIKROTIK_PASS wins over MIKROTIK_PASSWORD.
func bindWellKnownEnv(v *viper.Viper) {
	_ = v.BindEnv("database.url", "GIGAWATCH_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("mikrotik.base_url", "GIGAWATCH_MIKROTIK_BASE_URL", "MIKROTIK_URL")
	_ = v.BindEnv("mikrotik.auth_base64", "GIGAWATCH_MIKROTIK_AUTH_BASE64", "MIKROTIK_AUTH_BASE64")
	_ = v.BindEnv("mikrotik.username", "GIGAWATCH_MIKROTIK_USERNAME", "MIKROTIK_USER")
	_ = v.BindEnv("mikrotik.password", "GIGAWATCH_MIKROTIK_PASSWORD", "MIKROTIK_PASS", "MIKROTIK_PASSWORD")
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
	if c.Scheduler.Interval < 2*time.Minute {
		return fmt.Errorf("scheduler.interval must be at least two minutes")
	}
	if c.Scheduler.FreshnessTimeout <= 0 {
		return fmt.Errorf("scheduler.freshness_timeout must be greater than zero")
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler.poll_interval must be greater than zero")
	}
	if c.Carrier.Shortcode == "" || c.Carrier.Keyword == "" {
		return fmt.Errorf("carrier.shortcode and carrier.keyword must be set")
	}
	if c.Usage.WindowDays <= 0 {
		return fmt.Errorf("usage.window_days must be greater than zero")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be greater than zero")
	}
	return nil
}
