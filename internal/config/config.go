package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"fare-alerts/internal/logging"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Quotes    QuotesConfig    `mapstructure:"quotes"`
	Forecast  ForecastConfig  `mapstructure:"forecast"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and tunes the price-history backend.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig configures the shared notification cooldown. Empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SchedulerConfig governs the price-check sweep cadence.
type SchedulerConfig struct {
	Cron            string        `mapstructure:"cron"`
	Timezone        string        `mapstructure:"timezone"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	RequestDelay    time.Duration `mapstructure:"request_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// QuotesConfig captures flight-offer API connectivity.
type QuotesConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	Currency       string        `mapstructure:"currency"`
	Adults         int           `mapstructure:"adults"`
	MaxOffers      int           `mapstructure:"max_offers"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ForecastConfig bounds how much history feeds the engine and the policy.
type ForecastConfig struct {
	HistoryLimit   int `mapstructure:"history_limit"`
	AnalysisWindow int `mapstructure:"analysis_window"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Channels []string       `mapstructure:"channels"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
}

// WhatsAppConfig describes the UltraMsg WhatsApp gateway.
type WhatsAppConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	InstanceID string `mapstructure:"instance_id"`
	Token      string `mapstructure:"token"`
	APIBase    string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("FAREWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
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

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
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
	v.SetDefault("app.name", "farewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.sqlite_path", "farewatch.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("redis.db", 0)

	v.SetDefault("scheduler.cron", "0 8,20 * * *")
	v.SetDefault("scheduler.timezone", "Asia/Riyadh")
	v.SetDefault("scheduler.run_on_start", false)
	v.SetDefault("scheduler.request_delay", "1s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x66617265))

	v.SetDefault("quotes.base_url", "https://test.api.amadeus.com")
	v.SetDefault("quotes.currency", "SAR")
	v.SetDefault("quotes.adults", 1)
	v.SetDefault("quotes.max_offers", 5)
	v.SetDefault("quotes.request_timeout", "15s")

	v.SetDefault("forecast.history_limit", 30)
	v.SetDefault("forecast.analysis_window", 10)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.cooldown", "12h")
	v.SetDefault("alerting.channels", []string{"whatsapp"})
	v.SetDefault("alerting.whatsapp.enabled", false)
	v.SetDefault("alerting.whatsapp.api_base", "https://api.ultramsg.com")

	v.SetDefault("export.max_data_points", 1000)
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
	switch strings.ToLower(c.Database.Driver) {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q", DriverPostgres, DriverSQLite)
	}
	if strings.EqualFold(c.Database.Driver, DriverSQLite) && c.Database.SQLitePath == "" {
		return fmt.Errorf("database.sqlite_path is required for the sqlite driver")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Forecast.HistoryLimit <= 0 {
		return fmt.Errorf("forecast.history_limit must be greater than zero")
	}
	if c.Forecast.AnalysisWindow <= 0 {
		return fmt.Errorf("forecast.analysis_window must be greater than zero")
	}
	if c.Scheduler.RequestDelay < 0 {
		return fmt.Errorf("scheduler.request_delay cannot be negative")
	}
	if _, err := cron.ParseStandard(c.Scheduler.Cron); err != nil {
		return fmt.Errorf("scheduler.cron is invalid: %w", err)
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return err
	}
	if c.Quotes.Adults <= 0 {
		return fmt.Errorf("quotes.adults must be greater than zero")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.WhatsApp.Enabled {
		if c.Alerting.WhatsApp.InstanceID == "" {
			return fmt.Errorf("alerting.whatsapp.instance_id is required")
		}
		if c.Alerting.WhatsApp.Token == "" {
			return fmt.Errorf("alerting.whatsapp.token is required")
		}
	}
	return nil
}

// Location resolves the scheduler timezone, defaulting to UTC.
func (s SchedulerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone is invalid: %w", err)
	}
	return loc, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
