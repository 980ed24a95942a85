// Package config loads the service configuration with viper.
//
// Precedence: environment (CLUB_ prefix, "." replaced by "_") > config file >
// defaults. A missing config file is not an error.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/warp/club-engine/factory"
)

type Config struct {
	Server       ServerConfig                  `mapstructure:"server"`
	DB           DBConfig                      `mapstructure:"db"`
	Log          LogConfig                     `mapstructure:"log"`
	Clock        ClockConfig                   `mapstructure:"clock"`
	Directory    DirectoryConfig               `mapstructure:"directory"`
	Gate         factory.GatePolicyJSON        `mapstructure:"gate"`
	Sauna        SaunaConfig                   `mapstructure:"sauna"`
	Reservations factory.ReservationConfigJSON `mapstructure:"reservations"`
	Scheduler    SchedulerConfig               `mapstructure:"scheduler"`
	Redis        RedisConfig                   `mapstructure:"redis"`
	Telemetry    TelemetryConfig               `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

type ClockConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// DirectoryConfig picks where people, dues and exams are read from.
type DirectoryConfig struct {
	Source string `mapstructure:"source"` // sql | memory
}

type SaunaConfig struct {
	DefaultFine string `mapstructure:"default_fine"`
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// RedisConfig enables the billing standing cache when Addr is set.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	StandingTTL time.Duration `mapstructure:"standing_ttl"`
}

// TelemetryConfig enables OTLP tracing when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

const (
	DirectorySQL    = "sql"
	DirectoryMemory = "memory"
)

// Load reads path (or ./config.yaml, ./config/config.yaml when empty).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CLUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173", "http://localhost:3000"})

	v.SetDefault("db.path", "./data/club.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("clock.timezone", "America/Sao_Paulo")

	v.SetDefault("directory.source", DirectorySQL)

	v.SetDefault("gate.exam_gated_locations", []string{"pool", "gym"})
	v.SetDefault("gate.standing_rule", factory.StandingAdvisory)
	v.SetDefault("gate.lookup_timeout", "2s")

	v.SetDefault("sauna.default_fine", "50.00")

	v.SetDefault("reservations.opening_weekday", "friday")
	v.SetDefault("reservations.opening_time", "09:00")
	v.SetDefault("reservations.cycle_start_weekday", "") // empty: the opening weekday
	v.SetDefault("reservations.daily_cutoff_time", "09:00")
	v.SetDefault("reservations.max_advance_days", 7)
	v.SetDefault("reservations.default_price", "0")
	v.SetDefault("reservations.allow_multiple_per_person", false)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "1m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.standing_ttl", "5m")

	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "club-engine")
}

// Validate checks values the service cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be 1-65535, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.DB.Path) == "" {
		return errors.New("config: db.path is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config: clock.timezone: %w", err)
	}
	if c.Directory.Source != DirectorySQL && c.Directory.Source != DirectoryMemory {
		return fmt.Errorf("config: directory.source must be %q or %q", DirectorySQL, DirectoryMemory)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return errors.New("config: scheduler.interval must be positive")
	}
	if _, err := c.DefaultFine(); err != nil {
		return fmt.Errorf("config: sauna.default_fine: %w", err)
	}

	f := factory.NewPolicyFactory()
	if _, err := f.GateFromJSON(c.Gate); err != nil {
		return fmt.Errorf("config: gate: %w", err)
	}
	if _, err := f.ReservationFromJSON(c.Reservations); err != nil {
		return fmt.Errorf("config: reservations: %w", err)
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Clock.Timezone)
}

func (c *Config) DefaultFine() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Sauna.DefaultFine)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("must not be negative, got %s", d)
	}
	return d, nil
}
