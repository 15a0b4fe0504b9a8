package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. RPM_DATABASE_DSN
const EnvPrefix = "RPM"

// CronParser parses job schedules; the seconds field is required
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Job      JobConfig      `mapstructure:"job"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RulesConfig struct {
	// File is a YAML rule set; empty means the built-in rules
	File string `mapstructure:"file"`
}

type JobConfig struct {
	Schedule       string        `mapstructure:"schedule"`
	Workers        int           `mapstructure:"workers"`
	ActivityWindow time.Duration `mapstructure:"activity_window"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	// RunTimeout bounds a whole scheduled run; zero leaves it unbounded.
	// Each patient is bounded by LockTTL either way.
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

type NATSConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// PublishAttempts bounds tries per alert, with exponential backoff between them
	PublishAttempts int           `mapstructure:"publish_attempts"`
	PublishBackoff  time.Duration `mapstructure:"publish_backoff"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "rpm-engine")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "rpm.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("rules.file", "")
	v.SetDefault("job.schedule", "0 */5 * * * *")
	v.SetDefault("job.workers", 4)
	v.SetDefault("job.activity_window", 72*time.Hour)
	v.SetDefault("job.lock_ttl", 2*time.Minute)
	v.SetDefault("job.run_timeout", time.Duration(0))
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)
	v.SetDefault("nats.publish_attempts", 3)
	v.SetDefault("nats.publish_backoff", 200*time.Millisecond)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("metrics.listen_addr", ":9090")
}

// Load reads configuration from path, or from ./config/config.yaml when path
// is empty. A missing default file is not an error; defaults and environment
// overrides still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values Load cannot express as types
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.driver must be \"sqlite3\" or \"postgres\", got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if _, err := CronParser.Parse(c.Job.Schedule); err != nil {
		return fmt.Errorf("job.schedule is not a valid cron expression: %w", err)
	}
	if c.Job.Workers < 1 {
		return fmt.Errorf("job.workers must be at least 1, got %d", c.Job.Workers)
	}
	if c.Job.ActivityWindow <= 0 {
		return fmt.Errorf("job.activity_window must be positive")
	}
	if c.Job.LockTTL <= 0 {
		return fmt.Errorf("job.lock_ttl must be positive")
	}
	if c.Job.RunTimeout < 0 {
		return fmt.Errorf("job.run_timeout must not be negative")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}
	return nil
}
