package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	FeedPostgres = "postgres"
	FeedAMQP     = "amqp"
)

type Config struct {
	Port               string
	DatabaseURL        string
	Timezone           string
	LiveRefresh        time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
	LogLevel           string
	LogFormat          string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	ReportCacheTTL     time.Duration
	FeedSource         string
	AMQPURL            string
	AMQPExchange       string
	UploadDir          string
	UploadBaseURL      string
	SessionTTL         time.Duration
	MigrateOnStart     bool
}

// envKeys maps config keys to the environment variables that set them.
var envKeys = map[string]string{
	"port":                 "DASHBOARD_PORT",
	"db_dsn":               "DB_DSN",
	"timezone":             "DASHBOARD_TIMEZONE",
	"live_refresh_seconds": "LIVE_REFRESH_SECONDS",
	"rate_limit_per_min":   "RATE_LIMIT_PER_MIN",
	"rate_limit_burst":     "RATE_LIMIT_BURST",
	"log_level":            "LOG_LEVEL",
	"log_format":           "LOG_FORMAT",
	"redis_addr":           "REDIS_ADDR",
	"redis_password":       "REDIS_PASSWORD",
	"redis_db":             "REDIS_DB",
	"report_cache_seconds": "REPORT_CACHE_SECONDS",
	"feed_source":          "LIVE_FEED_SOURCE",
	"amqp_url":             "AMQP_URL",
	"amqp_exchange":        "AMQP_EXCHANGE",
	"upload_dir":           "UPLOAD_DIR",
	"upload_base_url":      "UPLOAD_BASE_URL",
	"session_ttl_seconds":  "SESSION_TTL_SECONDS",
	"migrate_on_start":     "MIGRATE_ON_START",
}

// Load reads configuration from defaults, an optional config file and the
// environment, in increasing priority. A .env file in the working directory
// is loaded first when present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetDefault("port", "8086")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("live_refresh_seconds", 60)
	v.SetDefault("rate_limit_per_min", 600)
	v.SetDefault("rate_limit_burst", 120)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("redis_db", 0)
	v.SetDefault("report_cache_seconds", 600)
	v.SetDefault("feed_source", FeedPostgres)
	v.SetDefault("amqp_exchange", "queue.visits")
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("upload_base_url", "/uploads/")
	v.SetDefault("session_ttl_seconds", 8*60*60)
	v.SetDefault("migrate_on_start", false)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Port:               v.GetString("port"),
		DatabaseURL:        v.GetString("db_dsn"),
		Timezone:           v.GetString("timezone"),
		LiveRefresh:        seconds(v.GetInt("live_refresh_seconds")),
		RateLimitPerMinute: v.GetInt("rate_limit_per_min"),
		RateLimitBurst:     v.GetInt("rate_limit_burst"),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          v.GetString("log_format"),
		RedisAddr:          v.GetString("redis_addr"),
		RedisPassword:      v.GetString("redis_password"),
		RedisDB:            v.GetInt("redis_db"),
		ReportCacheTTL:     seconds(v.GetInt("report_cache_seconds")),
		FeedSource:         strings.ToLower(v.GetString("feed_source")),
		AMQPURL:            v.GetString("amqp_url"),
		AMQPExchange:       v.GetString("amqp_exchange"),
		UploadDir:          v.GetString("upload_dir"),
		UploadBaseURL:      v.GetString("upload_base_url"),
		SessionTTL:         seconds(v.GetInt("session_ttl_seconds")),
		MigrateOnStart:     v.GetBool("migrate_on_start"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.LiveRefresh <= 0 {
		return errors.New("live_refresh_seconds must be positive")
	}
	switch c.FeedSource {
	case FeedPostgres:
	case FeedAMQP:
		if c.AMQPURL == "" {
			return errors.New("amqp_url is required when feed_source is amqp")
		}
	default:
		return fmt.Errorf("unknown feed_source %q", c.FeedSource)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location is the time zone report buckets are derived in.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func seconds(value int) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}
