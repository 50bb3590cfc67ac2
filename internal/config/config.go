package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is read when no path is given.
const ConfigPath = "config.yaml"

const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	HTTPAddr        string `yaml:"httpAddr"`
	GRPCAddr        string `yaml:"grpcAddr"`
	LogLevel        string `yaml:"logLevel"`
	ShutdownTimeout string `yaml:"shutdownTimeout"`

	StoreDriver    string `yaml:"storeDriver"`
	MySQLDSN       string `yaml:"mysqlDSN"`
	PostgresDSN    string `yaml:"postgresDSN"`
	RedisAddr      string `yaml:"redisAddr"`
	RedisPassword  string `yaml:"redisPassword"`
	RedisDB        int    `yaml:"redisDB"`
	IdempotencyTTL string `yaml:"idempotencyTTL"`

	AMQPURL      string `yaml:"amqpURL"`
	AMQPExchange string `yaml:"amqpExchange"`
	EventStream  string `yaml:"eventStream"`

	JWTSecret  string `yaml:"jwtSecret"`
	JWTIssuer  string `yaml:"jwtIssuer"`
	SessionTTL string `yaml:"sessionTTL"`

	NotifierWorkers           int `yaml:"notifierWorkers"`
	NotifierQueueSize         int `yaml:"notifierQueueSize"`
	BookingRateLimitPerMinute int `yaml:"bookingRateLimitPerMinute"`
}

func defaults() FileConfig {
	return FileConfig{
		HTTPAddr:          ":8080",
		GRPCAddr:          ":9090",
		LogLevel:          "info",
		ShutdownTimeout:   "10s",
		StoreDriver:       DriverMemory,
		IdempotencyTTL:    "24h",
		AMQPExchange:      "reservations",
		JWTIssuer:         "course-reservation",
		SessionTTL:        "24h",
		NotifierWorkers:   4,
		NotifierQueueSize: 1000,
	}
}

// Load reads config from path (defaults to config.yaml). A missing default
// file is not an error; the service then runs on defaults and environment.
func Load(path string) (FileConfig, error) {
	cfg := defaults()
	explicit := path != ""
	if !explicit {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// Override with environment variables
	overrideString(&cfg.HTTPAddr, "HTTP_ADDR")
	overrideString(&cfg.GRPCAddr, "GRPC_ADDR")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.StoreDriver, "STORE_DRIVER")
	overrideString(&cfg.MySQLDSN, "MYSQL_DSN")
	overrideString(&cfg.PostgresDSN, "POSTGRES_DSN")
	overrideString(&cfg.RedisAddr, "REDIS_ADDR")
	overrideString(&cfg.RedisPassword, "REDIS_PASSWORD")
	overrideString(&cfg.AMQPURL, "AMQP_URL")
	overrideString(&cfg.EventStream, "EVENT_STREAM")
	overrideString(&cfg.JWTSecret, "JWT_SECRET")
	if v := os.Getenv("BOOKING_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BookingRateLimitPerMinute = n
		}
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.HTTPAddr == "" {
		return errors.New("config: httpAddr is required")
	}
	switch cfg.StoreDriver {
	case DriverMemory:
	case DriverMySQL:
		if cfg.MySQLDSN == "" {
			return errors.New("config: mysqlDSN is required for the mysql driver (set MYSQL_DSN)")
		}
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			return errors.New("config: postgresDSN is required for the postgres driver (set POSTGRES_DSN)")
		}
	case DriverRedis:
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for the redis driver (set REDIS_ADDR)")
		}
	default:
		return fmt.Errorf("config: unknown storeDriver %q", cfg.StoreDriver)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set JWT_SECRET)")
	}
	if cfg.EventStream != "" && cfg.RedisAddr == "" {
		return errors.New("config: eventStream requires redisAddr")
	}
	if cfg.BookingRateLimitPerMinute < 0 {
		return errors.New("config: bookingRateLimitPerMinute must be >= 0")
	}
	if cfg.BookingRateLimitPerMinute > 0 && cfg.RedisAddr == "" {
		return errors.New("config: bookingRateLimitPerMinute requires redisAddr")
	}
	if cfg.NotifierWorkers < 1 {
		return errors.New("config: notifierWorkers must be >= 1")
	}
	if cfg.NotifierQueueSize < 1 {
		return errors.New("config: notifierQueueSize must be >= 1")
	}
	for name, v := range map[string]string{
		"shutdownTimeout": cfg.ShutdownTimeout,
		"idempotencyTTL":  cfg.IdempotencyTTL,
		"sessionTTL":      cfg.SessionTTL,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("config: invalid %s: %w", name, err)
		}
	}
	return nil
}

func (c FileConfig) ShutdownTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.ShutdownTimeout)
	if d == 0 {
		return 10 * time.Second
	}
	return d
}

// IdempotencyTTLDuration is how long the redis driver remembers a key; zero
// keeps keys forever.
func (c FileConfig) IdempotencyTTLDuration() time.Duration {
	d, _ := parseDuration(c.IdempotencyTTL)
	return d
}

func (c FileConfig) SessionTTLDuration() time.Duration {
	d, _ := parseDuration(c.SessionTTL)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
