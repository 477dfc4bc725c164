// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Config is the process configuration read from the environment (and .env via godotenv autoload).
type Config struct {
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port string `env:"PORT" envDefault:"8080"`

	// DatabaseURL is optional; without it party search runs against the in-memory store
	// and server events are not persisted.
	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	EventsQueue   string `env:"EVENTS_QUEUE" envDefault:"partyhost:server_events"`

	PoolsFile string `env:"POOLS_FILE" envDefault:"pools.json"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`
	LogDir   string `env:"LOG_DIR"`

	PrivateKeyPath string        `env:"PRIVATE_KEY_PATH"`
	PublicKeyPath  string        `env:"PUBLIC_KEY_PATH"`
	TokenExpire    time.Duration `env:"TOKEN_EXPIRE_TIME" envDefault:"0s"`
	ServerTokenTTL time.Duration `env:"SERVER_TOKEN_TTL" envDefault:"1h"`

	AdminToken       string        `env:"ADMIN_TOKEN"`
	AgentCallbackURL string        `env:"AGENT_CALLBACK_URL" envDefault:"http://localhost:8080/agent"`
	AgentTimeout     time.Duration `env:"AGENT_TIMEOUT" envDefault:"10s"`

	HistorianBatchSize     int           `env:"HISTORIAN_BATCH_SIZE" envDefault:"100"`
	HistorianFlushInterval time.Duration `env:"HISTORIAN_FLUSH_INTERVAL" envDefault:"5s"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values that would only fail later at runtime.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if (c.PrivateKeyPath == "") != (c.PublicKeyPath == "") {
		errs = append(errs, errors.New("PRIVATE_KEY_PATH and PUBLIC_KEY_PATH must be set together"))
	}
	if c.TokenExpire < 0 || c.ServerTokenTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must not be negative"))
	}
	if c.HistorianBatchSize <= 0 {
		errs = append(errs, errors.New("HISTORIAN_BATCH_SIZE must be positive"))
	}
	if c.HistorianFlushInterval <= 0 {
		errs = append(errs, errors.New("HISTORIAN_FLUSH_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}
