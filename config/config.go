// Package config loads server settings from defaults, an optional TOML file
// and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
)

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds every runtime setting of the API server.
type Config struct {
	Port int `toml:"port" env:"PORT"`

	StoreDriver   string `toml:"store_driver" env:"STORE_DRIVER"`
	MongoURI      string `toml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase string `toml:"mongo_database" env:"MONGO_DATABASE"`
	DBSource      string `toml:"db_source" env:"DB_SOURCE"`

	RedisAddr string        `toml:"redis_addr" env:"REDIS_ADDR"`
	CacheTTL  time.Duration `toml:"cache_ttl" env:"CACHE_TTL"`

	JWTSecret  string        `toml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL   time.Duration `toml:"token_ttl" env:"TOKEN_TTL"`
	BcryptCost int           `toml:"bcrypt_cost" env:"BCRYPT_COST"`

	AllowedOrigins []string `toml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	RequestTimeout  time.Duration `toml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	OTelEndpoint string `toml:"otel_endpoint" env:"OTEL_ENDPOINT"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:            5700,
		StoreDriver:     DriverMongo,
		MongoDatabase:   "taskmanager",
		CacheTTL:        5 * time.Minute,
		TokenTTL:        24 * time.Hour,
		BcryptCost:      10,
		AllowedOrigins:  []string{"*"},
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the configuration. When CONFIG_FILE is set, the TOML file it
// names is applied over the defaults before the environment.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile decodes a TOML file into cfg, leaving absent keys untouched.
func LoadFile(path string, cfg *Config) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
	}
	return nil
}

func (c *Config) normalize() {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	origins := c.AllowedOrigins[:0]
	for _, origin := range c.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	c.AllowedOrigins = origins
}

// Validate reports the first setting that would keep the server from starting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d is out of range", c.Port)
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.BcryptCost != 0 && (c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost) {
		return fmt.Errorf("BCRYPT_COST %d is outside %d..%d", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo store")
		}
	case DriverPostgres, DriverSQLite:
		if c.DBSource == "" {
			return fmt.Errorf("DB_SOURCE is required for the %s store", c.StoreDriver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
