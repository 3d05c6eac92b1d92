package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	placeholderURL = "your_supabase_project_url_here"
	placeholderKey = "your_supabase_anon_key_here"
	minKeyLength   = 10
)

type Config struct {
	Server   ServerConfig
	Backend  BackendConfig
	DB       DBConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Auth     AuthConfig
	Catalog  CatalogConfig
}

type ServerConfig struct {
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// BackendConfig points at the hosted row-store and auth API.
type BackendConfig struct {
	URL            string        `env:"SUPABASE_URL"`
	AnonKey        string        `env:"SUPABASE_ANON_KEY"`
	Mode           string        `env:"BACKEND_MODE" envDefault:"rest"`
	RequestTimeout time.Duration `env:"BACKEND_REQUEST_TIMEOUT" envDefault:"15s"`
}

// Configured reports whether both credentials are present and not left at
// their template placeholders.
func (c BackendConfig) Configured() bool {
	return validURL(c.URL) && validKey(c.AnonKey)
}

func validURL(raw string) bool {
	if raw == "" || raw == placeholderURL {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func validKey(key string) bool {
	return key != "" && key != placeholderKey && len(key) > minKeyLength
}

// DBConfig is only used when BACKEND_MODE=postgres.
type DBConfig struct {
	URL      string `env:"DATABASE_URL"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"10"`
}

// RedisConfig enables session persistence when Addr is set.
type RedisConfig struct {
	Addr       string `env:"REDIS_ADDR"`
	Password   string `env:"REDIS_PASSWORD" envDefault:""`
	DB         int    `env:"REDIS_DB" envDefault:"0"`
	SessionKey string `env:"REDIS_SESSION_KEY" envDefault:"storefront:session"`
}

// RabbitMQConfig enables change-event publishing when URL is set.
type RabbitMQConfig struct {
	URL      string `env:"RABBITMQ_URL"`
	Exchange string `env:"RABBITMQ_EXCHANGE" envDefault:"storefront.events"`
}

type AuthConfig struct {
	// BootstrapAdminEmail grants super_admin on sign-up. Empty disables it.
	BootstrapAdminEmail string        `env:"BOOTSTRAP_ADMIN_EMAIL"`
	RefreshInterval     time.Duration `env:"AUTH_REFRESH_INTERVAL" envDefault:"30s"`
	RefreshMargin       time.Duration `env:"AUTH_REFRESH_MARGIN" envDefault:"2m"`
}

type CatalogConfig struct {
	FeaturedLimit     int `env:"CATALOG_FEATURED_LIMIT" envDefault:"6"`
	LowStockThreshold int `env:"CATALOG_LOW_STOCK_THRESHOLD" envDefault:"10"`
}

// Load reads an optional .env file, then the process environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Backend.Mode != "rest" && cfg.Backend.Mode != "postgres" {
		return nil, fmt.Errorf("parse config: unknown BACKEND_MODE %q", cfg.Backend.Mode)
	}
	return cfg, nil
}
