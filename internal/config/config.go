package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Email       EmailConfig
	App         AppConfig
	Telemetry   TelemetryConfig
}

type ServerConfig struct {
	Host           string   `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port           int      `env:"SERVER_PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS" envDefault:"100"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"200"`
}

type DatabaseConfig struct {
	URL            string `env:"DATABASE_URL"`
	MaxConns       int    `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns       int    `env:"DB_MIN_CONNS" envDefault:"5"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"migrations"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type AuthConfig struct {
	SupabaseURL string `env:"SUPABASE_URL"`
	AnonKey     string `env:"SUPABASE_ANON_KEY"`
	ServiceKey  string `env:"SUPABASE_SERVICE_KEY"`
	JWTSecret   string `env:"SUPABASE_JWT_SECRET"`
}

type EmailConfig struct {
	ResendAPIKey string `env:"RESEND_API_KEY"`
	From         string `env:"EMAIL_FROM"`
	// Transport is "direct" (send inside the request) or "queue" (hand off
	// to the worker).
	Transport string `env:"EMAIL_TRANSPORT" envDefault:"direct"`
	// WorkerConcurrency bounds parallel deliveries in cmd/worker.
	WorkerConcurrency int `env:"EMAIL_WORKER_CONCURRENCY" envDefault:"5"`
}

type AppConfig struct {
	URL string `env:"APP_URL" envDefault:"http://localhost:3000"`
	// InviteDelivery selects who emails new invitees: "directory" lets the
	// identity service send its own invite email, "sink" sends ours.
	InviteDelivery string        `env:"INVITE_DELIVERY" envDefault:"directory"`
	InviteLockTTL  time.Duration `env:"INVITE_LOCK_TTL" envDefault:"30s"`
	OrgCacheTTL    time.Duration `env:"ORG_CACHE_TTL" envDefault:"5m"`
}

type TelemetryConfig struct {
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"toolate-api"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.App.URL = strings.TrimRight(cfg.App.URL, "/")
	return &cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SenderAddress picks the From header for outbound mail.
func (c *Config) SenderAddress() string {
	if c.Email.From != "" {
		return c.Email.From
	}
	if c.IsProduction() {
		return "TooLate <noreply@toolate.app>"
	}
	return "onboarding@resend.dev"
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "SUPABASE_JWT_SECRET")
	}
	if c.Auth.SupabaseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if c.Auth.ServiceKey == "" {
		missing = append(missing, "SUPABASE_SERVICE_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	switch c.App.InviteDelivery {
	case "directory", "sink":
	default:
		return fmt.Errorf("invalid INVITE_DELIVERY %q: want directory or sink", c.App.InviteDelivery)
	}
	switch c.Email.Transport {
	case "direct", "queue":
	default:
		return fmt.Errorf("invalid EMAIL_TRANSPORT %q: want direct or queue", c.Email.Transport)
	}
	return nil
}
