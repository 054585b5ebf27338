package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting. Values come from the environment,
// optionally seeded from a .env file.
type Config struct {
	Port           string
	Environment    string
	FrontendURL    string
	AllowedOrigins []string
	LogLevel       string

	DataPath    string
	DatabaseURL string

	JWTSecret     string
	TokenTTL      time.Duration
	EncryptionKey string

	RateLimit  int
	RateWindow time.Duration

	AIProvider      string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string
	PushTTL         int

	ReminderInterval time.Duration
	ReminderLeadDays int
}

// Load reads .env (if any) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        env("PORT", "8080"),
		Environment: env("ENVIRONMENT", "development"),
		FrontendURL: env("FRONTEND_URL", "http://localhost:3000"),
		LogLevel:    env("LOG_LEVEL", "INFO"),

		DataPath:    env("DATA_PATH", "data/finance.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		EncryptionKey: os.Getenv("DATA_ENCRYPTION_KEY"),

		AIProvider:      strings.ToLower(env("AI_PROVIDER", "anthropic")),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  env("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     env("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),

		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubscriber: env("VAPID_SUBSCRIBER", "admin@example.com"),
	}

	var err error
	if cfg.TokenTTL, err = envDuration("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateWindow, err = envDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReminderInterval, err = envDuration("REMINDER_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = envInt("RATE_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.PushTTL, err = envInt("PUSH_TTL", 3600); err != nil {
		return nil, err
	}
	if cfg.ReminderLeadDays, err = envInt("REMINDER_LEAD_DAYS", 1); err != nil {
		return nil, err
	}

	cfg.AllowedOrigins = []string{cfg.FrontendURL}
	if extra := os.Getenv("ALLOWED_ORIGINS"); extra != "" {
		for _, origin := range strings.Split(extra, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET environment variable is required in production")
		}
		c.JWTSecret = "dev-secret-change-me"
	}
	if c.EncryptionKey != "" && len(c.EncryptionKey) != 32 {
		return fmt.Errorf("DATA_ENCRYPTION_KEY must be exactly 32 characters")
	}
	switch c.AIProvider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unsupported AI_PROVIDER %q", c.AIProvider)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// PushEnabled reports whether VAPID keys and a remote database are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != "" && c.DatabaseURL != ""
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) (int, error) {
	raw := os.Getenv(k)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return v, nil
}

func envDuration(k string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(k)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return v, nil
}
