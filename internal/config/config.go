package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the tenantcore server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Billing   BillingConfig
	Renewal   RenewalConfig
	Email     EmailConfig
	Bootstrap BootstrapConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	ShutdownTimeout time.Duration
	MigrationsDir   string
}

// IsProduction selects live API keys and forbids development-only providers.
func (s ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	Issuer     string
	CookieName string
}

type BillingConfig struct {
	Provider     string
	StripeAPIKey string
	Currency     string
}

type RenewalConfig struct {
	Enabled        bool
	Interval       time.Duration
	ExpiringWithin time.Duration
}

type EmailConfig struct {
	From string
}

// BootstrapConfig seeds a platform super-admin on migrate when both fields
// are set.
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
}

const minJWTSecretLen = 32

var validPaymentProviders = map[string]bool{
	"stripe": true,
	"fake":   true,
}

var currencyPattern = regexp.MustCompile(`^[a-z]{3}$`)

// Load reads configuration from environment variables and returns a validated Config.
// A .env file (or the file named by TENANTCORE_ENV_FILE) is read first; it
// never overrides variables already set in the environment.
func Load() (*Config, error) {
	if err := loadEnvFile(envString("TENANTCORE_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("TENANTCORE_PORT", 8080),
			Env:             envString("TENANTCORE_ENV", "development"),
			ShutdownTimeout: envDuration("TENANTCORE_SHUTDOWN_TIMEOUT", 30*time.Second),
			MigrationsDir:   envString("TENANTCORE_MIGRATIONS_DIR", "migrations"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			JWTSecret:  os.Getenv("AUTH_JWT_SECRET"),
			TokenTTL:   envDuration("AUTH_TOKEN_TTL", 24*time.Hour),
			Issuer:     envString("AUTH_ISSUER", "tenantcore"),
			CookieName: envString("AUTH_COOKIE_NAME", "tc_session"),
		},
		Billing: BillingConfig{
			Provider:     envString("PAYMENT_PROVIDER", "fake"),
			StripeAPIKey: os.Getenv("STRIPE_API_KEY"),
			Currency:     strings.ToLower(envString("BILLING_CURRENCY", "usd")),
		},
		Renewal: RenewalConfig{
			Enabled:        envBool("RENEWAL_ENABLED", true),
			Interval:       envDuration("RENEWAL_INTERVAL", 6*time.Hour),
			ExpiringWithin: envDuration("RENEWAL_EXPIRING_WITHIN", 7*24*time.Hour),
		},
		Email: EmailConfig{
			From: envString("EMAIL_FROM", "noreply@tenantcore.local"),
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:    os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
			AdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if len(c.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive, got %s", c.Auth.TokenTTL)
	}

	if !validPaymentProviders[c.Billing.Provider] {
		return fmt.Errorf("PAYMENT_PROVIDER must be one of stripe, fake; got %q", c.Billing.Provider)
	}
	if c.Billing.Provider == "stripe" && c.Billing.StripeAPIKey == "" {
		return fmt.Errorf("STRIPE_API_KEY is required when PAYMENT_PROVIDER is stripe")
	}
	if c.Billing.Provider == "fake" && c.Server.IsProduction() {
		return fmt.Errorf("PAYMENT_PROVIDER fake is not allowed in production")
	}
	if !currencyPattern.MatchString(c.Billing.Currency) {
		return fmt.Errorf("BILLING_CURRENCY must be a three-letter ISO code, got %q", c.Billing.Currency)
	}

	if c.Renewal.Interval <= 0 {
		return fmt.Errorf("RENEWAL_INTERVAL must be positive, got %s", c.Renewal.Interval)
	}

	if (c.Bootstrap.AdminEmail == "") != (c.Bootstrap.AdminPassword == "") {
		return fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}

	return nil
}

func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
