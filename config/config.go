package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aura-platform/sponsorships/pkg/protect"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Email       EmailConfig
	Sponsorship SponsorshipConfig
}

// EmailConfig for outgoing mail. Without a SendGrid key mail is only logged.
type EmailConfig struct {
	FromAddress    string
	FromName       string
	SendGridAPIKey string
}

// SponsorshipConfig holds sponsorship token and lifecycle settings.
type SponsorshipConfig struct {
	SelfHosted bool
	// ProtectorKey is the base64 master key of the cloud token protector.
	ProtectorKey                 string
	WebVaultURL                  string
	ValidateInterval             time.Duration
	ValidateTimeout              time.Duration
	MaxRenewalsWithoutValidation int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "sponsorships"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Email: EmailConfig{
			FromAddress:    getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
			FromName:       getEnv("EMAIL_FROM_NAME", "Aura"),
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		},
		Sponsorship: SponsorshipConfig{
			SelfHosted:                   getEnvBool("SELF_HOSTED", false),
			ProtectorKey:                 getEnv("SPONSORSHIP_PROTECTOR_KEY", ""),
			WebVaultURL:                  getEnv("WEB_VAULT_URL", "http://localhost:3000"),
			ValidateInterval:             getEnvDuration("SPONSORSHIP_VALIDATE_INTERVAL", 24*time.Hour),
			ValidateTimeout:              getEnvDuration("SPONSORSHIP_VALIDATE_TIMEOUT", 30*time.Second),
			MaxRenewalsWithoutValidation: getEnvInt("SPONSORSHIP_MAX_RENEWALS_WITHOUT_VALIDATION", 6),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if !c.Sponsorship.SelfHosted {
		if c.Sponsorship.ProtectorKey == "" {
			errs = append(errs, errors.New("SPONSORSHIP_PROTECTOR_KEY is required unless SELF_HOSTED is set"))
		} else if _, err := protect.DecodeKey(c.Sponsorship.ProtectorKey); err != nil {
			errs = append(errs, fmt.Errorf("SPONSORSHIP_PROTECTOR_KEY: %w", err))
		}
	}
	if c.Sponsorship.MaxRenewalsWithoutValidation <= 0 {
		errs = append(errs, errors.New("SPONSORSHIP_MAX_RENEWALS_WITHOUT_VALIDATION must be positive"))
	}
	if c.Sponsorship.ValidateInterval <= 0 || c.Sponsorship.ValidateTimeout <= 0 {
		errs = append(errs, errors.New("sponsorship validation interval and timeout must be positive"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	return errors.Join(errs...)
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
