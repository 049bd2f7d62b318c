package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir      string        `mapstructure:"MIGRATIONS_DIR"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	JWTSecret          string        `mapstructure:"JWT_SECRET"`
	JWTIssuer          string        `mapstructure:"JWT_ISSUER"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	LogFile            string        `mapstructure:"LOG_FILE"`
	SMTPHost           string        `mapstructure:"SMTP_HOST"`
	SMTPPort           int           `mapstructure:"SMTP_PORT"`
	SMTPUsername       string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword       string        `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom           string        `mapstructure:"SMTP_FROM"`
	NotifyQueueSize    int           `mapstructure:"NOTIFY_QUEUE_SIZE"`
	OTPTTL             time.Duration `mapstructure:"OTP_TTL"`
	MaintenanceEnabled bool          `mapstructure:"MAINTENANCE_ENABLED"`
	MaintenanceEvery   time.Duration `mapstructure:"MAINTENANCE_INTERVAL"`
	PhoneRegion        string        `mapstructure:"DEFAULT_PHONE_REGION"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"REDIS_URL", "JWT_SECRET", "JWT_ISSUER", "CORS_ORIGINS", "RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "LOG_LEVEL", "LOG_FILE", "SMTP_HOST",
	"SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM", "NOTIFY_QUEUE_SIZE",
	"OTP_TTL", "MAINTENANCE_ENABLED", "MAINTENANCE_INTERVAL", "DEFAULT_PHONE_REGION",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("JWT_ISSUER", "hms")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("MAINTENANCE_ENABLED", true)
	v.SetDefault("MAINTENANCE_INTERVAL", "1h")
	v.SetDefault("DEFAULT_PHONE_REGION", "IN")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// EmailEnabled reports whether notifications go out over SMTP. Otherwise
// they are only logged.
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != ""
}

// Validate checks that the configuration is safe to run. Outside
// development a JWT secret of at least 32 bytes is required.
func (c *Config) Validate() error {
	switch c.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENV must be \"development\", \"staging\", or \"production\", got %q", c.Env)
	}
	if !c.IsDev() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes outside development")
	}
	if c.IsProduction() && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required in production")
	}
	if c.EmailEnabled() && c.SMTPFrom == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}
	if c.IsProduction() && !c.EmailEnabled() {
		return fmt.Errorf("SMTP_HOST is required in production")
	}
	if c.MaintenanceEnabled && c.MaintenanceEvery <= 0 {
		return fmt.Errorf("MAINTENANCE_INTERVAL must be positive, got %s", c.MaintenanceEvery)
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive, got %s", c.OTPTTL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if len(c.PhoneRegion) != 2 {
		return fmt.Errorf("DEFAULT_PHONE_REGION must be a two-letter region code, got %q", c.PhoneRegion)
	}
	return nil
}
