package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	Logger LoggerConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	Gateways map[string]GatewayConfig

	GatewayHTTPTimeout time.Duration

	SMTP SMTPConfig
}

type LoggerConfig struct {
	Level string
}

// GatewayConfig carries the credentials for one payment provider.
type GatewayConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "ovation"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: strings.ToLower(getenv("ENVIRONMENT", "development")),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		Logger: LoggerConfig{
			Level: getenv("LOG_LEVEL", "info"),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "ovation"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		Gateways: map[string]GatewayConfig{
			"paystack": {
				SecretKey:     strings.TrimSpace(getenv("PAYSTACK_SECRET_KEY", "")),
				WebhookSecret: strings.TrimSpace(getenv("PAYSTACK_WEBHOOK_SECRET", "")),
				BaseURL:       getenv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			},
			"flutterwave": {
				SecretKey:     strings.TrimSpace(getenv("FLUTTERWAVE_SECRET_KEY", "")),
				WebhookSecret: strings.TrimSpace(getenv("FLUTTERWAVE_VERIF_HASH", "")),
				BaseURL:       getenv("FLUTTERWAVE_BASE_URL", "https://api.flutterwave.com/v3"),
			},
			"monnify": {
				SecretKey:     strings.TrimSpace(getenv("MONNIFY_SECRET_KEY", "")),
				WebhookSecret: strings.TrimSpace(getenv("MONNIFY_CLIENT_SECRET", "")),
				BaseURL:       getenv("MONNIFY_BASE_URL", "https://api.monnify.com"),
			},
		},
		GatewayHTTPTimeout: getenvDuration("GATEWAY_HTTP_TIMEOUT", 15*time.Second),
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "no-reply@ovation.events"),
		},
	}

	return cfg
}

// IsProduction reports whether the service runs with production safety rules.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
