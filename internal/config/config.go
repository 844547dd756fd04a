package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported store backends.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Supported payment gateways.
const (
	PaymentRazorpay = "razorpay"
	PaymentMock     = "mock"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port           int
	JWTSecret      string
	DatabaseDriver string
	DatabaseURL    string
	SQLitePath     string
	RedisURL       string
	EncryptionKey  string
	CORSOrigins    []string

	PaymentMode       string
	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayAPIURL    string
	Currency          string
	GatewayTimeout    time.Duration
	CheckoutTTL       time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present; real
// environment variables win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "4001"))
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("PORT must be a valid port number, got %q", os.Getenv("PORT"))
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	driver := strings.ToLower(getEnv("DATABASE_DRIVER", DriverPostgres))
	dbURL := getEnv("DATABASE_URL", "")
	switch driver {
	case DriverPostgres:
		if dbURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER=postgres")
		}
	case DriverSQLite:
	default:
		return nil, fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, driver)
	}

	encKey := getEnv("ENCRYPTION_KEY", "")
	if encKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required (must be exactly 32 bytes)")
	}
	if len(encKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(encKey))
	}

	mode := strings.ToLower(getEnv("PAYMENT_MODE", PaymentRazorpay))
	keyID, keySecret := getEnv("RAZORPAY_KEY_ID", ""), getEnv("RAZORPAY_KEY_SECRET", "")
	switch mode {
	case PaymentRazorpay:
		if keyID == "" || keySecret == "" {
			return nil, fmt.Errorf("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required when PAYMENT_MODE=razorpay")
		}
	case PaymentMock:
	default:
		return nil, fmt.Errorf("PAYMENT_MODE must be %q or %q, got %q", PaymentRazorpay, PaymentMock, mode)
	}

	gatewayTimeout, err := getDuration("GATEWAY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	checkoutTTL, err := getDuration("CHECKOUT_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	origins := strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &Config{
		Port:              port,
		JWTSecret:         jwtSecret,
		DatabaseDriver:    driver,
		DatabaseURL:       dbURL,
		SQLitePath:        getEnv("SQLITE_PATH", "./data/billing.db"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		EncryptionKey:     encKey,
		CORSOrigins:       origins,
		PaymentMode:       mode,
		RazorpayKeyID:     keyID,
		RazorpayKeySecret: keySecret,
		RazorpayAPIURL:    getEnv("RAZORPAY_API_URL", "https://api.razorpay.com/v1"),
		Currency:          strings.ToUpper(getEnv("PAYMENT_CURRENCY", "INR")),
		GatewayTimeout:    gatewayTimeout,
		CheckoutTTL:       checkoutTTL,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration such as 10s, got %q", key, v)
	}
	return d, nil
}
