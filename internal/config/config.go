package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Booking engine configuration
	Booking BookingConfig

	// Payment gateway configuration
	MercadoPago GatewayConfig
	Izipay      GatewayConfig

	// Redis configuration (webhook replay guard)
	Redis RedisConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port             string
	Environment      string // development, staging, production
	LogLevel         string // debug, info, warn, error
	EnableRequestLog bool
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// BookingConfig holds seat hold, reclaim and passenger form settings
type BookingConfig struct {
	HoldDuration      time.Duration
	ReclaimInterval   time.Duration
	ReclaimBatchSize  int
	FormTTL           time.Duration
	FormGrace         time.Duration // form stays open this long after departure
	PublicFormBaseURL string
	Currency          string
	CompanyName       string
	ReportTimezone    string // calendar dates in sales reports
}

// GatewayConfig holds credentials for one payment gateway.
// Empty credentials put the adapter in mock mode.
type GatewayConfig struct {
	AccessToken     string
	WebhookSecret   string
	APIBaseURL      string
	NotificationURL string
	ReturnURL       string
}

// IsConfigured reports whether live credentials are present
func (g GatewayConfig) IsConfigured() bool {
	return g.AccessToken != "" && g.WebhookSecret != ""
}

// RedisConfig holds the replay guard connection
type RedisConfig struct {
	URL       string
	ReplayTTL time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:             getEnv("PORT", "8080"),
			Environment:      getEnv("ENVIRONMENT", "development"),
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Signature"}),
		},
		Booking: BookingConfig{
			HoldDuration:      time.Duration(getEnvAsInt("SEAT_HOLD_MINUTES", 15)) * time.Minute,
			ReclaimInterval:   time.Duration(getEnvAsInt("LOCK_RECLAIM_INTERVAL_SECONDS", 60)) * time.Second,
			ReclaimBatchSize:  getEnvAsInt("LOCK_RECLAIM_BATCH_SIZE", 500),
			FormTTL:           time.Duration(getEnvAsInt("PASSENGER_FORM_TTL_HOURS", 72)) * time.Hour,
			FormGrace:         time.Duration(getEnvAsInt("PASSENGER_FORM_GRACE_MINUTES", 10)) * time.Minute,
			PublicFormBaseURL: getEnv("PUBLIC_FORM_BASE_URL", "http://localhost:3000/pasajeros"),
			Currency:          getEnv("CURRENCY", "PEN"),
			CompanyName:       getEnv("COMPANY_NAME", "SmartTransit"),
			ReportTimezone:    getEnv("REPORT_TIMEZONE", "America/Lima"),
		},
		MercadoPago: GatewayConfig{
			AccessToken:     getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
			WebhookSecret:   getEnv("MERCADOPAGO_WEBHOOK_SECRET", ""),
			APIBaseURL:      getEnv("MERCADOPAGO_API_URL", "https://api.mercadopago.com"),
			NotificationURL: getEnv("MERCADOPAGO_NOTIFICATION_URL", ""),
			ReturnURL:       getEnv("MERCADOPAGO_RETURN_URL", ""),
		},
		Izipay: GatewayConfig{
			AccessToken:     getEnv("IZIPAY_API_KEY", ""),
			WebhookSecret:   getEnv("IZIPAY_HMAC_KEY", ""),
			APIBaseURL:      getEnv("IZIPAY_API_URL", "https://api.micuentaweb.pe"),
			NotificationURL: getEnv("IZIPAY_NOTIFICATION_URL", ""),
			ReturnURL:       getEnv("IZIPAY_RETURN_URL", ""),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			ReplayTTL: time.Duration(getEnvAsInt("WEBHOOK_REPLAY_TTL_HOURS", 24)) * time.Hour,
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.HoldDuration <= 0 {
		return fmt.Errorf("SEAT_HOLD_MINUTES must be positive")
	}

	if c.Booking.ReclaimInterval <= 0 {
		return fmt.Errorf("LOCK_RECLAIM_INTERVAL_SECONDS must be positive")
	}

	// Unconfigured gateways are left out of the production registry, so at
	// least one must be live
	if c.Server.Environment == "production" {
		if !c.MercadoPago.IsConfigured() && !c.Izipay.IsConfigured() {
			return fmt.Errorf("at least one payment gateway must be configured in production")
		}
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
