package config

import (
	"errors"
	"os"
	"time"
)

type Config struct {
	ListenAddr  string
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTExpiry   time.Duration
}

func Load() *Config {
	config := &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		JWTSecret:   getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTIssuer:   getEnv("JWT_ISS", "device-custody-api"),
		JWTAudience: getEnv("JWT_AUD", "device-custody-api"),
		JWTExpiry:   24 * time.Hour, // Default to 24 hours
	}

	// Parse JWT expiry from environment if provided
	if expiryStr := os.Getenv("JWT_EXPIRY"); expiryStr != "" {
		if expiry, err := time.ParseDuration(expiryStr); err == nil {
			config.JWTExpiry = expiry
		}
	}

	return config
}

// Validate rejects configurations the server must not start with
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT secret must not be empty")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT secret must be at least 32 characters")
	}
	if c.JWTIssuer == "" {
		return errors.New("JWT issuer must not be empty")
	}
	if c.JWTAudience == "" {
		return errors.New("JWT audience must not be empty")
	}
	if c.JWTExpiry <= 0 {
		return errors.New("JWT expiry must be positive")
	}
	if c.ListenAddr == "" {
		return errors.New("listen address must not be empty")
	}
	return nil
}

// LoadAndValidate loads the configuration and validates it in one step
func LoadAndValidate() (*Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
