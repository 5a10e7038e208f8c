// Package config loads backend settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	JWT          JWTConfig
	Auth         AuthConfig
	Entitlements EntitlementsConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type JWTConfig struct {
	Secret                 string
	Expiration             time.Duration
	RefreshTokenExpiration time.Duration
}

// AuthConfig is the single development credential pair the reference backend
// accepts.
type AuthConfig struct {
	User     string
	Password string
}

// EntitlementsConfig is the quota tier the backend reports to every client.
// Zero means unlimited.
type EntitlementsConfig struct {
	MaxRecords    int
	MaxCategories int
}

func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := time.ParseDuration(getEnv("JWT_EXPIRATION", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION: %w", err)
	}

	refreshExp, err := time.ParseDuration(getEnv("REFRESH_TOKEN_EXPIRATION", "168h"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_TOKEN_EXPIRATION: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
		},
		JWT: JWTConfig{
			Secret:                 getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			Expiration:             jwtExp,
			RefreshTokenExpiration: refreshExp,
		},
		Auth: AuthConfig{
			User:     getEnv("AUTH_USER", "dev"),
			Password: getEnv("AUTH_PASSWORD", "dev"),
		},
		Entitlements: EntitlementsConfig{
			MaxRecords:    getEnvAsInt("MAX_RECORDS", 100),
			MaxCategories: getEnvAsInt("MAX_CATEGORIES", 10),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
