package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort  string
	Environment string

	// Message store backend: "firestore", "postgres" or "memory".
	StoreDriver string

	FirebaseProject string
	PostgresDSN     string

	// SMTP settings for new-message notifications. Dispatch is disabled
	// when EmailHost is empty.
	EmailHost string
	EmailPort int
	EmailUser string
	EmailPass string
	EmailFrom string

	// Base URL of the web frontend, used in notification emails.
	FrontendURL string
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		StoreDriver:     getEnv("STORE_DRIVER", "firestore"),
		FirebaseProject: getEnv("FIREBASE_PROJECT_ID", ""),
		PostgresDSN:     getEnv("POSTGRES_DSN", ""),
		EmailHost:       getEnv("EMAIL_HOST", ""),
		EmailPort:       getEnvAsInt("EMAIL_PORT", 587),
		EmailUser:       getEnv("EMAIL_USER", ""),
		EmailPass:       getEnv("EMAIL_PASS", ""),
		EmailFrom:       getEnv("EMAIL_FROM", "no-reply@homeconnect.app"),
		FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:5173"),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}
