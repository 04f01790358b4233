package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port            string
	DataPath        string
	JWTSecret       string
	TokenTTL        time.Duration
	ConflictRetries int
	LogLevel        string
	LogFormat       string
	DB              DBConfig
}

type DBConfig struct {
	// Driver selects the persistence gateway: "json", "mysql" or "postgres".
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// Load reads a .env file when present, then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not read .env file, using process environment")
	}

	return &Config{
		Port:            getEnv("PORT", "8000"),
		DataPath:        getEnv("DATA_PATH", "demo_data.json"),
		JWTSecret:       getEnv("JWT_SECRET", "alternatif-bank-experience"),
		TokenTTL:        getEnvDuration("TOKEN_TTL", 24*time.Hour),
		ConflictRetries: getEnvInt("CONFLICT_RETRIES", 3),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		DB: DBConfig{
			Driver:   getEnv("STORE_DRIVER", "json"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "banking_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
		log.Warn().Str("key", key).Str("value", value).Msg("not an integer, using default")
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("not a duration, using default")
	}
	return fallback
}
