package container

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env.local then .env from the working directory.
// Missing files are ignored and variables already set are never overridden.
func LoadEnvFiles() error {
	envFiles := []string{".env.local", ".env"}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}

// OptionsFromEnv builds Options from the worker's environment variables.
func OptionsFromEnv() *Options {
	return &Options{
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		LogFormat:             getEnv("LOG_FORMAT", "json"),
		BotToken:              getEnv("TELEGRAM_BOT_TOKEN", ""),
		GlobalLimitPerSecond:  getEnvInt("TELEGRAM_GLOBAL_LIMIT_PER_SECOND", 30),
		ChatLimitPerMinute:    getEnvInt("TELEGRAM_CHAT_LIMIT_PER_MINUTE", 20),
		ChatIDs:               getEnv("TELEGRAM_CHAT_IDS", ""),
		Workers:               getEnvInt("WORKERS", 4),
		MetricsPort:           getEnvInt("METRICS_PORT", 9090),
		IngressLimitPerMinute: getEnvInt("INGRESS_LIMIT_PER_MINUTE", 60),
		AtomicClaim:           getEnv("RATE_LIMIT_ATOMIC_CLAIM", "") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}

	return v
}
