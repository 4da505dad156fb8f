package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	EmbedderURL    string
	EmbeddingModel string

	GeminiBaseURL string
	GeminiModel   string
	GeminiAPIKey  string
	GeminiRPM     int
	GeminiRetries int

	CampusMapURL string

	BroadK       int
	MaxUnits     int
	PerUnitK     int
	MaxContext   int
	StoreRetries int
	StoreTimeout time.Duration

	AnswerMaxTokens int
	AnswerCacheSize int
	AnswerCacheTTL  time.Duration

	WorkerPollInterval time.Duration
}

func Load() *Config {
	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "9020"),

		DBHost:     getEnv("DB_HOST", "helper-db"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "helper_user"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "helper_password"),
		DBName:     getEnv("DB_NAME", "helper_db"),

		EmbedderURL:    getEnvWithAlt("EMBEDDER_URL", "OLLAMA_URL", "http://embedder:11434"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "bge-m3"),

		GeminiBaseURL: getEnv("GEMINI_BASE_URL", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiAPIKey:  getSecret("GEMINI_API_KEY", "GEMINI_API_KEY_FILE", ""),
		GeminiRPM:     getEnvInt("GEMINI_REQUESTS_PER_MINUTE", 10),
		GeminiRetries: getEnvInt("GEMINI_MAX_RETRIES", 3),

		CampusMapURL: getEnv("CAMPUS_MAP_URL", "https://map.ntu.edu.tw"),

		BroadK:       getEnvInt("RETRIEVAL_BROAD_K", 5),
		MaxUnits:     getEnvInt("RETRIEVAL_MAX_UNITS", 3),
		PerUnitK:     getEnvInt("RETRIEVAL_PER_UNIT_K", 4),
		MaxContext:   getEnvInt("RETRIEVAL_MAX_CONTEXT", 8),
		StoreRetries: getEnvInt("RETRIEVAL_STORE_RETRIES", 2),
		StoreTimeout: getEnvDuration("RETRIEVAL_STORE_TIMEOUT", 5*time.Second),

		AnswerMaxTokens: getEnvInt("ANSWER_MAX_TOKENS", 1024),
		AnswerCacheSize: getEnvInt("ANSWER_CACHE_SIZE", 256),
		AnswerCacheTTL:  getEnvDuration("ANSWER_CACHE_TTL", 10*time.Minute),

		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 1*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}

	// Docker/K8s secret mounted as a file.
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	return fallback
}

func getEnvWithAlt(key, altKey, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if value, ok := os.LookupEnv(altKey); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
