package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterReferer string
	OpenRouterTitle   string

	GeminiAPIKey string

	// optional per-strategy primary model overrides; empty keeps the
	// built-in registry default
	ModelLightweight string
	ModelStandard    string
	ModelHandwriting string
	ModelBatch       string
	ModelMixed       string
	ModelFallback    string

	LogLevel       string
	CacheCapacity  int
	MaxConcurrency int

	// scan-history rows older than this many days are purged at boot
	ScanRetentionDays int
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing required env %s", k)
	}
	return v
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func Load() *Config {
	// local dev keeps keys in .env; containers pass real env
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8000"),

		OpenRouterAPIKey:  mustEnv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterReferer: getEnv("OPENROUTER_REFERER", ""),
		OpenRouterTitle:   getEnv("OPENROUTER_TITLE", "receipt-ocr"),

		// gemini only serves escalation chains; an empty key skips it
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),

		ModelLightweight: getEnv("OCR_MODEL_LIGHTWEIGHT", ""),
		ModelStandard:    getEnv("OCR_MODEL_STANDARD", ""),
		ModelHandwriting: getEnv("OCR_MODEL_HANDWRITING", ""),
		ModelBatch:       getEnv("OCR_MODEL_BATCH", ""),
		ModelMixed:       getEnv("OCR_MODEL_MIXED", ""),
		ModelFallback:    getEnv("OCR_MODEL_FALLBACK", ""),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		CacheCapacity:  getEnvInt("OCR_CACHE_CAPACITY", 100),
		MaxConcurrency: getEnvInt("OCR_MAX_CONCURRENCY", 3),

		ScanRetentionDays: getEnvInt("SCAN_RETENTION_DAYS", 90),
	}
}
