package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string

	DBDriver string // sqlite|postgres|memory
	DBDSN    string

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	LLMModel          string
	LLMTemperature    float32
	GenerationTimeout time.Duration
	LLMLogDir         string

	SessionSecret string

	RedisAddr     string // empty keeps locking in-process
	RedisPassword string
	RedisDB       int

	CORSOrigins []string
	Verbose     bool
}

func FromEnv() Config {
	return Config{
		HTTPAddr:          envOr("HTTP_ADDR", ":8180"),
		DBDriver:          envOr("DB_DRIVER", "sqlite"),
		DBDSN:             envOr("DB_DSN", ""),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		LLMModel:          envOr("LLM_MODEL", "gpt-4o"),
		LLMTemperature:    float32(envFloat("LLM_TEMPERATURE", 0.7)),
		GenerationTimeout: time.Duration(envInt("GENERATION_TIMEOUT_SEC", 90)) * time.Second,
		LLMLogDir:         envOr("LLM_LOG_DIR", "log"),
		SessionSecret:     envOr("SESSION_SECRET", "quiz-session-secret"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           envInt("REDIS_DB", 0),
		CORSOrigins:       csvOr("CORS_ORIGINS", "http://localhost:3000,http://localhost:8180"),
		Verbose:           envBool("VERBOSE", false),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return n
}

func envFloat(k string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(k)), 32)
	if err != nil {
		return def
	}
	return f
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
