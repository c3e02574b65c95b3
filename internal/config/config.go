package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            string
	Environment     string
	SupabaseURL     string
	SupabaseDBURL   string
	SupabaseJWKSURL string // Constructed from SupabaseURL + /auth/v1/.well-known/jwks.json
	CORSOrigins     string
	TablePrefix     string

	// Debate orchestration
	DebateTimeout   time.Duration // session watchdog ceiling
	DebateRounds    int           // review rounds per session
	MaxParticipants int           // text providers per session
	FreeTrial       bool          // one text-only session without reservation

	// Cost table
	CostsPath string // YAML cost table, see costs.go

	// Payment gateways
	NowPaymentsIPNSecret string
	StripeWebhookSecret  string

	// Compose worker
	ComposerURL      string
	ComposerSecret   string
	WorkerPollPeriod time.Duration

	// Notifications
	LowBalanceThreshold int

	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	tablePrefix := getTablePrefix(env)
	supabaseURL := getEnv("SUPABASE_URL", "")

	// Construct JWKS URL from Supabase URL
	jwksURL := supabaseURL + "/auth/v1/.well-known/jwks.json"

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     env,
		SupabaseURL:     supabaseURL,
		SupabaseDBURL:   getEnv("SUPABASE_DB_URL", ""),
		SupabaseJWKSURL: jwksURL,
		CORSOrigins:     getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:     tablePrefix,

		DebateTimeout:   getDuration("DEBATE_TIMEOUT", 5*time.Minute),
		DebateRounds:    getInt("DEBATE_ROUNDS", 1),
		MaxParticipants: getInt("DEBATE_MAX_PARTICIPANTS", 3),
		FreeTrial:       getEnv("FREE_TRIAL_ENABLED", "true") == "true",

		CostsPath: getEnv("COSTS_PATH", "costs.yaml"),

		NowPaymentsIPNSecret: getEnv("NOWPAYMENTS_IPN_SECRET", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),

		ComposerURL:      getEnv("COMPOSER_URL", ""),
		ComposerSecret:   getEnv("COMPOSER_SECRET", ""),
		WorkerPollPeriod: getDuration("WORKER_POLL_PERIOD", 15*time.Second),

		LowBalanceThreshold: getInt("LOW_BALANCE_THRESHOLD", 3),

		// Debug defaults to true outside prod
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
