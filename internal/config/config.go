package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	APIKey      string

	AmadeusAPIKey    string
	AmadeusAPISecret string
	AmadeusBaseURL   string

	PollTickSecs int
	PollWorkers  int

	ProviderRetryAttempts       int
	ProviderRetryBackoffMillis  int
	ProviderBreakerFailures     int
	ProviderBreakerCooldownSecs int
	ProviderTimeoutSecs         int
	QuoteCacheTTLSecs           int
	TokenSafetyMarginSecs       int

	TelegramBotToken string

	OpenAIAPIKey      string
	OpenAIModel       string
	AdvisorMaxHistory int

	SSHBind        string
	SSHPort        int
	SSHHostKeyPath string
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		APIKey:           os.Getenv("API_KEY"),
		AmadeusAPIKey:    os.Getenv("AMADEUS_API_KEY"),
		AmadeusAPISecret: os.Getenv("AMADEUS_API_SECRET"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.AmadeusAPIKey == "" || cfg.AmadeusAPISecret == "" {
		log.Println("Warning: AMADEUS_API_KEY/AMADEUS_API_SECRET not set, provider calls will fail")
	}

	cfg.AmadeusBaseURL = strings.TrimSpace(os.Getenv("AMADEUS_BASE_URL"))
	if cfg.AmadeusBaseURL == "" {
		cfg.AmadeusBaseURL = "https://api.amadeus.com"
	}

	cfg.PollTickSecs = intEnv("POLL_TICK_SECS", 60)
	cfg.PollWorkers = intEnv("POLL_WORKERS", 4)

	cfg.ProviderRetryAttempts = intEnv("PROVIDER_RETRY_ATTEMPTS", 3)
	cfg.ProviderRetryBackoffMillis = intEnv("PROVIDER_RETRY_BACKOFF_MS", 1000)
	cfg.ProviderBreakerFailures = intEnv("PROVIDER_BREAKER_FAILURES", 5)
	cfg.ProviderBreakerCooldownSecs = intEnv("PROVIDER_BREAKER_COOLDOWN_SECS", 30)
	cfg.ProviderTimeoutSecs = intEnv("PROVIDER_TIMEOUT_SECS", 30)
	cfg.QuoteCacheTTLSecs = intEnv("QUOTE_CACHE_TTL_SECS", 300)
	cfg.TokenSafetyMarginSecs = intEnv("TOKEN_SAFETY_MARGIN_SECS", 60)

	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, advisor will be disabled")
	}
	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}
	cfg.AdvisorMaxHistory = intEnv("ADVISOR_MAX_HISTORY", 20)

	cfg.SSHBind = strings.TrimSpace(os.Getenv("SSH_BIND"))
	if cfg.SSHBind == "" {
		cfg.SSHBind = "0.0.0.0"
	}
	cfg.SSHPort = intEnv("SSH_PORT", 2222)
	cfg.SSHHostKeyPath = strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH"))
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/farewatch_ed25519"
	}

	return cfg
}

func intEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid %s=%q, defaulting to %d", key, v, def)
		return def
	}
	return n
}
