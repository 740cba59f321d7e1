package config

import "testing"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "API_KEY",
		"AMADEUS_API_KEY", "AMADEUS_API_SECRET", "AMADEUS_BASE_URL",
		"POLL_TICK_SECS", "POLL_WORKERS",
		"PROVIDER_RETRY_ATTEMPTS", "PROVIDER_RETRY_BACKOFF_MS",
		"PROVIDER_BREAKER_FAILURES", "PROVIDER_BREAKER_COOLDOWN_SECS",
		"PROVIDER_TIMEOUT_SECS", "QUOTE_CACHE_TTL_SECS", "TOKEN_SAFETY_MARGIN_SECS",
		"TELEGRAM_BOT_TOKEN", "OPENAI_API_KEY", "OPENAI_MODEL", "ADVISOR_MAX_HISTORY",
		"SSH_BIND", "SSH_PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if cfg.AmadeusBaseURL != "https://api.amadeus.com" {
		t.Fatalf("expected default amadeus base url, got %s", cfg.AmadeusBaseURL)
	}
	if cfg.PollTickSecs != 60 {
		t.Fatalf("expected default tick secs 60, got %d", cfg.PollTickSecs)
	}
	if cfg.PollWorkers != 4 {
		t.Fatalf("expected default workers 4, got %d", cfg.PollWorkers)
	}
	if cfg.ProviderRetryAttempts != 3 || cfg.ProviderBreakerFailures != 5 {
		t.Fatalf("unexpected resilience defaults: %+v", cfg)
	}
	if cfg.QuoteCacheTTLSecs != 300 || cfg.TokenSafetyMarginSecs != 60 {
		t.Fatalf("unexpected cache defaults: %+v", cfg)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Fatalf("expected default model, got %s", cfg.OpenAIModel)
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("AMADEUS_API_KEY", "key")
	t.Setenv("AMADEUS_API_SECRET", "secret")
	t.Setenv("AMADEUS_BASE_URL", "https://test.api.amadeus.com")
	t.Setenv("POLL_TICK_SECS", "30")
	t.Setenv("PROVIDER_BREAKER_COOLDOWN_SECS", "45")

	cfg := Load()
	if cfg.DatabaseURL != "postgres://example" || cfg.RedisURL != "redis:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.AmadeusBaseURL != "https://test.api.amadeus.com" {
		t.Fatalf("unexpected amadeus url: %s", cfg.AmadeusBaseURL)
	}
	if cfg.PollTickSecs != 30 || cfg.ProviderBreakerCooldownSecs != 45 {
		t.Fatalf("unexpected poll config: %+v", cfg)
	}

	t.Setenv("POLL_TICK_SECS", "bad")
	cfg = Load()
	if cfg.PollTickSecs != 60 {
		t.Fatalf("invalid tick secs should fall back to default, got %d", cfg.PollTickSecs)
	}
}
