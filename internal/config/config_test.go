package config

import (
	"testing"
	"time"

	"github.com/gridironhq/gridiron/internal/platform/logging"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("API_BASE_URL", "")
	t.Setenv("STORE_PATH", "/tmp/gridiron-test.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.AppEnv != EnvDev {
		t.Fatalf("expected dev default, got %s", cfg.AppEnv)
	}
	if cfg.APIBaseURL != "http://localhost:3000" {
		t.Fatalf("unexpected dev base url: %s", cfg.APIBaseURL)
	}
	if cfg.APITimeout != 15*time.Second {
		t.Fatalf("unexpected api timeout: %s", cfg.APITimeout)
	}
	if cfg.APIRetryBase != 500*time.Millisecond || cfg.APIRetryCap != 8*time.Second || cfg.APIRetryAttempts != 3 {
		t.Fatalf("unexpected retry defaults: %+v", cfg)
	}
	if cfg.AppleSignInTimeout != 30*time.Second {
		t.Fatalf("unexpected apple timeout: %s", cfg.AppleSignInTimeout)
	}
	if cfg.VerificationCooldown != 60*time.Second {
		t.Fatalf("unexpected resend cooldown: %s", cfg.VerificationCooldown)
	}
	if !cfg.APICircuitEnabled {
		t.Fatalf("circuit breaker must default on")
	}
	if cfg.LogLevel != logging.LevelInfo {
		t.Fatalf("unexpected log level: %s", cfg.LogLevel)
	}
}

func TestLoad_EnvBaseURLs(t *testing.T) {
	t.Setenv("STORE_PATH", "/tmp/gridiron-test.db")
	t.Setenv("API_BASE_URL", "")

	t.Setenv("APP_ENV", "stage")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load stage failed: %v", err)
	}
	if cfg.APIBaseURL != "https://api-staging.gridironhq.com" {
		t.Fatalf("unexpected stage base url: %s", cfg.APIBaseURL)
	}

	t.Setenv("APP_ENV", "prod")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load prod failed: %v", err)
	}
	if cfg.APIBaseURL != "https://api.gridironhq.com" {
		t.Fatalf("unexpected prod base url: %s", cfg.APIBaseURL)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("STORE_PATH", "/tmp/gridiron-test.db")

	t.Setenv("APP_ENV", "production")
	if _, err := Load(); err == nil {
		t.Fatalf("expected invalid APP_ENV to fail")
	}
	t.Setenv("APP_ENV", "dev")

	t.Setenv("API_TIMEOUT", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatalf("expected invalid API_TIMEOUT to fail")
	}
	t.Setenv("API_TIMEOUT", "15s")

	t.Setenv("API_RETRY_ATTEMPTS", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected zero API_RETRY_ATTEMPTS to fail")
	}
	t.Setenv("API_RETRY_ATTEMPTS", "3")

	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected uptrace without DSN to fail")
	}
}

func TestLoad_OverridesAndTrimming(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("STORE_PATH", "/tmp/gridiron-test.db")
	t.Setenv("API_BASE_URL", "https://api.example.com/")
	t.Setenv("APPLE_SIGNIN_TIMEOUT", "45s")
	t.Setenv("APP_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.APIBaseURL != "https://api.example.com" {
		t.Fatalf("trailing slash must be trimmed: %s", cfg.APIBaseURL)
	}
	if cfg.AppleSignInTimeout != 45*time.Second {
		t.Fatalf("unexpected apple timeout: %s", cfg.AppleSignInTimeout)
	}
	if cfg.LogLevel != logging.LevelDebug {
		t.Fatalf("unexpected log level: %s", cfg.LogLevel)
	}
}
