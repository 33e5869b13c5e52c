package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gridironhq/gridiron/internal/platform/logging"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Config stores runtime configuration for the client core.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string

	APIBaseURL           string
	APITimeout           time.Duration
	APIRetryBase         time.Duration
	APIRetryCap          time.Duration
	APIRetryAttempts     int
	APICircuitEnabled    bool
	APICircuitFailures   int
	APICircuitOpenFor    time.Duration
	APICircuitHalfOpen   int
	AppleSignInTimeout   time.Duration
	VerificationCooldown time.Duration

	StorePath string

	UptraceEnabled             bool
	UptraceDSN                 string
	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration

	LogLevel logging.Level
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:         appEnv,
		ServiceName:    getEnv("SERVICE_NAME", "gridiron"),
		ServiceVersion: getEnv("SERVICE_VERSION", "dev"),
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("API_BASE_URL", defaultBaseURL(appEnv))), "/")
	if cfg.APIBaseURL == "" {
		return Config{}, fmt.Errorf("API_BASE_URL is required")
	}

	apiTimeout, err := time.ParseDuration(getEnv("API_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse API_TIMEOUT: %w", err)
	}
	if apiTimeout <= 0 {
		return Config{}, fmt.Errorf("API_TIMEOUT must be > 0")
	}
	cfg.APITimeout = apiTimeout

	retryBase, err := time.ParseDuration(getEnv("API_RETRY_BASE", "500ms"))
	if err != nil {
		return Config{}, fmt.Errorf("parse API_RETRY_BASE: %w", err)
	}
	retryCap, err := time.ParseDuration(getEnv("API_RETRY_CAP", "8s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse API_RETRY_CAP: %w", err)
	}
	retryAttempts, err := getEnvAsInt("API_RETRY_ATTEMPTS", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse API_RETRY_ATTEMPTS: %w", err)
	}
	if retryAttempts < 1 {
		return Config{}, fmt.Errorf("API_RETRY_ATTEMPTS must be >= 1")
	}
	cfg.APIRetryBase = retryBase
	cfg.APIRetryCap = retryCap
	cfg.APIRetryAttempts = retryAttempts

	circuitEnabled, err := strconv.ParseBool(getEnv("API_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse API_CIRCUIT_ENABLED: %w", err)
	}
	circuitFailures, err := getEnvAsInt("API_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse API_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if circuitFailures < 1 {
		return Config{}, fmt.Errorf("API_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	circuitOpenFor, err := time.ParseDuration(getEnv("API_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse API_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if circuitOpenFor <= 0 {
		return Config{}, fmt.Errorf("API_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	circuitHalfOpen, err := getEnvAsInt("API_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse API_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if circuitHalfOpen < 1 {
		return Config{}, fmt.Errorf("API_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}
	cfg.APICircuitEnabled = circuitEnabled
	cfg.APICircuitFailures = circuitFailures
	cfg.APICircuitOpenFor = circuitOpenFor
	cfg.APICircuitHalfOpen = circuitHalfOpen

	appleTimeout, err := time.ParseDuration(getEnv("APPLE_SIGNIN_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APPLE_SIGNIN_TIMEOUT: %w", err)
	}
	if appleTimeout <= 0 {
		return Config{}, fmt.Errorf("APPLE_SIGNIN_TIMEOUT must be > 0")
	}
	cfg.AppleSignInTimeout = appleTimeout

	cooldown, err := time.ParseDuration(getEnv("VERIFICATION_RESEND_COOLDOWN", "60s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse VERIFICATION_RESEND_COOLDOWN: %w", err)
	}
	if cooldown <= 0 {
		return Config{}, fmt.Errorf("VERIFICATION_RESEND_COOLDOWN must be > 0")
	}
	cfg.VerificationCooldown = cooldown

	cfg.StorePath = strings.TrimSpace(getEnv("STORE_PATH", defaultStorePath()))
	if cfg.StorePath == "" {
		return Config{}, fmt.Errorf("STORE_PATH is required")
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	cfg.UptraceEnabled = uptraceEnabled
	cfg.UptraceDSN = strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if cfg.UptraceEnabled && cfg.UptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	cfg.PyroscopeEnabled = pyroscopeEnabled
	cfg.PyroscopeServerAddress = strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if cfg.PyroscopeEnabled && cfg.PyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	cfg.PyroscopeAppName = getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName)
	cfg.PyroscopeAuthToken = strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", ""))
	cfg.PyroscopeBasicAuthUser = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", ""))
	cfg.PyroscopeBasicAuthPassword = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", ""))

	uploadRate, err := time.ParseDuration(getEnv("PYROSCOPE_UPLOAD_RATE", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}
	cfg.PyroscopeUploadRate = uploadRate

	cfg.LogLevel = parseLogLevel(getEnv("APP_LOG_LEVEL", "info"))

	return cfg, nil
}

func defaultBaseURL(appEnv string) string {
	switch appEnv {
	case EnvProd:
		return "https://api.gridironhq.com"
	case EnvStage:
		return "https://api-staging.gridironhq.com"
	default:
		return "http://localhost:3000"
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "gridiron.db"
	}
	return filepath.Join(home, ".gridiron", "gridiron.db")
}

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}
