package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	_ "modernc.org/sqlite"

	"github.com/gridironhq/gridiron/internal/config"
	"github.com/gridironhq/gridiron/internal/domain/entitlement"
	"github.com/gridironhq/gridiron/internal/infrastructure/authapi"
	"github.com/gridironhq/gridiron/internal/infrastructure/store"
	"github.com/gridironhq/gridiron/internal/platform/logging"
	"github.com/gridironhq/gridiron/internal/platform/resilience"
	"github.com/gridironhq/gridiron/internal/usecase"
)

// App wires the client core together: local credential storage, the backend
// API client, and the onboarding, session, and entitlement services. All
// dependencies are explicit; nothing here is a process-wide singleton.
type App struct {
	Config       config.Config
	Logger       *logging.Logger
	DB           *sqlx.DB
	API          *authapi.Client
	Onboarding   *usecase.OnboardingService
	Sessions     *usecase.SessionService
	Entitlements *usecase.EntitlementService
}

func New(ctx context.Context, cfg config.Config, logger *logging.Logger, provider usecase.IdentityProvider) (*App, error) {
	if logger == nil {
		logger = logging.NewJSON(cfg.LogLevel)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if err := store.Migrate(cfg.StorePath); err != nil {
		return nil, err
	}

	db, err := otelsqlx.Open("sqlite", cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping credential store: %w", err)
	}

	apiClient := authapi.NewClient(authapi.ClientConfig{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.APITimeout,
		Logger:  logger,
		Backoff: resilience.BackoffConfig{
			Base:     cfg.APIRetryBase,
			Cap:      cfg.APIRetryCap,
			Attempts: cfg.APIRetryAttempts,
		},
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.APICircuitEnabled,
			FailureThreshold: cfg.APICircuitFailures,
			OpenTimeout:      cfg.APICircuitOpenFor,
			HalfOpenMaxReq:   cfg.APICircuitHalfOpen,
		},
	})

	sessions, err := usecase.NewSessionService(
		apiClient,
		store.New(db),
		provider,
		logger,
		usecase.SessionServiceConfig{
			AppleTimeout:   cfg.AppleSignInTimeout,
			ResendCooldown: cfg.VerificationCooldown,
		},
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("build session service: %w", err)
	}

	if err := sessions.Restore(ctx); err != nil {
		logger.WarnContext(ctx, "session restore failed, starting signed out", "error", err)
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		API:          apiClient,
		Onboarding:   usecase.NewOnboardingService(),
		Sessions:     sessions,
		Entitlements: usecase.NewEntitlementService(entitlement.DefaultCatalog()),
	}, nil
}

// Close releases the session broker and the credential store. Give callers a
// beat to drain pending notifications before the database goes away.
func (a *App) Close(ctx context.Context) error {
	a.Sessions.Close()

	done := make(chan error, 1)
	go func() { done <- a.DB.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("close credential store: timed out")
	}
}
