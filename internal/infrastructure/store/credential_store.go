package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	sonic "github.com/bytedance/sonic"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/gridironhq/gridiron/internal/domain/session"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	keySessionToken = "session_token"
	keyProfile      = "profile"
)

// CredentialStore persists the session token and cached profile in a local
// SQLite database. It is the on-device stand-in for a platform keychain:
// one row per key, replaced atomically on write.
type CredentialStore struct {
	db *sqlx.DB
}

var _ session.Store = (*CredentialStore)(nil)

func New(db *sqlx.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Migrate applies the embedded schema migrations to the database at path.
// Safe to run on every startup.
func Migrate(databasePath string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", source, "sqlite://"+databasePath)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *CredentialStore) Token(ctx context.Context) (string, bool, error) {
	return s.get(ctx, keySessionToken)
}

func (s *CredentialStore) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return s.ClearToken(ctx)
	}
	return s.put(ctx, keySessionToken, token)
}

func (s *CredentialStore) ClearToken(ctx context.Context) error {
	return s.delete(ctx, keySessionToken)
}

func (s *CredentialStore) Profile(ctx context.Context) (session.CachedProfile, bool, error) {
	raw, ok, err := s.get(ctx, keyProfile)
	if err != nil || !ok {
		return session.CachedProfile{}, false, err
	}

	var profile session.CachedProfile
	if err := sonic.Unmarshal([]byte(raw), &profile); err != nil {
		return session.CachedProfile{}, false, fmt.Errorf("decode cached profile: %w", err)
	}
	return profile, true, nil
}

func (s *CredentialStore) SetProfile(ctx context.Context, profile session.CachedProfile) error {
	encoded, err := sonic.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode cached profile: %w", err)
	}
	return s.put(ctx, keyProfile, string(encoded))
}

func (s *CredentialStore) ClearProfile(ctx context.Context) error {
	return s.delete(ctx, keyProfile)
}

func (s *CredentialStore) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM credentials WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read credential %s: %w", key, err)
	}
	return value, true, nil
}

func (s *CredentialStore) put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO credentials (key, value, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (key)
DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, key, value)
	if err != nil {
		return fmt.Errorf("write credential %s: %w", key, err)
	}
	return nil
}

func (s *CredentialStore) delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete credential %s: %w", key, err)
	}
	return nil
}
