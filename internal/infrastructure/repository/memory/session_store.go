package memory

import (
	"context"
	"sync"

	"github.com/gridironhq/gridiron/internal/domain/session"
)

// SessionStore keeps the token and cached profile in process memory. Used in
// tests and ephemeral environments where nothing should touch disk.
type SessionStore struct {
	mu         sync.RWMutex
	token      string
	hasToken   bool
	profile    session.CachedProfile
	hasProfile bool
}

var _ session.Store = (*SessionStore)(nil)

func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

func (s *SessionStore) Token(_ context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.hasToken, nil
}

func (s *SessionStore) SetToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.hasToken = token != ""
	return nil
}

func (s *SessionStore) ClearToken(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.hasToken = false
	return nil
}

func (s *SessionStore) Profile(_ context.Context) (session.CachedProfile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile, s.hasProfile, nil
}

func (s *SessionStore) SetProfile(_ context.Context, profile session.CachedProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
	s.hasProfile = true
	return nil
}

func (s *SessionStore) ClearProfile(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = session.CachedProfile{}
	s.hasProfile = false
	return nil
}
