package session

import "context"

// TokenStore persists the bearer token across process restarts. Set replaces
// any previous token; writes must be atomic with respect to reads so a
// reader never observes a torn state.
type TokenStore interface {
	Token(ctx context.Context) (string, bool, error)
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// ProfileCache keeps the last known profile next to the token so a restarted
// process can show identity without a network round-trip.
type ProfileCache interface {
	Profile(ctx context.Context) (CachedProfile, bool, error)
	SetProfile(ctx context.Context, profile CachedProfile) error
	ClearProfile(ctx context.Context) error
}

// CachedProfile is the serialized subset of user.Profile written to local
// storage.
type CachedProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	Position  string `json:"position,omitempty"`
	Age       int    `json:"age,omitempty"`
	Tier      string `json:"tier,omitempty"`
}

// Store combines the durable pieces a session manager needs.
type Store interface {
	TokenStore
	ProfileCache
}
