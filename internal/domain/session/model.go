package session

import (
	"strings"
	"time"

	"github.com/gridironhq/gridiron/internal/domain/user"
)

// Session pairs the opaque bearer token with the profile it authenticates.
// Token presence is authoritative for the authenticated state: exactly one
// token is live at a time.
type Session struct {
	Token     string
	User      user.Profile
	CreatedAt time.Time
}

func (s Session) Authenticated() bool {
	return strings.TrimSpace(s.Token) != ""
}

// PendingVerification tracks an email awaiting a one-time code. It exists
// only between "code sent" and "code verified or abandoned".
type PendingVerification struct {
	Email          string
	Purpose        VerificationPurpose
	ExpiresAt      time.Time
	ResendAt       time.Time
	FailedAttempts int
}

func (p PendingVerification) ResendAvailable(now time.Time) bool {
	return !now.Before(p.ResendAt)
}

func (p PendingVerification) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

type VerificationPurpose string

const (
	PurposeSignUp VerificationPurpose = "signUp"
	PurposeSignIn VerificationPurpose = "signIn"
)
