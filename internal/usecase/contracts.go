package usecase

import (
	"context"
	"time"

	"github.com/gridironhq/gridiron/internal/domain/user"
)

// AuthAPI is the remote authentication boundary. Implementations translate
// transport and status failures into the sentinel errors in this package
// (ErrNetwork, ErrServer, ErrInvalidCode, ErrRateLimited, ErrUnauthorized).
type AuthAPI interface {
	SendVerificationCode(ctx context.Context, email string) (CodeIssued, error)
	EmailAuth(ctx context.Context, input EmailAuthInput) (AuthResult, error)
	AppleAuth(ctx context.Context, input AppleAuthInput) (AuthResult, error)
	FetchProfile(ctx context.Context, token string) (user.Profile, error)
	SaveProfile(ctx context.Context, token string, profile user.Profile) (user.Profile, error)
	RequestPasswordReset(ctx context.Context, email string) error
}

// CodeIssued reports a successfully dispatched verification code.
type CodeIssued struct {
	Message   string
	ExpiresIn time.Duration
}

// EmailAuthInput covers both signup (profile fields set) and signin (only
// email + code). Role/position carry in-process forms; the client lowers
// them to wire format.
type EmailAuthInput struct {
	Email     string
	Code      string
	Role      user.Role
	Position  user.Position
	FirstName string
	LastName  string
	Age       int
}

type AppleAuthInput struct {
	AppleUserID string
	Email       string
	FirstName   string
	LastName    string
	Role        user.Role
	Position    user.Position
	Age         int
}

// AuthResult is the common success shape of both authentication endpoints.
type AuthResult struct {
	User      user.Profile
	Token     string
	IsNewUser bool
}

// AppleCredential is the opaque identity asserted by the platform provider.
type AppleCredential struct {
	UserID    string
	Email     string
	FirstName string
	LastName  string
	Nonce     string
}

// IdentityProvider abstracts the platform sign-in sheet. Authenticate blocks
// until the user completes or dismisses the flow; cancellation is reported
// with ErrAppleCanceled, other provider failures with ErrAppleFailed. The
// nonce digest is threaded into the request for replay protection and must
// come back inside the credential.
type IdentityProvider interface {
	Authenticate(ctx context.Context, nonceDigest string) (AppleCredential, error)
}
