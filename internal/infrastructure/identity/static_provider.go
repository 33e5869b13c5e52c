package identity

import (
	"context"
	"fmt"

	"github.com/gridironhq/gridiron/internal/usecase"
)

// StaticProvider returns a fixed Apple credential with the caller's nonce
// digest echoed back. It stands in for the platform sign-in sheet in tests
// and local development, where no Apple account is available.
type StaticProvider struct {
	UserID    string
	Email     string
	FirstName string
	LastName  string

	// Cancel makes every Authenticate report a user dismissal.
	Cancel bool
	// Err, when set, is returned verbatim instead of a credential.
	Err error
}

var _ usecase.IdentityProvider = (*StaticProvider)(nil)

func (p *StaticProvider) Authenticate(ctx context.Context, nonceDigest string) (usecase.AppleCredential, error) {
	select {
	case <-ctx.Done():
		return usecase.AppleCredential{}, ctx.Err()
	default:
	}

	if p.Err != nil {
		return usecase.AppleCredential{}, p.Err
	}
	if p.Cancel {
		return usecase.AppleCredential{}, fmt.Errorf("%w: dismissed by user", usecase.ErrAppleCanceled)
	}

	return usecase.AppleCredential{
		UserID:    p.UserID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Nonce:     nonceDigest,
	}, nil
}
