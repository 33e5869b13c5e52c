package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gridironhq/gridiron/internal/domain/session"
	"github.com/gridironhq/gridiron/internal/domain/user"
	"github.com/gridironhq/gridiron/internal/infrastructure/repository/memory"
	"github.com/gridironhq/gridiron/internal/platform/logging"
)

type fakeAuthAPI struct {
	sendCalls  int
	sendErr    error
	issued     CodeIssued
	emailCalls int
	emailErr   error
	emailOut   AuthResult
	lastInput  EmailAuthInput
	appleCalls int
	appleErr   error
	appleOut   AuthResult
	lastApple  AppleAuthInput
	fetchCalls int
	fetchErr   error
	fetchOut   user.Profile
	saveErr    error
	resetCalls int
}

func (f *fakeAuthAPI) SendVerificationCode(_ context.Context, _ string) (CodeIssued, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return CodeIssued{}, f.sendErr
	}
	return f.issued, nil
}

func (f *fakeAuthAPI) EmailAuth(_ context.Context, input EmailAuthInput) (AuthResult, error) {
	f.emailCalls++
	f.lastInput = input
	if f.emailErr != nil {
		return AuthResult{}, f.emailErr
	}
	return f.emailOut, nil
}

func (f *fakeAuthAPI) AppleAuth(_ context.Context, input AppleAuthInput) (AuthResult, error) {
	f.appleCalls++
	f.lastApple = input
	if f.appleErr != nil {
		return AuthResult{}, f.appleErr
	}
	return f.appleOut, nil
}

func (f *fakeAuthAPI) FetchProfile(_ context.Context, _ string) (user.Profile, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return user.Profile{}, f.fetchErr
	}
	return f.fetchOut, nil
}

func (f *fakeAuthAPI) SaveProfile(_ context.Context, _ string, profile user.Profile) (user.Profile, error) {
	if f.saveErr != nil {
		return user.Profile{}, f.saveErr
	}
	return profile, nil
}

func (f *fakeAuthAPI) RequestPasswordReset(_ context.Context, _ string) error {
	f.resetCalls++
	return nil
}

// fakeProvider echoes the nonce digest back unless told otherwise.
type fakeProvider struct {
	cred      AppleCredential
	err       error
	badNonce  bool
	blockCtx  bool
	callCount int
}

func (p *fakeProvider) Authenticate(ctx context.Context, nonceDigest string) (AppleCredential, error) {
	p.callCount++
	if p.blockCtx {
		<-ctx.Done()
		return AppleCredential{}, ctx.Err()
	}
	if p.err != nil {
		return AppleCredential{}, p.err
	}
	cred := p.cred
	if !p.badNonce {
		cred.Nonce = nonceDigest
	}
	return cred, nil
}

func newTestSessionService(t *testing.T, api AuthAPI, provider IdentityProvider) (*SessionService, *memory.SessionStore) {
	t.Helper()

	store := memory.NewSessionStore()
	service, err := NewSessionService(api, store, provider, logging.NewNop(), SessionServiceConfig{
		AppleTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("build session service: %v", err)
	}
	t.Cleanup(service.Close)
	return service, store
}

func playerResult(token string) AuthResult {
	return AuthResult{
		Token: token,
		User: user.Profile{
			ID:        "user-1",
			Email:     "kid@example.com",
			FirstName: "Jordan",
			Role:      user.RolePlayer,
			Position:  user.PositionQB,
			Age:       12,
			Tier:      user.TierFree,
		},
	}
}

func TestSessionService_SendVerificationCodeCooldown(t *testing.T) {
	api := &fakeAuthAPI{issued: CodeIssued{Message: "sent", ExpiresIn: 10 * time.Minute}}
	service, _ := newTestSessionService(t, api, nil)

	pending, err := service.SendVerificationCode(t.Context(), "Kid@Example.com ", session.PurposeSignUp)
	if err != nil {
		t.Fatalf("send code failed: %v", err)
	}
	if pending.Email != "kid@example.com" {
		t.Fatalf("email not normalized: %q", pending.Email)
	}
	if api.sendCalls != 1 {
		t.Fatalf("expected 1 api call, got %d", api.sendCalls)
	}

	// Resend inside the cooldown window returns the pending record without a
	// second network call.
	_, err = service.SendVerificationCode(t.Context(), "kid@example.com", session.PurposeSignUp)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited inside cooldown, got %v", err)
	}
	if api.sendCalls != 1 {
		t.Fatalf("cooldown must suppress the api call, got %d calls", api.sendCalls)
	}

	// After the cooldown elapses the resend goes through.
	service.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := service.SendVerificationCode(t.Context(), "kid@example.com", session.PurposeSignUp); err != nil {
		t.Fatalf("resend after cooldown failed: %v", err)
	}
	if api.sendCalls != 2 {
		t.Fatalf("expected 2 api calls after cooldown, got %d", api.sendCalls)
	}
}

func TestSessionService_SendVerificationCodeRejectsBadEmail(t *testing.T) {
	api := &fakeAuthAPI{}
	service, _ := newTestSessionService(t, api, nil)

	_, err := service.SendVerificationCode(t.Context(), "not-an-email", session.PurposeSignUp)
	if !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if api.sendCalls != 0 {
		t.Fatalf("invalid email must never reach the network")
	}
}

func TestSessionService_VerifySignUpCode(t *testing.T) {
	api := &fakeAuthAPI{emailOut: playerResult("token-abc")}
	service, store := newTestSessionService(t, api, nil)

	profile, err := service.VerifySignUpCode(t.Context(), VerifySignUpInput{
		Email:     "kid@example.com",
		Code:      "123456",
		FirstName: "Jordan",
		LastName:  "Lee",
		Role:      user.RolePlayer,
		Position:  user.PositionQB,
		Age:       12,
	})
	if err != nil {
		t.Fatalf("verify signup failed: %v", err)
	}
	if profile.ID != "user-1" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if !service.IsAuthenticated() {
		t.Fatalf("expected authenticated state after signup")
	}

	token, ok, err := store.Token(t.Context())
	if err != nil || !ok || token != "token-abc" {
		t.Fatalf("token not persisted: %q ok=%v err=%v", token, ok, err)
	}
	cached, ok, err := store.Profile(t.Context())
	if err != nil || !ok || cached.ID != "user-1" {
		t.Fatalf("profile not persisted: %+v ok=%v err=%v", cached, ok, err)
	}
}

func TestSessionService_VerifySignUpCodeLocalValidation(t *testing.T) {
	api := &fakeAuthAPI{}
	service, _ := newTestSessionService(t, api, nil)

	cases := []struct {
		name  string
		input VerifySignUpInput
		want  error
	}{
		{"short code", VerifySignUpInput{Email: "a@b.com", Code: "123", Role: user.RoleCoach}, ErrInvalidCode},
		{"non-digit code", VerifySignUpInput{Email: "a@b.com", Code: "12a456", Role: user.RoleCoach}, ErrInvalidCode},
		{"missing role", VerifySignUpInput{Email: "a@b.com", Code: "123456"}, ErrInvalidInput},
		{"player without position", VerifySignUpInput{Email: "a@b.com", Code: "123456", Role: user.RolePlayer, Age: 12}, ErrInvalidInput},
		{"player age too low", VerifySignUpInput{Email: "a@b.com", Code: "123456", Role: user.RolePlayer, Position: user.PositionWR, Age: 4}, ErrInvalidInput},
		{"player age too high", VerifySignUpInput{Email: "a@b.com", Code: "123456", Role: user.RolePlayer, Position: user.PositionWR, Age: 19}, ErrInvalidInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := service.VerifySignUpCode(t.Context(), tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if api.emailCalls != 0 {
		t.Fatalf("local validation failures must never reach the network, got %d calls", api.emailCalls)
	}
}

func TestSessionService_WrongCodeLeavesUnauthenticatedAndLocksOut(t *testing.T) {
	api := &fakeAuthAPI{emailErr: fmt.Errorf("%w: status=400", ErrInvalidCode)}
	service, _ := newTestSessionService(t, api, nil)

	input := VerifySignUpInput{
		Email: "kid@example.com", Code: "000000",
		Role: user.RolePlayer, Position: user.PositionQB, Age: 12,
	}

	for i := 0; i < 5; i++ {
		_, err := service.VerifySignUpCode(t.Context(), input)
		if !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i+1, err)
		}
		if service.IsAuthenticated() {
			t.Fatalf("wrong code must leave the session unauthenticated")
		}
		if got := service.State().Message; got != UserMessage(ErrInvalidCode) {
			t.Fatalf("expected invalid-code message, got %q", got)
		}
	}
	if api.emailCalls != 5 {
		t.Fatalf("expected 5 api calls, got %d", api.emailCalls)
	}

	// The sixth attempt is locked out before the network.
	_, err := service.VerifySignUpCode(t.Context(), input)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited after lockout, got %v", err)
	}
	if api.emailCalls != 5 {
		t.Fatalf("lockout must suppress the api call, got %d calls", api.emailCalls)
	}
}

func TestSessionService_ExpiredCodeRejectedLocally(t *testing.T) {
	api := &fakeAuthAPI{
		issued:   CodeIssued{Message: "sent", ExpiresIn: 10 * time.Minute},
		emailOut: playerResult("token-abc"),
	}
	service, _ := newTestSessionService(t, api, nil)

	if _, err := service.SendVerificationCode(t.Context(), "kid@example.com", session.PurposeSignUp); err != nil {
		t.Fatalf("send code failed: %v", err)
	}

	// The code has lapsed but the pending record is still held.
	service.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	_, err := service.VerifySignUpCode(t.Context(), VerifySignUpInput{
		Email: "kid@example.com", Code: "123456",
		FirstName: "Jordan", LastName: "Lee",
		Role: user.RolePlayer, Position: user.PositionQB, Age: 12,
	})
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode for expired code, got %v", err)
	}
	if api.emailCalls != 0 {
		t.Fatalf("expired code must be rejected before the network, got %d calls", api.emailCalls)
	}

	if _, _, err := service.VerifySignInCode(t.Context(), "kid@example.com", "123456"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("signin path must reject the expired code too, got %v", err)
	}
	if api.emailCalls != 0 {
		t.Fatalf("expected no api calls, got %d", api.emailCalls)
	}
}

func TestSessionService_VerifySignInCode(t *testing.T) {
	result := playerResult("token-xyz")
	result.IsNewUser = true
	api := &fakeAuthAPI{emailOut: result}
	service, _ := newTestSessionService(t, api, nil)

	profile, isNew, err := service.VerifySignInCode(t.Context(), "kid@example.com", "654321")
	if err != nil {
		t.Fatalf("verify signin failed: %v", err)
	}
	if !isNew {
		t.Fatalf("expected is_new_user passthrough")
	}
	if profile.Email != "kid@example.com" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if api.lastInput.Role != "" || api.lastInput.Position != "" {
		t.Fatalf("signin must not carry profile fields: %+v", api.lastInput)
	}
}

func TestSessionService_SignOutIsIdempotent(t *testing.T) {
	api := &fakeAuthAPI{emailOut: playerResult("token-abc")}
	service, store := newTestSessionService(t, api, nil)

	if _, _, err := service.VerifySignInCode(t.Context(), "kid@example.com", "123456"); err != nil {
		t.Fatalf("signin failed: %v", err)
	}

	if err := service.SignOut(t.Context()); err != nil {
		t.Fatalf("sign out failed: %v", err)
	}
	if service.IsAuthenticated() {
		t.Fatalf("expected signed-out state")
	}
	if _, ok, _ := store.Token(t.Context()); ok {
		t.Fatalf("token must be cleared from the store")
	}

	// Second sign-out with nothing stored still succeeds.
	if err := service.SignOut(t.Context()); err != nil {
		t.Fatalf("repeated sign out failed: %v", err)
	}
}

func TestSessionService_RefreshProfileUnauthorizedClearsToken(t *testing.T) {
	api := &fakeAuthAPI{emailOut: playerResult("token-abc")}
	service, store := newTestSessionService(t, api, nil)

	if _, _, err := service.VerifySignInCode(t.Context(), "kid@example.com", "123456"); err != nil {
		t.Fatalf("signin failed: %v", err)
	}

	api.fetchErr = fmt.Errorf("%w: status=401", ErrUnauthorized)
	if _, err := service.RefreshProfile(t.Context()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if service.IsAuthenticated() {
		t.Fatalf("401 must clear the authenticated state")
	}
	if _, ok, _ := store.Token(t.Context()); ok {
		t.Fatalf("401 must clear the stored token")
	}
}

func TestSessionService_Restore(t *testing.T) {
	api := &fakeAuthAPI{}
	store := memory.NewSessionStore()
	if err := store.SetToken(t.Context(), "token-restored"); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	if err := store.SetProfile(t.Context(), session.CachedProfile{
		ID: "user-9", Email: "coach@example.com", Role: "coach", Tier: "coach_pro",
	}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	service, err := NewSessionService(api, store, nil, logging.NewNop(), SessionServiceConfig{})
	if err != nil {
		t.Fatalf("build session service: %v", err)
	}
	t.Cleanup(service.Close)

	if err := service.Restore(t.Context()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if !service.IsAuthenticated() {
		t.Fatalf("expected authenticated state after restore")
	}
	profile, ok := service.CurrentUser()
	if !ok || profile.Role != user.RoleCoach || profile.Tier != user.TierCoachPro {
		t.Fatalf("restored profile mismatch: %+v ok=%v", profile, ok)
	}
}

func TestSessionService_AppleSignIn(t *testing.T) {
	provider := &fakeProvider{cred: AppleCredential{
		UserID: "apple-1", Email: "kid@example.com", FirstName: "Jordan",
	}}
	api := &fakeAuthAPI{appleOut: playerResult("token-apple")}
	service, _ := newTestSessionService(t, api, provider)

	outcome, err := service.SignInWithApple(t.Context(), user.RolePlayer, user.PositionQB, 12)
	if err != nil {
		t.Fatalf("apple sign-in failed: %v", err)
	}
	if outcome.Canceled {
		t.Fatalf("unexpected cancellation")
	}
	if !service.IsAuthenticated() {
		t.Fatalf("expected authenticated state")
	}
	if api.lastApple.AppleUserID != "apple-1" {
		t.Fatalf("apple user id not forwarded: %+v", api.lastApple)
	}
}

func TestSessionService_AppleCancelIsNotAnError(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("%w: dismissed", ErrAppleCanceled)}
	api := &fakeAuthAPI{}
	service, _ := newTestSessionService(t, api, provider)

	outcome, err := service.SignInWithApple(t.Context(), user.RoleCoach, "", 0)
	if err != nil {
		t.Fatalf("cancellation must not surface an error, got %v", err)
	}
	if !outcome.Canceled {
		t.Fatalf("expected canceled outcome")
	}
	if api.appleCalls != 0 {
		t.Fatalf("cancellation must not reach the exchange endpoint")
	}
	if got := service.State().Message; got != "" {
		t.Fatalf("cancellation must not set an error message, got %q", got)
	}
	if service.State().Loading {
		t.Fatalf("loading must reset after cancellation")
	}
}

func TestSessionService_AppleTimeout(t *testing.T) {
	provider := &fakeProvider{blockCtx: true}
	api := &fakeAuthAPI{}
	service, _ := newTestSessionService(t, api, provider)

	start := time.Now()
	_, err := service.SignInWithApple(t.Context(), user.RoleCoach, "", 0)
	if !errors.Is(err, ErrAppleTimeout) {
		t.Fatalf("expected ErrAppleTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
	if service.IsAuthenticated() {
		t.Fatalf("timeout must leave the session unauthenticated")
	}
}

func TestSessionService_AppleNonceMismatch(t *testing.T) {
	provider := &fakeProvider{badNonce: true, cred: AppleCredential{UserID: "apple-1", Nonce: "stale"}}
	api := &fakeAuthAPI{}
	service, _ := newTestSessionService(t, api, provider)

	_, err := service.SignInWithApple(t.Context(), user.RoleCoach, "", 0)
	if !errors.Is(err, ErrAppleFailed) {
		t.Fatalf("expected ErrAppleFailed on nonce mismatch, got %v", err)
	}
	if api.appleCalls != 0 {
		t.Fatalf("mismatched nonce must never reach the exchange endpoint")
	}
}

func TestSessionService_StateNotifications(t *testing.T) {
	api := &fakeAuthAPI{emailOut: playerResult("token-abc")}
	service, _ := newTestSessionService(t, api, nil)

	states, cancel := service.Subscribe()
	defer cancel()

	if _, _, err := service.VerifySignInCode(t.Context(), "kid@example.com", "123456"); err != nil {
		t.Fatalf("signin failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case state := <-states:
			if state.Authenticated {
				return
			}
		case <-deadline:
			t.Fatalf("no authenticated state notification received")
		}
	}
}

func TestIsValidCode(t *testing.T) {
	valid := []string{"000000", "123456", "999999"}
	for _, code := range valid {
		if !IsValidCode(code) {
			t.Fatalf("expected %q to be valid", code)
		}
	}
	invalid := []string{"", "12345", "1234567", "12345a", "12 456", "12345٠"}
	for _, code := range invalid {
		if IsValidCode(code) {
			t.Fatalf("expected %q to be invalid", code)
		}
	}
}
