package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sourcegraph/conc"

	"github.com/gridironhq/gridiron/internal/domain/session"
	"github.com/gridironhq/gridiron/internal/domain/user"
	"github.com/gridironhq/gridiron/internal/platform/cache"
	idgen "github.com/gridironhq/gridiron/internal/platform/id"
	"github.com/gridironhq/gridiron/internal/platform/logging"
	"github.com/gridironhq/gridiron/internal/platform/pubsub"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const (
	defaultAppleTimeout   = 30 * time.Second
	defaultResendCooldown = 60 * time.Second
	defaultCodeTTL        = 10 * time.Minute
	defaultMaxCodeTries   = 5
	defaultNotifyWorkers  = 2

	// Pending records outlive the code itself so a stale code is rejected
	// locally instead of falling through to the network on a cache miss.
	pendingGrace = 5 * time.Minute
)

// SessionState is the observable snapshot UI layers subscribe to. Exactly
// one message is surfaced at a time; each state change replaces it.
type SessionState struct {
	Authenticated bool
	Loading       bool
	User          user.Profile
	Message       string
}

type SessionServiceConfig struct {
	AppleTimeout   time.Duration
	ResendCooldown time.Duration
	MaxCodeTries   int
	NotifyWorkers  int
}

func (c SessionServiceConfig) withDefaults() SessionServiceConfig {
	if c.AppleTimeout <= 0 {
		c.AppleTimeout = defaultAppleTimeout
	}
	if c.ResendCooldown <= 0 {
		c.ResendCooldown = defaultResendCooldown
	}
	if c.MaxCodeTries < 1 {
		c.MaxCodeTries = defaultMaxCodeTries
	}
	if c.NotifyWorkers < 1 {
		c.NotifyWorkers = defaultNotifyWorkers
	}
	return c
}

// SessionService owns the authenticated session: it requests verification
// codes, exchanges codes or Apple credentials for a token, persists the
// token, and exposes the current state. Operations are serialized; at most
// one is in flight per instance.
type SessionService struct {
	api      AuthAPI
	store    session.Store
	provider IdentityProvider
	logger   *logging.Logger
	cfg      SessionServiceConfig

	pending *cache.Store
	broker  *pubsub.Broker[SessionState]

	opMu      sync.Mutex
	stMu      sync.RWMutex
	state     SessionState
	token     string
	sessionAt time.Time

	now func() time.Time
}

func NewSessionService(
	api AuthAPI,
	store session.Store,
	provider IdentityProvider,
	logger *logging.Logger,
	cfg SessionServiceConfig,
) (*SessionService, error) {
	if api == nil {
		return nil, fmt.Errorf("auth api is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg = cfg.withDefaults()

	broker, err := pubsub.NewBroker[SessionState](cfg.NotifyWorkers)
	if err != nil {
		return nil, err
	}

	return &SessionService{
		api:      api,
		store:    store,
		provider: provider,
		logger:   logger,
		cfg:      cfg,
		pending:  cache.NewStore(defaultCodeTTL),
		broker:   broker,
		now:      time.Now,
	}, nil
}

// Restore loads the persisted token and cached profile, typically at
// process start. A missing token leaves the session signed out.
func (s *SessionService) Restore(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	token, ok, err := s.store.Token(ctx)
	if err != nil {
		return fmt.Errorf("restore token: %w", err)
	}
	if !ok {
		return nil
	}

	profile := user.Profile{}
	if cached, found, cacheErr := s.store.Profile(ctx); cacheErr == nil && found {
		profile = profileFromCache(cached)
	}

	s.setSession(token, profile, "")
	s.logger.InfoContext(ctx, "session restored", "user_id", profile.ID)
	return nil
}

// SendVerificationCode asks the backend to email a one-time code. Within the
// resend cooldown the previous pending record is returned with ErrRateLimited
// and no network call is made.
func (s *SessionService) SendVerificationCode(ctx context.Context, email string, purpose session.VerificationPurpose) (session.PendingVerification, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	ctx, span := startUsecaseSpan(ctx, "session.send_verification_code")
	defer span.End()

	email = normalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return session.PendingVerification{}, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	now := s.now()
	if existing, ok := s.pendingFor(ctx, email); ok && !existing.ResendAvailable(now) {
		return existing, fmt.Errorf("%w: resend available at %s", ErrRateLimited, existing.ResendAt.Format(time.RFC3339))
	}

	s.beginOp()
	defer s.endOpLocked()

	issued, err := s.api.SendVerificationCode(ctx, email)
	if err != nil {
		s.failOp(ctx, err)
		return session.PendingVerification{}, fmt.Errorf("send verification code: %w", err)
	}

	ttl := issued.ExpiresIn
	if ttl <= 0 {
		ttl = defaultCodeTTL
	}
	pending := session.PendingVerification{
		Email:     email,
		Purpose:   purpose,
		ExpiresAt: now.Add(ttl),
		ResendAt:  now.Add(s.cfg.ResendCooldown),
	}
	s.pending.SetWithTTL(ctx, pendingKey(email), pending, ttl+pendingGrace)

	s.logger.InfoContext(ctx, "verification code sent", "purpose", string(purpose), "expires_in", ttl)
	return pending, nil
}

type VerifySignUpInput struct {
	Email     string
	Code      string
	FirstName string
	LastName  string
	Role      user.Role
	Position  user.Position
	Age       int
}

// VerifySignUpCode exchanges the emailed code plus profile fields for a
// session. Local validation failures never reach the network.
func (s *SessionService) VerifySignUpCode(ctx context.Context, input VerifySignUpInput) (user.Profile, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	ctx, span := startUsecaseSpan(ctx, "session.verify_signup_code")
	defer span.End()

	input.Email = normalizeEmail(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)

	if err := validate.Var(input.Email, "required,email"); err != nil {
		return user.Profile{}, fmt.Errorf("%w: %q", ErrInvalidEmail, input.Email)
	}
	if !IsValidCode(input.Code) {
		return user.Profile{}, fmt.Errorf("%w: code must be 6 digits", ErrInvalidCode)
	}
	if !input.Role.Valid() {
		return user.Profile{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, input.Role)
	}
	if input.Role == user.RolePlayer {
		if !input.Position.Valid() {
			return user.Profile{}, fmt.Errorf("%w: players need a position", ErrInvalidInput)
		}
		if !user.ValidPlayerAge(input.Age) {
			return user.Profile{}, fmt.Errorf("%w: age must be between %d and %d", ErrInvalidInput, user.MinPlayerAge, user.MaxPlayerAge)
		}
	} else {
		input.Position = ""
		input.Age = 0
	}

	if err := s.checkAttempts(ctx, input.Email); err != nil {
		return user.Profile{}, err
	}

	s.beginOp()
	defer s.endOpLocked()

	result, err := s.api.EmailAuth(ctx, EmailAuthInput{
		Email:     input.Email,
		Code:      input.Code,
		Role:      input.Role,
		Position:  input.Position,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Age:       input.Age,
	})
	if err != nil {
		s.recordFailedAttempt(ctx, input.Email, err)
		s.failOp(ctx, err)
		return user.Profile{}, fmt.Errorf("verify signup code: %w", err)
	}

	if err := s.adoptSession(ctx, result); err != nil {
		s.failOp(ctx, err)
		return user.Profile{}, err
	}
	s.pending.Delete(ctx, pendingKey(input.Email))

	s.logger.InfoContext(ctx, "signup verified", "user_id", result.User.ID, "is_login", !result.IsNewUser)
	return result.User, nil
}

// VerifySignInCode exchanges a code for a session without profile fields.
// The returned flag reports whether the backend treated this as a first-time
// identity.
func (s *SessionService) VerifySignInCode(ctx context.Context, email, code string) (user.Profile, bool, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	ctx, span := startUsecaseSpan(ctx, "session.verify_signin_code")
	defer span.End()

	email = normalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return user.Profile{}, false, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	if !IsValidCode(code) {
		return user.Profile{}, false, fmt.Errorf("%w: code must be 6 digits", ErrInvalidCode)
	}
	if err := s.checkAttempts(ctx, email); err != nil {
		return user.Profile{}, false, err
	}

	s.beginOp()
	defer s.endOpLocked()

	result, err := s.api.EmailAuth(ctx, EmailAuthInput{Email: email, Code: code})
	if err != nil {
		s.recordFailedAttempt(ctx, email, err)
		s.failOp(ctx, err)
		return user.Profile{}, false, fmt.Errorf("verify signin code: %w", err)
	}

	if err := s.adoptSession(ctx, result); err != nil {
		s.failOp(ctx, err)
		return user.Profile{}, false, err
	}
	s.pending.Delete(ctx, pendingKey(email))

	s.logger.InfoContext(ctx, "signin verified", "user_id", result.User.ID, "is_new_user", result.IsNewUser)
	return result.User, result.IsNewUser, nil
}

// AppleSignInOutcome distinguishes a deliberate dismissal from a completed
// exchange. Canceled outcomes carry no error: the flow resets quietly.
type AppleSignInOutcome struct {
	Canceled  bool
	IsNewUser bool
	User      user.Profile
}

// SignInWithApple runs the platform sign-in sheet under an overall deadline.
// The provider task and a timer race; whichever finishes first wins and the
// loser is cancelled. A timeout is surfaced as ErrAppleTimeout, never as a
// cancellation.
func (s *SessionService) SignInWithApple(ctx context.Context, role user.Role, position user.Position, age int) (AppleSignInOutcome, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	ctx, span := startUsecaseSpan(ctx, "session.apple_signin")
	defer span.End()

	if s.provider == nil {
		return AppleSignInOutcome{}, fmt.Errorf("%w: no identity provider configured", ErrAppleFailed)
	}
	if !role.Valid() {
		return AppleSignInOutcome{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if role == user.RolePlayer {
		if !position.Valid() {
			return AppleSignInOutcome{}, fmt.Errorf("%w: players need a position", ErrInvalidInput)
		}
		if !user.ValidPlayerAge(age) {
			return AppleSignInOutcome{}, fmt.Errorf("%w: age must be between %d and %d", ErrInvalidInput, user.MinPlayerAge, user.MaxPlayerAge)
		}
	} else {
		position = ""
		age = 0
	}

	nonce, err := idgen.NewNonce()
	if err != nil {
		return AppleSignInOutcome{}, fmt.Errorf("generate nonce: %w", err)
	}

	s.beginOp()
	defer s.endOpLocked()

	cred, err := s.authenticateWithDeadline(ctx, nonce.Digest)
	if err != nil {
		if errors.Is(err, ErrAppleCanceled) {
			// Deliberate dismissal: reset loading without an error banner.
			s.logger.InfoContext(ctx, "apple sign-in canceled by user")
			return AppleSignInOutcome{Canceled: true}, nil
		}
		s.failOp(ctx, err)
		return AppleSignInOutcome{}, err
	}

	if !nonce.Matches(cred.Nonce) {
		err := fmt.Errorf("%w: nonce mismatch", ErrAppleFailed)
		s.failOp(ctx, err)
		return AppleSignInOutcome{}, err
	}

	result, err := s.api.AppleAuth(ctx, AppleAuthInput{
		AppleUserID: cred.UserID,
		Email:       cred.Email,
		FirstName:   cred.FirstName,
		LastName:    cred.LastName,
		Role:        role,
		Position:    position,
		Age:         age,
	})
	if err != nil {
		s.failOp(ctx, err)
		return AppleSignInOutcome{}, fmt.Errorf("apple auth exchange: %w", err)
	}

	if err := s.adoptSession(ctx, result); err != nil {
		s.failOp(ctx, err)
		return AppleSignInOutcome{}, err
	}

	s.logger.InfoContext(ctx, "apple sign-in complete", "user_id", result.User.ID, "is_new_user", result.IsNewUser)
	return AppleSignInOutcome{IsNewUser: result.IsNewUser, User: result.User}, nil
}

func (s *SessionService) authenticateWithDeadline(ctx context.Context, nonceDigest string) (AppleCredential, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		cred AppleCredential
		err  error
	}
	results := make(chan outcome, 1)

	var wg conc.WaitGroup
	wg.Go(func() {
		cred, err := s.provider.Authenticate(ctx, nonceDigest)
		results <- outcome{cred: cred, err: err}
	})

	timer := time.NewTimer(s.cfg.AppleTimeout)
	defer timer.Stop()

	select {
	case res := <-results:
		if recovered := wg.WaitAndRecover(); recovered != nil {
			return AppleCredential{}, fmt.Errorf("%w: %v", ErrAppleFailed, recovered.Value)
		}
		if res.err != nil {
			if errors.Is(res.err, ErrAppleCanceled) {
				return AppleCredential{}, res.err
			}
			return AppleCredential{}, fmt.Errorf("%w: %v", ErrAppleFailed, res.err)
		}
		return res.cred, nil
	case <-timer.C:
		cancel()
		go func() { _ = wg.WaitAndRecover() }()
		return AppleCredential{}, fmt.Errorf("%w: no provider response within %s", ErrAppleTimeout, s.cfg.AppleTimeout)
	case <-ctx.Done():
		go func() { _ = wg.WaitAndRecover() }()
		return AppleCredential{}, fmt.Errorf("%w: %v", ErrAppleFailed, ctx.Err())
	}
}

// SignOut clears the stored token and in-memory profile. Safe to call when
// already signed out.
func (s *SessionService) SignOut(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	ctx, span := startUsecaseSpan(ctx, "session.sign_out")
	defer span.End()

	return s.clearSession(ctx, "")
}

// RefreshProfile re-fetches the profile for the stored token. A 401 clears
// the token and forces re-authentication.
func (s *SessionService) RefreshProfile(ctx context.Context) (user.Profile, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	ctx, span := startUsecaseSpan(ctx, "session.refresh_profile")
	defer span.End()

	token := s.currentToken()
	if token == "" {
		return user.Profile{}, fmt.Errorf("%w: not signed in", ErrUnauthorized)
	}

	s.beginOp()
	defer s.endOpLocked()

	profile, err := s.api.FetchProfile(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			_ = s.clearSession(ctx, UserMessage(err))
			return user.Profile{}, err
		}
		s.failOp(ctx, err)
		return user.Profile{}, fmt.Errorf("refresh profile: %w", err)
	}

	s.setSession(token, profile, "")
	if err := s.persistProfile(ctx, profile); err != nil {
		s.logger.WarnContext(ctx, "persist refreshed profile failed", "error", err)
	}
	return profile, nil
}

// UpdateProfile writes profile changes to the backend and replaces the
// current user on success.
func (s *SessionService) UpdateProfile(ctx context.Context, profile user.Profile) (user.Profile, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	ctx, span := startUsecaseSpan(ctx, "session.update_profile")
	defer span.End()

	token := s.currentToken()
	if token == "" {
		return user.Profile{}, fmt.Errorf("%w: not signed in", ErrUnauthorized)
	}
	if !profile.Consistent() {
		return user.Profile{}, fmt.Errorf("%w: position is required for players and forbidden otherwise", ErrInvalidInput)
	}

	s.beginOp()
	defer s.endOpLocked()

	saved, err := s.api.SaveProfile(ctx, token, profile)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			_ = s.clearSession(ctx, UserMessage(err))
			return user.Profile{}, err
		}
		s.failOp(ctx, err)
		return user.Profile{}, fmt.Errorf("update profile: %w", err)
	}

	s.setSession(token, saved, "")
	if err := s.persistProfile(ctx, saved); err != nil {
		s.logger.WarnContext(ctx, "persist updated profile failed", "error", err)
	}
	return saved, nil
}

// ResetPassword requests a password reset for accounts carrying a legacy
// password fallback. The passwordless flows never call this.
func (s *SessionService) ResetPassword(ctx context.Context, email string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	email = normalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	s.beginOp()
	defer s.endOpLocked()

	if err := s.api.RequestPasswordReset(ctx, email); err != nil {
		s.failOp(ctx, err)
		return fmt.Errorf("request password reset: %w", err)
	}
	return nil
}

// State returns the current observable snapshot.
func (s *SessionService) State() SessionState {
	s.stMu.RLock()
	defer s.stMu.RUnlock()
	return s.state
}

func (s *SessionService) IsAuthenticated() bool {
	s.stMu.RLock()
	defer s.stMu.RUnlock()
	return s.token != ""
}

// CurrentSession returns the live session record. The zero value means
// signed out.
func (s *SessionService) CurrentSession() session.Session {
	s.stMu.RLock()
	defer s.stMu.RUnlock()
	if s.token == "" {
		return session.Session{}
	}
	return session.Session{Token: s.token, User: s.state.User, CreatedAt: s.sessionAt}
}

func (s *SessionService) CurrentUser() (user.Profile, bool) {
	s.stMu.RLock()
	defer s.stMu.RUnlock()
	return s.state.User, s.state.Authenticated
}

// Subscribe delivers a snapshot after every state change.
func (s *SessionService) Subscribe() (<-chan SessionState, func()) {
	return s.broker.Subscribe()
}

// Close releases the notification broker.
func (s *SessionService) Close() {
	s.broker.Close()
}

// IsValidCode reports whether code is exactly six ASCII digits. The UI keeps
// the verify control disabled, and the service rejects early, when it is not.
func IsValidCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *SessionService) adoptSession(ctx context.Context, result AuthResult) error {
	token := strings.TrimSpace(result.Token)
	if token == "" {
		return fmt.Errorf("%w: empty session token in auth response", ErrServer)
	}
	if err := s.store.SetToken(ctx, token); err != nil {
		return fmt.Errorf("persist session token: %w", err)
	}
	if err := s.persistProfile(ctx, result.User); err != nil {
		s.logger.WarnContext(ctx, "persist profile cache failed", "error", err)
	}
	s.setSession(token, result.User, "")
	return nil
}

func (s *SessionService) clearSession(ctx context.Context, message string) error {
	if err := s.store.ClearToken(ctx); err != nil {
		return fmt.Errorf("clear session token: %w", err)
	}
	if err := s.store.ClearProfile(ctx); err != nil {
		s.logger.WarnContext(ctx, "clear profile cache failed", "error", err)
	}

	s.stMu.Lock()
	s.token = ""
	s.sessionAt = time.Time{}
	s.state = SessionState{Message: message}
	snapshot := s.state
	s.stMu.Unlock()
	s.broker.Publish(snapshot)
	return nil
}

func (s *SessionService) setSession(token string, profile user.Profile, message string) {
	s.stMu.Lock()
	if token != s.token {
		s.sessionAt = s.now()
	}
	s.token = token
	s.state = SessionState{
		Authenticated: token != "",
		User:          profile,
		Message:       message,
	}
	snapshot := s.state
	s.stMu.Unlock()
	s.broker.Publish(snapshot)
}

func (s *SessionService) currentToken() string {
	s.stMu.RLock()
	defer s.stMu.RUnlock()
	return s.token
}

func (s *SessionService) beginOp() {
	s.stMu.Lock()
	s.state.Loading = true
	s.state.Message = ""
	snapshot := s.state
	s.stMu.Unlock()
	s.broker.Publish(snapshot)
}

func (s *SessionService) endOpLocked() {
	s.stMu.Lock()
	s.state.Loading = false
	snapshot := s.state
	s.stMu.Unlock()
	s.broker.Publish(snapshot)
}

func (s *SessionService) failOp(ctx context.Context, err error) {
	s.stMu.Lock()
	s.state.Message = UserMessage(err)
	s.stMu.Unlock()
	s.logger.WarnContext(ctx, "session operation failed", "error", err)
}

func (s *SessionService) pendingFor(ctx context.Context, email string) (session.PendingVerification, bool) {
	raw, ok := s.pending.Get(ctx, pendingKey(email))
	if !ok {
		return session.PendingVerification{}, false
	}
	pending, ok := raw.(session.PendingVerification)
	return pending, ok
}

func (s *SessionService) checkAttempts(ctx context.Context, email string) error {
	pending, ok := s.pendingFor(ctx, email)
	if !ok {
		return nil
	}
	if pending.FailedAttempts >= s.cfg.MaxCodeTries {
		return fmt.Errorf("%w: too many wrong codes for this address", ErrRateLimited)
	}
	if pending.Expired(s.now()) {
		return fmt.Errorf("%w: code expired, request a new one", ErrInvalidCode)
	}
	return nil
}

func (s *SessionService) recordFailedAttempt(ctx context.Context, email string, cause error) {
	if !errors.Is(cause, ErrInvalidCode) {
		return
	}
	pending, ok := s.pendingFor(ctx, email)
	if !ok {
		pending = session.PendingVerification{Email: email, ExpiresAt: s.now().Add(defaultCodeTTL)}
	}
	pending.FailedAttempts++
	ttl := pending.ExpiresAt.Sub(s.now()) + pendingGrace
	if ttl < pendingGrace {
		ttl = pendingGrace
	}
	s.pending.SetWithTTL(ctx, pendingKey(email), pending, ttl)
}

func (s *SessionService) persistProfile(ctx context.Context, profile user.Profile) error {
	return s.store.SetProfile(ctx, session.CachedProfile{
		ID:        profile.ID,
		Email:     profile.Email,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Role:      string(profile.Role),
		Position:  string(profile.Position),
		Age:       profile.Age,
		Tier:      string(profile.Tier),
	})
}

func profileFromCache(cached session.CachedProfile) user.Profile {
	role, _ := user.RoleFromWire(cached.Role)
	position, _ := user.PositionFromWire(cached.Position)
	return user.Profile{
		ID:        cached.ID,
		Email:     cached.Email,
		FirstName: cached.FirstName,
		LastName:  cached.LastName,
		Role:      role,
		Position:  position,
		Age:       cached.Age,
		Tier:      user.SubscriptionTier(cached.Tier),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func pendingKey(email string) string {
	return "verification:" + email
}
