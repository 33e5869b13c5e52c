package authapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gridironhq/gridiron/internal/domain/user"
	"github.com/gridironhq/gridiron/internal/platform/logging"
	"github.com/gridironhq/gridiron/internal/platform/resilience"
	"github.com/gridironhq/gridiron/internal/usecase"
)

const (
	sendVerificationPath = "/api/auth/send-verification"
	emailSignupPath      = "/api/auth/email-signup"
	appleSigninPath      = "/api/auth/apple-signin"
	resetPasswordPath    = "/api/auth/reset-password"
	profilePath          = "/api/users/me"

	maxResponseBytes = 1 << 20
)

var errAuthAPITransient = crerr.New("auth api transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	Timeout        time.Duration
	Logger         *logging.Logger
	Backoff        resilience.BackoffConfig
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client talks to the gridiron backend over HTTPS. Authentication endpoints
// are POSTs and never retried; a duplicate signup or code exchange is worse
// than a surfaced failure. Profile reads are idempotent and retried with
// exponential backoff on transient failures only.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	logger         *logging.Logger
	backoff        resilience.BackoffConfig
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight
}

var _ usecase.AuthAPI = (*Client)(nil)

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 15 * time.Second
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		logger:         logger,
		backoff:        resilience.NormalizeBackoffConfig(cfg.Backoff),
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}
}

func (c *Client) SendVerificationCode(ctx context.Context, email string) (usecase.CodeIssued, error) {
	var resp sendCodeResponse
	err := c.postJSON(ctx, sendVerificationPath, "", sendCodeRequest{Email: email}, &resp, codeExchange)
	if err != nil {
		return usecase.CodeIssued{}, err
	}
	return usecase.CodeIssued{
		Message:   resp.Message,
		ExpiresIn: time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

func (c *Client) EmailAuth(ctx context.Context, input usecase.EmailAuthInput) (usecase.AuthResult, error) {
	req := emailAuthRequest{
		Email:     input.Email,
		Code:      input.Code,
		Role:      input.Role.WireValue(),
		Position:  string(input.Position),
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Age:       input.Age,
	}

	var resp authResponse
	if err := c.postJSON(ctx, emailSignupPath, "", req, &resp, codeExchange); err != nil {
		return usecase.AuthResult{}, err
	}
	return mapAuthResponse(resp), nil
}

func (c *Client) AppleAuth(ctx context.Context, input usecase.AppleAuthInput) (usecase.AuthResult, error) {
	req := appleAuthRequest{
		AppleUserID: input.AppleUserID,
		Email:       input.Email,
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		Role:        input.Role.WireValue(),
		Position:    string(input.Position),
		Age:         input.Age,
	}

	var resp authResponse
	if err := c.postJSON(ctx, appleSigninPath, "", req, &resp, plainRequest); err != nil {
		return usecase.AuthResult{}, err
	}
	return mapAuthResponse(resp), nil
}

func (c *Client) FetchProfile(ctx context.Context, token string) (user.Profile, error) {
	var resp userPayload
	if err := c.getJSON(ctx, profilePath, token, &resp); err != nil {
		return user.Profile{}, err
	}
	return mapUserPayload(resp), nil
}

func (c *Client) SaveProfile(ctx context.Context, token string, profile user.Profile) (user.Profile, error) {
	var resp userPayload
	if err := c.putJSON(ctx, profilePath, token, profilePayload(profile), &resp); err != nil {
		return user.Profile{}, err
	}
	return mapUserPayload(resp), nil
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.postJSON(ctx, resetPasswordPath, "", resetPasswordRequest{Email: email}, nil, plainRequest)
}

// requestKind selects how a non-2xx status maps to a sentinel: code
// exchanges report bad 4xx payloads as ErrInvalidCode, everything else as
// ErrInvalidInput.
type requestKind int

const (
	plainRequest requestKind = iota
	codeExchange
)

func (c *Client) postJSON(ctx context.Context, path, token string, body, target any, kind requestKind) error {
	return c.writeJSON(ctx, http.MethodPost, path, token, body, target, kind)
}

func (c *Client) putJSON(ctx context.Context, path, token string, body, target any) error {
	return c.writeJSON(ctx, http.MethodPut, path, token, body, target, plainRequest)
}

// writeJSON issues a single mutating request. No retries: the caller decides
// whether a transient failure is worth a second user-visible attempt.
func (c *Client) writeJSON(ctx context.Context, method, path, token string, body, target any, kind requestKind) error {
	if err := c.allow(ctx); err != nil {
		return err
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	encoded, err := sonic.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	_, _ = buf.Write(encoded)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(buf.B))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	setBearer(req, token)

	raw, err := c.execute(ctx, req, kind)
	c.record(err)
	if err != nil {
		c.logger.WarnContext(ctx, "auth api request failed", "method", method, "path", path, "error", redactToken(err, token))
		return err
	}
	return decodeTarget(raw, target)
}

// getJSON reads with singleflight dedup and exponential backoff on
// transient failures.
func (c *Client) getJSON(ctx context.Context, path, token string, target any) error {
	if err := c.allow(ctx); err != nil {
		return err
	}

	out, err, _ := c.flight.Do(path+"\x00"+token, func() (any, error) {
		var lastErr error
		for attempt := 0; attempt < c.backoff.Attempts; attempt++ {
			if attempt > 0 {
				timer := time.NewTimer(c.backoff.Delay(attempt - 1))
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
			}

			req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
			if reqErr != nil {
				return nil, fmt.Errorf("build request: %w", reqErr)
			}
			req.Header.Set("Accept", "application/json")
			setBearer(req, token)

			raw, execErr := c.execute(ctx, req, plainRequest)
			if execErr == nil {
				return raw, nil
			}
			lastErr = execErr
			if !crerr.Is(execErr, errAuthAPITransient) {
				break
			}
		}
		return nil, lastErr
	})
	c.record(err)
	if err != nil {
		c.logger.WarnContext(ctx, "auth api request failed", "method", http.MethodGet, "path", path, "error", redactToken(err, token))
		return err
	}

	raw, ok := out.([]byte)
	if !ok {
		return fmt.Errorf("unexpected response payload type %T", out)
	}
	return decodeTarget(raw, target)
}

func (c *Client) execute(ctx context.Context, req *http.Request, kind requestKind) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, crerr.Mark(fmt.Errorf("%w: %v", usecase.ErrNetwork, err), errAuthAPITransient)
	}

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, crerr.Mark(fmt.Errorf("%w: read response body: %v", usecase.ErrNetwork, readErr), errAuthAPITransient)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}
	return nil, statusError(resp.StatusCode, raw, kind)
}

func statusError(status int, body []byte, kind requestKind) error {
	detail := serverMessage(body)

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: status=%d %s", usecase.ErrUnauthorized, status, detail)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status=%d %s", usecase.ErrRateLimited, status, detail)
	case status >= 500:
		return crerr.Mark(fmt.Errorf("%w: status=%d %s", usecase.ErrServer, status, detail), errAuthAPITransient)
	case kind == codeExchange:
		return fmt.Errorf("%w: status=%d %s", usecase.ErrInvalidCode, status, detail)
	default:
		return fmt.Errorf("%w: status=%d %s", usecase.ErrInvalidInput, status, detail)
	}
}

func serverMessage(body []byte) string {
	var payload errorPayload
	if err := sonic.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 160 {
		trimmed = trimmed[:160] + "..."
	}
	return trimmed
}

func (c *Client) allow(ctx context.Context) error {
	if !c.circuitEnabled {
		return nil
	}
	if err := c.breaker.Allow(); err != nil {
		c.logger.WarnContext(ctx, "auth api circuit breaker rejected request", "state", c.breaker.State())
		return fmt.Errorf("%w: service temporarily unavailable", usecase.ErrServer)
	}
	return nil
}

func (c *Client) record(err error) {
	if !c.circuitEnabled {
		return
	}
	if err != nil && crerr.Is(err, errAuthAPITransient) {
		c.breaker.RecordFailure()
		return
	}
	c.breaker.RecordSuccess()
}

func decodeTarget(raw []byte, target any) error {
	if target == nil {
		return nil
	}
	if err := sonic.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode response payload: %w", err)
	}
	return nil
}

func setBearer(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func redactToken(err error, token string) error {
	if err == nil || token == "" {
		return err
	}
	text := strings.ReplaceAll(err.Error(), token, "REDACTED")
	return fmt.Errorf("%s", text)
}
