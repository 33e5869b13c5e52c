package usecase

import "errors"

// Sentinel errors for the authentication flows. Each maps to exactly one
// user-facing message; callers never need finer detail than errors.Is
// against these.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrInvalidCode   = errors.New("invalid verification code")
	ErrNetwork       = errors.New("network error")
	ErrServer        = errors.New("server error")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrAppleCanceled = errors.New("apple sign-in canceled")
	ErrAppleFailed   = errors.New("apple sign-in failed")
	ErrAppleTimeout  = errors.New("apple sign-in timed out")
)

// UserMessage translates an error from any session operation into the single
// string shown to the user. One message at a time: the caller replaces the
// previous message with this one.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidEmail):
		return "Please enter a valid email address."
	case errors.Is(err, ErrInvalidCode):
		return "That code didn't work. Check it and try again."
	case errors.Is(err, ErrRateLimited):
		return "Too many attempts. Please wait a moment and try again."
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrAppleCanceled):
		return "Sign in with Apple was canceled."
	case errors.Is(err, ErrAppleTimeout):
		return "Sign in with Apple took too long. Please try again."
	case errors.Is(err, ErrAppleFailed):
		return "Sign in with Apple didn't complete. Please try again."
	case errors.Is(err, ErrNetwork):
		return "Check your connection and try again."
	case errors.Is(err, ErrServer):
		return "Something went wrong on our end. Try again later."
	case errors.Is(err, ErrInvalidInput):
		return "Please double-check your details and try again."
	default:
		return "Something went wrong. Please try again."
	}
}
