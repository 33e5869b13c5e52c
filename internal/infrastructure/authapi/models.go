package authapi

import (
	"time"

	"github.com/gridironhq/gridiron/internal/domain/user"
	"github.com/gridironhq/gridiron/internal/usecase"
)

type sendCodeRequest struct {
	Email string `json:"email"`
}

type sendCodeResponse struct {
	Message   string `json:"message"`
	ExpiresIn int    `json:"expiresIn"`
}

// emailAuthRequest carries signup and signin in one shape. The backend keys
// off which optional fields are present. Position is always serialized, as
// an empty string for coaches and plain signins, never null or absent.
type emailAuthRequest struct {
	Email     string `json:"email"`
	Code      string `json:"code"`
	Role      string `json:"role,omitempty"`
	Position  string `json:"position"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Age       int    `json:"age,omitempty"`
}

// appleAuthRequest serializes every identity field unconditionally, as empty
// strings when Apple withheld them on a repeat sign-in. Only age is optional
// on this endpoint.
type appleAuthRequest struct {
	AppleUserID string `json:"appleUserId"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Role        string `json:"role"`
	Position    string `json:"position"`
	Age         int    `json:"age,omitempty"`
}

type resetPasswordRequest struct {
	Email string `json:"email"`
}

// authResponse covers both auth endpoints, which disagree on how they report
// account novelty: email signup sends isLogin (true for a returning identity),
// apple sign-in sends isNewUser. IsLogin is a pointer so absence is
// distinguishable from false.
type authResponse struct {
	Token     string      `json:"token"`
	IsNewUser bool        `json:"isNewUser"`
	IsLogin   *bool       `json:"isLogin"`
	User      userPayload `json:"user"`
}

type userPayload struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	Position  string `json:"position"`
	Age       int    `json:"age"`
	TeamID    string `json:"teamId"`
	Tier      string `json:"tier"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func mapUserPayload(payload userPayload) user.Profile {
	role, _ := user.RoleFromWire(payload.Role)
	position, _ := user.PositionFromWire(payload.Position)

	tier := user.SubscriptionTier(payload.Tier)
	if !tier.Valid() {
		tier = user.TierFree
	}

	return user.Profile{
		ID:        payload.ID,
		Email:     payload.Email,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Role:      role,
		Position:  position,
		Age:       payload.Age,
		TeamID:    payload.TeamID,
		Tier:      tier,
		CreatedAt: parseWireTime(payload.CreatedAt),
		UpdatedAt: parseWireTime(payload.UpdatedAt),
	}
}

func mapAuthResponse(payload authResponse) usecase.AuthResult {
	isNew := payload.IsNewUser
	if payload.IsLogin != nil {
		isNew = !*payload.IsLogin
	}
	return usecase.AuthResult{
		User:      mapUserPayload(payload.User),
		Token:     payload.Token,
		IsNewUser: isNew,
	}
}

func profilePayload(profile user.Profile) userPayload {
	return userPayload{
		ID:        profile.ID,
		Email:     profile.Email,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Role:      profile.Role.WireValue(),
		Position:  string(profile.Position),
		Age:       profile.Age,
		TeamID:    profile.TeamID,
		Tier:      string(profile.Tier),
	}
}

func parseWireTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed
	}
	return time.Time{}
}
