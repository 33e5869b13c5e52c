package user

import (
	"strings"
	"time"
)

// Role is the in-process role label. The backend transmits roles lowercase;
// WireValue / RoleFromWire translate at the API boundary.
type Role string

const (
	RolePlayer Role = "Player"
	RoleCoach  Role = "Coach"
)

func (r Role) Valid() bool {
	return r == RolePlayer || r == RoleCoach
}

// WireValue returns the lowercase form the backend expects.
func (r Role) WireValue() string {
	return strings.ToLower(string(r))
}

func RoleFromWire(value string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "player":
		return RolePlayer, true
	case "coach":
		return RoleCoach, true
	default:
		return "", false
	}
}

// Position is a player field position. Coaches carry no position; the wire
// contract still requires the field as an empty string, never null or absent.
type Position string

const (
	PositionQB Position = "QB"
	PositionWR Position = "WR"
	PositionLB Position = "LB"
	PositionRB Position = "RB"
)

func (p Position) Valid() bool {
	switch p {
	case PositionQB, PositionWR, PositionLB, PositionRB:
		return true
	default:
		return false
	}
}

func PositionFromWire(value string) (Position, bool) {
	candidate := Position(strings.ToUpper(strings.TrimSpace(value)))
	if candidate.Valid() {
		return candidate, true
	}
	return "", false
}

type SubscriptionTier string

const (
	TierFree            SubscriptionTier = "free"
	TierPlayerPremium   SubscriptionTier = "player_premium"
	TierCoachPro        SubscriptionTier = "coach_pro"
	TierFamilyUnlimited SubscriptionTier = "family_unlimited"
)

func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierFree, TierPlayerPremium, TierCoachPro, TierFamilyUnlimited:
		return true
	default:
		return false
	}
}

const (
	MinPlayerAge = 5
	MaxPlayerAge = 18
)

func ValidPlayerAge(age int) bool {
	return age >= MinPlayerAge && age <= MaxPlayerAge
}

// Profile is the identity record held for the lifetime of an authenticated
// session. It is replaced wholesale on login/signup and cleared on sign-out.
type Profile struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Role      Role
	Position  Position
	Age       int
	TeamID    string
	Tier      SubscriptionTier
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Consistent reads the position-iff-player invariant.
func (p Profile) Consistent() bool {
	if p.Role == RolePlayer {
		return p.Position != ""
	}
	return p.Position == ""
}

func (p Profile) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name != "" {
		return name
	}
	return p.Email
}
