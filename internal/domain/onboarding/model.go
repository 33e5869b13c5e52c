package onboarding

import "github.com/gridironhq/gridiron/internal/domain/user"

// Step enumerates onboarding screens in forward order. Coaches skip
// positionSelection entirely.
type Step string

const (
	StepRoleSelection     Step = "roleSelection"
	StepPositionSelection Step = "positionSelection"
	StepAccountCreation   Step = "accountCreation"
	StepEmailVerification Step = "emailVerification"
	StepCompleted         Step = "completed"
)

// Progress is the transient onboarding record. It is discarded once
// onboarding completes or resets.
type Progress struct {
	CurrentStep Step
	Role        user.Role
	Position    user.Position
	Age         int
	Completed   bool
}

func NewProgress() Progress {
	return Progress{CurrentStep: StepRoleSelection}
}
