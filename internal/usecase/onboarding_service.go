package usecase

import (
	"sync"

	"github.com/gridironhq/gridiron/internal/domain/onboarding"
	"github.com/gridironhq/gridiron/internal/domain/user"
)

// OnboardingService drives the signup step machine:
//
//	roleSelection -> positionSelection (players only) -> accountCreation
//	-> emailVerification -> completed
//
// Transition calls whose preconditions are unmet leave the state untouched
// and do not error. This is a deliberate, uniform policy: the UI gates
// progression with IsCurrentStepValid, and a stray tap on a disabled control
// must never corrupt the machine.
type OnboardingService struct {
	mu       sync.Mutex
	progress onboarding.Progress
}

func NewOnboardingService() *OnboardingService {
	return &OnboardingService{progress: onboarding.NewProgress()}
}

// Progress returns a snapshot of the current state.
func (s *OnboardingService) Progress() onboarding.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// SetRole records the role and advances. Coaches skip position selection and
// land directly on account creation.
func (s *OnboardingService) SetRole(role user.Role) onboarding.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.progress.CurrentStep != onboarding.StepRoleSelection || !role.Valid() {
		return s.progress
	}

	s.progress.Role = role
	if role == user.RoleCoach {
		s.progress.Position = ""
		s.progress.Age = 0
		s.progress.CurrentStep = onboarding.StepAccountCreation
	} else {
		s.progress.CurrentStep = onboarding.StepPositionSelection
	}
	return s.progress
}

// SetPosition records a player's position and age. Valid only from
// positionSelection with a known position and age within the allowed range.
func (s *OnboardingService) SetPosition(position user.Position, age int) onboarding.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.progress.CurrentStep != onboarding.StepPositionSelection {
		return s.progress
	}
	if !position.Valid() || !user.ValidPlayerAge(age) {
		return s.progress
	}

	s.progress.Position = position
	s.progress.Age = age
	s.progress.CurrentStep = onboarding.StepAccountCreation
	return s.progress
}

// GoToEmailVerification advances once an account-creation action (a
// verification code request) has been initiated.
func (s *OnboardingService) GoToEmailVerification() onboarding.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.progress.CurrentStep != onboarding.StepAccountCreation {
		return s.progress
	}

	s.progress.CurrentStep = onboarding.StepEmailVerification
	return s.progress
}

// CompleteOnboarding marks the terminal state. Valid from any step once
// authentication has succeeded, so a returning Apple identity can complete
// straight from role selection.
func (s *OnboardingService) CompleteOnboarding() onboarding.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress.CurrentStep = onboarding.StepCompleted
	s.progress.Completed = true
	return s.progress
}

// PreviousStep mirrors the forward map. No-op at roleSelection and once
// completed.
func (s *OnboardingService) PreviousStep() onboarding.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.progress.CurrentStep {
	case onboarding.StepPositionSelection:
		s.progress.CurrentStep = onboarding.StepRoleSelection
	case onboarding.StepAccountCreation:
		if s.progress.Role == user.RolePlayer {
			s.progress.CurrentStep = onboarding.StepPositionSelection
		} else {
			s.progress.CurrentStep = onboarding.StepRoleSelection
		}
	case onboarding.StepEmailVerification:
		s.progress.CurrentStep = onboarding.StepAccountCreation
	}
	return s.progress
}

// Reset returns to the initial state and clears all selections.
func (s *OnboardingService) Reset() onboarding.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress = onboarding.NewProgress()
	return s.progress
}

// IsCurrentStepValid is the pure predicate the UI consults before enabling
// its continue control.
func (s *OnboardingService) IsCurrentStepValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.progress.CurrentStep {
	case onboarding.StepRoleSelection:
		return s.progress.Role.Valid()
	case onboarding.StepPositionSelection:
		return s.progress.Position.Valid() && user.ValidPlayerAge(s.progress.Age)
	case onboarding.StepAccountCreation, onboarding.StepEmailVerification:
		return true
	case onboarding.StepCompleted:
		return s.progress.Completed
	default:
		return false
	}
}
