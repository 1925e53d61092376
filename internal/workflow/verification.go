package workflow

// VerificationStatus is the lifecycle state of an agent verification submission.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// Valid reports whether s is a known verification state.
func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationPending, VerificationApproved, VerificationRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s VerificationStatus) Terminal() bool {
	return s == VerificationApproved || s == VerificationRejected
}

// ParseVerificationStatus converts a wire value to a VerificationStatus.
func ParseVerificationStatus(v string) (VerificationStatus, error) {
	s := VerificationStatus(v)
	if !s.Valid() {
		return "", ErrUnknownState
	}
	return s, nil
}

// ParseDecision accepts only the two terminal states an administrator can decide on.
func ParseDecision(v string) (VerificationStatus, error) {
	s := VerificationStatus(v)
	if !s.Terminal() {
		return "", ErrUnknownState
	}
	return s, nil
}

// DecideVerification applies an administrator decision to a submission in state current.
func DecideVerification(current, decision VerificationStatus, actor Actor) (VerificationStatus, error) {
	if actor != ActorAdmin {
		return current, ErrAdminRequired
	}
	if !decision.Terminal() || current != VerificationPending {
		return current, ErrInvalidTransition
	}
	return decision, nil
}
