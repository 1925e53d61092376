// Package workflow holds the inquiry and agent verification state machines.
// Nothing in here touches storage; callers persist the states it returns.
package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a rule of a state machine forbids the move
	// or when either side of the move is not a known state.
	ErrInvalidTransition = errors.New("workflow: invalid transition")
	// ErrAdminRequired is returned when the move is legal but only for administrators.
	ErrAdminRequired = errors.New("workflow: administrator required")
	// ErrUnknownState is returned by the Parse functions.
	ErrUnknownState = errors.New("workflow: unknown state")
)

// Actor identifies the kind of principal driving a transition.
type Actor int

const (
	ActorAgent Actor = iota
	ActorAdmin
)

// ActorFor maps an administrator flag to an Actor.
func ActorFor(isAdmin bool) Actor {
	if isAdmin {
		return ActorAdmin
	}
	return ActorAgent
}
