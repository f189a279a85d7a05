package workflow

import "context"

// StateMachine tracks the current stage of one entity and validates actions against it
type StateMachine interface {
	// Stage returns the current stage
	Stage() Stage

	// CanFire returns true if the action is configured from the current stage
	CanFire(action Action) bool

	// Fire runs the guards for the action and moves to the target stage when they pass
	Fire(ctx context.Context, action Action, req *Request) error

	// PermittedActions returns all actions configured from the current stage
	PermittedActions() []Action
}
