package workflow

import (
	"context"
	"fmt"
	"sort"
)

// Request carries the facts a guard is allowed to look at when an action is fired
type Request struct {
	ActorID             int64
	ActorRole           Role
	FinancialReviewedBy *int64
	FinalReviewedBy     *int64
	CompletedPayments   int
	Notes               string
	RejectionReason     string
}

// GuardFunc decides whether a transition may proceed. A non-nil error aborts the
// transition and is returned to the caller unchanged.
type GuardFunc func(ctx context.Context, req *Request) error

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns the transition configuration for the given stage
	Configure(stage Stage) StageConfiguration

	// Build creates a new state machine positioned at the given stage
	Build(initial Stage) StateMachine
}

// StageConfiguration configures transitions out of a single stage
type StageConfiguration interface {
	// Permit allows an action to move to the target stage unconditionally
	Permit(action Action, to Stage) StageConfiguration

	// PermitIf allows an action to move to the target stage once every guard passes.
	// Guards run in the order given.
	PermitIf(action Action, to Stage, guards ...GuardFunc) StageConfiguration
}

type transition struct {
	to     Stage
	guards []GuardFunc
}

type stageConfig struct {
	from        Stage
	transitions map[Action][]transition
}

type stateMachineBuilder struct {
	configurations map[Stage]*stageConfig
}

type stateMachine struct {
	current        Stage
	configurations map[Stage]*stageConfig
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		configurations: make(map[Stage]*stageConfig),
	}
}

func (b *stateMachineBuilder) Configure(stage Stage) StageConfiguration {
	if !stage.IsValid() {
		panic(fmt.Sprintf("invalid stage: %s", stage))
	}

	config, exists := b.configurations[stage]
	if !exists {
		config = &stageConfig{
			from:        stage,
			transitions: make(map[Action][]transition),
		}
		b.configurations[stage] = config
	}

	return config
}

// Build copies the configuration so later Configure calls never affect running machines
func (b *stateMachineBuilder) Build(initial Stage) StateMachine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial stage: %s", initial))
	}

	configs := make(map[Stage]*stageConfig, len(b.configurations))
	for stage, config := range b.configurations {
		transitions := make(map[Action][]transition, len(config.transitions))
		for action, ts := range config.transitions {
			transitions[action] = append([]transition{}, ts...)
		}
		configs[stage] = &stageConfig{from: stage, transitions: transitions}
	}

	return &stateMachine{
		current:        initial,
		configurations: configs,
	}
}

func (c *stageConfig) Permit(action Action, to Stage) StageConfiguration {
	return c.PermitIf(action, to)
}

func (c *stageConfig) PermitIf(action Action, to Stage, guards ...GuardFunc) StageConfiguration {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target stage: %s", to))
	}

	c.transitions[action] = append(c.transitions[action], transition{
		to:     to,
		guards: append([]GuardFunc{}, guards...),
	})

	return c
}

func (m *stateMachine) Stage() Stage {
	return m.current
}

// CanFire reports whether the action is configured from the current stage.
// Guards are not evaluated.
func (m *stateMachine) CanFire(action Action) bool {
	config, exists := m.configurations[m.current]
	if !exists {
		return false
	}
	return len(config.transitions[action]) > 0
}

func (m *stateMachine) Fire(ctx context.Context, action Action, req *Request) error {
	config, exists := m.configurations[m.current]
	if !exists || len(config.transitions[action]) == 0 {
		return InvalidTransition(m.current, "action %s is not allowed from stage %s", action, m.current)
	}
	if req == nil {
		req = &Request{}
	}

	var firstErr error
	for _, t := range config.transitions[action] {
		if err := runGuards(ctx, t.guards, req); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.current = t.to
		return nil
	}

	return firstErr
}

func runGuards(ctx context.Context, guards []GuardFunc, req *Request) error {
	for _, g := range guards {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// PermittedActions returns the configured actions out of the current stage in sorted order
func (m *stateMachine) PermittedActions() []Action {
	config, exists := m.configurations[m.current]
	if !exists {
		return []Action{}
	}

	actions := make([]Action, 0, len(config.transitions))
	for action := range config.transitions {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	return actions
}
