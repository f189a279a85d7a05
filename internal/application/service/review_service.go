package service

import (
	"context"
	"strings"

	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/application/workflow"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Decision is the outcome a reviewer records when completing a review tier
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ParseDecision accepts approved/approve and rejected/reject in any case
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved", "approve":
		return DecisionApproved, nil
	case "rejected", "reject":
		return DecisionRejected, nil
	}
	return "", domainwf.Validation("decision must be approved or rejected, got %q", s)
}

// ReviewInput is the body of a complete_* call
type ReviewInput struct {
	Decision        Decision
	Notes           string
	RejectionReason string
	Metadata        map[string]interface{}
}

// EntityView is an entity together with the actions legal from its stage
type EntityView struct {
	Entity           *entity.WorkflowEntity `json:"entity"`
	PermittedActions []domainwf.Action      `json:"permitted_actions"`
}

// ReviewService is the caller-facing surface of the two-tier review
type ReviewService interface {
	StartFinancialReview(ctx context.Context, t entity.EntityType, id int64, actor workflow.Actor) (*workflow.Result, error)
	CompleteFinancialReview(ctx context.Context, t entity.EntityType, id int64, actor workflow.Actor, in ReviewInput) (*workflow.Result, error)
	StartFinalReview(ctx context.Context, applicationID int64, actor workflow.Actor) (*workflow.Result, error)
	CompleteFinalReview(ctx context.Context, applicationID int64, actor workflow.Actor, in ReviewInput) (*workflow.Result, error)
	CompleteRenewal(ctx context.Context, renewalID int64, actor workflow.Actor, notes string) (*workflow.Result, error)
	GetEntity(ctx context.Context, t entity.EntityType, id int64) (*EntityView, error)
}

type reviewServiceImpl struct {
	executor workflow.Executor
	entities port.EntityRepository
	logger   Logger
}

// NewReviewService creates a new ReviewService
func NewReviewService(executor workflow.Executor, entities port.EntityRepository, logger Logger) ReviewService {
	return &reviewServiceImpl{
		executor: executor,
		entities: entities,
		logger:   logger,
	}
}

func (s *reviewServiceImpl) StartFinancialReview(ctx context.Context, t entity.EntityType, id int64, actor workflow.Actor) (*workflow.Result, error) {
	return s.execute(ctx, t, id, domainwf.ActionStartFinancialReview, actor, workflow.Payload{})
}

// CompleteFinancialReview approves or rejects the payment tier. For rejections the
// notes double as the reason when no explicit reason is given.
func (s *reviewServiceImpl) CompleteFinancialReview(ctx context.Context, t entity.EntityType, id int64, actor workflow.Actor, in ReviewInput) (*workflow.Result, error) {
	action, payload, err := completion(in, domainwf.ActionApprovePayment, domainwf.ActionRejectPayment)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, t, id, action, actor, payload)
}

func (s *reviewServiceImpl) StartFinalReview(ctx context.Context, applicationID int64, actor workflow.Actor) (*workflow.Result, error) {
	return s.execute(ctx, entity.EntityApplication, applicationID, domainwf.ActionStartFinalReview, actor, workflow.Payload{})
}

func (s *reviewServiceImpl) CompleteFinalReview(ctx context.Context, applicationID int64, actor workflow.Actor, in ReviewInput) (*workflow.Result, error) {
	action, payload, err := completion(in, domainwf.ActionApproveMembership, domainwf.ActionRejectMembership)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, entity.EntityApplication, applicationID, action, actor, payload)
}

func (s *reviewServiceImpl) CompleteRenewal(ctx context.Context, renewalID int64, actor workflow.Actor, notes string) (*workflow.Result, error) {
	return s.execute(ctx, entity.EntityRenewal, renewalID, domainwf.ActionCompleteRenewal, actor, workflow.Payload{Notes: notes})
}

// GetEntity loads an entity and lists the actions configured from its stage
func (s *reviewServiceImpl) GetEntity(ctx context.Context, t entity.EntityType, id int64) (*EntityView, error) {
	if !t.IsValid() {
		return nil, domainwf.Validation("unknown entity type %q", t)
	}
	e, err := s.entities.GetByID(ctx, t, id)
	if err != nil {
		s.logger.Error("Failed to load entity", "entity_type", t, "id", id, "error", err)
		return nil, workflow.ClassifyError(err)
	}
	if e == nil {
		return nil, domainwf.NotFound("%s %d not found", t, id)
	}

	machine, err := workflow.BuildStateMachine(e.Type, e.Stage)
	if err != nil {
		return nil, err
	}
	return &EntityView{Entity: e, PermittedActions: machine.PermittedActions()}, nil
}

func (s *reviewServiceImpl) execute(ctx context.Context, t entity.EntityType, id int64, action domainwf.Action, actor workflow.Actor, payload workflow.Payload) (*workflow.Result, error) {
	result, err := s.executor.Execute(ctx, workflow.Command{
		EntityType: t,
		EntityID:   id,
		Action:     action,
		Actor:      actor,
		Payload:    payload,
	})
	if err != nil {
		return nil, err
	}

	if result.Downstream != nil {
		s.logger.Warn("Transition committed with downstream failure",
			"entity_type", t, "id", id, "action", action, "error", result.Downstream)
	}
	return result, nil
}

func completion(in ReviewInput, approve, reject domainwf.Action) (domainwf.Action, workflow.Payload, error) {
	payload := workflow.Payload{
		Notes:           strings.TrimSpace(in.Notes),
		RejectionReason: strings.TrimSpace(in.RejectionReason),
		Metadata:        in.Metadata,
	}

	switch in.Decision {
	case DecisionApproved:
		payload.RejectionReason = ""
		return approve, payload, nil
	case DecisionRejected:
		if payload.RejectionReason == "" {
			payload.RejectionReason = payload.Notes
		}
		return reject, payload, nil
	}
	return "", payload, domainwf.Validation("decision must be approved or rejected, got %q", in.Decision)
}
