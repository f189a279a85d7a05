package workflow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/internal/application/dispatcher"
	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/event"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
	"github.com/memberhub/approval-workflow/internal/infrastructure/persistence/sqldb"
)

// DefaultTxTimeout bounds one transition transaction
const DefaultTxTimeout = 5 * time.Second

// Actor is the authenticated user performing an action
type Actor struct {
	UserID int64
	Role   domainwf.Role
}

// Payload is the caller-supplied data for an action
type Payload struct {
	Notes           string
	RejectionReason string
	Metadata        map[string]interface{}
}

// Command asks the executor to apply one action to one entity
type Command struct {
	EntityType entity.EntityType
	EntityID   int64
	Action     domainwf.Action
	Actor      Actor
	Payload    Payload
}

// Result is the outcome of a committed transition. Downstream is set when the
// transition committed but a post-commit collaborator failed.
type Result struct {
	Entity     *entity.WorkflowEntity
	AuditEntry *entity.AuditEntry
	Downstream *domainwf.Error
}

// Executor is the single entry point for workflow state mutations
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*Result, error)
}

type executor struct {
	entities  port.EntityRepository
	audit     port.AuditRepository
	payments  port.PaymentRepository
	txManager port.TransactionManager

	members    port.MemberCreator
	dispatcher dispatcher.Dispatcher
	metrics    port.MetricsRecorder
	logger     *zap.Logger

	txTimeout time.Duration
	now       func() time.Time
}

// ExecutorOption configures the executor
type ExecutorOption func(*executor)

// WithDispatcher sets the dispatcher used for post-commit events
func WithDispatcher(d dispatcher.Dispatcher) ExecutorOption {
	return func(e *executor) {
		e.dispatcher = d
	}
}

// WithMemberCreator sets the collaborator called after approve_membership commits
func WithMemberCreator(m port.MemberCreator) ExecutorOption {
	return func(e *executor) {
		e.members = m
	}
}

// WithMetrics sets the transition metrics recorder
func WithMetrics(m port.MetricsRecorder) ExecutorOption {
	return func(e *executor) {
		e.metrics = m
	}
}

// WithLogger sets the executor logger
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(e *executor) {
		e.logger = l
	}
}

// WithTxTimeout bounds how long one transition may hold its transaction
func WithTxTimeout(d time.Duration) ExecutorOption {
	return func(e *executor) {
		if d > 0 {
			e.txTimeout = d
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *executor) {
		e.now = now
	}
}

// NewExecutor creates the action executor
func NewExecutor(
	entities port.EntityRepository,
	audit port.AuditRepository,
	payments port.PaymentRepository,
	txManager port.TransactionManager,
	opts ...ExecutorOption,
) Executor {
	e := &executor{
		entities:  entities,
		audit:     audit,
		payments:  payments,
		txManager: txManager,
		logger:    zap.NewNop(),
		txTimeout: DefaultTxTimeout,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *executor) Execute(ctx context.Context, cmd Command) (*Result, error) {
	if !cmd.EntityType.IsValid() {
		return nil, e.finish(cmd, domainwf.Validation("unknown entity type %q", cmd.EntityType))
	}
	if !cmd.Action.IsValid() {
		return nil, e.finish(cmd, domainwf.Validation("unknown action %q", cmd.Action))
	}
	if cmd.EntityID <= 0 {
		return nil, e.finish(cmd, domainwf.Validation("entity id must be positive"))
	}

	var (
		updated *entity.WorkflowEntity
		entry   *entity.AuditEntry
	)

	txCtx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()

	err := e.txManager.WithTransaction(txCtx, func(ctx context.Context) error {
		current, err := e.entities.GetForUpdate(ctx, cmd.EntityType, cmd.EntityID)
		if err != nil {
			return err
		}
		if current == nil {
			return domainwf.NotFound("%s %d not found", cmd.EntityType, cmd.EntityID)
		}

		updated, entry, err = e.transition(ctx, current, cmd)
		if err != nil {
			return err
		}

		if err := e.entities.UpdateWorkflow(ctx, updated); err != nil {
			return err
		}
		return e.audit.Append(ctx, entry)
	})
	if err != nil {
		return nil, e.finish(cmd, e.classify(cmd, err))
	}

	e.finish(cmd, nil)
	e.logger.Info("Workflow transition committed",
		zap.String("entity_type", string(cmd.EntityType)),
		zap.Int64("entity_id", cmd.EntityID),
		zap.String("action", cmd.Action.String()),
		zap.String("from", string(entry.PreviousWorkflowStage)),
		zap.String("to", string(entry.NewWorkflowStage)),
		zap.Int64("user_id", cmd.Actor.UserID),
		zap.Int64("audit_id", entry.ID))

	result := &Result{Entity: updated, AuditEntry: entry}
	e.afterCommit(ctx, cmd, result)
	return result, nil
}

// transition runs the state machine against the locked row and returns the
// mutated copy together with its audit entry
func (e *executor) transition(ctx context.Context, current *entity.WorkflowEntity, cmd Command) (*entity.WorkflowEntity, *entity.AuditEntry, error) {
	machine, err := BuildStateMachine(current.Type, current.Stage)
	if err != nil {
		return nil, nil, err
	}

	req := &domainwf.Request{
		ActorID:             cmd.Actor.UserID,
		ActorRole:           cmd.Actor.Role,
		FinancialReviewedBy: current.FinancialReviewedBy,
		FinalReviewedBy:     current.FinalReviewedBy,
		Notes:               cmd.Payload.Notes,
		RejectionReason:     cmd.Payload.RejectionReason,
	}
	var paymentID int64
	if cmd.Action == domainwf.ActionApprovePayment && machine.CanFire(cmd.Action) {
		n, latest, err := e.payments.CountCompleted(ctx, current.Type, current.ID)
		if err != nil {
			return nil, nil, err
		}
		req.CompletedPayments = n
		paymentID = latest
	}

	if err := machine.Fire(ctx, cmd.Action, req); err != nil {
		return nil, nil, withStage(err, current.Stage)
	}

	next := current.Clone()
	next.Stage = machine.Stage()
	applyEffects(next, cmd.Action, cmd.Actor, cmd.Payload, e.now())

	if err := next.CheckConsistency(); err != nil {
		if next.FinancialReviewedBy != nil && next.FinalReviewedBy != nil && *next.FinancialReviewedBy == *next.FinalReviewedBy {
			return nil, nil, withStage(domainwf.Forbidden("%s", err.Error()), current.Stage)
		}
		return nil, nil, domainwf.Internal(err, "transition %s would leave %s %d inconsistent", cmd.Action, current.Type, current.ID)
	}

	entry := &entity.AuditEntry{
		ActionType:            entity.AuditActionFor(cmd.Action),
		PreviousStatus:        statusOf(current, cmd.Action),
		NewStatus:             statusOf(next, cmd.Action),
		PreviousWorkflowStage: current.Stage,
		NewWorkflowStage:      next.Stage,
		UserID:                cmd.Actor.UserID,
		UserRole:              cmd.Actor.Role,
		Notes:                 auditNotes(cmd),
		Metadata:              auditMetadata(cmd, req),
		CreatedAt:             e.now().UTC(),
	}
	entry.SetEntity(current.Type, current.ID)
	// links the completed payment that satisfied the precondition
	if paymentID > 0 {
		entry.TransactionID = &paymentID
	}

	return next, entry, nil
}

func auditNotes(cmd Command) string {
	if cmd.Payload.RejectionReason != "" && cmd.Payload.Notes == "" {
		return cmd.Payload.RejectionReason
	}
	return cmd.Payload.Notes
}

func auditMetadata(cmd Command, req *domainwf.Request) map[string]interface{} {
	md := make(map[string]interface{}, len(cmd.Payload.Metadata)+3)
	for k, v := range cmd.Payload.Metadata {
		md[k] = v
	}
	md["action"] = cmd.Action.String()
	if cmd.Payload.RejectionReason != "" {
		md["rejection_reason"] = cmd.Payload.RejectionReason
	}
	if cmd.Action == domainwf.ActionApprovePayment {
		md["completed_payments"] = req.CompletedPayments
	}
	return md
}

// withStage attaches the stage the entity was in when a guard failed
func withStage(err error, stage domainwf.Stage) error {
	if we, ok := domainwf.AsError(err); ok && we.CurrentStage == "" {
		we.CurrentStage = stage
	}
	return err
}

// ClassifyError maps a store or context failure onto the workflow taxonomy.
// Workflow errors pass through unchanged.
func ClassifyError(err error) *domainwf.Error {
	if err == nil {
		return nil
	}
	if we, ok := domainwf.AsError(err); ok {
		return we
	}
	if sqldb.IsTransient(err) || errors.Is(err, context.Canceled) {
		return domainwf.Transient(err, "operation could not complete in time, retry later")
	}
	return domainwf.Internal(err, "operation failed")
}

// classify turns anything that escaped the transaction into a workflow error.
// Raw driver errors never leave the executor.
func (e *executor) classify(cmd Command, err error) *domainwf.Error {
	we := ClassifyError(err)
	fields := []zap.Field{
		zap.String("entity_type", string(cmd.EntityType)),
		zap.Int64("entity_id", cmd.EntityID),
		zap.String("action", cmd.Action.String()),
		zap.Error(err),
	}

	switch we.Kind {
	case domainwf.KindTransient:
		e.logger.Warn("Workflow transition aborted, retryable", fields...)
	case domainwf.KindInternal:
		e.logger.Error("Workflow transition failed", fields...)
	}
	return we
}

// finish records the outcome and returns err unchanged. Forbidden outcomes are
// security events.
func (e *executor) finish(cmd Command, err *domainwf.Error) error {
	outcome := "success"
	if err != nil {
		outcome = string(err.Kind)
	}
	if e.metrics != nil {
		e.metrics.RecordTransition(cmd.EntityType, cmd.Action.String(), outcome)
	}
	if err == nil {
		return nil
	}

	if err.Kind == domainwf.KindForbidden {
		e.logger.Warn("Workflow action forbidden",
			zap.Bool("security_event", true),
			zap.String("entity_type", string(cmd.EntityType)),
			zap.Int64("entity_id", cmd.EntityID),
			zap.String("action", cmd.Action.String()),
			zap.Int64("user_id", cmd.Actor.UserID),
			zap.String("user_role", string(cmd.Actor.Role)),
			zap.String("reason", err.Message))
	}
	return err
}

// afterCommit raises the post-commit events and creates the member for an
// approved application. Every event of one transition shares a correlation id:
// the caller's when ctx carries one, otherwise the first event's id.
func (e *executor) afterCommit(ctx context.Context, cmd Command, result *Result) {
	correlation := event.CorrelationFromContext(ctx)
	raise := func(evt *event.Event) {
		if e.dispatcher == nil {
			return
		}
		if correlation == "" {
			correlation = evt.ID
		}
		e.dispatcher.DispatchAsync(ctx, evt.WithCorrelation(correlation))
	}

	raise(event.NewEvent(event.TypeStageChanged, string(cmd.EntityType), cmd.EntityID, map[string]interface{}{
		"action":         cmd.Action.String(),
		"previous_stage": string(result.AuditEntry.PreviousWorkflowStage),
		"new_stage":      string(result.AuditEntry.NewWorkflowStage),
		"user_id":        cmd.Actor.UserID,
		"user_role":      string(cmd.Actor.Role),
		"audit_id":       result.AuditEntry.ID,
	}))

	if cmd.Action != domainwf.ActionApproveMembership || cmd.EntityType != entity.EntityApplication {
		return
	}

	raise(event.NewEvent(event.TypeMembershipApproved, string(cmd.EntityType), cmd.EntityID, map[string]interface{}{
		"first_name":  result.Entity.Applicant.FirstName,
		"last_name":   result.Entity.Applicant.LastName,
		"cell_number": result.Entity.Applicant.CellNumber,
		"email":       result.Entity.Applicant.Email,
	}))

	if e.members == nil {
		return
	}

	memberID, err := e.members.CreateMember(ctx, result.Entity.Clone())
	if err != nil {
		result.Downstream = domainwf.Downstream(err, "membership approved but member creation failed; retry via reconciliation")
		if e.metrics != nil {
			e.metrics.RecordMemberCreationFailure()
		}
		e.logger.Error("Member creation failed after approval",
			zap.Int64("application_id", cmd.EntityID),
			zap.String("correlation_id", correlation),
			zap.Error(err))
		raise(event.NewEvent(event.TypeMemberCreationFailed, string(cmd.EntityType), cmd.EntityID,
			map[string]interface{}{"error": err.Error()}))
		return
	}

	result.Entity.MemberID = &memberID
	raise(event.NewEvent(event.TypeMemberCreated, string(cmd.EntityType), cmd.EntityID,
		map[string]interface{}{"member_id": memberID}))
}
