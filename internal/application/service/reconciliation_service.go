package service

import (
	"context"

	"github.com/memberhub/approval-workflow/internal/application/dispatcher"
	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/application/workflow"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/event"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
)

const (
	DefaultReconcileBatch = 100
	MaxReconcileBatch     = 1000
)

// ReconcileReport summarises one reconciliation pass
type ReconcileReport struct {
	Scanned int     `json:"scanned"`
	Created int     `json:"created"`
	Failed  []int64 `json:"failed"`
}

// ReconciliationService finds approved applications whose member was never
// created and retries the creation. The approval itself is never rolled back.
type ReconciliationService interface {
	ListPendingMemberCreation(ctx context.Context, limit int) ([]*entity.WorkflowEntity, error)
	RetryMemberCreation(ctx context.Context, applicationID int64) (int64, error)
	RunOnce(ctx context.Context, limit int) (*ReconcileReport, error)
}

type reconciliationServiceImpl struct {
	entities   port.EntityRepository
	creator    port.MemberCreator
	dispatcher dispatcher.Dispatcher
	metrics    port.MetricsRecorder
	logger     Logger
}

// NewReconciliationService creates a new ReconciliationService. The dispatcher
// and metrics may be nil.
func NewReconciliationService(
	entities port.EntityRepository,
	creator port.MemberCreator,
	d dispatcher.Dispatcher,
	metrics port.MetricsRecorder,
	logger Logger,
) ReconciliationService {
	return &reconciliationServiceImpl{
		entities:   entities,
		creator:    creator,
		dispatcher: d,
		metrics:    metrics,
		logger:     logger,
	}
}

func clampBatch(limit int) int {
	if limit <= 0 {
		return DefaultReconcileBatch
	}
	if limit > MaxReconcileBatch {
		return MaxReconcileBatch
	}
	return limit
}

func (s *reconciliationServiceImpl) ListPendingMemberCreation(ctx context.Context, limit int) ([]*entity.WorkflowEntity, error) {
	pending, err := s.entities.ListApprovedWithoutMember(ctx, clampBatch(limit))
	if err != nil {
		s.logger.Error("Failed to list approved applications without member", "error", err)
		return nil, workflow.ClassifyError(err)
	}
	if pending == nil {
		pending = []*entity.WorkflowEntity{}
	}
	return pending, nil
}

// RetryMemberCreation creates the member for one approved application. It
// returns the existing member id when one is already linked.
func (s *reconciliationServiceImpl) RetryMemberCreation(ctx context.Context, applicationID int64) (int64, error) {
	app, err := s.entities.GetByID(ctx, entity.EntityApplication, applicationID)
	if err != nil {
		s.logger.Error("Failed to load application", "id", applicationID, "error", err)
		return 0, workflow.ClassifyError(err)
	}
	if app == nil {
		return 0, domainwf.NotFound("application %d not found", applicationID)
	}
	if app.Stage != domainwf.StageApproved {
		return 0, domainwf.InvalidTransition(app.Stage, "application %d is not approved", applicationID)
	}
	if app.MemberID != nil {
		return *app.MemberID, nil
	}

	return s.create(ctx, app)
}

func (s *reconciliationServiceImpl) create(ctx context.Context, app *entity.WorkflowEntity) (int64, error) {
	memberID, err := s.creator.CreateMember(ctx, app)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordMemberCreationFailure()
		}
		s.logger.Error("Member creation retry failed", "application_id", app.ID, "error", err)
		s.publish(ctx, event.TypeMemberCreationFailed, app.ID, map[string]interface{}{
			"error":  err.Error(),
			"source": "reconciliation",
		})
		return 0, domainwf.Downstream(err, "member creation failed for application %d", app.ID)
	}

	s.logger.Info("Member created by reconciliation", "application_id", app.ID, "member_id", memberID)
	s.publish(ctx, event.TypeMemberCreated, app.ID, map[string]interface{}{
		"member_id": memberID,
		"source":    "reconciliation",
	})
	return memberID, nil
}

// RunOnce retries every pending application in one batch. Individual
// failures are reported, not returned.
func (s *reconciliationServiceImpl) RunOnce(ctx context.Context, limit int) (*ReconcileReport, error) {
	pending, err := s.ListPendingMemberCreation(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{Scanned: len(pending), Failed: []int64{}}
	for _, app := range pending {
		if ctx.Err() != nil {
			return report, workflow.ClassifyError(ctx.Err())
		}
		if _, err := s.create(ctx, app); err != nil {
			report.Failed = append(report.Failed, app.ID)
			continue
		}
		report.Created++
	}

	if report.Scanned > 0 {
		s.logger.Info("Reconciliation pass finished",
			"scanned", report.Scanned, "created", report.Created, "failed", len(report.Failed))
	}
	return report, nil
}

func (s *reconciliationServiceImpl) publish(ctx context.Context, t event.Type, applicationID int64, payload map[string]interface{}) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, event.Correlate(ctx, event.NewEvent(t, string(entity.EntityApplication), applicationID, payload)))
}
