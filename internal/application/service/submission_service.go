package service

import (
	"context"
	"time"

	"github.com/memberhub/approval-workflow/internal/application/dispatcher"
	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/application/workflow"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/event"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
	"github.com/memberhub/approval-workflow/pkg/utils"
)

const (
	DefaultRenewalMonths = 12
	MaxRenewalMonths     = 60
)

// SubmissionService creates applications and renewals at the start of the workflow
type SubmissionService interface {
	SubmitApplication(ctx context.Context, applicant entity.Applicant) (*entity.WorkflowEntity, error)
	SubmitRenewal(ctx context.Context, memberID int64, periodMonths int) (*entity.WorkflowEntity, error)
}

type submissionServiceImpl struct {
	entities   port.EntityRepository
	members    port.MemberRepository
	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time
}

// NewSubmissionService creates a new SubmissionService. The dispatcher may be nil.
func NewSubmissionService(
	entities port.EntityRepository,
	members port.MemberRepository,
	d dispatcher.Dispatcher,
	logger Logger,
) SubmissionService {
	return &submissionServiceImpl{
		entities:   entities,
		members:    members,
		dispatcher: d,
		logger:     logger,
		now:        time.Now,
	}
}

// SubmitApplication validates the applicant and stores a Submitted application.
// Submission writes no audit entry; the trail starts at the first review action.
func (s *submissionServiceImpl) SubmitApplication(ctx context.Context, applicant entity.Applicant) (*entity.WorkflowEntity, error) {
	applicant, err := s.validateApplicant(applicant)
	if err != nil {
		return nil, err
	}

	app := entity.NewSubmitted(entity.EntityApplication, applicant)
	if err := s.entities.Create(ctx, app); err != nil {
		s.logger.Error("Failed to create application", "id_number", maskID(applicant.IDNumber), "error", err)
		return nil, workflow.ClassifyError(err)
	}

	s.logger.Info("Application submitted", "id", app.ID, "ward_code", applicant.WardCode)
	s.announce(ctx, app)
	return app, nil
}

// SubmitRenewal opens a renewal for an existing member
func (s *submissionServiceImpl) SubmitRenewal(ctx context.Context, memberID int64, periodMonths int) (*entity.WorkflowEntity, error) {
	if periodMonths == 0 {
		periodMonths = DefaultRenewalMonths
	}
	if periodMonths < 1 || periodMonths > MaxRenewalMonths {
		return nil, domainwf.Validation("renewal_period_months must be between 1 and %d", MaxRenewalMonths)
	}

	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		s.logger.Error("Failed to load member for renewal", "member_id", memberID, "error", err)
		return nil, workflow.ClassifyError(err)
	}
	if member == nil {
		return nil, domainwf.NotFound("member %d not found", memberID)
	}

	renewal := entity.NewSubmitted(entity.EntityRenewal, entity.Applicant{
		FirstName:   member.FirstName,
		LastName:    member.LastName,
		IDNumber:    member.IDNumber,
		Email:       member.Email,
		CellNumber:  member.CellNumber,
		DateOfBirth: member.DateOfBirth,
		WardCode:    member.WardCode,
	})
	renewal.MemberID = &member.ID
	renewal.RenewalPeriodMonths = periodMonths

	if err := s.entities.Create(ctx, renewal); err != nil {
		s.logger.Error("Failed to create renewal", "member_id", memberID, "error", err)
		return nil, workflow.ClassifyError(err)
	}

	s.logger.Info("Renewal submitted", "id", renewal.ID, "member_id", memberID, "months", periodMonths)
	s.announce(ctx, renewal)
	return renewal, nil
}

func (s *submissionServiceImpl) validateApplicant(a entity.Applicant) (entity.Applicant, error) {
	a.FirstName = utils.SanitizeString(a.FirstName)
	a.LastName = utils.SanitizeString(a.LastName)
	a.IDNumber = utils.SanitizeString(a.IDNumber)
	a.Email = utils.SanitizeString(a.Email)
	a.CellNumber = utils.SanitizeString(a.CellNumber)
	a.WardCode = utils.SanitizeString(a.WardCode)

	if a.FirstName == "" || a.LastName == "" {
		return a, domainwf.Validation("first_name and last_name are required")
	}
	if err := utils.ValidateIDNumber(a.IDNumber); err != nil {
		return a, domainwf.Validation("%s", err.Error())
	}
	if a.Email != "" {
		if err := utils.ValidateEmail(a.Email); err != nil {
			return a, domainwf.Validation("%s", err.Error())
		}
	}
	if a.CellNumber != "" {
		if err := utils.ValidateCellNumber(a.CellNumber); err != nil {
			return a, domainwf.Validation("%s", err.Error())
		}
	}
	if a.WardCode != "" {
		if err := utils.ValidateWardCode(a.WardCode); err != nil {
			return a, domainwf.Validation("%s", err.Error())
		}
	}

	if a.DateOfBirth == nil {
		dob, err := utils.DateOfBirthFromID(a.IDNumber, s.now())
		if err == nil {
			a.DateOfBirth = &dob
		}
	}
	return a, nil
}

func (s *submissionServiceImpl) announce(ctx context.Context, e *entity.WorkflowEntity) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, event.Correlate(ctx, event.NewEvent(event.TypeEntitySubmitted, string(e.Type), e.ID, map[string]interface{}{
		"workflow_stage": string(e.Stage),
	})))
}

// maskID keeps the birth date prefix of an ID number out of logs
func maskID(id string) string {
	if len(id) <= 4 {
		return "****"
	}
	return "*********" + id[len(id)-4:]
}
