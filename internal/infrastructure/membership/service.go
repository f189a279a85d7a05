// Package membership materialises members from approved applications.
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/workflow"
)

// DefaultMembershipMonths is the term granted to a new member
const DefaultMembershipMonths = 12

// Service implements port.MemberCreator on top of the member and entity stores.
// The unique application_id on members makes creation idempotent.
type Service struct {
	members   port.MemberRepository
	entities  port.EntityRepository
	txManager port.TransactionManager
	months    int
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures the Service
type Option func(*Service)

// WithMembershipMonths overrides the membership term
func WithMembershipMonths(months int) Option {
	return func(s *Service) {
		if months > 0 {
			s.months = months
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a member creator
func NewService(
	members port.MemberRepository,
	entities port.EntityRepository,
	txManager port.TransactionManager,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		members:   members,
		entities:  entities,
		txManager: txManager,
		months:    DefaultMembershipMonths,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ port.MemberCreator = (*Service)(nil)

// CreateMember returns the member id for an approved application, creating the
// member on first call and linking it back to the application.
func (s *Service) CreateMember(ctx context.Context, app *entity.WorkflowEntity) (int64, error) {
	if app == nil || app.Type != entity.EntityApplication {
		return 0, fmt.Errorf("member creation requires an application")
	}
	if app.Stage != workflow.StageApproved {
		return 0, fmt.Errorf("application %d is %s, not approved", app.ID, app.Stage)
	}

	memberID, err := s.createOrGet(ctx, app)
	if errors.Is(err, port.ErrDuplicate) {
		// a concurrent call inserted first; its transaction has committed
		s.logger.Info("Member created concurrently, re-reading", zap.Int64("application_id", app.ID))
		memberID, err = s.createOrGet(ctx, app)
	}
	if err != nil {
		return 0, err
	}
	return memberID, nil
}

func (s *Service) createOrGet(ctx context.Context, app *entity.WorkflowEntity) (int64, error) {
	var memberID int64
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.members.GetByApplicationID(ctx, app.ID)
		if err != nil {
			return err
		}

		if existing != nil {
			memberID = existing.ID
		} else {
			m := s.memberFrom(app)
			if err := s.members.Create(ctx, m); err != nil {
				return err
			}
			memberID = m.ID
			s.logger.Info("Member created",
				zap.Int64("application_id", app.ID),
				zap.Int64("member_id", m.ID),
				zap.Time("membership_expiry", m.MembershipExpiry))
		}

		return s.entities.SetMemberID(ctx, app.ID, memberID)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create member for application %d: %w", app.ID, err)
	}
	return memberID, nil
}

func (s *Service) memberFrom(app *entity.WorkflowEntity) *entity.Member {
	now := s.now().UTC()
	a := app.Applicant
	return &entity.Member{
		ApplicationID:    app.ID,
		FirstName:        a.FirstName,
		LastName:         a.LastName,
		IDNumber:         a.IDNumber,
		Email:            a.Email,
		CellNumber:       a.CellNumber,
		DateOfBirth:      a.DateOfBirth,
		WardCode:         a.WardCode,
		MembershipExpiry: now.AddDate(0, s.months, 0),
		CreatedAt:        now,
	}
}
