package port

import (
	"context"
	"errors"
	"time"

	"github.com/memberhub/approval-workflow/internal/domain/entity"
)

// ErrDuplicate is returned by repositories when a unique key already exists
var ErrDuplicate = errors.New("duplicate record")

// EntityRepository persists applications and renewals.
// Lookups return nil, nil when the row does not exist.
type EntityRepository interface {
	Create(ctx context.Context, e *entity.WorkflowEntity) error
	GetByID(ctx context.Context, t entity.EntityType, id int64) (*entity.WorkflowEntity, error)

	// GetForUpdate loads the row and locks it until the surrounding transaction ends.
	// It must be called inside TransactionManager.WithTransaction.
	GetForUpdate(ctx context.Context, t entity.EntityType, id int64) (*entity.WorkflowEntity, error)

	// UpdateWorkflow writes stage, statuses, reviewer fields and notes
	UpdateWorkflow(ctx context.Context, e *entity.WorkflowEntity) error

	SetMemberID(ctx context.Context, applicationID, memberID int64) error
	ListApprovedWithoutMember(ctx context.Context, limit int) ([]*entity.WorkflowEntity, error)
}

// AuditRepository is the append-only store of workflow transitions
type AuditRepository interface {
	Append(ctx context.Context, entry *entity.AuditEntry) error

	// ListByEntity returns entries with id > afterID, oldest first
	ListByEntity(ctx context.Context, t entity.EntityType, id int64, afterID int64, limit int) ([]*entity.AuditEntry, error)
}

// PaymentRepository persists payment transactions
type PaymentRepository interface {
	Create(ctx context.Context, p *entity.PaymentTransaction) error
	GetByID(ctx context.Context, id int64) (*entity.PaymentTransaction, error)
	ListByEntity(ctx context.Context, t entity.EntityType, id int64) ([]*entity.PaymentTransaction, error)
	// CountCompleted returns the number of completed payments and the id of the latest one
	CountCompleted(ctx context.Context, t entity.EntityType, id int64) (count int, latestID int64, err error)

	// MarkVerified completes a payment that is still awaiting verification.
	// It returns false when the payment was not in a verifiable state.
	MarkVerified(ctx context.Context, id, verifierID int64, notes string, at time.Time) (bool, error)
}

// MemberRepository persists members materialised from approved applications
type MemberRepository interface {
	// Create inserts a member and returns ErrDuplicate when the application already has one
	Create(ctx context.Context, m *entity.Member) error
	GetByID(ctx context.Context, id int64) (*entity.Member, error)
	GetByApplicationID(ctx context.Context, applicationID int64) (*entity.Member, error)
	ListByBirthday(ctx context.Context, month time.Month, day int) ([]*entity.Member, error)
}

// StatisticsRepository runs the read-only dashboard aggregations
type StatisticsRepository interface {
	Aggregate(ctx context.Context, filter entity.StatisticsFilter) (*entity.WorkflowStatistics, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
