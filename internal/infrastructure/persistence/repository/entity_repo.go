package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/workflow"
	"github.com/memberhub/approval-workflow/internal/infrastructure/persistence/sqldb"
)

const workflowColumns = `financial_status, status, workflow_stage,
	financial_reviewed_by, financial_reviewed_at, final_reviewed_by, final_reviewed_at,
	financial_rejection_reason, financial_admin_notes, admin_notes, rejection_reason,
	created_at, updated_at`

const applicationColumns = `id, member_id, first_name, last_name, id_number, email, cell_number,
	date_of_birth, ward_code, ` + workflowColumns

const renewalColumns = `id, member_id, renewal_period_months, ` + workflowColumns

// EntityRepository implements port.EntityRepository over membership_applications
// and membership_renewals
type EntityRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(db *sqldb.DB, logger *zap.Logger) port.EntityRepository {
	return &EntityRepository{
		db:     db,
		logger: logger,
	}
}

func tableFor(t entity.EntityType) (table, columns string, err error) {
	switch t {
	case entity.EntityApplication:
		return "membership_applications", applicationColumns, nil
	case entity.EntityRenewal:
		return "membership_renewals", renewalColumns, nil
	}
	return "", "", fmt.Errorf("unknown entity type %q", t)
}

// Create inserts a new application or renewal
func (r *EntityRepository) Create(ctx context.Context, e *entity.WorkflowEntity) error {
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	var (
		id  int64
		err error
	)
	switch e.Type {
	case entity.EntityApplication:
		id, err = insertID(ctx, r.db, `
			INSERT INTO membership_applications (
				member_id, first_name, last_name, id_number, email, cell_number, date_of_birth, ward_code,
				`+workflowColumns+`
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			append([]interface{}{
				nullInt64(e.MemberID), e.Applicant.FirstName, e.Applicant.LastName, e.Applicant.IDNumber,
				e.Applicant.Email, e.Applicant.CellNumber, nullTime(e.Applicant.DateOfBirth), e.Applicant.WardCode,
			}, workflowValues(e)...)...,
		)
	case entity.EntityRenewal:
		if e.MemberID == nil {
			return fmt.Errorf("renewal requires a member id")
		}
		id, err = insertID(ctx, r.db, `
			INSERT INTO membership_renewals (
				member_id, renewal_period_months,
				`+workflowColumns+`
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			append([]interface{}{*e.MemberID, e.RenewalPeriodMonths}, workflowValues(e)...)...,
		)
	default:
		return fmt.Errorf("unknown entity type %q", e.Type)
	}
	if err != nil {
		r.logger.Error("Failed to create workflow entity", zap.String("entity_type", string(e.Type)), zap.Error(err))
		return fmt.Errorf("failed to create %s: %w", e.Type, err)
	}

	e.ID = id
	return nil
}

func workflowValues(e *entity.WorkflowEntity) []interface{} {
	return []interface{}{
		string(e.FinancialStatus), string(e.Status), string(e.Stage),
		nullInt64(e.FinancialReviewedBy), nullTime(e.FinancialReviewedAt),
		nullInt64(e.FinalReviewedBy), nullTime(e.FinalReviewedAt),
		e.FinancialRejectionReason, e.FinancialAdminNotes, e.AdminNotes, e.RejectionReason,
		e.CreatedAt, e.UpdatedAt,
	}
}

// GetByID loads an entity without locking
func (r *EntityRepository) GetByID(ctx context.Context, t entity.EntityType, id int64) (*entity.WorkflowEntity, error) {
	return r.get(ctx, t, id, false)
}

// GetForUpdate loads an entity and holds its row lock until the transaction ends
func (r *EntityRepository) GetForUpdate(ctx context.Context, t entity.EntityType, id int64) (*entity.WorkflowEntity, error) {
	if !sqldb.InTransaction(ctx) {
		return nil, fmt.Errorf("GetForUpdate called outside a transaction")
	}
	return r.get(ctx, t, id, true)
}

func (r *EntityRepository) get(ctx context.Context, t entity.EntityType, id int64, lock bool) (*entity.WorkflowEntity, error) {
	table, columns, err := tableFor(t)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", columns, table)
	if lock {
		query += r.db.Dialect().LockClause()
	}

	e, err := scanEntity(t, r.db.Executor(ctx).QueryRowContext(ctx, r.db.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow entity",
			zap.String("entity_type", string(t)), zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get %s %d: %w", t, id, err)
	}
	return e, nil
}

// UpdateWorkflow persists the workflow columns of an entity
func (r *EntityRepository) UpdateWorkflow(ctx context.Context, e *entity.WorkflowEntity) error {
	table, _, err := tableFor(e.Type)
	if err != nil {
		return err
	}
	e.UpdatedAt = time.Now().UTC()

	query := fmt.Sprintf(`
		UPDATE %s SET
			financial_status = ?, status = ?, workflow_stage = ?,
			financial_reviewed_by = ?, financial_reviewed_at = ?,
			final_reviewed_by = ?, final_reviewed_at = ?,
			financial_rejection_reason = ?, financial_admin_notes = ?,
			admin_notes = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ?`, table)

	result, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query),
		string(e.FinancialStatus), string(e.Status), string(e.Stage),
		nullInt64(e.FinancialReviewedBy), nullTime(e.FinancialReviewedAt),
		nullInt64(e.FinalReviewedBy), nullTime(e.FinalReviewedAt),
		e.FinancialRejectionReason, e.FinancialAdminNotes,
		e.AdminNotes, e.RejectionReason, e.UpdatedAt,
		e.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow entity",
			zap.String("entity_type", string(e.Type)), zap.Int64("id", e.ID), zap.Error(err))
		return fmt.Errorf("failed to update %s %d: %w", e.Type, e.ID, err)
	}
	return expectOneRow(result)
}

// SetMemberID links an application to its member. Re-linking to the same member is a no-op.
func (r *EntityRepository) SetMemberID(ctx context.Context, applicationID, memberID int64) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(`
		UPDATE membership_applications SET member_id = ?, updated_at = ?
		WHERE id = ? AND (member_id IS NULL OR member_id = ?)`),
		memberID, time.Now().UTC(), applicationID, memberID,
	)
	if err != nil {
		return fmt.Errorf("failed to link application %d to member %d: %w", applicationID, memberID, err)
	}
	if err := expectOneRow(result); err != nil {
		return fmt.Errorf("application %d is missing or linked to another member: %w", applicationID, err)
	}
	return nil
}

// ListApprovedWithoutMember returns approved applications still waiting for member creation
func (r *EntityRepository) ListApprovedWithoutMember(ctx context.Context, limit int) ([]*entity.WorkflowEntity, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + applicationColumns + `
		FROM membership_applications
		WHERE workflow_stage = ? AND member_id IS NULL
		ORDER BY id ASC
		LIMIT ?`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(query), string(workflow.StageApproved), limit)
	if err != nil {
		r.logger.Error("Failed to list applications pending member creation", zap.Error(err))
		return nil, fmt.Errorf("failed to list pending member creation: %w", err)
	}
	defer rows.Close()

	var out []*entity.WorkflowEntity
	for rows.Next() {
		e, err := scanEntity(entity.EntityApplication, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntity(t entity.EntityType, row rowScanner) (*entity.WorkflowEntity, error) {
	e := entity.WorkflowEntity{Type: t}
	var (
		memberID                 sql.NullInt64
		dob                      sql.NullTime
		finBy, finalBy           sql.NullInt64
		finAt, finalAt           sql.NullTime
		finStatus, status, stage string
	)

	workflowDest := []interface{}{
		&finStatus, &status, &stage,
		&finBy, &finAt, &finalBy, &finalAt,
		&e.FinancialRejectionReason, &e.FinancialAdminNotes, &e.AdminNotes, &e.RejectionReason,
		&e.CreatedAt, &e.UpdatedAt,
	}

	var dest []interface{}
	if t == entity.EntityApplication {
		dest = append([]interface{}{
			&e.ID, &memberID, &e.Applicant.FirstName, &e.Applicant.LastName, &e.Applicant.IDNumber,
			&e.Applicant.Email, &e.Applicant.CellNumber, &dob, &e.Applicant.WardCode,
		}, workflowDest...)
	} else {
		dest = append([]interface{}{&e.ID, &memberID, &e.RenewalPeriodMonths}, workflowDest...)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	e.MemberID = int64Ptr(memberID)
	e.Applicant.DateOfBirth = timePtr(dob)
	e.FinancialReviewedBy = int64Ptr(finBy)
	e.FinancialReviewedAt = timePtr(finAt)
	e.FinalReviewedBy = int64Ptr(finalBy)
	e.FinalReviewedAt = timePtr(finalAt)
	e.FinancialStatus = entity.FinancialStatus(finStatus)
	e.Status = entity.Status(status)
	e.Stage = workflow.Stage(stage)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()

	return &e, nil
}

var _ port.EntityRepository = (*EntityRepository)(nil)
