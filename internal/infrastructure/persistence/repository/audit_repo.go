package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/workflow"
	"github.com/memberhub/approval-workflow/internal/infrastructure/persistence/sqldb"
)

// AuditRepository implements port.AuditRepository. It has no update or delete path.
type AuditRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit trail repository
func NewAuditRepository(db *sqldb.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append writes one audit entry
func (r *AuditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	if (entry.ApplicationID == nil) == (entry.RenewalID == nil) {
		return fmt.Errorf("audit entry must reference exactly one of application or renewal")
	}

	var metadata interface{}
	if len(entry.Metadata) > 0 {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
		metadata = string(b)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	id, err := insertID(ctx, r.db, `
		INSERT INTO workflow_audit_trail (
			application_id, renewal_id, transaction_id, action_type,
			previous_status, new_status, previous_workflow_stage, new_workflow_stage,
			user_id, user_role, notes, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullInt64(entry.ApplicationID), nullInt64(entry.RenewalID), nullInt64(entry.TransactionID),
		string(entry.ActionType),
		entry.PreviousStatus, entry.NewStatus,
		string(entry.PreviousWorkflowStage), string(entry.NewWorkflowStage),
		entry.UserID, string(entry.UserRole), entry.Notes, metadata, entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append audit entry",
			zap.String("action_type", string(entry.ActionType)), zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	entry.ID = id
	return nil
}

// ListByEntity returns up to limit entries after afterID, ordered by id.
// Ids are assigned in commit order under the entity row lock, so id order is
// the causal order of transitions on one entity.
func (r *AuditRepository) ListByEntity(ctx context.Context, t entity.EntityType, id int64, afterID int64, limit int) ([]*entity.AuditEntry, error) {
	col, err := entityColumn(t)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, application_id, renewal_id, transaction_id, action_type,
			previous_status, new_status, previous_workflow_stage, new_workflow_stage,
			user_id, user_role, notes, metadata, created_at
		FROM workflow_audit_trail
		WHERE %s = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?`, col)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(query), id, afterID, limit)
	if err != nil {
		r.logger.Error("Failed to list audit trail",
			zap.String("entity_type", string(t)), zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit trail: %w", err)
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		var (
			e                   entity.AuditEntry
			appID, renID, txID  sql.NullInt64
			action, role        string
			prevStage, newStage string
			metadata            sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &appID, &renID, &txID, &action,
			&e.PreviousStatus, &e.NewStatus, &prevStage, &newStage,
			&e.UserID, &role, &e.Notes, &metadata, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		e.ApplicationID = int64Ptr(appID)
		e.RenewalID = int64Ptr(renID)
		e.TransactionID = int64Ptr(txID)
		e.ActionType = entity.AuditActionType(action)
		e.UserRole = workflow.Role(role)
		e.PreviousWorkflowStage = workflow.Stage(prevStage)
		e.NewWorkflowStage = workflow.Stage(newStage)
		e.CreatedAt = e.CreatedAt.UTC()
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				r.logger.Warn("Ignoring malformed audit metadata", zap.Int64("audit_id", e.ID), zap.Error(err))
			}
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

var _ port.AuditRepository = (*AuditRepository)(nil)
