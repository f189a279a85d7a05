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
	"github.com/memberhub/approval-workflow/internal/infrastructure/persistence/sqldb"
)

const paymentColumns = `id, application_id, renewal_id, amount, currency, method, status,
	gateway_reference, verified_by, verified_at, verification_notes, created_at, updated_at`

// PaymentRepository implements port.PaymentRepository
type PaymentRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *sqldb.DB, logger *zap.Logger) port.PaymentRepository {
	return &PaymentRepository{
		db:     db,
		logger: logger,
	}
}

// Create records a payment attempt
func (r *PaymentRepository) Create(ctx context.Context, p *entity.PaymentTransaction) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Currency == "" {
		p.Currency = "ZAR"
	}

	id, err := insertID(ctx, r.db, `
		INSERT INTO payment_transactions (
			application_id, renewal_id, amount, currency, method, status,
			gateway_reference, verified_by, verified_at, verification_notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullInt64(p.ApplicationID), nullInt64(p.RenewalID),
		p.Amount.StringFixed(2), p.Currency, string(p.Method), string(p.Status),
		p.GatewayReference, nullInt64(p.VerifiedBy), nullTime(p.VerifiedAt), p.VerificationNotes,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create payment transaction", zap.Error(err))
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}

	p.ID = id
	return nil
}

// GetByID returns a payment or nil when it does not exist
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*entity.PaymentTransaction, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx,
		r.db.Rebind(`SELECT `+paymentColumns+` FROM payment_transactions WHERE id = ?`), id)

	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get payment transaction", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get payment %d: %w", id, err)
	}
	return p, nil
}

// ListByEntity returns every payment attempt for an application or renewal
func (r *PaymentRepository) ListByEntity(ctx context.Context, t entity.EntityType, id int64) ([]*entity.PaymentTransaction, error) {
	col, err := entityColumn(t)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		r.db.Rebind(fmt.Sprintf(`SELECT %s FROM payment_transactions WHERE %s = ? ORDER BY id ASC`, paymentColumns, col)), id)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []*entity.PaymentTransaction
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountCompleted counts completed payments and returns the id of the latest one.
// A completed online payment is the gateway success signal, so no separate
// check is needed for it.
func (r *PaymentRepository) CountCompleted(ctx context.Context, t entity.EntityType, id int64) (int, int64, error) {
	col, err := entityColumn(t)
	if err != nil {
		return 0, 0, err
	}

	var (
		n      int
		latest int64
	)
	err = r.db.Executor(ctx).QueryRowContext(ctx,
		r.db.Rebind(fmt.Sprintf(`SELECT COUNT(*), COALESCE(MAX(id), 0) FROM payment_transactions WHERE %s = ? AND status = ?`, col)),
		id, string(entity.PaymentCompleted),
	).Scan(&n, &latest)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count completed payments: %w", err)
	}
	return n, latest, nil
}

// MarkVerified moves a pending or verification_required payment to completed
func (r *PaymentRepository) MarkVerified(ctx context.Context, id, verifierID int64, notes string, at time.Time) (bool, error) {
	result, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(`
		UPDATE payment_transactions
		SET status = ?, verified_by = ?, verified_at = ?, verification_notes = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`),
		string(entity.PaymentCompleted), verifierID, at.UTC(), notes, at.UTC(),
		id, string(entity.PaymentPending), string(entity.PaymentVerificationRequired),
	)
	if err != nil {
		r.logger.Error("Failed to verify payment", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to verify payment %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanPayment(row rowScanner) (*entity.PaymentTransaction, error) {
	var (
		p                   entity.PaymentTransaction
		appID, renID, verBy sql.NullInt64
		verAt               sql.NullTime
		method, status      string
	)
	if err := row.Scan(
		&p.ID, &appID, &renID, &p.Amount, &p.Currency, &method, &status,
		&p.GatewayReference, &verBy, &verAt, &p.VerificationNotes, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.ApplicationID = int64Ptr(appID)
	p.RenewalID = int64Ptr(renID)
	p.VerifiedBy = int64Ptr(verBy)
	p.VerifiedAt = timePtr(verAt)
	p.Method = entity.PaymentMethod(method)
	p.Status = entity.PaymentStatus(status)
	return &p, nil
}

var _ port.PaymentRepository = (*PaymentRepository)(nil)
