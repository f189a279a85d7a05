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

const memberColumns = `id, application_id, first_name, last_name, id_number, email, cell_number,
	date_of_birth, ward_code, membership_expiry, created_at`

// MemberRepository implements port.MemberRepository
type MemberRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *sqldb.DB, logger *zap.Logger) port.MemberRepository {
	return &MemberRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a member. members.application_id is UNIQUE, so a second insert
// for the same application returns port.ErrDuplicate.
func (r *MemberRepository) Create(ctx context.Context, m *entity.Member) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	var appID interface{}
	if m.ApplicationID != 0 {
		appID = m.ApplicationID
	}

	id, err := insertID(ctx, r.db, `
		INSERT INTO members (
			application_id, first_name, last_name, id_number, email, cell_number,
			date_of_birth, ward_code, membership_expiry, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		appID, m.FirstName, m.LastName, m.IDNumber, m.Email, m.CellNumber,
		nullTime(m.DateOfBirth), m.WardCode, m.MembershipExpiry.UTC(), m.CreatedAt,
	)
	if err != nil {
		if sqldb.IsUniqueViolation(err) {
			return fmt.Errorf("member for application %d: %w", m.ApplicationID, port.ErrDuplicate)
		}
		r.logger.Error("Failed to create member", zap.Int64("application_id", m.ApplicationID), zap.Error(err))
		return fmt.Errorf("failed to create member: %w", err)
	}

	m.ID = id
	return nil
}

// GetByID returns a member or nil when it does not exist
func (r *MemberRepository) GetByID(ctx context.Context, id int64) (*entity.Member, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx,
		r.db.Rebind(`SELECT `+memberColumns+` FROM members WHERE id = ?`), id)

	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member %d: %w", id, err)
	}
	return m, nil
}

// GetByApplicationID returns the member created from an application, or nil
func (r *MemberRepository) GetByApplicationID(ctx context.Context, applicationID int64) (*entity.Member, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx,
		r.db.Rebind(`SELECT `+memberColumns+` FROM members WHERE application_id = ?`), applicationID)

	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member for application %d: %w", applicationID, err)
	}
	return m, nil
}

// ListByBirthday returns members born on the given month and day of any year.
// The match is done in Go so the query stays portable across dialects.
func (r *MemberRepository) ListByBirthday(ctx context.Context, month time.Month, day int) ([]*entity.Member, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		r.db.Rebind(`SELECT `+memberColumns+` FROM members WHERE date_of_birth IS NOT NULL AND membership_expiry >= ? ORDER BY id ASC`),
		time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var out []*entity.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if m.DateOfBirth != nil && m.DateOfBirth.Month() == month && m.DateOfBirth.Day() == day {
			out = append(out, m)
		}
	}
	return out, rows.Err()
}

func scanMember(row rowScanner) (*entity.Member, error) {
	var (
		m     entity.Member
		appID sql.NullInt64
		dob   sql.NullTime
	)
	if err := row.Scan(
		&m.ID, &appID, &m.FirstName, &m.LastName, &m.IDNumber, &m.Email, &m.CellNumber,
		&dob, &m.WardCode, &m.MembershipExpiry, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	if appID.Valid {
		m.ApplicationID = appID.Int64
	}
	m.DateOfBirth = timePtr(dob)
	return &m, nil
}

var _ port.MemberRepository = (*MemberRepository)(nil)
