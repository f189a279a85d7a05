package service

import (
	"context"

	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/application/workflow"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
)

const (
	DefaultTrailLimit = 50
	MaxTrailLimit     = 500
)

// AuditService reads the audit trail. Writes only happen inside the executor.
type AuditService interface {
	GetTrail(ctx context.Context, t entity.EntityType, id int64, afterID int64, limit int) (*entity.AuditPage, error)
}

type auditServiceImpl struct {
	entities port.EntityRepository
	audit    port.AuditRepository
	logger   Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(entities port.EntityRepository, audit port.AuditRepository, logger Logger) AuditService {
	return &auditServiceImpl{
		entities: entities,
		audit:    audit,
		logger:   logger,
	}
}

// GetTrail returns one page of entries oldest first. Pass NextAfterID of the
// previous page to continue.
func (s *auditServiceImpl) GetTrail(ctx context.Context, t entity.EntityType, id int64, afterID int64, limit int) (*entity.AuditPage, error) {
	if !t.IsValid() {
		return nil, domainwf.Validation("unknown entity type %q", t)
	}
	if afterID < 0 {
		return nil, domainwf.Validation("after_id must not be negative")
	}
	if limit <= 0 {
		limit = DefaultTrailLimit
	}
	if limit > MaxTrailLimit {
		limit = MaxTrailLimit
	}

	e, err := s.entities.GetByID(ctx, t, id)
	if err != nil {
		s.logger.Error("Failed to load entity for audit trail", "entity_type", t, "id", id, "error", err)
		return nil, workflow.ClassifyError(err)
	}
	if e == nil {
		return nil, domainwf.NotFound("%s %d not found", t, id)
	}

	// one extra row tells us whether another page exists
	entries, err := s.audit.ListByEntity(ctx, t, id, afterID, limit+1)
	if err != nil {
		s.logger.Error("Failed to list audit trail", "entity_type", t, "id", id, "error", err)
		return nil, workflow.ClassifyError(err)
	}

	page := &entity.AuditPage{Entries: entries, NextAfterID: afterID}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		page.HasMore = true
	}
	if page.Entries == nil {
		page.Entries = []*entity.AuditEntry{}
	}
	if n := len(page.Entries); n > 0 {
		page.NextAfterID = page.Entries[n-1].ID
	}
	return page, nil
}
