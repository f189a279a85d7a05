package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/workflow"
	"github.com/memberhub/approval-workflow/internal/infrastructure/persistence/sqldb"
)

// StatisticsRepository implements port.StatisticsRepository.
// Filters are compiled with squirrel so every value is bound as a parameter.
type StatisticsRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewStatisticsRepository creates a new statistics repository
func NewStatisticsRepository(db *sqldb.DB, logger *zap.Logger) port.StatisticsRepository {
	return &StatisticsRepository{
		db:     db,
		logger: logger,
	}
}

// Aggregate computes the dashboard statistics for one entity type
func (r *StatisticsRepository) Aggregate(ctx context.Context, f entity.StatisticsFilter) (*entity.WorkflowStatistics, error) {
	table, _, err := tableFor(f.EntityType)
	if err != nil {
		return nil, err
	}

	stats := &entity.WorkflowStatistics{
		EntityType:        f.EntityType,
		ByStage:           make(map[workflow.Stage]int64),
		ByFinancialStatus: make(map[entity.FinancialStatus]int64),
		Reviewers:         []entity.ReviewerThroughput{},
		GeneratedAt:       time.Now().UTC(),
	}

	if err := r.countBy(ctx, table, "workflow_stage", f, func(key string, n int64) {
		stats.ByStage[workflow.Stage(key)] = n
		stats.Total += n
	}); err != nil {
		return nil, err
	}

	if err := r.countBy(ctx, table, "financial_status", f, func(key string, n int64) {
		stats.ByFinancialStatus[entity.FinancialStatus(key)] = n
	}); err != nil {
		return nil, err
	}

	stats.PendingFinancialReview = stats.ByStage[workflow.StageSubmitted] + stats.ByStage[workflow.StageFinancialReview]
	stats.PendingFinalReview = stats.ByStage[workflow.StagePaymentApproved] + stats.ByStage[workflow.StageFinalReview]
	stats.ComputeRates()

	reviewers, err := r.reviewerThroughput(ctx, f)
	if err != nil {
		return nil, err
	}
	stats.Reviewers = reviewers

	return stats, nil
}

func (r *StatisticsRepository) entityFilter(f entity.StatisticsFilter) sq.And {
	where := sq.And{}
	if f.Stage != nil {
		where = append(where, sq.Eq{"workflow_stage": string(*f.Stage)})
	}
	if f.DateFrom != nil {
		where = append(where, sq.GtOrEq{"created_at": f.DateFrom.UTC()})
	}
	if f.DateTo != nil {
		where = append(where, sq.LtOrEq{"created_at": f.DateTo.UTC()})
	}
	if f.ReviewerID != nil {
		where = append(where, sq.Or{
			sq.Eq{"financial_reviewed_by": *f.ReviewerID},
			sq.Eq{"final_reviewed_by": *f.ReviewerID},
		})
	}
	return where
}

func (r *StatisticsRepository) countBy(ctx context.Context, table, column string, f entity.StatisticsFilter, fn func(key string, n int64)) error {
	query, args, err := sq.Select(column, "COUNT(*)").
		From(table).
		Where(r.entityFilter(f)).
		GroupBy(column).
		PlaceholderFormat(r.db.Dialect().Placeholder()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build %s count query: %w", column, err)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to aggregate workflow statistics",
			zap.String("table", table), zap.String("column", column), zap.Error(err))
		return fmt.Errorf("failed to count %s by %s: %w", table, column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		fn(key, n)
	}
	return rows.Err()
}

func (r *StatisticsRepository) reviewerThroughput(ctx context.Context, f entity.StatisticsFilter) ([]entity.ReviewerThroughput, error) {
	col, err := entityColumn(f.EntityType)
	if err != nil {
		return nil, err
	}

	where := sq.And{sq.NotEq{col: nil}}
	if f.DateFrom != nil {
		where = append(where, sq.GtOrEq{"created_at": f.DateFrom.UTC()})
	}
	if f.DateTo != nil {
		where = append(where, sq.LtOrEq{"created_at": f.DateTo.UTC()})
	}
	if f.ReviewerID != nil {
		where = append(where, sq.Eq{"user_id": *f.ReviewerID})
	}

	approvals := sq.Expr("SUM(CASE WHEN action_type IN (?, ?, ?) THEN 1 ELSE 0 END)",
		string(entity.AuditFinancialApprove), string(entity.AuditFinalApprove), string(entity.AuditRenewalComplete))
	rejects := sq.Expr("SUM(CASE WHEN action_type IN (?, ?) THEN 1 ELSE 0 END)",
		string(entity.AuditFinancialReject), string(entity.AuditFinalReject))

	query, args, err := sq.Select("user_id", "user_role", "COUNT(*)").
		Column(approvals).
		Column(rejects).
		From("workflow_audit_trail").
		Where(where).
		GroupBy("user_id", "user_role").
		OrderBy("user_id ASC", "user_role ASC").
		PlaceholderFormat(r.db.Dialect().Placeholder()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build reviewer throughput query: %w", err)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to aggregate reviewer throughput", zap.Error(err))
		return nil, fmt.Errorf("failed to aggregate reviewer throughput: %w", err)
	}
	defer rows.Close()

	out := []entity.ReviewerThroughput{}
	for rows.Next() {
		var (
			t    entity.ReviewerThroughput
			role string
		)
		if err := rows.Scan(&t.UserID, &role, &t.Actions, &t.Approvals, &t.Rejects); err != nil {
			return nil, fmt.Errorf("failed to scan reviewer throughput: %w", err)
		}
		t.Role = workflow.Role(role)
		out = append(out, t)
	}
	return out, rows.Err()
}

var _ port.StatisticsRepository = (*StatisticsRepository)(nil)
