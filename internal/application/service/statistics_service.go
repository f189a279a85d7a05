package service

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/application/workflow"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/event"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
)

// DefaultStatisticsTTL is how stale dashboard statistics may get
const DefaultStatisticsTTL = 15 * time.Minute

const statisticsKeyPrefix = "workflow_stats:"

// StatisticsService serves dashboard statistics through a read-through cache.
// The cache is never consulted by the executor.
type StatisticsService interface {
	GetWorkflowStatistics(ctx context.Context, filter entity.StatisticsFilter) (*entity.WorkflowStatistics, error)
	ExportStatistics(ctx context.Context, filter entity.StatisticsFilter) ([]byte, string, error)
	Invalidate(ctx context.Context) error

	// HandleWorkflowEvent drops cached statistics when an entity changes
	HandleWorkflowEvent(ctx context.Context, evt *event.Event) error
}

type statisticsServiceImpl struct {
	repo     port.StatisticsRepository
	cache    port.Cache
	renderer port.StatisticsRenderer
	metrics  port.MetricsRecorder
	ttl      time.Duration
	group    singleflight.Group
	logger   Logger
}

// StatisticsOption configures the statistics service
type StatisticsOption func(*statisticsServiceImpl)

// WithStatisticsCache enables read-through caching with the given TTL
func WithStatisticsCache(cache port.Cache, ttl time.Duration) StatisticsOption {
	return func(s *statisticsServiceImpl) {
		s.cache = cache
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithStatisticsRenderer sets the export renderer
func WithStatisticsRenderer(r port.StatisticsRenderer) StatisticsOption {
	return func(s *statisticsServiceImpl) {
		s.renderer = r
	}
}

// WithStatisticsMetrics records cache hits and misses
func WithStatisticsMetrics(m port.MetricsRecorder) StatisticsOption {
	return func(s *statisticsServiceImpl) {
		s.metrics = m
	}
}

// NewStatisticsService creates a new StatisticsService
func NewStatisticsService(repo port.StatisticsRepository, logger Logger, opts ...StatisticsOption) StatisticsService {
	s := &statisticsServiceImpl{
		repo:   repo,
		ttl:    DefaultStatisticsTTL,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeFilter validates the filter and fills defaults
func NormalizeFilter(f entity.StatisticsFilter) (entity.StatisticsFilter, error) {
	if f.EntityType == "" {
		f.EntityType = entity.EntityApplication
	}
	if !f.EntityType.IsValid() {
		return f, domainwf.Validation("unknown entity type %q", f.EntityType)
	}
	if f.Stage != nil && !f.Stage.IsValid() {
		return f, domainwf.Validation("unknown workflow stage %q", *f.Stage)
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return f, domainwf.Validation("date_from must not be after date_to")
	}
	if f.ReviewerID != nil && *f.ReviewerID <= 0 {
		return f, domainwf.Validation("reviewer_id must be positive")
	}
	return f, nil
}

func (s *statisticsServiceImpl) GetWorkflowStatistics(ctx context.Context, filter entity.StatisticsFilter) (*entity.WorkflowStatistics, error) {
	filter, err := NormalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	key := filter.Signature()

	if stats, ok := s.fromCache(ctx, key); ok {
		return stats, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		stats, err := s.repo.Aggregate(ctx, filter)
		if err != nil {
			return nil, err
		}
		s.toCache(ctx, key, stats)
		return stats, nil
	})
	if err != nil {
		s.logger.Error("Failed to aggregate workflow statistics", "filter", key, "error", err)
		return nil, workflow.ClassifyError(err)
	}
	return v.(*entity.WorkflowStatistics), nil
}

func (s *statisticsServiceImpl) fromCache(ctx context.Context, key string) (*entity.WorkflowStatistics, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.record("error")
		s.logger.Warn("Statistics cache read failed, reading through", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		s.record("miss")
		return nil, false
	}

	var stats entity.WorkflowStatistics
	if err := json.Unmarshal(data, &stats); err != nil {
		s.record("error")
		s.logger.Warn("Discarding undecodable cached statistics", "key", key, "error", err)
		return nil, false
	}
	s.record("hit")
	return &stats, true
}

func (s *statisticsServiceImpl) toCache(ctx context.Context, key string, stats *entity.WorkflowStatistics) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		s.logger.Warn("Failed to encode statistics for cache", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn("Statistics cache write failed", "key", key, "error", err)
	}
}

func (s *statisticsServiceImpl) record(result string) {
	if s.metrics != nil {
		s.metrics.RecordStatisticsCache(result)
	}
}

// ExportStatistics renders the statistics for download
func (s *statisticsServiceImpl) ExportStatistics(ctx context.Context, filter entity.StatisticsFilter) ([]byte, string, error) {
	if s.renderer == nil {
		return nil, "", domainwf.Internal(nil, "statistics export is not configured")
	}
	filter, err := NormalizeFilter(filter)
	if err != nil {
		return nil, "", err
	}

	stats, err := s.GetWorkflowStatistics(ctx, filter)
	if err != nil {
		return nil, "", err
	}

	data, err := s.renderer.RenderStatistics(stats, filter)
	if err != nil {
		s.logger.Error("Failed to render statistics", "error", err)
		return nil, "", domainwf.Internal(err, "failed to render statistics")
	}
	return data, s.renderer.ContentType(), nil
}

func (s *statisticsServiceImpl) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeletePrefix(ctx, statisticsKeyPrefix)
}

func (s *statisticsServiceImpl) HandleWorkflowEvent(ctx context.Context, evt *event.Event) error {
	if err := s.Invalidate(ctx); err != nil {
		// entries still expire on their TTL
		s.logger.Warn("Failed to invalidate statistics cache", "event_type", evt.Type, "error", err)
	}
	return nil
}
