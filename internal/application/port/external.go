package port

import (
	"context"
	"time"

	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/event"
)

// MemberCreator materialises a member from an approved application.
// Calling it twice for the same application returns the same member id.
type MemberCreator interface {
	CreateMember(ctx context.Context, application *entity.WorkflowEntity) (int64, error)
}

// Cache is a byte-oriented key/value cache with per-entry expiry
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// EventPublisher forwards domain events to external consumers such as notification senders
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event) error
	Close() error
}

// StatisticsRenderer renders dashboard statistics into a downloadable document
type StatisticsRenderer interface {
	RenderStatistics(stats *entity.WorkflowStatistics, filter entity.StatisticsFilter) ([]byte, error)
	ContentType() string
}

// MetricsRecorder receives workflow counters. Outcome is "success" or an error code.
type MetricsRecorder interface {
	RecordTransition(entityType entity.EntityType, action, outcome string)
	RecordMemberCreationFailure()
	RecordStatisticsCache(result string)
}
