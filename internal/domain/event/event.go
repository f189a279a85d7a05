package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event raised after a workflow change has committed
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	EntityType    string                 `json:"entity_type,omitempty"`
	EntityID      int64                  `json:"entity_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with a generated ID and timestamp
func NewEvent(eventType Type, entityType string, entityID int64, payload map[string]interface{}) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		EntityType:    entityType,
		EntityID:      entityID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: id,
	}
}

// WithCorrelation returns a copy of the event linked to an existing correlation chain
func (e *Event) WithCorrelation(correlationID string) *Event {
	c := *e
	c.CorrelationID = correlationID
	return &c
}

type correlationKey struct{}

// ContextWithCorrelation tags ctx so events raised while handling it join the
// caller's correlation chain
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, correlationID)
}

// CorrelationFromContext returns the correlation id carried by ctx, if any
func CorrelationFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// Correlate links evt to the correlation id carried by ctx, if any
func Correlate(ctx context.Context, evt *Event) *Event {
	if id := CorrelationFromContext(ctx); id != "" {
		return evt.WithCorrelation(id)
	}
	return evt
}
