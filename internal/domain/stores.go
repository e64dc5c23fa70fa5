package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventQuery narrows an event-log read. Zero values mean "no filter".
type EventQuery struct {
	Entity      *EntityRef
	SignalTypes []SignalType
	ContextTag  string
	Since       time.Time
	Until       time.Time
	Limit       int
}

// EventStore is the append-only signal log. Append never mutates existing
// rows; Query returns events ordered by created_at, then insertion order.
type EventStore interface {
	Append(ctx context.Context, ev *SignalEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*SignalEvent, error)
	Query(ctx context.Context, q EventQuery) ([]SignalEvent, error)
	CountByOrigin(ctx context.Context, originID uuid.UUID) (int, error)
}

// WeightStore persists reliability estimates. UpdateVersioned applies an
// optimistic-concurrency write and fails with ErrVersionConflict when the
// row moved underneath the caller.
type WeightStore interface {
	GetByKey(ctx context.Context, key WeightKey) (*SignalWeight, error)
	Create(ctx context.Context, w *SignalWeight) error
	UpdateVersioned(ctx context.Context, w *SignalWeight) error
	ListAll(ctx context.Context) ([]SignalWeight, error)
}

type CorrectionStore interface {
	Create(ctx context.Context, c *CorrectionRecord) error
	ListBySubject(ctx context.Context, subjectType EntityType, subjectID string) ([]CorrectionRecord, error)
}

type EntityStore interface {
	Create(ctx context.Context, e *Entity) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entity, error)
	FindByNameOrAlias(ctx context.Context, entityType EntityType, name string) (*Entity, error)
	FindByDomain(ctx context.Context, entityType EntityType, domain string) (*Entity, error)
	FindByEmbeddingSimilarity(ctx context.Context, entityType EntityType, embedding []float32, threshold float32, limit int) ([]Entity, error)
	ListByType(ctx context.Context, entityType EntityType) ([]Entity, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
