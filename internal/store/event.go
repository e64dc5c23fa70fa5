package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// EventStore persists the append-only signal log. Rows are never updated
// or deleted; superseding facts arrive as new rows.
type EventStore struct {
	db *pgxpool.Pool
}

func NewEventStore(db *pgxpool.Pool) *EventStore {
	return &EventStore{db: db}
}

const eventColumns = `id, entity_type, entity_id, signal_type, source, raw_value, confidence,
	half_life_seconds, context_tag, embedding, invalidates, origin_event_id, depth, created_at`

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent reads one eventColumns row. The destination list must stay in
// sync with eventColumns; relevance ranking depends on the embedding coming
// back from reads, not just going in on writes.
func scanEvent(row rowScanner) (*domain.SignalEvent, error) {
	ev := &domain.SignalEvent{}
	var halfLifeSeconds int64
	var embedding *pgvector.Vector
	if err := row.Scan(&ev.ID, &ev.EntityType, &ev.EntityID, &ev.SignalType, &ev.Source,
		&ev.RawValue, &ev.Confidence, &halfLifeSeconds, &ev.ContextTag, &embedding,
		&ev.Invalidates, &ev.OriginEventID, &ev.Depth, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.HalfLife = secondsToDuration(halfLifeSeconds)
	if embedding != nil {
		ev.Embedding = embedding.Slice()
	}
	return ev, nil
}

func (s *EventStore) Append(ctx context.Context, ev *domain.SignalEvent) error {
	var embedding *pgvector.Vector
	if len(ev.Embedding) > 0 {
		v := pgvector.NewVector(ev.Embedding)
		embedding = &v
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO signal_events (entity_type, entity_id, signal_type, source, raw_value, confidence, half_life_seconds, context_tag, embedding, invalidates, origin_event_id, depth)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at`,
		ev.EntityType, ev.EntityID, ev.SignalType, ev.Source, ev.RawValue, ev.Confidence,
		int64(ev.EffectiveHalfLife().Seconds()), ev.ContextTag, embedding, ev.Invalidates,
		ev.OriginEventID, ev.Depth,
	).Scan(&ev.ID, &ev.CreatedAt)
}

func (s *EventStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.SignalEvent, error) {
	ev, err := scanEvent(s.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM signal_events WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ev, nil
}

func (s *EventStore) Query(ctx context.Context, q domain.EventQuery) ([]domain.SignalEvent, error) {
	var conditions []string
	var args []any

	if q.Entity != nil {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)+1))
		args = append(args, q.Entity.Type)
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)+1))
		args = append(args, q.Entity.ID)
	}

	if len(q.SignalTypes) > 0 {
		types := make([]string, len(q.SignalTypes))
		for i, t := range q.SignalTypes {
			types[i] = string(t)
		}
		conditions = append(conditions, fmt.Sprintf("signal_type = ANY($%d)", len(args)+1))
		args = append(args, types)
	}

	if q.ContextTag != "" {
		conditions = append(conditions, fmt.Sprintf("context_tag = $%d", len(args)+1))
		args = append(args, q.ContextTag)
	}

	if !q.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, q.Since)
	}

	if !q.Until.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)+1))
		args = append(args, q.Until)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT `+eventColumns+`
		 FROM signal_events
		 %s
		 ORDER BY created_at ASC, seq ASC
		 LIMIT $%d`,
		where, len(args),
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("event query: %w", err)
	}
	defer rows.Close()

	var events []domain.SignalEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func (s *EventStore) CountByOrigin(ctx context.Context, originID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM signal_events WHERE origin_event_id = $1`,
		originID,
	).Scan(&count)
	return count, err
}
