package store

import (
	"context"
	"errors"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// EntityStore holds the registry of known entities the cascade can link
// subjects to. Name and alias lookups feed the keyword tier, email domains
// feed the domain-heuristic tier, embeddings feed description mining.
type EntityStore struct {
	db *pgxpool.Pool
}

func NewEntityStore(db *pgxpool.Pool) *EntityStore {
	return &EntityStore{db: db}
}

func (s *EntityStore) Create(ctx context.Context, e *domain.Entity) error {
	var embedding *pgvector.Vector
	if len(e.Embedding) > 0 {
		v := pgvector.NewVector(e.Embedding)
		embedding = &v
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO entities (entity_type, external_id, name, aliases, domains, embedding, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (entity_type, external_id) DO UPDATE
		 SET name = EXCLUDED.name,
		     aliases = ARRAY(SELECT DISTINCT unnest(entities.aliases || EXCLUDED.aliases)),
		     domains = ARRAY(SELECT DISTINCT unnest(entities.domains || EXCLUDED.domains)),
		     updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		e.Type, e.ExternalID, e.Name, e.Aliases, e.Domains, embedding, e.Metadata,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

func (s *EntityStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Entity, error) {
	e := &domain.Entity{}
	err := s.db.QueryRow(ctx,
		`SELECT id, entity_type, external_id, name, aliases, domains, metadata, created_at, updated_at
		 FROM entities WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Type, &e.ExternalID, &e.Name, &e.Aliases, &e.Domains, &e.Metadata, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *EntityStore) FindByNameOrAlias(ctx context.Context, entityType domain.EntityType, name string) (*domain.Entity, error) {
	e := &domain.Entity{}
	err := s.db.QueryRow(ctx,
		`SELECT id, entity_type, external_id, name, aliases, domains, metadata, created_at, updated_at
		 FROM entities
		 WHERE entity_type = $1 AND (LOWER(name) = LOWER($2) OR LOWER($2) = ANY(SELECT LOWER(unnest(aliases))))`,
		entityType, name,
	).Scan(&e.ID, &e.Type, &e.ExternalID, &e.Name, &e.Aliases, &e.Domains, &e.Metadata, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *EntityStore) FindByDomain(ctx context.Context, entityType domain.EntityType, emailDomain string) (*domain.Entity, error) {
	e := &domain.Entity{}
	err := s.db.QueryRow(ctx,
		`SELECT id, entity_type, external_id, name, aliases, domains, metadata, created_at, updated_at
		 FROM entities
		 WHERE entity_type = $1 AND LOWER($2) = ANY(SELECT LOWER(unnest(domains)))`,
		entityType, emailDomain,
	).Scan(&e.ID, &e.Type, &e.ExternalID, &e.Name, &e.Aliases, &e.Domains, &e.Metadata, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *EntityStore) FindByEmbeddingSimilarity(ctx context.Context, entityType domain.EntityType, embedding []float32, threshold float32, limit int) ([]domain.Entity, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	vec := pgvector.NewVector(embedding)

	rows, err := s.db.Query(ctx,
		`SELECT id, entity_type, external_id, name, aliases, domains, metadata, created_at, updated_at,
		        1 - (embedding <=> $2) AS similarity
		 FROM entities
		 WHERE entity_type = $1
		   AND embedding IS NOT NULL
		   AND 1 - (embedding <=> $2) >= $3
		 ORDER BY similarity DESC
		 LIMIT $4`,
		entityType, vec, threshold, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		var e domain.Entity
		var similarity float32
		if err := rows.Scan(&e.ID, &e.Type, &e.ExternalID, &e.Name, &e.Aliases, &e.Domains,
			&e.Metadata, &e.CreatedAt, &e.UpdatedAt, &similarity); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *EntityStore) ListByType(ctx context.Context, entityType domain.EntityType) ([]domain.Entity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, entity_type, external_id, name, aliases, domains, metadata, created_at, updated_at
		 FROM entities WHERE entity_type = $1 ORDER BY name`,
		entityType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		var e domain.Entity
		if err := rows.Scan(&e.ID, &e.Type, &e.ExternalID, &e.Name, &e.Aliases, &e.Domains,
			&e.Metadata, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}
