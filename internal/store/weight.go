package store

import (
	"context"
	"errors"
	"time"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WeightStore persists per-(source, entity_type, signal_type) reliability
// estimates. Updates go through a version column so concurrent corrections
// cannot silently clobber each other.
type WeightStore struct {
	db *pgxpool.Pool
}

func NewWeightStore(db *pgxpool.Pool) *WeightStore {
	return &WeightStore{db: db}
}

func (s *WeightStore) GetByKey(ctx context.Context, key domain.WeightKey) (*domain.SignalWeight, error) {
	w := &domain.SignalWeight{Key: key}
	err := s.db.QueryRow(ctx,
		`SELECT alpha, beta, version, updated_at
		 FROM signal_weights
		 WHERE source = $1 AND entity_type = $2 AND signal_type = $3`,
		key.Source, key.EntityType, key.SignalType,
	).Scan(&w.Alpha, &w.Beta, &w.Version, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return w, nil
}

func (s *WeightStore) Create(ctx context.Context, w *domain.SignalWeight) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO signal_weights (source, entity_type, signal_type, alpha, beta, version)
		 VALUES ($1, $2, $3, $4, $5, 1)
		 ON CONFLICT (source, entity_type, signal_type) DO UPDATE SET updated_at = NOW()
		 RETURNING alpha, beta, version, updated_at`,
		w.Key.Source, w.Key.EntityType, w.Key.SignalType, w.Alpha, w.Beta,
	).Scan(&w.Alpha, &w.Beta, &w.Version, &w.UpdatedAt)
}

func (s *WeightStore) UpdateVersioned(ctx context.Context, w *domain.SignalWeight) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE signal_weights
		 SET alpha = $1, beta = $2, version = version + 1, updated_at = NOW()
		 WHERE source = $3 AND entity_type = $4 AND signal_type = $5 AND version = $6`,
		w.Alpha, w.Beta, w.Key.Source, w.Key.EntityType, w.Key.SignalType, w.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	w.Version++
	w.UpdatedAt = time.Now()
	return nil
}

func (s *WeightStore) ListAll(ctx context.Context) ([]domain.SignalWeight, error) {
	rows, err := s.db.Query(ctx,
		`SELECT source, entity_type, signal_type, alpha, beta, version, updated_at
		 FROM signal_weights
		 ORDER BY source, entity_type, signal_type`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weights []domain.SignalWeight
	for rows.Next() {
		var w domain.SignalWeight
		if err := rows.Scan(&w.Key.Source, &w.Key.EntityType, &w.Key.SignalType,
			&w.Alpha, &w.Beta, &w.Version, &w.UpdatedAt); err != nil {
			return nil, err
		}
		weights = append(weights, w)
	}
	return weights, rows.Err()
}
