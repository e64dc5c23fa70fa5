package store

import (
	"context"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CorrectionStore persists user overrides. Append-only; kept for audit
// after the learner consumes them.
type CorrectionStore struct {
	db *pgxpool.Pool
}

func NewCorrectionStore(db *pgxpool.Pool) *CorrectionStore {
	return &CorrectionStore{db: db}
}

func (s *CorrectionStore) Create(ctx context.Context, c *domain.CorrectionRecord) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO corrections (subject_type, subject_id, old_entity_id, new_entity_id, blamed_source, blamed_signal, credited_source, credited_signal)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, corrected_at`,
		c.SubjectType, c.SubjectID, c.OldEntityID, c.NewEntityID,
		c.BlamedSource, c.BlamedSignal, c.CreditedSource, c.CreditedSignal,
	).Scan(&c.ID, &c.CorrectedAt)
}

func (s *CorrectionStore) ListBySubject(ctx context.Context, subjectType domain.EntityType, subjectID string) ([]domain.CorrectionRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, subject_type, subject_id, old_entity_id, new_entity_id, blamed_source, blamed_signal, credited_source, credited_signal, corrected_at
		 FROM corrections
		 WHERE subject_type = $1 AND subject_id = $2
		 ORDER BY corrected_at ASC`,
		subjectType, subjectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.CorrectionRecord
	for rows.Next() {
		var c domain.CorrectionRecord
		if err := rows.Scan(&c.ID, &c.SubjectType, &c.SubjectID, &c.OldEntityID, &c.NewEntityID,
			&c.BlamedSource, &c.BlamedSignal, &c.CreditedSource, &c.CreditedSignal, &c.CorrectedAt); err != nil {
			return nil, err
		}
		records = append(records, c)
	}
	return records, rows.Err()
}
