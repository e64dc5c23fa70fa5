package service

import (
	"context"
	"sort"
	"time"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/calder-labs/sigil/internal/store"
	"github.com/google/uuid"
)

// mockEventStore is an in-memory append-only log with the same ordering
// guarantees as the real store: created_at ascending, insertion order for
// ties.
type mockEventStore struct {
	events []domain.SignalEvent
}

func newMockEventStore() *mockEventStore {
	return &mockEventStore{}
}

func (m *mockEventStore) Append(ctx context.Context, ev *domain.SignalEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	m.events = append(m.events, *ev)
	return nil
}

func (m *mockEventStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.SignalEvent, error) {
	for i := range m.events {
		if m.events[i].ID == id {
			ev := m.events[i]
			return &ev, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockEventStore) Query(ctx context.Context, q domain.EventQuery) ([]domain.SignalEvent, error) {
	var out []domain.SignalEvent
	for _, ev := range m.events {
		if q.Entity != nil && (ev.EntityType != q.Entity.Type || ev.EntityID != q.Entity.ID) {
			continue
		}
		if len(q.SignalTypes) > 0 {
			match := false
			for _, t := range q.SignalTypes {
				if ev.SignalType == t {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if q.ContextTag != "" && ev.ContextTag != q.ContextTag {
			continue
		}
		if !q.Since.IsZero() && ev.CreatedAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && ev.CreatedAt.After(q.Until) {
			continue
		}
		out = append(out, ev)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *mockEventStore) CountByOrigin(ctx context.Context, originID uuid.UUID) (int, error) {
	count := 0
	for i := range m.events {
		if m.events[i].OriginEventID != nil && *m.events[i].OriginEventID == originID {
			count++
		}
	}
	return count, nil
}

// mockWeightStore keeps weights in a map and honors the optimistic version
// check. conflictsRemaining forces that many UpdateVersioned calls to fail
// first, for exercising the retry loop.
type mockWeightStore struct {
	weights            map[domain.WeightKey]*domain.SignalWeight
	conflictsRemaining int
	updateCalls        int
}

func newMockWeightStore() *mockWeightStore {
	return &mockWeightStore{weights: make(map[domain.WeightKey]*domain.SignalWeight)}
}

func (m *mockWeightStore) GetByKey(ctx context.Context, key domain.WeightKey) (*domain.SignalWeight, error) {
	w, ok := m.weights[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *w
	return &copied, nil
}

func (m *mockWeightStore) Create(ctx context.Context, w *domain.SignalWeight) error {
	copied := *w
	m.weights[w.Key] = &copied
	return nil
}

func (m *mockWeightStore) UpdateVersioned(ctx context.Context, w *domain.SignalWeight) error {
	m.updateCalls++
	if m.conflictsRemaining > 0 {
		m.conflictsRemaining--
		return store.ErrVersionConflict
	}

	stored, ok := m.weights[w.Key]
	if !ok {
		return store.ErrNotFound
	}
	if stored.Version != w.Version {
		return store.ErrVersionConflict
	}

	stored.Alpha = w.Alpha
	stored.Beta = w.Beta
	stored.Version++
	stored.UpdatedAt = time.Now()
	w.Version = stored.Version
	return nil
}

func (m *mockWeightStore) ListAll(ctx context.Context) ([]domain.SignalWeight, error) {
	out := make([]domain.SignalWeight, 0, len(m.weights))
	for _, w := range m.weights {
		out = append(out, *w)
	}
	return out, nil
}

type mockCorrectionStore struct {
	records []domain.CorrectionRecord
}

func newMockCorrectionStore() *mockCorrectionStore {
	return &mockCorrectionStore{}
}

func (m *mockCorrectionStore) Create(ctx context.Context, c *domain.CorrectionRecord) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CorrectedAt.IsZero() {
		c.CorrectedAt = time.Now()
	}
	m.records = append(m.records, *c)
	return nil
}

func (m *mockCorrectionStore) ListBySubject(ctx context.Context, subjectType domain.EntityType, subjectID string) ([]domain.CorrectionRecord, error) {
	var out []domain.CorrectionRecord
	for _, r := range m.records {
		if r.SubjectType == subjectType && r.SubjectID == subjectID {
			out = append(out, r)
		}
	}
	return out, nil
}

// fixedWeightProvider serves constant weights so cascade tests are fully
// deterministic. Unlisted keys fall back to weight 1.
type fixedWeightProvider struct {
	weights map[domain.WeightKey]float64
	means   map[domain.WeightKey]float64
}

func fullWeights() *fixedWeightProvider {
	return &fixedWeightProvider{
		weights: make(map[domain.WeightKey]float64),
		means:   make(map[domain.WeightKey]float64),
	}
}

func (p *fixedWeightProvider) WeightFor(ctx context.Context, key domain.WeightKey) (float64, error) {
	if w, ok := p.weights[key]; ok {
		return w, nil
	}
	return 1, nil
}

func (p *fixedWeightProvider) MeanWeightFor(ctx context.Context, key domain.WeightKey) (float64, error) {
	if m, ok := p.means[key]; ok {
		return m, nil
	}
	if w, ok := p.weights[key]; ok {
		return w, nil
	}
	return 1, nil
}

type mockNotifier struct {
	notified []domain.SignalEvent
}

func (n *mockNotifier) Notify(ev domain.SignalEvent) {
	n.notified = append(n.notified, ev)
}
