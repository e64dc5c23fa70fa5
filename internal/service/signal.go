package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnknownEntityType   = errors.New("unknown entity type")
	ErrUnknownSignalType   = errors.New("unknown signal type")
	ErrUnknownSignalSource = errors.New("unknown signal source")
	ErrEntityIDMissing     = errors.New("entity_id is required")
)

// Notifier receives fire-and-forget notice of appended events so slow
// consequences (re-enrichment, UI refresh) can happen outside the core.
// Implementations must not block.
type Notifier interface {
	Notify(ev domain.SignalEvent)
}

// EmitRequest is the ingestion payload from any collaborator.
type EmitRequest struct {
	Entity     domain.EntityRef
	SignalType domain.SignalType
	Source     domain.SignalSource
	Value      string
	Confidence float64
	HalfLife   time.Duration
	ContextTag string
	Embedding  []float32
	// Invalidates marks a prior event this one supersedes.
	Invalidates *uuid.UUID
}

// FusedScore is the combined confidence for an entity's signals.
type FusedScore struct {
	Value       float64     `json:"value"`
	SignalCount int         `json:"signal_count"`
	SignalIDs   []uuid.UUID `json:"contributing_signal_ids"`
}

// SignalService is the ingestion boundary: it validates, appends, and runs
// synchronous propagation. Appends are serialized through a single logical
// writer so propagation's read-then-write step never races a concurrent
// append for the same entity.
type SignalService struct {
	events   domain.EventStore
	engine   *PropagationEngine
	weights  WeightProvider
	notifier Notifier
	logger   *zap.Logger

	appendMu sync.Mutex
}

func NewSignalService(events domain.EventStore, engine *PropagationEngine, weights WeightProvider, logger *zap.Logger) *SignalService {
	return &SignalService{
		events:  events,
		engine:  engine,
		weights: weights,
		logger:  logger,
	}
}

func (s *SignalService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Emit validates and appends one signal, then evaluates propagation rules
// against the committed event. Out-of-range confidence is clamped with a
// warning rather than rejected; unknown type combinations indicate a
// collaborator bug and are rejected outright.
func (s *SignalService) Emit(ctx context.Context, req EmitRequest) (uuid.UUID, error) {
	if req.Entity.ID == "" {
		return uuid.Nil, ErrEntityIDMissing
	}
	if !domain.ValidEntityType(string(req.Entity.Type)) {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, req.Entity.Type)
	}
	if !domain.ValidSignalType(string(req.SignalType)) {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrUnknownSignalType, req.SignalType)
	}
	if !domain.ValidSignalSource(string(req.Source)) {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrUnknownSignalSource, req.Source)
	}

	confidence := req.Confidence
	if confidence < 0 || confidence > 1 {
		clamped := confidence
		if clamped < 0 {
			clamped = 0
		}
		if clamped > 1 {
			clamped = 1
		}
		s.logger.Warn("clamping out-of-range confidence",
			zap.Float64("confidence", confidence),
			zap.Float64("clamped", clamped),
			zap.String("source", string(req.Source)),
			zap.String("signal_type", string(req.SignalType)))
		confidence = clamped
	}

	ev := &domain.SignalEvent{
		EntityType:  req.Entity.Type,
		EntityID:    req.Entity.ID,
		SignalType:  req.SignalType,
		Source:      req.Source,
		RawValue:    req.Value,
		Confidence:  confidence,
		HalfLife:    req.HalfLife,
		ContextTag:  req.ContextTag,
		Embedding:   req.Embedding,
		Invalidates: req.Invalidates,
	}

	// Append and propagation form one logical step under the writer lock;
	// rules read a snapshot that already contains the triggering event.
	s.appendMu.Lock()
	err := s.events.Append(ctx, ev)
	if err != nil {
		s.appendMu.Unlock()
		return uuid.Nil, fmt.Errorf("append signal: %w", err)
	}

	derived := s.engine.Propagate(ctx, *ev, s.Snapshot(), s.events.Append)
	s.appendMu.Unlock()

	s.logger.Debug("signal appended",
		zap.String("event_id", ev.ID.String()),
		zap.String("entity_type", string(ev.EntityType)),
		zap.String("entity_id", ev.EntityID),
		zap.String("signal_type", string(ev.SignalType)),
		zap.Float64("confidence", ev.Confidence),
		zap.Int("derived", len(derived)))

	if s.notifier != nil {
		s.notifier.Notify(*ev)
		for _, d := range derived {
			s.notifier.Notify(d)
		}
	}

	return ev.ID, nil
}

// FuseConfidence is the read path: decay each matching signal, weight it by
// its source's mean reliability, and fuse. The mean keeps repeated reads
// deterministic; exploration sampling belongs to resolution.
func (s *SignalService) FuseConfidence(ctx context.Context, ref domain.EntityRef, signalTypes []domain.SignalType, asOf time.Time) (*FusedScore, error) {
	events, err := s.events.Query(ctx, domain.EventQuery{
		Entity:      &ref,
		SignalTypes: signalTypes,
		Until:       asOf,
	})
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}

	live := dropInvalidated(events)

	score := &FusedScore{}
	var weighted []WeightedSignal
	for i := range live {
		ev := &live[i]
		w, err := s.weights.MeanWeightFor(ctx, domain.WeightKey{
			Source:     ev.Source,
			EntityType: ev.EntityType,
			SignalType: ev.SignalType,
		})
		if err != nil {
			return nil, err
		}
		weighted = append(weighted, WeightedSignal{
			Confidence: DecayedConfidence(ev, asOf),
			Weight:     w,
		})
		score.SignalIDs = append(score.SignalIDs, ev.ID)
	}

	score.SignalCount = len(weighted)
	score.Value = Fuse(weighted)
	return score, nil
}

// Get returns one event along with the number of events propagation derived
// from it, for auditing a derivation chain from its root.
func (s *SignalService) Get(ctx context.Context, id uuid.UUID) (*domain.SignalEvent, int, error) {
	ev, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	derived, err := s.events.CountByOrigin(ctx, id)
	if err != nil {
		return nil, 0, fmt.Errorf("count derived events: %w", err)
	}
	return ev, derived, nil
}

// Query exposes ordered event-log reads to consumers.
func (s *SignalService) Query(ctx context.Context, q domain.EventQuery) ([]domain.SignalEvent, error) {
	return s.events.Query(ctx, q)
}

// Snapshot returns the read-only view propagation rules run against.
func (s *SignalService) Snapshot() domain.Snapshot {
	return &logSnapshot{events: s.events}
}

// logSnapshot adapts the event store to the rule-facing read-only view.
type logSnapshot struct {
	events domain.EventStore
}

func (s *logSnapshot) EventsForEntity(ctx context.Context, ref domain.EntityRef, types []domain.SignalType) ([]domain.SignalEvent, error) {
	return s.events.Query(ctx, domain.EventQuery{Entity: &ref, SignalTypes: types})
}

func (s *logSnapshot) EventsForContext(ctx context.Context, contextTag string) ([]domain.SignalEvent, error) {
	return s.events.Query(ctx, domain.EventQuery{ContextTag: contextTag})
}
