package service

import (
	"context"
	"sort"
	"time"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultAutoLinkThreshold is the fused confidence above which a tier
	// links without review.
	DefaultAutoLinkThreshold = 0.8
	// DefaultReviewThreshold is the floor for the flagged auto-link band;
	// below it the subject stays unresolved.
	DefaultReviewThreshold = 0.5
)

// tierOrder is the fixed cascade priority. Explicit links bypass fusion;
// every later tier applies fusion per candidate.
var tierOrder = []domain.SignalType{
	domain.SignalExplicitLink,
	domain.SignalTitleKeyword,
	domain.SignalCoOccurrence,
	domain.SignalAttendeeVote,
	domain.SignalDescriptionMining,
	domain.SignalThreadMatch,
	domain.SignalDomainHeuristic,
}

// WeightProvider supplies the reliability weight for a signal's
// (source, entity-type, signal-type) combination.
type WeightProvider interface {
	WeightFor(ctx context.Context, key domain.WeightKey) (float64, error)
	MeanWeightFor(ctx context.Context, key domain.WeightKey) (float64, error)
}

// Resolver applies the tier cascade to a subject's candidate signals.
type Resolver struct {
	events  domain.EventStore
	weights WeightProvider
	logger  *zap.Logger

	AutoLinkThreshold float64
	ReviewThreshold   float64
}

func NewResolver(events domain.EventStore, weights WeightProvider, logger *zap.Logger) *Resolver {
	return &Resolver{
		events:            events,
		weights:           weights,
		logger:            logger,
		AutoLinkThreshold: DefaultAutoLinkThreshold,
		ReviewThreshold:   DefaultReviewThreshold,
	}
}

// ResolveSubject loads the subject's signals from the event log and resolves.
func (r *Resolver) ResolveSubject(ctx context.Context, subject domain.EntityRef, asOf time.Time) (*domain.ResolutionResult, error) {
	events, err := r.events.Query(ctx, domain.EventQuery{Entity: &subject, Until: asOf})
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, subject, events, asOf)
}

// Resolve runs the cascade over the given candidate signals. For a fixed
// snapshot and a fixed weight provider the result is deterministic; any
// randomness lives in the provider's weight sampling.
func (r *Resolver) Resolve(ctx context.Context, subject domain.EntityRef, events []domain.SignalEvent, asOf time.Time) (*domain.ResolutionResult, error) {
	live := dropInvalidated(events)

	// Tier 1: an explicit or user-confirmed link wins unconditionally.
	if winner := latestExplicitLink(live, asOf); winner != nil {
		return &domain.ResolutionResult{
			Outcome:    domain.OutcomeAutoLinked,
			Winner:     winner,
			Candidates: []domain.ResolutionCandidate{*winner},
		}, nil
	}

	byTier := make(map[domain.SignalType][]domain.SignalEvent)
	var tierEvents []domain.SignalEvent
	for _, ev := range live {
		if ev.SignalType == domain.SignalExplicitLink || !isTierSignal(ev.SignalType) {
			continue
		}
		byTier[ev.SignalType] = append(byTier[ev.SignalType], ev)
		tierEvents = append(tierEvents, ev)
	}

	if len(tierEvents) == 0 {
		return &domain.ResolutionResult{Outcome: domain.OutcomeUnresolved}, nil
	}

	// Walk tiers in priority order; the first tier clearing the auto-link
	// threshold decides.
	for _, tier := range tierOrder[1:] {
		evs := byTier[tier]
		if len(evs) == 0 {
			continue
		}
		candidates, err := r.fusePerCandidate(ctx, evs, asOf, tier)
		if err != nil {
			return nil, err
		}
		if res := r.decide(candidates, false); res != nil {
			r.logResolution(subject, tier, res)
			return res, nil
		}
	}

	// No single tier was decisive: fuse across tiers.
	candidates, err := r.fusePerCandidate(ctx, tierEvents, asOf, "")
	if err != nil {
		return nil, err
	}
	res := r.decide(candidates, true)
	r.logResolution(subject, "", res)
	return res, nil
}

// decide turns a sorted candidate list into a result. When final is false,
// only an above-threshold winner short-circuits the cascade; nil means
// "try the next tier".
func (r *Resolver) decide(candidates []domain.ResolutionCandidate, final bool) *domain.ResolutionResult {
	if len(candidates) == 0 {
		if final {
			return &domain.ResolutionResult{Outcome: domain.OutcomeUnresolved}
		}
		return nil
	}

	top := candidates[0]

	if top.FusedConfidence >= r.AutoLinkThreshold {
		// Two candidates both clearing the threshold are mutually exclusive
		// strong conclusions; auto-linking either one would hide a conflict
		// the user needs to see.
		if len(candidates) > 1 && candidates[1].FusedConfidence >= r.AutoLinkThreshold {
			return &domain.ResolutionResult{
				Outcome:    domain.OutcomeNeedsReview,
				Candidates: candidates,
			}
		}
		return &domain.ResolutionResult{
			Outcome:    domain.OutcomeAutoLinked,
			Winner:     &top,
			Candidates: candidates,
		}
	}

	if !final {
		return nil
	}

	if top.FusedConfidence >= r.ReviewThreshold {
		if len(candidates) > 1 {
			// Mutually exclusive conclusions, none decisive: surface all of
			// them rather than guessing.
			return &domain.ResolutionResult{
				Outcome:    domain.OutcomeNeedsReview,
				Candidates: candidates,
			}
		}
		return &domain.ResolutionResult{
			Outcome:                domain.OutcomeAutoLinked,
			Winner:                 &top,
			Candidates:             candidates,
			FlaggedForVerification: true,
		}
	}

	return &domain.ResolutionResult{
		Outcome:    domain.OutcomeUnresolved,
		Candidates: candidates,
	}
}

// candidateAccumulator collects fusion inputs and tie-break metadata for one
// candidate entity.
type candidateAccumulator struct {
	signals       []WeightedSignal
	signalIDs     []uuid.UUID
	latestCreated time.Time
	bestSourceRel float64
}

func (r *Resolver) fusePerCandidate(ctx context.Context, events []domain.SignalEvent, asOf time.Time, tier domain.SignalType) ([]domain.ResolutionCandidate, error) {
	acc := make(map[string]*candidateAccumulator)

	for i := range events {
		ev := &events[i]
		candidate := ev.CandidateEntity()
		if candidate == "" {
			continue
		}

		weight, err := r.weights.WeightFor(ctx, domain.WeightKey{
			Source:     ev.Source,
			EntityType: ev.EntityType,
			SignalType: ev.SignalType,
		})
		if err != nil {
			return nil, err
		}
		sourceRel, err := r.weights.MeanWeightFor(ctx, domain.WeightKey{
			Source:     ev.Source,
			EntityType: ev.EntityType,
			SignalType: ev.SignalType,
		})
		if err != nil {
			return nil, err
		}

		a, ok := acc[candidate]
		if !ok {
			a = &candidateAccumulator{}
			acc[candidate] = a
		}
		a.signals = append(a.signals, WeightedSignal{
			Confidence: DecayedConfidence(ev, asOf),
			Weight:     weight,
		})
		a.signalIDs = append(a.signalIDs, ev.ID)
		if ev.CreatedAt.After(a.latestCreated) {
			a.latestCreated = ev.CreatedAt
		}
		if sourceRel > a.bestSourceRel {
			a.bestSourceRel = sourceRel
		}
	}

	candidates := make([]domain.ResolutionCandidate, 0, len(acc))
	meta := make(map[string]*candidateAccumulator, len(acc))
	for entityID, a := range acc {
		candidates = append(candidates, domain.ResolutionCandidate{
			EntityID:        entityID,
			FusedConfidence: Fuse(a.signals),
			Tier:            tier,
			SignalIDs:       a.signalIDs,
		})
		meta[entityID] = a
	}

	// Order: fused confidence, then most recent contributing signal, then
	// highest source reliability, then entity id for a total order.
	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.FusedConfidence != cj.FusedConfidence {
			return ci.FusedConfidence > cj.FusedConfidence
		}
		mi, mj := meta[ci.EntityID], meta[cj.EntityID]
		if !mi.latestCreated.Equal(mj.latestCreated) {
			return mi.latestCreated.After(mj.latestCreated)
		}
		if mi.bestSourceRel != mj.bestSourceRel {
			return mi.bestSourceRel > mj.bestSourceRel
		}
		return ci.EntityID < cj.EntityID
	})

	return candidates, nil
}

// latestExplicitLink returns the most recent explicit-link signal as an
// unconditional winner, or nil when none exists.
func latestExplicitLink(events []domain.SignalEvent, asOf time.Time) *domain.ResolutionCandidate {
	var latest *domain.SignalEvent
	for i := range events {
		ev := &events[i]
		if ev.SignalType != domain.SignalExplicitLink || ev.CandidateEntity() == "" {
			continue
		}
		if latest == nil || ev.CreatedAt.After(latest.CreatedAt) {
			latest = ev
		}
	}
	if latest == nil {
		return nil
	}
	return &domain.ResolutionCandidate{
		EntityID:        latest.CandidateEntity(),
		FusedConfidence: DecayedConfidence(latest, asOf),
		Tier:            domain.SignalExplicitLink,
		SignalIDs:       []uuid.UUID{latest.ID},
	}
}

// dropInvalidated filters out events superseded by an invalidation marker.
func dropInvalidated(events []domain.SignalEvent) []domain.SignalEvent {
	invalidated := make(map[uuid.UUID]bool)
	for i := range events {
		if events[i].Invalidates != nil {
			invalidated[*events[i].Invalidates] = true
		}
	}

	live := make([]domain.SignalEvent, 0, len(events))
	for i := range events {
		ev := events[i]
		if invalidated[ev.ID] || ev.SignalType == domain.SignalInvalidation {
			continue
		}
		live = append(live, ev)
	}
	return live
}

func isTierSignal(t domain.SignalType) bool {
	for _, tier := range tierOrder {
		if t == tier {
			return true
		}
	}
	return false
}

func (r *Resolver) logResolution(subject domain.EntityRef, tier domain.SignalType, res *domain.ResolutionResult) {
	fields := []zap.Field{
		zap.String("subject_type", string(subject.Type)),
		zap.String("subject_id", subject.ID),
		zap.String("outcome", string(res.Outcome)),
	}
	if tier != "" {
		fields = append(fields, zap.String("tier", string(tier)))
	}
	if res.Winner != nil {
		fields = append(fields,
			zap.String("entity", res.Winner.EntityID),
			zap.Float64("confidence", res.Winner.FusedConfidence))
	}
	r.logger.Debug("resolution", fields...)
}
