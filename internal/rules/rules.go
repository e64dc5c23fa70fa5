// Package rules holds the propagation rules registered at process start.
// Each rule is a pure derivation over the event snapshot; the engine owns
// depth accounting and failure isolation.
package rules

import (
	"context"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/calder-labs/sigil/internal/service"
)

// RegisterDefaults wires the standard rule set into the engine.
func RegisterDefaults(engine *service.PropagationEngine) {
	engine.Register(&RoleChangeReviewRule{})
	engine.Register(&ExplicitLinkSupersedeRule{})
	engine.Register(&ThreadCorrelationRule{})
}

// RoleChangeReviewRule reacts to a person changing role by emitting a
// review signal on every account that person is linked to, so stale account
// relationships get re-examined.
type RoleChangeReviewRule struct{}

func (r *RoleChangeReviewRule) Name() string { return "role_change_review" }

func (r *RoleChangeReviewRule) Triggers() []domain.SignalType {
	return []domain.SignalType{domain.SignalRoleChange}
}

func (r *RoleChangeReviewRule) Derive(ctx context.Context, ev domain.SignalEvent, snap domain.Snapshot) ([]domain.SignalEvent, error) {
	if ev.EntityType != domain.EntityPerson {
		return nil, nil
	}

	links, err := snap.EventsForEntity(ctx,
		domain.EntityRef{Type: domain.EntityPerson, ID: ev.EntityID},
		[]domain.SignalType{domain.SignalExplicitLink, domain.SignalCoOccurrence})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var derived []domain.SignalEvent
	for _, link := range links {
		account := link.CandidateEntity()
		if account == "" || seen[account] {
			continue
		}
		seen[account] = true
		derived = append(derived, domain.SignalEvent{
			EntityType: domain.EntityAccount,
			EntityID:   account,
			SignalType: domain.SignalReviewAccount,
			RawValue:   ev.EntityID,
			Confidence: 0.5 * ev.Confidence,
			ContextTag: ev.ContextTag,
		})
	}
	return derived, nil
}

// ExplicitLinkSupersedeRule invalidates earlier heuristic-tier signals that
// argued for a different entity than the one the user just confirmed.
type ExplicitLinkSupersedeRule struct{}

func (r *ExplicitLinkSupersedeRule) Name() string { return "explicit_link_supersede" }

func (r *ExplicitLinkSupersedeRule) Triggers() []domain.SignalType {
	return []domain.SignalType{domain.SignalExplicitLink}
}

func (r *ExplicitLinkSupersedeRule) Derive(ctx context.Context, ev domain.SignalEvent, snap domain.Snapshot) ([]domain.SignalEvent, error) {
	confirmed := ev.CandidateEntity()
	if confirmed == "" {
		return nil, nil
	}

	prior, err := snap.EventsForEntity(ctx,
		domain.EntityRef{Type: ev.EntityType, ID: ev.EntityID},
		[]domain.SignalType{domain.SignalDomainHeuristic, domain.SignalTitleKeyword, domain.SignalDescriptionMining})
	if err != nil {
		return nil, err
	}

	var derived []domain.SignalEvent
	for i := range prior {
		p := prior[i]
		if p.CandidateEntity() == confirmed || p.CandidateEntity() == "" {
			continue
		}
		invalidates := p.ID
		derived = append(derived, domain.SignalEvent{
			EntityType:  ev.EntityType,
			EntityID:    ev.EntityID,
			SignalType:  domain.SignalInvalidation,
			RawValue:    p.CandidateEntity(),
			Confidence:  1,
			ContextTag:  ev.ContextTag,
			Invalidates: &invalidates,
		})
	}
	return derived, nil
}

// ThreadCorrelationRule turns a matched communication thread into a
// co-occurrence signal, letting thread evidence reinforce the historical
// pattern tier for the same group of people.
type ThreadCorrelationRule struct{}

func (r *ThreadCorrelationRule) Name() string { return "thread_correlation" }

func (r *ThreadCorrelationRule) Triggers() []domain.SignalType {
	return []domain.SignalType{domain.SignalThreadMatch}
}

func (r *ThreadCorrelationRule) Derive(ctx context.Context, ev domain.SignalEvent, snap domain.Snapshot) ([]domain.SignalEvent, error) {
	if ev.CandidateEntity() == "" || ev.ContextTag == "" {
		return nil, nil
	}

	// Only derive when the thread evidence is worth something on its own.
	if ev.Confidence < 0.4 {
		return nil, nil
	}

	return []domain.SignalEvent{{
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		SignalType: domain.SignalCoOccurrence,
		RawValue:   ev.CandidateEntity(),
		Confidence: 0.6 * ev.Confidence,
		ContextTag: ev.ContextTag,
	}}, nil
}
