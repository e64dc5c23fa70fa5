package domain

import (
	"time"

	"github.com/google/uuid"
)

type EntityType string

const (
	EntityAccount EntityType = "account"
	EntityProject EntityType = "project"
	EntityPerson  EntityType = "person"
	EntityMeeting EntityType = "meeting"
	EntityThread  EntityType = "thread"
)

func ValidEntityType(t string) bool {
	switch EntityType(t) {
	case EntityAccount, EntityProject, EntityPerson, EntityMeeting, EntityThread:
		return true
	}
	return false
}

type SignalType string

const (
	// Resolution tiers, in cascade priority order.
	SignalExplicitLink      SignalType = "explicit_link"
	SignalTitleKeyword      SignalType = "title_keyword"
	SignalCoOccurrence      SignalType = "co_occurrence"
	SignalAttendeeVote      SignalType = "attendee_vote"
	SignalDescriptionMining SignalType = "description_mining"
	SignalThreadMatch       SignalType = "thread_match"
	SignalDomainHeuristic   SignalType = "domain_heuristic"

	// Cross-entity signals produced by integrations or derivation rules.
	SignalRoleChange    SignalType = "role_change"
	SignalReviewAccount SignalType = "review_account"
	SignalInvalidation  SignalType = "invalidation"
)

func ValidSignalType(t string) bool {
	switch SignalType(t) {
	case SignalExplicitLink, SignalTitleKeyword, SignalCoOccurrence,
		SignalAttendeeVote, SignalDescriptionMining, SignalThreadMatch,
		SignalDomainHeuristic, SignalRoleChange, SignalReviewAccount,
		SignalInvalidation:
		return true
	}
	return false
}

type SignalSource string

const (
	SourceUser       SignalSource = "user"
	SourceCalendar   SignalSource = "calendar"
	SourceTranscript SignalSource = "transcript"
	SourceEnrichment SignalSource = "enrichment"
	SourceHeuristic  SignalSource = "heuristic"
	SourceRoster     SignalSource = "roster"
	SourceEmail      SignalSource = "email"
	SourceDerived    SignalSource = "derived"
)

func ValidSignalSource(s string) bool {
	switch SignalSource(s) {
	case SourceUser, SourceCalendar, SourceTranscript, SourceEnrichment,
		SourceHeuristic, SourceRoster, SourceEmail, SourceDerived:
		return true
	}
	return false
}

// DefaultHalfLife returns how long it takes evidence from this source
// to lose half its weight.
func (s SignalSource) DefaultHalfLife() time.Duration {
	const day = 24 * time.Hour
	switch s {
	case SourceUser:
		return 365 * day
	case SourceTranscript:
		return 60 * day
	case SourceCalendar, SourceRoster:
		return 30 * day
	case SourceEnrichment, SourceEmail:
		return 90 * day
	case SourceHeuristic:
		return 7 * day
	case SourceDerived:
		return 30 * day
	default:
		return 30 * day
	}
}

// EntityRef identifies an entity a signal is about. EntityID is the
// collaborator-side identifier, not required to be a UUID.
type EntityRef struct {
	Type EntityType `json:"entity_type"`
	ID   string     `json:"entity_id"`
}

// SignalEvent is an immutable observation in the append-only log. Superseding
// information arrives as a new event, optionally pointing at the event it
// invalidates.
type SignalEvent struct {
	ID         uuid.UUID    `json:"id"`
	EntityType EntityType   `json:"entity_type"`
	EntityID   string       `json:"entity_id"`
	SignalType SignalType   `json:"signal_type"`
	Source     SignalSource `json:"source"`
	RawValue   string       `json:"raw_value"`
	Confidence float64      `json:"confidence"`
	// HalfLife overrides the source default when non-zero.
	HalfLife   time.Duration `json:"half_life,omitempty"`
	ContextTag string        `json:"context_tag,omitempty"`
	Embedding  []float32     `json:"-"`
	// Invalidates marks the event this one supersedes.
	Invalidates *uuid.UUID `json:"invalidates,omitempty"`
	// OriginEventID and Depth are set on events emitted by propagation rules.
	OriginEventID *uuid.UUID `json:"origin_event_id,omitempty"`
	Depth         int        `json:"depth"`
	CreatedAt     time.Time  `json:"created_at"`
}

// EffectiveHalfLife returns the event's half-life, falling back to the
// source default.
func (e *SignalEvent) EffectiveHalfLife() time.Duration {
	if e.HalfLife > 0 {
		return e.HalfLife
	}
	return e.Source.DefaultHalfLife()
}

// CandidateEntity returns the entity this signal argues for. For resolution
// signals the raw value carries the candidate's identifier.
func (e *SignalEvent) CandidateEntity() string {
	return e.RawValue
}
