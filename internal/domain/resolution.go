package domain

import "github.com/google/uuid"

type ResolutionOutcome string

const (
	OutcomeAutoLinked  ResolutionOutcome = "auto_linked"
	OutcomeNeedsReview ResolutionOutcome = "needs_review"
	OutcomeUnresolved  ResolutionOutcome = "unresolved"
)

// ResolutionCandidate is an ephemeral per-query score for one candidate
// entity. Never persisted; recomputed from the event log on every call.
type ResolutionCandidate struct {
	EntityID        string      `json:"entity_id"`
	FusedConfidence float64     `json:"fused_confidence"`
	Tier            SignalType  `json:"tier,omitempty"`
	SignalIDs       []uuid.UUID `json:"contributing_signal_ids"`
}

// ResolutionResult is the cascade's answer for one subject.
type ResolutionResult struct {
	Outcome    ResolutionOutcome     `json:"outcome"`
	Winner     *ResolutionCandidate  `json:"winner,omitempty"`
	Candidates []ResolutionCandidate `json:"candidates,omitempty"`
	// FlaggedForVerification is set on auto-links in the [review, auto-link)
	// confidence band.
	FlaggedForVerification bool `json:"flagged_for_verification,omitempty"`
}
