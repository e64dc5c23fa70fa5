package service

import (
	"context"
	"testing"
	"time"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newTestResolver(events domain.EventStore) *Resolver {
	return NewResolver(events, fullWeights(), zap.NewNop())
}

func tierEvent(subject domain.EntityRef, signalType domain.SignalType, source domain.SignalSource, candidate string, confidence float64, createdAt time.Time) domain.SignalEvent {
	return domain.SignalEvent{
		ID:         uuid.New(),
		EntityType: subject.Type,
		EntityID:   subject.ID,
		SignalType: signalType,
		Source:     source,
		RawValue:   candidate,
		Confidence: confidence,
		CreatedAt:  createdAt,
	}
}

func TestResolve_NoSignalsUnresolved(t *testing.T) {
	r := newTestResolver(newMockEventStore())
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}

	res, err := r.Resolve(context.Background(), subject, nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != domain.OutcomeUnresolved {
		t.Fatalf("expected unresolved, got %s", res.Outcome)
	}
}

func TestResolve_ExplicitLinkWinsUnconditionally(t *testing.T) {
	r := newTestResolver(newMockEventStore())
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}
	now := time.Now()

	events := []domain.SignalEvent{
		tierEvent(subject, domain.SignalTitleKeyword, domain.SourceHeuristic, "acct-other", 0.95, now),
		tierEvent(subject, domain.SignalExplicitLink, domain.SourceUser, "acct-confirmed", 0.9, now),
	}

	res, err := r.Resolve(context.Background(), subject, events, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != domain.OutcomeAutoLinked {
		t.Fatalf("expected auto-link, got %s", res.Outcome)
	}
	if res.Winner == nil || res.Winner.EntityID != "acct-confirmed" {
		t.Fatalf("expected explicit link to win, got %+v", res.Winner)
	}
	if res.Winner.Tier != domain.SignalExplicitLink {
		t.Fatalf("expected explicit_link tier, got %s", res.Winner.Tier)
	}
	if res.FlaggedForVerification {
		t.Fatal("explicit link must not be flagged")
	}
}

func TestResolve_LatestExplicitLinkWins(t *testing.T) {
	r := newTestResolver(newMockEventStore())
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}
	now := time.Now()

	events := []domain.SignalEvent{
		tierEvent(subject, domain.SignalExplicitLink, domain.SourceUser, "acct-old", 0.9, now.Add(-time.Hour)),
		tierEvent(subject, domain.SignalExplicitLink, domain.SourceUser, "acct-new", 0.9, now),
	}

	res, err := r.Resolve(context.Background(), subject, events, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Winner == nil || res.Winner.EntityID != "acct-new" {
		t.Fatalf("expected most recent explicit link, got %+v", res.Winner)
	}
}

func TestResolve_HighTierDecidesBeforeLowerTiers(t *testing.T) {
	r := newTestResolver(newMockEventStore())
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}
	now := time.Now()

	events := []domain.SignalEvent{
		tierEvent(subject, domain.SignalTitleKeyword, domain.SourceCalendar, "acct-a", 0.85, now),
		tierEvent(subject, domain.SignalDomainHeuristic, domain.SourceHeuristic, "acct-b", 0.95, now),
	}

	res, err := r.Resolve(context.Background(), subject, events, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != domain.OutcomeAutoLinked {
		t.Fatalf("expected auto-link, got %s", res.Outcome)
	}
	if res.Winner.EntityID != "acct-a" {
		t.Fatalf("title keyword tier should decide before domain heuristic, got %s", res.Winner.EntityID)
	}
	if res.Winner.Tier != domain.SignalTitleKeyword {
		t.Fatalf("expected title_keyword tier, got %s", res.Winner.Tier)
	}
}

func TestResolve_AmbiguousCandidatesNeedReview(t *testing.T) {
	r := newTestResolver(newMockEventStore())
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}
	now := time.Now()

	// "Agentforce Demo" style collision: the title argues for one account,
	// the attendee roster for another, neither decisively.
	events := []domain.SignalEvent{
		tierEvent(subject, domain.SignalTitleKeyword, domain.SourceCalendar, "acct-agentforce", 0.7, now),
		tierEvent(subject, domain.SignalAttendeeVote, domain.SourceRoster, "acct-salesforce-security", 0.6, now),
	}

	res, err := r.Resolve(context.Background(), subject, events, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != domain.OutcomeNeedsReview {
		t.Fatalf("expected needs-review for competing mid-band candidates, got %s", res.Outcome)
	}
	if res.Winner != nil {
		t.Fatalf("needs-review must not name a winner, got %+v", res.Winner)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("expected both candidates listed, got %d", len(res.Candidates))
	}
	if res.Candidates[0].EntityID != "acct-agentforce" {
		t.Fatalf("expected strongest candidate first, got %s", res.Candidates[0].EntityID)
	}
}

func TestResolve_TwoStrongCandidatesNeedReview(t *testing.T) {
	r := newTestResolver(newMockEventStore())
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}
	now := time.Now()

	events := []domain.SignalEvent{
		tierEvent(subject, domain.SignalTitleKeyword, domain.SourceCalendar, "acct-a", 0.9, now),
		tierEvent(subject, domain.SignalTitleKeyword, domain.SourceCalendar, "acct-b", 0.85, now),
	}

	res, err := r.Resolve(context.Background(), subject, events, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != domain.OutcomeNeedsReview {
		t.Fatalf("two above-threshold candidates must need review, got %s", res.Outcome)
	}
	if res.Winner != nil {
		t.Fatalf("conflicting strong candidates must not auto-link, got winner %+v", res.Winner)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("expected both candidates listed, got %d", len(res.Candidates))
	}
}

func TestResolve_SingleMidBandCandidateAutoLinksFlagged(t *testing.T) {
	r := newTestResolver(newMockEventStore())
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}
	now := time.Now()

	events := []domain.SignalEvent{
		tierEvent(subject, domain.SignalCoOccurrence, domain.SourceTranscript, "acct-a", 0.6, now),
	}

	res, err := r.Resolve(context.Background(), subject, events, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != domain.OutcomeAutoLinked {
		t.Fatalf("expected flagged auto-link, got %s", res.Outcome)
	}
	if !res.FlaggedForVerification {
		t.Fatal("mid-band auto-link must be flagged for verification")
	}
	if res.Winner == nil || res.Winner.EntityID != "acct-a" {
		t.Fatalf("unexpected winner: %+v", res.Winner)
	}
}

func TestResolve_WeakSignalsStayUnresolved(t *testing.T) {
	r := newTestResolver(newMockEventStore())
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}
	now := time.Now()

	events := []domain.SignalEvent{
		tierEvent(subject, domain.SignalDomainHeuristic, domain.SourceHeuristic, "acct-a", 0.3, now),
	}

	res, err := r.Resolve(context.Background(), subject, events, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != domain.OutcomeUnresolved {
		t.Fatalf("expected unresolved below review threshold, got %s", res.Outcome)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("weak candidates should still be listed, got %d", len(res.Candidates))
	}
}

func TestResolve_CorroborationAcrossTiersRaisesConfidence(t *testing.T) {
	r := newTestResolver(newMockEventStore())
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}
	now := time.Now()

	// Individually each tier is mid-band; together they clear auto-link.
	events := []domain.SignalEvent{
		tierEvent(subject, domain.SignalTitleKeyword, domain.SourceCalendar, "acct-a", 0.7, now),
		tierEvent(subject, domain.SignalCoOccurrence, domain.SourceTranscript, "acct-a", 0.7, now),
		tierEvent(subject, domain.SignalAttendeeVote, domain.SourceRoster, "acct-a", 0.6, now),
	}

	res, err := r.Resolve(context.Background(), subject, events, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != domain.OutcomeAutoLinked {
		t.Fatalf("expected cross-tier fusion to auto-link, got %s", res.Outcome)
	}
	if res.Winner.FusedConfidence < r.AutoLinkThreshold {
		t.Fatalf("winner confidence %f below auto-link threshold", res.Winner.FusedConfidence)
	}
}

func TestResolve_InvalidatedSignalsAreIgnored(t *testing.T) {
	r := newTestResolver(newMockEventStore())
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}
	now := time.Now()

	stale := tierEvent(subject, domain.SignalTitleKeyword, domain.SourceCalendar, "acct-stale", 0.9, now.Add(-time.Hour))
	marker := tierEvent(subject, domain.SignalInvalidation, domain.SourceDerived, "acct-stale", 1, now)
	marker.Invalidates = &stale.ID

	res, err := r.Resolve(context.Background(), subject, []domain.SignalEvent{stale, marker}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != domain.OutcomeUnresolved {
		t.Fatalf("invalidated signal should not resolve, got %s", res.Outcome)
	}
}

func TestResolve_DeterministicForFixedInputs(t *testing.T) {
	r := newTestResolver(newMockEventStore())
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}
	now := time.Now()

	events := []domain.SignalEvent{
		tierEvent(subject, domain.SignalTitleKeyword, domain.SourceCalendar, "acct-a", 0.7, now),
		tierEvent(subject, domain.SignalTitleKeyword, domain.SourceCalendar, "acct-b", 0.6, now),
		tierEvent(subject, domain.SignalAttendeeVote, domain.SourceRoster, "acct-c", 0.55, now),
	}

	first, err := r.Resolve(context.Background(), subject, events, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		res, err := r.Resolve(context.Background(), subject, events, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Outcome != first.Outcome {
			t.Fatalf("outcome changed between runs: %s vs %s", first.Outcome, res.Outcome)
		}
		if len(res.Candidates) != len(first.Candidates) {
			t.Fatalf("candidate count changed between runs")
		}
		for j := range res.Candidates {
			if res.Candidates[j].EntityID != first.Candidates[j].EntityID {
				t.Fatalf("candidate order changed between runs at %d", j)
			}
		}
	}
}

func TestResolve_TieBreakPrefersRecency(t *testing.T) {
	r := newTestResolver(newMockEventStore())
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}
	now := time.Now()

	events := []domain.SignalEvent{
		tierEvent(subject, domain.SignalTitleKeyword, domain.SourceCalendar, "acct-old", 0.7, now.Add(-time.Hour)),
		tierEvent(subject, domain.SignalTitleKeyword, domain.SourceCalendar, "acct-recent", 0.7, now),
	}

	res, err := r.Resolve(context.Background(), subject, events, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Candidates) < 2 {
		t.Fatalf("expected two candidates, got %d", len(res.Candidates))
	}
	if res.Candidates[0].EntityID != "acct-recent" {
		t.Fatalf("expected recency tie-break, got %s first", res.Candidates[0].EntityID)
	}
}

func TestResolve_TieBreakFallsBackToEntityID(t *testing.T) {
	r := newTestResolver(newMockEventStore())
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}
	now := time.Now()

	events := []domain.SignalEvent{
		tierEvent(subject, domain.SignalTitleKeyword, domain.SourceCalendar, "acct-b", 0.7, now),
		tierEvent(subject, domain.SignalTitleKeyword, domain.SourceCalendar, "acct-a", 0.7, now),
	}

	res, err := r.Resolve(context.Background(), subject, events, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Candidates[0].EntityID != "acct-a" {
		t.Fatalf("expected lexicographic tie-break, got %s first", res.Candidates[0].EntityID)
	}
}

func TestResolveSubject_ReadsFromEventLog(t *testing.T) {
	events := newMockEventStore()
	r := newTestResolver(events)
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}
	now := time.Now()

	ev := tierEvent(subject, domain.SignalTitleKeyword, domain.SourceCalendar, "acct-a", 0.9, now)
	if err := events.Append(context.Background(), &ev); err != nil {
		t.Fatalf("append: %v", err)
	}

	res, err := r.ResolveSubject(context.Background(), subject, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != domain.OutcomeAutoLinked {
		t.Fatalf("expected auto-link, got %s", res.Outcome)
	}
	if res.Winner.EntityID != "acct-a" {
		t.Fatalf("unexpected winner %s", res.Winner.EntityID)
	}
}

func TestResolve_DecayedExplicitLinkStillWins(t *testing.T) {
	r := newTestResolver(newMockEventStore())
	subject := domain.EntityRef{Type: domain.EntityMeeting, ID: "meet-1"}
	now := time.Now()

	// The explicit link is old and decayed but remains the unconditional
	// winner over fresh heuristics.
	events := []domain.SignalEvent{
		tierEvent(subject, domain.SignalExplicitLink, domain.SourceUser, "acct-confirmed", 0.9, now.Add(-200*24*time.Hour)),
		tierEvent(subject, domain.SignalDomainHeuristic, domain.SourceHeuristic, "acct-other", 0.9, now),
	}

	res, err := r.Resolve(context.Background(), subject, events, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Winner == nil || res.Winner.EntityID != "acct-confirmed" {
		t.Fatalf("expected decayed explicit link to win, got %+v", res.Winner)
	}
	if res.Winner.FusedConfidence >= 0.9 {
		t.Fatalf("expected decay applied to winner confidence, got %f", res.Winner.FusedConfidence)
	}
}
