package domain

import "context"

// Snapshot is the read-only view of the log a propagation rule may consult.
// It reflects the state at the moment the triggering event was committed.
type Snapshot interface {
	EventsForEntity(ctx context.Context, ref EntityRef, types []SignalType) ([]SignalEvent, error)
	EventsForContext(ctx context.Context, contextTag string) ([]SignalEvent, error)
}

// PropagationRule derives new signals from a freshly appended event. Rules
// are pure over the snapshot: no I/O beyond snapshot reads, no retained
// state. They are registered once at process start.
type PropagationRule interface {
	Name() string
	// Triggers lists the signal types this rule fires on.
	Triggers() []SignalType
	// Derive returns zero or more new events. Returned events must not set
	// ID, Depth, or OriginEventID; the engine owns those.
	Derive(ctx context.Context, ev SignalEvent, snap Snapshot) ([]SignalEvent, error)
}
