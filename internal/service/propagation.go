package service

import (
	"context"
	"fmt"

	"github.com/calder-labs/sigil/internal/domain"
	"go.uber.org/zap"
)

// DefaultMaxPropagationDepth caps how many derivation steps may chain off a
// single ingested event before the engine stops following them.
const DefaultMaxPropagationDepth = 5

// PropagationEngine holds the rule registry and evaluates it against every
// freshly appended event. Rules are registered once at process start; there
// is no runtime discovery.
type PropagationEngine struct {
	rules    map[domain.SignalType][]domain.PropagationRule
	maxDepth int
	logger   *zap.Logger
}

func NewPropagationEngine(logger *zap.Logger) *PropagationEngine {
	return &PropagationEngine{
		rules:    make(map[domain.SignalType][]domain.PropagationRule),
		maxDepth: DefaultMaxPropagationDepth,
		logger:   logger,
	}
}

func (e *PropagationEngine) SetMaxDepth(d int) {
	if d > 0 {
		e.maxDepth = d
	}
}

// Register adds a rule for each of its trigger types.
func (e *PropagationEngine) Register(rule domain.PropagationRule) {
	for _, t := range rule.Triggers() {
		e.rules[t] = append(e.rules[t], rule)
	}
	e.logger.Info("propagation rule registered",
		zap.String("rule", rule.Name()),
		zap.Int("triggers", len(rule.Triggers())))
}

// Propagate evaluates rules breadth-first starting from ev, appending every
// derived event through appendFn. A failing rule is logged and skipped; it
// never blocks the triggering append or sibling rules. Derivation past the
// depth cap is dropped with a warning rather than erroring the ingest.
// Returns the derived events that were appended.
func (e *PropagationEngine) Propagate(ctx context.Context, ev domain.SignalEvent, snap domain.Snapshot, appendFn func(context.Context, *domain.SignalEvent) error) []domain.SignalEvent {
	var appended []domain.SignalEvent

	queue := []domain.SignalEvent{ev}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, rule := range e.rules[current.SignalType] {
			derived, err := e.runRule(ctx, rule, current, snap)
			if err != nil {
				e.logger.Warn("propagation rule failed",
					zap.String("rule", rule.Name()),
					zap.String("trigger_event", current.ID.String()),
					zap.Error(err))
				continue
			}

			for i := range derived {
				d := derived[i]
				d.Depth = current.Depth + 1
				if d.Depth > e.maxDepth {
					e.logger.Warn("propagation depth limit reached, dropping derivation",
						zap.String("rule", rule.Name()),
						zap.String("trigger_event", current.ID.String()),
						zap.Int("max_depth", e.maxDepth))
					continue
				}

				originID := current.ID
				d.OriginEventID = &originID
				if d.Source == "" {
					d.Source = domain.SourceDerived
				}

				if err := appendFn(ctx, &d); err != nil {
					e.logger.Warn("failed to append derived event",
						zap.String("rule", rule.Name()),
						zap.Error(err))
					continue
				}

				appended = append(appended, d)
				queue = append(queue, d)
			}
		}
	}

	return appended
}

// runRule isolates a single rule evaluation: a panic inside the rule is
// converted to an error at this boundary.
func (e *PropagationEngine) runRule(ctx context.Context, rule domain.PropagationRule, ev domain.SignalEvent, snap domain.Snapshot) (derived []domain.SignalEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			derived = nil
			err = fmt.Errorf("rule %s panicked: %v", rule.Name(), r)
		}
	}()
	return rule.Derive(ctx, ev, snap)
}
