package service

import (
	"math"
	"time"

	"github.com/calder-labs/sigil/internal/domain"
)

// DecayedConfidence computes an event's effective confidence at asOf:
// confidence * 2^(-age/halfLife). The value never goes negative and is
// never amplified above the recorded confidence.
func DecayedConfidence(ev *domain.SignalEvent, asOf time.Time) float64 {
	age := asOf.Sub(ev.CreatedAt)
	if age <= 0 {
		return ev.Confidence
	}

	halfLife := ev.EffectiveHalfLife()
	if halfLife <= 0 {
		return 0
	}

	factor := math.Exp2(-age.Hours() / halfLife.Hours())
	decayed := ev.Confidence * factor
	if decayed < 0 || math.IsNaN(decayed) {
		return 0
	}
	return decayed
}
