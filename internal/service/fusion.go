package service

import "math"

const (
	DefaultMaxConfidence = 0.99
	DefaultMinConfidence = 0.01

	// DefaultEvidencePrior is the baseline probability that a candidate is
	// correct absent any evidence. Each signal contributes its log-odds
	// relative to this prior, so a lone full-weight signal fuses to exactly
	// its own confidence and corroborating signals push the total upward.
	DefaultEvidencePrior = 0.25
)

func Logit(p float64) float64 {
	p = clampConfidence(p)
	return math.Log(p / (1 - p))
}

func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clampConfidence(p float64) float64 {
	if p < DefaultMinConfidence {
		return DefaultMinConfidence
	}
	if p > DefaultMaxConfidence {
		return DefaultMaxConfidence
	}
	return p
}

// WeightedSignal is one decayed confidence together with the reliability
// weight of the source that produced it.
type WeightedSignal struct {
	Confidence float64
	Weight     float64
}

// Fuse combines independent signals about the same conclusion into a single
// confidence: each signal's log-odds relative to the evidence prior is
// scaled by its reliability weight, summed onto the prior, and mapped back
// through the logistic function. Returns 0 when no signals are given.
func Fuse(signals []WeightedSignal) float64 {
	if len(signals) == 0 {
		return 0
	}

	prior := Logit(DefaultEvidencePrior)
	logOdds := prior
	for _, s := range signals {
		logOdds += s.Weight * (Logit(s.Confidence) - prior)
	}
	return Sigmoid(logOdds)
}
