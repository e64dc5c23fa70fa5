package service

import (
	"math"
	"testing"
)

func TestFuse_Empty(t *testing.T) {
	if got := Fuse(nil); got != 0 {
		t.Fatalf("expected 0 for no signals, got %f", got)
	}
}

func TestFuse_SingleFullWeightSignalKeepsItsConfidence(t *testing.T) {
	for _, conf := range []float64{0.1, 0.3, 0.5, 0.7, 0.9} {
		got := Fuse([]WeightedSignal{{Confidence: conf, Weight: 1}})
		if math.Abs(got-conf) > 1e-9 {
			t.Fatalf("single signal at %f fused to %f", conf, got)
		}
	}
}

func TestFuse_CorroborationExceedsAnyInput(t *testing.T) {
	got := Fuse([]WeightedSignal{
		{Confidence: 0.4, Weight: 1},
		{Confidence: 0.4, Weight: 1},
		{Confidence: 0.3, Weight: 1},
	})

	if math.Abs(got-0.65) > 0.03 {
		t.Fatalf("expected three agreeing signals near 0.65, got %f", got)
	}
	if got <= 0.4 {
		t.Fatalf("fused confidence %f does not exceed strongest input", got)
	}
}

func TestFuse_MonotonicInCorroboration(t *testing.T) {
	signals := []WeightedSignal{{Confidence: 0.4, Weight: 1}}
	prev := Fuse(signals)
	for i := 0; i < 5; i++ {
		signals = append(signals, WeightedSignal{Confidence: 0.4, Weight: 1})
		got := Fuse(signals)
		if got <= prev {
			t.Fatalf("adding an agreeing signal did not increase fusion: %f -> %f", prev, got)
		}
		prev = got
	}
}

func TestFuse_ZeroWeightContributesNothing(t *testing.T) {
	base := Fuse([]WeightedSignal{{Confidence: 0.6, Weight: 1}})
	with := Fuse([]WeightedSignal{
		{Confidence: 0.6, Weight: 1},
		{Confidence: 0.95, Weight: 0},
	})
	if math.Abs(base-with) > 1e-9 {
		t.Fatalf("zero-weight signal changed fusion: %f -> %f", base, with)
	}
}

func TestFuse_DownWeightedSignalContributesLess(t *testing.T) {
	full := Fuse([]WeightedSignal{
		{Confidence: 0.5, Weight: 1},
		{Confidence: 0.9, Weight: 1},
	})
	half := Fuse([]WeightedSignal{
		{Confidence: 0.5, Weight: 1},
		{Confidence: 0.9, Weight: 0.5},
	})
	if half >= full {
		t.Fatalf("down-weighted signal should pull fusion down: full=%f half=%f", full, half)
	}
	if half <= 0.5 {
		t.Fatalf("a positive second signal should still raise fusion above 0.5, got %f", half)
	}
}

func TestFuse_BelowPriorEvidenceLowersResult(t *testing.T) {
	// Evidence weaker than the prior argues against the candidate.
	got := Fuse([]WeightedSignal{
		{Confidence: 0.5, Weight: 1},
		{Confidence: 0.1, Weight: 1},
	})
	if got >= 0.5 {
		t.Fatalf("contradicting signal should lower fusion below 0.5, got %f", got)
	}
}

func TestFuse_StaysInsideUnitInterval(t *testing.T) {
	signals := make([]WeightedSignal, 20)
	for i := range signals {
		signals[i] = WeightedSignal{Confidence: 0.99, Weight: 1}
	}
	got := Fuse(signals)
	if got <= 0 || got >= 1 {
		t.Fatalf("fusion escaped (0,1): %f", got)
	}

	for i := range signals {
		signals[i] = WeightedSignal{Confidence: 0.01, Weight: 1}
	}
	got = Fuse(signals)
	if got <= 0 || got >= 1 {
		t.Fatalf("fusion escaped (0,1): %f", got)
	}
}

func TestLogitSigmoidRoundTrip(t *testing.T) {
	for _, p := range []float64{0.01, 0.25, 0.5, 0.75, 0.99} {
		if got := Sigmoid(Logit(p)); math.Abs(got-p) > 1e-9 {
			t.Fatalf("round trip of %f gave %f", p, got)
		}
	}
}

func TestLogit_ClampsExtremes(t *testing.T) {
	if got := Logit(0); math.IsInf(got, 0) {
		t.Fatal("logit(0) must be clamped, got -Inf")
	}
	if got := Logit(1); math.IsInf(got, 0) {
		t.Fatal("logit(1) must be clamped, got +Inf")
	}
}
