package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/calder-labs/sigil/internal/store"
	"go.uber.org/zap"
)

var (
	ErrCorrectionNewEntityMissing = errors.New("new_entity_id is required")
	ErrCorrectionSubjectMissing   = errors.New("subject_id is required")
)

// versionedUpdateRetries bounds the optimistic-concurrency retry loop on
// weight updates. Corrections are human-paced, so contention is rare.
const versionedUpdateRetries = 5

// CorrectionLearner turns user overrides into per-(source, entity-type,
// signal-type) reliability estimates, and serves Thompson-sampled weights
// back to the fusion path.
type CorrectionLearner struct {
	weightStore     domain.WeightStore
	correctionStore domain.CorrectionStore
	logger          *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewCorrectionLearner(ws domain.WeightStore, cs domain.CorrectionStore, logger *zap.Logger) *CorrectionLearner {
	return &CorrectionLearner{
		weightStore:     ws,
		correctionStore: cs,
		logger:          logger,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRand replaces the sampler's randomness source. Tests use this to make
// weight draws reproducible.
func (l *CorrectionLearner) SetRand(r *rand.Rand) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rng = r
}

// RecordCorrection consumes one correction record: the credited combination
// gains an alpha count, the blamed combination gains a beta count. The
// record itself is appended for audit before any weight moves, so a partial
// failure never loses the user's override.
func (l *CorrectionLearner) RecordCorrection(ctx context.Context, rec *domain.CorrectionRecord) error {
	if rec.SubjectID == "" {
		return ErrCorrectionSubjectMissing
	}
	if rec.NewEntityID == "" {
		return ErrCorrectionNewEntityMissing
	}

	if err := l.correctionStore.Create(ctx, rec); err != nil {
		return fmt.Errorf("append correction: %w", err)
	}

	if rec.CreditedSource != "" && rec.CreditedSignal != "" {
		key := domain.WeightKey{Source: rec.CreditedSource, EntityType: rec.SubjectType, SignalType: rec.CreditedSignal}
		if err := l.bumpWeight(ctx, key, 1, 0); err != nil {
			return err
		}
	}

	if rec.BlamedSource != "" && rec.BlamedSignal != "" {
		key := domain.WeightKey{Source: rec.BlamedSource, EntityType: rec.SubjectType, SignalType: rec.BlamedSignal}
		if err := l.bumpWeight(ctx, key, 0, 1); err != nil {
			return err
		}
	}

	l.logger.Info("correction recorded",
		zap.String("subject_id", rec.SubjectID),
		zap.String("old_entity", rec.OldEntityID),
		zap.String("new_entity", rec.NewEntityID),
		zap.String("blamed_source", string(rec.BlamedSource)),
		zap.String("credited_source", string(rec.CreditedSource)))

	return nil
}

func (l *CorrectionLearner) bumpWeight(ctx context.Context, key domain.WeightKey, alphaDelta, betaDelta float64) error {
	for attempt := 0; attempt < versionedUpdateRetries; attempt++ {
		w, err := l.getOrCreate(ctx, key)
		if err != nil {
			return err
		}

		w.Alpha += alphaDelta
		w.Beta += betaDelta

		err = l.weightStore.UpdateVersioned(ctx, w)
		if err == nil {
			l.logger.Debug("weight updated",
				zap.String("source", string(key.Source)),
				zap.String("entity_type", string(key.EntityType)),
				zap.String("signal_type", string(key.SignalType)),
				zap.Float64("alpha", w.Alpha),
				zap.Float64("beta", w.Beta))
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return fmt.Errorf("update weight: %w", err)
		}
	}
	return fmt.Errorf("update weight for %s/%s/%s: %w",
		key.Source, key.EntityType, key.SignalType, store.ErrVersionConflict)
}

// getOrCreate lazily initializes the uninformative prior on first use of a
// source/signal-type combination.
func (l *CorrectionLearner) getOrCreate(ctx context.Context, key domain.WeightKey) (*domain.SignalWeight, error) {
	w, err := l.weightStore.GetByKey(ctx, key)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	w = domain.NewSignalWeight(key)
	if err := l.weightStore.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("create weight: %w", err)
	}
	return w, nil
}

// WeightFor returns a fresh Beta(alpha, beta) draw for the key. Sampling
// rather than taking the mean is what lets under-observed sources still be
// tried at full weight occasionally; do not replace this with a point
// estimate.
func (l *CorrectionLearner) WeightFor(ctx context.Context, key domain.WeightKey) (float64, error) {
	w, err := l.getOrCreate(ctx, key)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	draw := sampleBeta(l.rng, w.Alpha, w.Beta)
	l.mu.Unlock()
	return draw, nil
}

// MeanWeightFor returns the point estimate alpha/(alpha+beta). Used on
// deterministic read paths and for tie-breaking.
func (l *CorrectionLearner) MeanWeightFor(ctx context.Context, key domain.WeightKey) (float64, error) {
	w, err := l.getOrCreate(ctx, key)
	if err != nil {
		return 0, err
	}
	return w.Mean(), nil
}

// Weights returns all current reliability estimates.
func (l *CorrectionLearner) Weights(ctx context.Context) ([]domain.SignalWeight, error) {
	return l.weightStore.ListAll(ctx)
}

// sampleBeta draws from Beta(a, b) as Ga/(Ga+Gb) with two gamma draws.
func sampleBeta(rng *rand.Rand, a, b float64) float64 {
	x := sampleGamma(rng, a)
	y := sampleGamma(rng, b)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) using Marsaglia-Tsang squeeze
// rejection; shapes below 1 use the boost Gamma(a) = Gamma(a+1) * U^(1/a).
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		x := rng.NormFloat64()
		v := 1.0 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1.0-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v
		}
	}
}
