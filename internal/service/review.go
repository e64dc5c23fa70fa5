package service

import (
	"context"
	"sync"
	"time"

	"github.com/calder-labs/sigil/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultReviewInterval = 1 * time.Hour
	defaultReviewWindow   = 14 * 24 * time.Hour
)

// ReviewResult summarizes one sweep over recently signaled subjects.
type ReviewResult struct {
	SubjectsChecked int `json:"subjects_checked"`
	AutoLinked      int `json:"auto_linked"`
	Flagged         int `json:"flagged"`
	NeedsReview     int `json:"needs_review"`
	Unresolved      int `json:"unresolved"`
}

// ReviewService periodically re-resolves subjects seen in the recent window
// and surfaces the ones still stuck below the auto-link threshold. As
// weights learn and new evidence lands, yesterday's NeedsReview can become
// today's auto-link without any user action.
type ReviewService struct {
	events   domain.EventStore
	resolver *Resolver
	notifier Notifier
	logger   *zap.Logger

	interval time.Duration
	window   time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewReviewService(events domain.EventStore, resolver *Resolver, logger *zap.Logger) *ReviewService {
	return &ReviewService{
		events:   events,
		resolver: resolver,
		logger:   logger,
		interval: defaultReviewInterval,
		window:   defaultReviewWindow,
		stopCh:   make(chan struct{}),
	}
}

func (s *ReviewService) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *ReviewService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Start runs the sweeper on a periodic schedule in a background goroutine.
func (s *ReviewService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("review sweeper started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if _, err := s.RunSweep(ctx); err != nil {
					s.logger.Error("review sweep failed", zap.Error(err))
				}
				cancel()
			case <-s.stopCh:
				s.logger.Info("review sweeper stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the sweeper.
func (s *ReviewService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunSweep re-resolves every subject that received a resolution-tier signal
// inside the window.
func (s *ReviewService) RunSweep(ctx context.Context) (*ReviewResult, error) {
	now := time.Now()

	events, err := s.events.Query(ctx, domain.EventQuery{
		SignalTypes: tierOrder,
		Since:       now.Add(-s.window),
	})
	if err != nil {
		return nil, err
	}

	subjects := make(map[domain.EntityRef]bool)
	for _, ev := range events {
		subjects[domain.EntityRef{Type: ev.EntityType, ID: ev.EntityID}] = true
	}

	result := &ReviewResult{}
	for subject := range subjects {
		res, err := s.resolver.ResolveSubject(ctx, subject, now)
		if err != nil {
			s.logger.Warn("review sweep: resolve failed",
				zap.String("subject_type", string(subject.Type)),
				zap.String("subject_id", subject.ID),
				zap.Error(err))
			continue
		}
		result.SubjectsChecked++

		switch res.Outcome {
		case domain.OutcomeAutoLinked:
			if res.FlaggedForVerification {
				result.Flagged++
			} else {
				result.AutoLinked++
			}
		case domain.OutcomeNeedsReview:
			result.NeedsReview++
			s.logger.Info("subject needs review",
				zap.String("subject_type", string(subject.Type)),
				zap.String("subject_id", subject.ID),
				zap.Int("candidates", len(res.Candidates)))
		case domain.OutcomeUnresolved:
			result.Unresolved++
		}
	}

	if result.SubjectsChecked > 0 {
		s.logger.Info("review sweep complete",
			zap.Int("subjects_checked", result.SubjectsChecked),
			zap.Int("auto_linked", result.AutoLinked),
			zap.Int("flagged", result.Flagged),
			zap.Int("needs_review", result.NeedsReview),
			zap.Int("unresolved", result.Unresolved))
	}

	return result, nil
}
