package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/notify"
)

const defaultFollowUpAfter = 72 * time.Hour

// FollowUpService chases customers who have not answered a quote.
type FollowUpService struct {
	*base
	after time.Duration
}

// SweepResult counts the reminders sent by one sweep. Skipped requests have
// no address to email and stay due.
type SweepResult struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// SendQuoteFollowUps emails every quoted request whose last reminder is
// older than the quiet period (or that never had one) and stamps it.
// Sends run inline so the result is exact.
func (s *FollowUpService) SendQuoteFollowUps(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	if s.notifier == nil {
		return res, fmt.Errorf("follow-ups: notifier not configured")
	}
	after := s.after
	if after <= 0 {
		after = defaultFollowUpAfter
	}
	due, err := s.requests.DueForFollowUp(ctx, now.Add(-after))
	if err != nil {
		return res, fmt.Errorf("list due follow-ups: %w", err)
	}
	for i := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		req := &due[i]
		s.withProfile(ctx, req)
		if notify.RecipientEmail(*req) == "" {
			res.Skipped++
			s.log.Debug("follow-up has no recipient", zap.String("request_id", req.ID))
			continue
		}
		if err := s.notifier.QuoteFollowUp(ctx, *req); err != nil {
			res.Failed++
			s.log.Warn("follow-up email failed", zap.String("request_id", req.ID), zap.Error(err))
			continue
		}
		if err := s.requests.MarkFollowUpSent(ctx, req.ID, now); err != nil {
			res.Failed++
			s.log.Warn("stamp follow-up", zap.String("request_id", req.ID), zap.Error(err))
			continue
		}
		res.Sent++
	}
	s.log.Info("follow-up sweep done", zap.Int("sent", res.Sent), zap.Int("failed", res.Failed), zap.Int("skipped", res.Skipped))
	return res, nil
}

// Sweep is the admin-facing entry point.
func (s *FollowUpService) Sweep(ctx context.Context, actor Actor) (SweepResult, error) {
	if err := actor.requireAdmin(); err != nil {
		return SweepResult{}, err
	}
	return s.SendQuoteFollowUps(ctx, s.now())
}

// Loop runs the sweep every interval until ctx is done.
func (s *FollowUpService) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.SendQuoteFollowUps(ctx, s.now()); err != nil {
				s.log.Warn("scheduled follow-up sweep", zap.Error(err))
			}
		}
	}
}
