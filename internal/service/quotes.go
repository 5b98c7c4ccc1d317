package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/lifecycle"
	"github.com/jask/aquaflow/internal/notify"
	"github.com/jask/aquaflow/internal/pricing"
	"github.com/jask/aquaflow/internal/realtime"
	"github.com/jask/aquaflow/internal/storage"
)

type QuoteService struct {
	*base
}

// QuoteInput prices a quote from line items, or from AmountCents when no
// items are given.
type QuoteInput struct {
	Details       string             `json:"details"`
	LaborItems    []pricing.LineItem `json:"labor_items"`
	MaterialItems []pricing.LineItem `json:"material_items"`
	AmountCents   int64              `json:"quote_amount_cents"`
}

func (s *QuoteService) price(in QuoteInput) (pricing.Breakdown, error) {
	if strings.TrimSpace(in.Details) == "" {
		return pricing.Breakdown{}, invalid("details", "is required")
	}
	if err := pricing.Validate(in.LaborItems); err != nil {
		return pricing.Breakdown{}, invalid("labor_items", err.Error())
	}
	if err := pricing.Validate(in.MaterialItems); err != nil {
		return pricing.Breakdown{}, invalid("material_items", err.Error())
	}
	var b pricing.Breakdown
	if len(in.LaborItems)+len(in.MaterialItems) > 0 {
		b = pricing.QuoteTotals(in.LaborItems, in.MaterialItems, s.tax)
	} else {
		b = pricing.FlatTotal(in.AmountCents)
	}
	if b.TotalCents <= 0 {
		return pricing.Breakdown{}, invalid("quote_amount", "must be greater than zero")
	}
	return b, nil
}

func (s *QuoteService) Create(ctx context.Context, actor Actor, requestID string, in QuoteInput) (*repository.Quote, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	b, err := s.price(in)
	if err != nil {
		return nil, err
	}
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Transition(lifecycle.RequestStatus(req.Status), lifecycle.StatusQuoted); err != nil {
		return nil, err
	}

	now := s.now()
	q := repository.Quote{
		ID:            uuid.NewString(),
		RequestID:     requestID,
		Details:       strings.TrimSpace(in.Details),
		LaborItems:    in.LaborItems,
		MaterialItems: in.MaterialItems,
		SubtotalCents: b.SubtotalCents,
		GSTCents:      b.GSTCents,
		PSTCents:      b.PSTCents,
		TotalCents:    b.TotalCents,
		Status:        string(lifecycle.QuoteSent),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.tx(ctx, func(tx *sql.Tx) error {
		quotes := s.quotes.WithTx(tx)
		n, err := quotes.NextNumber(ctx, requestID)
		if err != nil {
			return err
		}
		q.QuoteNumber = n
		if err := quotes.Insert(ctx, q); err != nil {
			return err
		}
		return s.requests.WithTx(tx).SwapStatus(ctx, requestID, req.Status, string(lifecycle.StatusQuoted), now)
	})
	if err != nil {
		return nil, fmt.Errorf("create quote: %w", conflictIfNoRows(err, "request"))
	}
	req.Status = string(lifecycle.StatusQuoted)
	s.log.Info("quote created", zap.String("request_id", requestID), zap.String("quote_id", q.ID), zap.Int("number", q.QuoteNumber))
	s.publish("quotes", realtime.ActionInsert, q.ID, req)
	s.publish("requests", realtime.ActionUpdate, req.ID, req)

	s.withProfile(ctx, req)
	r, created := *req, q
	s.notify(ctx, "quote_added", func(ctx context.Context, n *notify.Notifier) error {
		return n.QuoteAdded(ctx, r, created)
	})
	return &q, nil
}

// Update reprices a quote that has not been accepted and puts it back to sent.
func (s *QuoteService) Update(ctx context.Context, actor Actor, requestID, quoteID string, in QuoteInput) (*repository.Quote, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	b, err := s.price(in)
	if err != nil {
		return nil, err
	}
	req, q, err := s.loadQuote(ctx, requestID, quoteID)
	if err != nil {
		return nil, err
	}
	if q.Status == string(lifecycle.QuoteAccepted) {
		return nil, fmt.Errorf("%w: quote %d is accepted", ErrConflict, q.QuoteNumber)
	}
	now := s.now()
	q.Details = strings.TrimSpace(in.Details)
	q.LaborItems, q.MaterialItems = in.LaborItems, in.MaterialItems
	q.SubtotalCents, q.GSTCents, q.PSTCents, q.TotalCents = b.SubtotalCents, b.GSTCents, b.PSTCents, b.TotalCents
	q.Status = string(lifecycle.QuoteSent)
	q.AcceptedAt = nil
	q.UpdatedAt = now

	// revising any quote of an accepted request reopens the choice
	requote := req.Status == string(lifecycle.StatusAccepted)
	err = s.tx(ctx, func(tx *sql.Tx) error {
		quotes := s.quotes.WithTx(tx)
		if err := quotes.UpdatePricing(ctx, *q); err != nil {
			return conflictIfNoRows(err, "quote")
		}
		if !requote {
			return nil
		}
		if _, err := quotes.Reopen(ctx, requestID, now); err != nil {
			return err
		}
		return conflictIfNoRows(s.requests.WithTx(tx).SwapStatus(ctx, requestID, req.Status, string(lifecycle.StatusQuoted), now), "request")
	})
	if err != nil {
		return nil, fmt.Errorf("update quote: %w", err)
	}
	s.publish("quotes", realtime.ActionUpdate, q.ID, req)
	if requote {
		req.Status = string(lifecycle.StatusQuoted)
		s.publish("requests", realtime.ActionUpdate, req.ID, req)
	}
	return q, nil
}

func (s *QuoteService) Delete(ctx context.Context, actor Actor, requestID, quoteID string) error {
	if err := actor.requireAdmin(); err != nil {
		return err
	}
	req, q, err := s.loadQuote(ctx, requestID, quoteID)
	if err != nil {
		return err
	}
	if q.Status == string(lifecycle.QuoteAccepted) {
		return fmt.Errorf("%w: cannot delete an accepted quote", ErrConflict)
	}
	if err := s.quotes.Delete(ctx, requestID, quoteID); err != nil {
		return fmt.Errorf("delete quote: %w", notFoundIfNoRows(err))
	}
	if s.store != nil {
		if err := s.store.DeletePrefix(storage.Key(requestID, quoteID)); err != nil {
			s.log.Warn("delete quote blobs", zap.String("quote_id", quoteID), zap.Error(err))
		}
	}
	s.publish("quotes", realtime.ActionDelete, quoteID, req)
	return nil
}

// Accept makes quoteID the request's single accepted quote, rejecting the
// others, and moves the request to accepted.
func (s *QuoteService) Accept(ctx context.Context, actor Actor, requestID, quoteID string) (*repository.Quote, error) {
	req, err := s.loadVisible(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	q, err := s.quotes.Get(ctx, requestID, quoteID)
	if err != nil {
		return nil, fmt.Errorf("load quote: %w", err)
	}
	if q == nil {
		return nil, ErrNotFound
	}
	if q.Status == string(lifecycle.QuoteAccepted) {
		return nil, fmt.Errorf("%w: quote already accepted", ErrConflict)
	}
	if err := lifecycle.Transition(lifecycle.RequestStatus(req.Status), lifecycle.StatusAccepted); err != nil {
		return nil, err
	}

	// both rows are re-checked inside the transaction so concurrent accepts
	// have a single winner
	now := s.now()
	err = s.tx(ctx, func(tx *sql.Tx) error {
		if err := s.requests.WithTx(tx).SwapStatus(ctx, requestID, req.Status, string(lifecycle.StatusAccepted), now); err != nil {
			return conflictIfNoRows(err, "request")
		}
		return conflictIfNoRows(s.quotes.WithTx(tx).Accept(ctx, requestID, quoteID, now), "quote")
	})
	switch {
	case isUniqueViolation(err):
		return nil, fmt.Errorf("%w: another quote is already accepted", ErrConflict)
	case err != nil:
		return nil, fmt.Errorf("accept quote: %w", err)
	}
	q.Status = string(lifecycle.QuoteAccepted)
	q.AcceptedAt = &now
	q.UpdatedAt = now
	req.Status = string(lifecycle.StatusAccepted)
	req.UpdatedAt = now
	s.log.Info("quote accepted", zap.String("request_id", requestID), zap.String("quote_id", quoteID))

	s.publish("quotes", realtime.ActionUpdate, q.ID, req)
	s.publish("requests", realtime.ActionUpdate, req.ID, req)
	s.withProfile(ctx, req)
	r, accepted := *req, *q
	s.notify(ctx, "status_updated", func(ctx context.Context, n *notify.Notifier) error {
		return n.StatusUpdated(ctx, r)
	})
	s.notify(ctx, "admin_quote_accepted", func(ctx context.Context, n *notify.Notifier) error {
		return n.AdminQuoteAccepted(ctx, r, accepted)
	})
	return q, nil
}

func (s *QuoteService) loadQuote(ctx context.Context, requestID, quoteID string) (*repository.Request, *repository.Quote, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	q, err := s.quotes.Get(ctx, requestID, quoteID)
	if err != nil {
		return nil, nil, fmt.Errorf("load quote: %w", err)
	}
	if q == nil {
		return nil, nil, ErrNotFound
	}
	return req, q, nil
}
