package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/aquaflow/internal/lifecycle"
	"github.com/jask/aquaflow/internal/notify"
	"github.com/jask/aquaflow/internal/pricing"
)

func TestCreateQuotePricesItems(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t, customer)

	q, err := h.svc.Quotes.Create(ctx, admin, req.ID, QuoteInput{
		Details:       "Replace supply lines",
		LaborItems:    []pricing.LineItem{{Description: "Labour", Quantity: 2, UnitCents: 9500}},
		MaterialItems: []pricing.LineItem{{Description: "Braided line", Quantity: 2, UnitCents: 1250}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, q.QuoteNumber)
	require.EqualValues(t, 21500, q.SubtotalCents)
	require.EqualValues(t, 1075, q.GSTCents)
	require.EqualValues(t, 1505, q.PSTCents)
	require.EqualValues(t, 24080, q.TotalCents)
	require.Equal(t, "sent", q.Status)
	require.Equal(t, "quoted", h.status(t, req.ID))

	second := h.quote(t, req.ID, 30000)
	require.Equal(t, 2, second.QuoteNumber)

	h.notifier.Wait()
	require.Contains(t, h.mailer.subjects(), notify.SubjectQuote)
}

func TestCreateQuoteValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t, customer)

	_, err := h.svc.Quotes.Create(ctx, customer, req.ID, QuoteInput{Details: "x", AmountCents: 100})
	require.ErrorIs(t, err, ErrForbidden)

	var verr *ValidationError
	_, err = h.svc.Quotes.Create(ctx, admin, req.ID, QuoteInput{Details: "", AmountCents: 100})
	require.ErrorAs(t, err, &verr)
	_, err = h.svc.Quotes.Create(ctx, admin, req.ID, QuoteInput{Details: "zero"})
	require.ErrorAs(t, err, &verr)
	_, err = h.svc.Quotes.Create(ctx, admin, req.ID, QuoteInput{Details: "neg", LaborItems: []pricing.LineItem{{Description: "x", Quantity: -1, UnitCents: 5}}})
	require.ErrorAs(t, err, &verr)

	_, err = h.svc.Quotes.Create(ctx, admin, "missing", QuoteInput{Details: "x", AmountCents: 100})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAcceptQuoteIsExclusive(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t, customer)
	q1 := h.quote(t, req.ID, 10000)
	q2 := h.quote(t, req.ID, 12000)
	q3 := h.quote(t, req.ID, 15000)

	_, err := h.svc.Quotes.Accept(ctx, stranger, req.ID, q2.ID)
	require.ErrorIs(t, err, ErrNotFound)

	accepted, err := h.svc.Quotes.Accept(ctx, customer, req.ID, q2.ID)
	require.NoError(t, err)
	require.Equal(t, "accepted", accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)

	got, err := h.svc.Requests.Get(ctx, customer, req.ID)
	require.NoError(t, err)
	require.Equal(t, "accepted", got.Status)
	byID := map[string]string{}
	for _, q := range got.Quotes {
		byID[q.ID] = q.Status
	}
	require.Equal(t, map[string]string{q1.ID: "rejected", q2.ID: "accepted", q3.ID: "rejected"}, byID)

	_, err = h.svc.Quotes.Accept(ctx, customer, req.ID, q2.ID)
	require.ErrorIs(t, err, ErrConflict)

	// the request is no longer quoted, so a sibling cannot be accepted too
	_, err = h.svc.Quotes.Accept(ctx, customer, req.ID, q3.ID)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	h.notifier.Wait()
	require.Contains(t, h.mailer.subjects(), notify.SubjectStatus)
}

func TestUpdateAndDeleteQuote(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t, customer)
	q1 := h.quote(t, req.ID, 10000)
	q2 := h.quote(t, req.ID, 20000)

	updated, err := h.svc.Quotes.Update(ctx, admin, req.ID, q1.ID, QuoteInput{Details: "Revised", AmountCents: 11000})
	require.NoError(t, err)
	require.EqualValues(t, 11000, updated.TotalCents)
	require.Equal(t, "Revised", updated.Details)

	_, err = h.svc.Quotes.Accept(ctx, customer, req.ID, q1.ID)
	require.NoError(t, err)

	_, err = h.svc.Quotes.Update(ctx, admin, req.ID, q1.ID, QuoteInput{Details: "Again", AmountCents: 1})
	require.ErrorIs(t, err, ErrConflict)
	require.ErrorIs(t, h.svc.Quotes.Delete(ctx, admin, req.ID, q1.ID), ErrConflict)

	// revising a rejected sibling reopens the request and the earlier choice
	_, err = h.svc.Quotes.Update(ctx, admin, req.ID, q2.ID, QuoteInput{Details: "Cheaper", AmountCents: 9000})
	require.NoError(t, err)
	require.Equal(t, "quoted", h.status(t, req.ID))
	got, err := h.svc.Requests.Get(ctx, admin, req.ID)
	require.NoError(t, err)
	for _, q := range got.Quotes {
		require.Equal(t, "sent", q.Status, q.ID)
		require.Nil(t, q.AcceptedAt, q.ID)
	}

	// the customer can pick the original quote again
	_, err = h.svc.Quotes.Accept(ctx, customer, req.ID, q1.ID)
	require.NoError(t, err)
	require.Equal(t, "accepted", h.status(t, req.ID))

	require.ErrorIs(t, h.svc.Quotes.Delete(ctx, customer, req.ID, q2.ID), ErrForbidden)
	require.NoError(t, h.svc.Quotes.Delete(ctx, admin, req.ID, q2.ID))
	require.ErrorIs(t, h.svc.Quotes.Delete(ctx, admin, req.ID, q2.ID), ErrNotFound)
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	t.Parallel()
	h, arm := newInterleavedHarness(t)
	ctx := context.Background()
	req := h.submit(t, customer)
	q1 := h.quote(t, req.ID, 10000)
	q2 := h.quote(t, req.ID, 12000)

	var otherErr error
	arm(func() {
		_, otherErr = h.svc.Quotes.Accept(ctx, customer, req.ID, q2.ID)
	})
	_, err := h.svc.Quotes.Accept(ctx, customer, req.ID, q1.ID)
	require.NoError(t, otherErr)
	require.ErrorIs(t, err, ErrConflict)

	got, err := h.svc.Requests.Get(ctx, admin, req.ID)
	require.NoError(t, err)
	require.Equal(t, "accepted", got.Status)
	byID := map[string]string{}
	for _, q := range got.Quotes {
		byID[q.ID] = q.Status
	}
	require.Equal(t, map[string]string{q1.ID: "rejected", q2.ID: "accepted"}, byID)
}

func TestUpdateLosesToConcurrentAccept(t *testing.T) {
	t.Parallel()
	h, arm := newInterleavedHarness(t)
	ctx := context.Background()
	req := h.submit(t, customer)
	q := h.quote(t, req.ID, 10000)

	arm(func() {
		_, err := h.svc.Quotes.Accept(ctx, customer, req.ID, q.ID)
		require.NoError(t, err)
	})
	_, err := h.svc.Quotes.Update(ctx, admin, req.ID, q.ID, QuoteInput{Details: "Late edit", AmountCents: 500})
	require.ErrorIs(t, err, ErrConflict)

	got, err := h.svc.Requests.Get(ctx, admin, req.ID)
	require.NoError(t, err)
	require.Equal(t, "accepted", got.Quotes[0].Status)
	require.EqualValues(t, 10000, got.Quotes[0].TotalCents)
}
