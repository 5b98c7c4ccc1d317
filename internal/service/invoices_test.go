package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/aquaflow/internal/lifecycle"
	"github.com/jask/aquaflow/internal/pricing"
)

func completedRequest(t *testing.T, h *harness) string {
	t.Helper()
	req := h.submit(t, customer)
	q := h.quote(t, req.ID, 40000)
	_, err := h.svc.Quotes.Accept(context.Background(), customer, req.ID, q.ID)
	require.NoError(t, err)
	h.advance(t, req.ID, "scheduled", "completed")
	return req.ID
}

var invoiceItems = InvoiceInput{
	LaborItems:    []pricing.LineItem{{Description: "Labour", Quantity: 3, UnitCents: 10000}},
	MaterialItems: []pricing.LineItem{{Description: "Valve", Quantity: 1, UnitCents: 5000}},
	Notes:         "Net 30",
}

func TestInvoiceLifecycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	id := completedRequest(t, h)

	_, err := h.svc.Invoices.Create(ctx, customer, id, invoiceItems)
	require.ErrorIs(t, err, ErrForbidden)

	inv, err := h.svc.Invoices.Create(ctx, admin, id, invoiceItems)
	require.NoError(t, err)
	require.Equal(t, "INV-000001", inv.InvoiceNumber)
	require.EqualValues(t, 35000, inv.SubtotalCents)
	require.EqualValues(t, 1750, inv.GSTCents)
	require.EqualValues(t, 350, inv.PSTCents) // materials only
	require.EqualValues(t, 37100, inv.TotalCents)
	require.Equal(t, "sent", inv.Status)
	require.Equal(t, "invoiced", h.status(t, id))

	_, err = h.svc.Invoices.Create(ctx, admin, id, invoiceItems)
	require.ErrorIs(t, err, ErrConflict)

	mine, err := h.svc.Invoices.List(ctx, customer)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	theirs, err := h.svc.Invoices.List(ctx, stranger)
	require.NoError(t, err)
	require.Empty(t, theirs)
	_, err = h.svc.Invoices.Get(ctx, stranger, inv.ID)
	require.ErrorIs(t, err, ErrNotFound)

	edit := invoiceItems
	edit.Notes = "Net 15"
	updated, err := h.svc.Invoices.Update(ctx, admin, inv.ID, edit)
	require.NoError(t, err)
	require.Equal(t, "Net 15", updated.Notes)

	_, err = h.svc.Invoices.MarkPaid(ctx, admin, inv.ID, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	paid, err := h.svc.Invoices.MarkPaid(ctx, admin, inv.ID, "e-transfer")
	require.NoError(t, err)
	require.Equal(t, "paid", paid.Status)
	require.NotNil(t, paid.PaidAt)
	require.Equal(t, "paid", h.status(t, id))

	_, err = h.svc.Invoices.Update(ctx, admin, inv.ID, invoiceItems)
	require.ErrorIs(t, err, ErrConflict)
}

func TestInvoiceRequiresCompletedRequest(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(d *Deps) { d.Tax = pricing.TaxPolicy{GST: 0.05, PST: 0.07, PSTOnLabor: true} })
	ctx := context.Background()
	req := h.submit(t, customer)

	_, err := h.svc.Invoices.Create(ctx, admin, req.ID, invoiceItems)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = h.svc.Invoices.Create(ctx, admin, req.ID, InvoiceInput{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	id := completedRequest(t, h)
	inv, err := h.svc.Invoices.Create(ctx, admin, id, invoiceItems)
	require.NoError(t, err)
	require.EqualValues(t, 2450, inv.PSTCents)
}

func TestMarkPaidTwiceConcurrently(t *testing.T) {
	t.Parallel()
	h, arm := newInterleavedHarness(t)
	ctx := context.Background()
	id := completedRequest(t, h)
	inv, err := h.svc.Invoices.Create(ctx, admin, id, invoiceItems)
	require.NoError(t, err)

	arm(func() {
		_, err := h.svc.Invoices.MarkPaid(ctx, admin, inv.ID, "cash")
		require.NoError(t, err)
	})
	_, err = h.svc.Invoices.MarkPaid(ctx, admin, inv.ID, "e-transfer")
	require.ErrorIs(t, err, ErrConflict)

	got, err := h.svc.Invoices.Get(ctx, admin, inv.ID)
	require.NoError(t, err)
	require.Equal(t, "cash", *got.PaymentMethod)
	require.Equal(t, "paid", h.status(t, id))
}
