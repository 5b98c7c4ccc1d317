package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/lifecycle"
	"github.com/jask/aquaflow/internal/pricing"
	"github.com/jask/aquaflow/internal/realtime"
)

type InvoiceService struct {
	*base
}

type InvoiceInput struct {
	LaborItems    []pricing.LineItem `json:"labor_items"`
	MaterialItems []pricing.LineItem `json:"material_items"`
	Notes         string             `json:"notes"`
	DueDate       *time.Time         `json:"due_date"`
}

func (s *InvoiceService) price(in InvoiceInput) (pricing.Breakdown, error) {
	if len(in.LaborItems)+len(in.MaterialItems) == 0 {
		return pricing.Breakdown{}, invalid("line_items", "at least one line item is required")
	}
	if err := pricing.Validate(in.LaborItems); err != nil {
		return pricing.Breakdown{}, invalid("labor_items", err.Error())
	}
	if err := pricing.Validate(in.MaterialItems); err != nil {
		return pricing.Breakdown{}, invalid("material_items", err.Error())
	}
	return pricing.InvoiceTotals(in.LaborItems, in.MaterialItems, s.tax), nil
}

// Create bills a completed request once.
func (s *InvoiceService) Create(ctx context.Context, actor Actor, requestID string, in InvoiceInput) (*repository.Invoice, error) {
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
	if req.InvoiceID != nil {
		return nil, fmt.Errorf("%w: request already invoiced", ErrConflict)
	}
	if req.Status != string(lifecycle.StatusCompleted) {
		return nil, fmt.Errorf("%w: request is %s, not completed", lifecycle.ErrInvalidTransition, req.Status)
	}

	now := s.now()
	inv := repository.Invoice{
		ID:            uuid.NewString(),
		RequestID:     requestID,
		UserID:        req.UserID,
		LaborItems:    in.LaborItems,
		MaterialItems: in.MaterialItems,
		SubtotalCents: b.SubtotalCents,
		GSTCents:      b.GSTCents,
		PSTCents:      b.PSTCents,
		TotalCents:    b.TotalCents,
		Status:        string(lifecycle.InvoiceSent),
		Notes:         strings.TrimSpace(in.Notes),
		DueDate:       utcPtr(in.DueDate),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.tx(ctx, func(tx *sql.Tx) error {
		invoices := s.invoices.WithTx(tx)
		number, err := invoices.NextNumber(ctx)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = number
		if err := invoices.Insert(ctx, inv); err != nil {
			return err
		}
		requests := s.requests.WithTx(tx)
		if err := requests.SetInvoice(ctx, requestID, inv.ID, now); err != nil {
			return err
		}
		return conflictIfNoRows(requests.SwapStatus(ctx, requestID, req.Status, string(lifecycle.StatusInvoiced), now), "request")
	})
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: request already invoiced", ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	req.Status = string(lifecycle.StatusInvoiced)
	req.InvoiceID = &inv.ID
	s.log.Info("invoice created", zap.String("request_id", requestID), zap.String("invoice", inv.InvoiceNumber))
	s.publish("invoices", realtime.ActionInsert, inv.ID, req)
	s.publish("requests", realtime.ActionUpdate, req.ID, req)
	return &inv, nil
}

func (s *InvoiceService) Get(ctx context.Context, actor Actor, id string) (*repository.Invoice, error) {
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	if inv == nil || (!actor.IsAdmin() && inv.UserID != actor.UserID) {
		return nil, ErrNotFound
	}
	return inv, nil
}

// List returns every invoice for admins and the caller's own otherwise.
func (s *InvoiceService) List(ctx context.Context, actor Actor) ([]repository.Invoice, error) {
	userID := actor.UserID
	if actor.IsAdmin() {
		userID = ""
	} else if userID == "" {
		return nil, ErrForbidden
	}
	out, err := s.invoices.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	if out == nil {
		out = []repository.Invoice{}
	}
	return out, nil
}

func (s *InvoiceService) Update(ctx context.Context, actor Actor, id string, in InvoiceInput) (*repository.Invoice, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	b, err := s.price(in)
	if err != nil {
		return nil, err
	}
	inv, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == string(lifecycle.InvoicePaid) {
		return nil, fmt.Errorf("%w: invoice is paid", ErrConflict)
	}
	inv.LaborItems, inv.MaterialItems = in.LaborItems, in.MaterialItems
	inv.SubtotalCents, inv.GSTCents, inv.PSTCents, inv.TotalCents = b.SubtotalCents, b.GSTCents, b.PSTCents, b.TotalCents
	inv.Notes = strings.TrimSpace(in.Notes)
	inv.DueDate = utcPtr(in.DueDate)
	inv.UpdatedAt = s.now()
	if err := s.invoices.Update(ctx, *inv); err != nil {
		return nil, fmt.Errorf("update invoice: %w", notFoundIfNoRows(err))
	}
	s.publishInvoice(realtime.ActionUpdate, inv)
	return inv, nil
}

// MarkPaid settles the invoice and moves the request to paid.
func (s *InvoiceService) MarkPaid(ctx context.Context, actor Actor, id, method string) (*repository.Invoice, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, invalid("payment_method", "is required")
	}
	inv, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == string(lifecycle.InvoicePaid) {
		return nil, fmt.Errorf("%w: invoice already paid", ErrConflict)
	}
	req, err := s.loadRequest(ctx, inv.RequestID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Transition(lifecycle.RequestStatus(req.Status), lifecycle.StatusPaid); err != nil {
		return nil, err
	}
	now := s.now()
	err = s.tx(ctx, func(tx *sql.Tx) error {
		if err := s.invoices.WithTx(tx).MarkPaid(ctx, id, method, now); err != nil {
			return conflictIfNoRows(err, "invoice")
		}
		return conflictIfNoRows(s.requests.WithTx(tx).SwapStatus(ctx, inv.RequestID, req.Status, string(lifecycle.StatusPaid), now), "request")
	})
	if err != nil {
		return nil, fmt.Errorf("mark paid: %w", err)
	}
	inv.Status = string(lifecycle.InvoicePaid)
	inv.PaymentMethod = &method
	inv.PaidAt = &now
	inv.UpdatedAt = now
	req.Status = string(lifecycle.StatusPaid)
	s.log.Info("invoice paid", zap.String("invoice", inv.InvoiceNumber))
	s.publish("invoices", realtime.ActionUpdate, inv.ID, req)
	s.publish("requests", realtime.ActionUpdate, req.ID, req)
	return inv, nil
}

func (s *InvoiceService) publishInvoice(action string, inv *repository.Invoice) {
	s.publish("invoices", action, inv.ID, &repository.Request{ID: inv.RequestID, UserID: inv.UserID})
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
