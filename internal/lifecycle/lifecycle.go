// Package lifecycle defines request, quote and invoice statuses and the
// allowed request status transitions.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStatus     = errors.New("unknown status")
)

type RequestStatus string

const (
	StatusNew        RequestStatus = "new"
	StatusViewed     RequestStatus = "viewed"
	StatusQuoted     RequestStatus = "quoted"
	StatusAccepted   RequestStatus = "accepted"
	StatusScheduled  RequestStatus = "scheduled"
	StatusInProgress RequestStatus = "in_progress"
	StatusCompleted  RequestStatus = "completed"
	StatusInvoiced   RequestStatus = "invoiced"
	StatusPaid       RequestStatus = "paid"
	StatusOverdue    RequestStatus = "overdue"
	StatusDisputed   RequestStatus = "disputed"
	StatusCancelled  RequestStatus = "cancelled"
)

// RequestStatuses lists every request status in pipeline order.
var RequestStatuses = []RequestStatus{
	StatusNew, StatusViewed, StatusQuoted, StatusAccepted, StatusScheduled, StatusInProgress,
	StatusCompleted, StatusInvoiced, StatusPaid, StatusOverdue, StatusDisputed, StatusCancelled,
}

var transitions = map[RequestStatus][]RequestStatus{
	StatusNew:        {StatusViewed, StatusQuoted, StatusCancelled},
	StatusViewed:     {StatusQuoted, StatusCancelled},
	StatusQuoted:     {StatusAccepted, StatusQuoted, StatusCancelled},
	StatusAccepted:   {StatusScheduled, StatusQuoted, StatusCancelled},
	StatusScheduled:  {StatusInProgress, StatusCompleted, StatusScheduled, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {StatusInvoiced},
	StatusInvoiced:   {StatusPaid, StatusOverdue, StatusDisputed},
	StatusOverdue:    {StatusPaid, StatusDisputed},
	StatusDisputed:   {StatusPaid, StatusInvoiced},
	StatusPaid:       nil,
	StatusCancelled:  nil,
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns ErrInvalidTransition when from → to is not allowed.
func Transition(from, to RequestStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Next lists the statuses reachable from s.
func Next(s RequestStatus) []RequestStatus {
	return append([]RequestStatus(nil), transitions[s]...)
}

// Terminal reports whether no transition leaves s.
func (s RequestStatus) Terminal() bool {
	_, known := transitions[s]
	return known && len(transitions[s]) == 0
}

// ParseRequestStatus validates s.
func ParseRequestStatus(s string) (RequestStatus, error) {
	st := RequestStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("%w: request status %q", ErrUnknownStatus, s)
	}
	return st, nil
}

type QuoteStatus string

const (
	QuoteSent        QuoteStatus = "sent"
	QuoteAccepted    QuoteStatus = "accepted"
	QuoteRejected    QuoteStatus = "rejected"
	QuoteChangeOrder QuoteStatus = "change_order"
)

// ParseQuoteStatus validates s.
func ParseQuoteStatus(s string) (QuoteStatus, error) {
	switch st := QuoteStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case QuoteSent, QuoteAccepted, QuoteRejected, QuoteChangeOrder:
		return st, nil
	}
	return "", fmt.Errorf("%w: quote status %q", ErrUnknownStatus, s)
}

type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceSent    InvoiceStatus = "sent"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
	InvoiceVoid    InvoiceStatus = "void"
)
