package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jask/aquaflow/internal/service"
)

type createInvoiceBody struct {
	RequestID string `json:"request_id"`
	service.InvoiceInput
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var body createInvoiceBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(body.RequestID) == "" {
		s.writeError(w, r, &service.ValidationError{Field: "request_id", Msg: "is required"})
		return
	}
	inv, err := s.svc.Invoices.Create(r.Context(), actorFrom(r.Context()), body.RequestID, body.InvoiceInput)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Invoices.List(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.svc.Invoices.Get(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var in service.InvoiceInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	inv, err := s.svc.Invoices.Update(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type paidBody struct {
	PaymentMethod string `json:"payment_method"`
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	var body paidBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	inv, err := s.svc.Invoices.MarkPaid(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), body.PaymentMethod)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
