package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jask/aquaflow/internal/service"
)

func (s *Server) handleCreateQuote(w http.ResponseWriter, r *http.Request) {
	var in service.QuoteInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := s.svc.Quotes.Create(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleUpdateQuote(w http.ResponseWriter, r *http.Request) {
	var in service.QuoteInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := s.svc.Quotes.Update(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "quoteID"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQuote(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Quotes.Delete(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "quoteID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAcceptQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.svc.Quotes.Accept(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "quoteID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Quote accepted successfully.",
		"quote":   q,
	})
}
