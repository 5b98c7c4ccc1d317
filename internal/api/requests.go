package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jask/aquaflow/internal/intake"
	"github.com/jask/aquaflow/internal/llm"
	"github.com/jask/aquaflow/internal/service"
)

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories":       intake.Categories(),
		"genericQuestions": intake.GenericQuestions(),
	})
}

type followUpBody struct {
	Category           string   `json:"category"`
	ProblemDescription string   `json:"problem_description"`
	ClarifyingAnswers  []llm.QA `json:"clarifyingAnswers"`
}

func (s *Server) handleFollowUpQuestions(w http.ResponseWriter, r *http.Request) {
	var body followUpBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(body.Category) == "" {
		s.writeError(w, r, &service.ValidationError{Field: "category", Msg: "is required"})
		return
	}
	questions := s.svc.Requests.FollowUpQuestions(r.Context(), body.Category, body.ProblemDescription, body.ClarifyingAnswers)
	writeJSON(w, http.StatusOK, map[string]any{
		"requiresFollowUp":    len(questions) > 0,
		"additionalQuestions": questions,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var in service.SubmitInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := s.svc.Requests.Submit(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Quote request submitted successfully.",
		"request": req,
	})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Requests.List(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.svc.Requests.Get(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	var in service.DetailsInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := s.svc.Requests.UpdateDetails(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type statusBody struct {
	Status             string     `json:"status"`
	ScheduledStartDate *time.Time `json:"scheduled_start_date"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := s.svc.Requests.UpdateStatus(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), body.Status, body.ScheduledStartDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleMarkViewed(w http.ResponseWriter, r *http.Request) {
	req, err := s.svc.Requests.MarkViewed(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type completeBody struct {
	ActualCostCents *int64 `json:"actual_cost_cents"`
	CompletionNotes string `json:"completion_notes"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var body completeBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := s.svc.Requests.Complete(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), body.ActualCostCents, body.CompletionNotes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type noteBody struct {
	Note string `json:"note"`
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var body noteBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	note, err := s.svc.Requests.AddNote(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), body.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}
