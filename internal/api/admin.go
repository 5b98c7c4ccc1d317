package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jask/aquaflow/internal/service"
)

func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	req, err := s.svc.Triage.Run(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "requestID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Triage complete.",
		"request": req,
	})
}

func (s *Server) handleFollowUpSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.FollowUps.Sweep(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type cleanupBody struct {
	DryRun        *bool `json:"dryRun"`
	ConfirmDelete bool  `json:"confirmDelete"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var body cleanupBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	opts := service.CleanupOptions{
		DryRun:   body.DryRun == nil || *body.DryRun,
		Confirm:  body.ConfirmDelete,
		TestMode: headerTrue(r.Header.Get("X-Test-Mode")),
	}
	res, err := s.svc.Maintenance.CleanupTestData(r.Context(), actorFrom(r.Context()), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func headerTrue(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Profiles.Get(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var in service.ProfileInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.svc.Profiles.Create(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in service.ProfileInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.svc.Profiles.Update(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
