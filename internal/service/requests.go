package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/intake"
	"github.com/jask/aquaflow/internal/lifecycle"
	"github.com/jask/aquaflow/internal/llm"
	"github.com/jask/aquaflow/internal/notify"
	"github.com/jask/aquaflow/internal/realtime"
)

const geocodeTimeout = 5 * time.Second

// RequestService owns the request lifecycle up to completion.
type RequestService struct {
	*base
}

// SubmitInput is the intake payload. IsHomeowner is the "Yes"/"No" answer.
type SubmitInput struct {
	CustomerName       string              `json:"customer_name"`
	ServiceAddress     string              `json:"service_address"`
	ContactInfo        string              `json:"contact_info"`
	ProblemCategory    string              `json:"problem_category"`
	IsEmergency        bool                `json:"is_emergency"`
	PropertyType       string              `json:"property_type"`
	IsHomeowner        string              `json:"is_homeowner"`
	ProblemDescription string              `json:"problem_description"`
	PreferredTiming    string              `json:"preferred_timing"`
	AdditionalNotes    string              `json:"additional_notes"`
	Answers            []repository.Answer `json:"answers"`
	Latitude           *float64            `json:"latitude"`
	Longitude          *float64            `json:"longitude"`
}

func (in SubmitInput) validate() error {
	if strings.TrimSpace(in.CustomerName) == "" {
		return invalid("customer_name", "is required")
	}
	if strings.TrimSpace(in.ServiceAddress) == "" {
		return invalid("service_address", "is required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.ContactInfo)); err != nil {
		return invalid("contact_info", "must be a valid email address")
	}
	switch strings.ToLower(strings.TrimSpace(in.IsHomeowner)) {
	case "", "yes", "no":
	default:
		return invalid("is_homeowner", "must be Yes or No")
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return invalid("latitude", "latitude and longitude must be given together")
	}
	return nil
}

func (s *RequestService) Submit(ctx context.Context, actor Actor, in SubmitInput) (*repository.Request, error) {
	if actor.UserID == "" {
		return nil, ErrForbidden
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	addr, _ := mail.ParseAddress(strings.TrimSpace(in.ContactInfo))
	req := repository.Request{
		ID:                 uuid.NewString(),
		UserID:             actor.UserID,
		CustomerName:       strings.TrimSpace(in.CustomerName),
		ServiceAddress:     strings.TrimSpace(in.ServiceAddress),
		ContactInfo:        addr.Address,
		ProblemCategory:    intake.NormalizeCategory(in.ProblemCategory),
		IsEmergency:        in.IsEmergency,
		PropertyType:       strings.TrimSpace(in.PropertyType),
		IsHomeowner:        !strings.EqualFold(strings.TrimSpace(in.IsHomeowner), "no"),
		ProblemDescription: strings.TrimSpace(in.ProblemDescription),
		PreferredTiming:    strings.TrimSpace(in.PreferredTiming),
		AdditionalNotes:    strings.TrimSpace(in.AdditionalNotes),
		Answers:            in.Answers,
		Latitude:           in.Latitude,
		Longitude:          in.Longitude,
		Status:             string(lifecycle.StatusNew),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.Latitude == nil {
		s.geocodeInto(ctx, &req)
	}
	if err := s.requests.Insert(ctx, req); err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}
	s.log.Info("request submitted", zap.String("request_id", req.ID), zap.String("category", req.ProblemCategory))
	s.publish("requests", realtime.ActionInsert, req.ID, &req)

	s.withProfile(ctx, &req)
	submitted := req
	s.notify(ctx, "request_submitted", func(ctx context.Context, n *notify.Notifier) error {
		return n.RequestSubmitted(ctx, submitted)
	})
	s.notify(ctx, "admin_new_request", func(ctx context.Context, n *notify.Notifier) error {
		return n.AdminNewRequest(ctx, submitted)
	})
	return &req, nil
}

// geocodeInto fills coordinates from the address. Failures only log.
func (s *RequestService) geocodeInto(ctx context.Context, req *repository.Request) {
	if s.geo == nil {
		return
	}
	gctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()
	res, err := s.geo.Geocode(gctx, req.ServiceAddress)
	if err != nil {
		s.log.Warn("geocode failed", zap.String("request_id", req.ID), zap.Error(err))
		return
	}
	lat, lng, formatted := res.Lat, res.Lng, res.FormattedAddress
	req.Latitude, req.Longitude = &lat, &lng
	if formatted != "" {
		req.GeocodedAddress = &formatted
	}
}

// FollowUpQuestions asks the model for extra intake questions when the
// answers so far look ambiguous. Model failures yield no questions.
func (s *RequestService) FollowUpQuestions(ctx context.Context, category, description string, answers []llm.QA) []string {
	category = intake.NormalizeCategory(category)
	if !intake.NeedsFollowUp(category, description) || s.llm == nil {
		return []string{}
	}
	resp, err := s.llm.FollowUp(ctx, llm.FollowUpRequest{
		Category:    category,
		Description: description,
		Answers:     answers,
	})
	s.metrics.LLMCall("follow_up", err)
	if err != nil {
		s.log.Warn("follow-up questions unavailable", zap.Error(err))
		return []string{}
	}
	resp.Normalize()
	return resp.Questions
}

// List returns the actor's requests, or every request for admins.
func (s *RequestService) List(ctx context.Context, actor Actor) ([]repository.Request, error) {
	f := repository.RequestFilters{}
	if !actor.IsAdmin() {
		if actor.UserID == "" {
			return nil, ErrForbidden
		}
		f.UserID = actor.UserID
	}
	reqs, err := s.requests.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	for i := range reqs {
		if err := s.enrich(ctx, &reqs[i]); err != nil {
			return nil, err
		}
	}
	if reqs == nil {
		reqs = []repository.Request{}
	}
	return reqs, nil
}

func (s *RequestService) Get(ctx context.Context, actor Actor, id string) (*repository.Request, error) {
	req, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.enrich(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *RequestService) enrich(ctx context.Context, req *repository.Request) error {
	s.withProfile(ctx, req)
	var err error
	if req.Quotes, err = s.quotes.ListForRequest(ctx, req.ID); err != nil {
		return fmt.Errorf("load quotes: %w", err)
	}
	if req.Attachments, err = s.attachments.ListForRequest(ctx, req.ID); err != nil {
		return fmt.Errorf("load attachments: %w", err)
	}
	if req.Notes, err = s.notes.ListForRequest(ctx, req.ID); err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	return nil
}

// UpdateStatus moves a request along the lifecycle. scheduledStart is stored
// when given.
func (s *RequestService) UpdateStatus(ctx context.Context, actor Actor, id, status string, scheduledStart *time.Time) (*repository.Request, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	to, err := lifecycle.ParseRequestStatus(status)
	if err != nil {
		return nil, invalid("status", err.Error())
	}
	req, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Transition(lifecycle.RequestStatus(req.Status), to); err != nil {
		return nil, err
	}
	now := s.now()
	err = s.tx(ctx, func(tx *sql.Tx) error {
		repo := s.requests.WithTx(tx)
		if err := repo.SwapStatus(ctx, id, req.Status, string(to), now); err != nil {
			return conflictIfNoRows(err, "request")
		}
		if scheduledStart != nil {
			return repo.SetScheduledStart(ctx, id, scheduledStart.UTC(), now)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	req.Status = string(to)
	req.UpdatedAt = now
	if scheduledStart != nil {
		st := scheduledStart.UTC()
		req.ScheduledStartDate = &st
	}
	s.log.Info("request status updated", zap.String("request_id", id), zap.String("status", req.Status))
	s.afterStatusChange(ctx, req)
	return req, nil
}

func (s *RequestService) afterStatusChange(ctx context.Context, req *repository.Request) {
	s.publish("requests", realtime.ActionUpdate, req.ID, req)
	s.withProfile(ctx, req)
	updated := *req
	s.notify(ctx, "status_updated", func(ctx context.Context, n *notify.Notifier) error {
		return n.StatusUpdated(ctx, updated)
	})
}

// MarkViewed records that someone opened the request. Admins move new
// requests to viewed; owners viewing a quote stamp quote_viewed_at.
func (s *RequestService) MarkViewed(ctx context.Context, actor Actor, id string) (*repository.Request, error) {
	req, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch {
	case actor.IsAdmin() && req.Status == string(lifecycle.StatusNew):
		err := s.requests.SwapStatus(ctx, id, req.Status, string(lifecycle.StatusViewed), now)
		if errors.Is(err, sql.ErrNoRows) {
			// someone else moved it first
			return s.loadVisible(ctx, actor, id)
		}
		if err != nil {
			return nil, fmt.Errorf("mark viewed: %w", err)
		}
		req.Status = string(lifecycle.StatusViewed)
	case req.UserID == actor.UserID && req.Status == string(lifecycle.StatusQuoted):
		if err := s.requests.MarkQuoteViewed(ctx, id, now); err != nil {
			return nil, fmt.Errorf("mark quote viewed: %w", notFoundIfNoRows(err))
		}
		req.QuoteViewedAt = &now
	default:
		return req, nil
	}
	req.UpdatedAt = now
	s.publish("requests", realtime.ActionUpdate, req.ID, req)
	return req, nil
}

// DetailsInput edits the location fields of a submitted request.
type DetailsInput struct {
	ServiceAddress  *string  `json:"service_address"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	GeocodedAddress *string  `json:"geocoded_address"`
}

func (s *RequestService) UpdateDetails(ctx context.Context, actor Actor, id string, in DetailsInput) (*repository.Request, error) {
	req, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if in.ServiceAddress == nil && in.Latitude == nil && in.Longitude == nil && in.GeocodedAddress == nil {
		return nil, invalid("", "no updatable fields given")
	}
	patch := repository.DetailsPatch{
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		GeocodedAddress: in.GeocodedAddress,
	}
	if in.ServiceAddress != nil {
		addr := strings.TrimSpace(*in.ServiceAddress)
		if addr == "" {
			return nil, invalid("service_address", "must not be empty")
		}
		patch.ServiceAddress = &addr
		req.ServiceAddress = addr
		if in.Latitude == nil && in.Longitude == nil {
			lookup := *req
			lookup.Latitude, lookup.Longitude, lookup.GeocodedAddress = nil, nil, nil
			s.geocodeInto(ctx, &lookup)
			if lookup.Latitude != nil {
				patch.Latitude, patch.Longitude = lookup.Latitude, lookup.Longitude
				if patch.GeocodedAddress == nil {
					patch.GeocodedAddress = lookup.GeocodedAddress
				}
			}
		}
	}
	now := s.now()
	if err := s.requests.UpdateDetails(ctx, id, patch, now); err != nil {
		return nil, fmt.Errorf("update details: %w", notFoundIfNoRows(err))
	}
	if patch.Latitude != nil {
		req.Latitude = patch.Latitude
	}
	if patch.Longitude != nil {
		req.Longitude = patch.Longitude
	}
	if patch.GeocodedAddress != nil {
		req.GeocodedAddress = patch.GeocodedAddress
	}
	req.UpdatedAt = now
	s.publish("requests", realtime.ActionUpdate, req.ID, req)
	return req, nil
}

// Complete closes out the work with the actual cost and notes.
func (s *RequestService) Complete(ctx context.Context, actor Actor, id string, actualCostCents *int64, notes string) (*repository.Request, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	if actualCostCents != nil && *actualCostCents < 0 {
		return nil, invalid("actual_cost", "must not be negative")
	}
	req, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Transition(lifecycle.RequestStatus(req.Status), lifecycle.StatusCompleted); err != nil {
		return nil, err
	}
	var notesPtr *string
	if n := strings.TrimSpace(notes); n != "" {
		notesPtr = &n
	}
	now := s.now()
	if err := s.requests.Complete(ctx, id, req.Status, actualCostCents, notesPtr, now); err != nil {
		return nil, fmt.Errorf("complete request: %w", conflictIfNoRows(err, "request"))
	}
	req.Status = string(lifecycle.StatusCompleted)
	req.ActualCostCents = actualCostCents
	req.CompletionNotes = notesPtr
	req.CompletedAt = &now
	req.UpdatedAt = now
	s.log.Info("request completed", zap.String("request_id", id))
	s.afterStatusChange(ctx, req)
	return req, nil
}

// AddNote appends a note from the owner or an admin.
func (s *RequestService) AddNote(ctx context.Context, actor Actor, id, text string) (*repository.Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("note", "must not be empty")
	}
	req, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	role := repository.RoleCustomer
	if actor.IsAdmin() {
		role = repository.RoleAdmin
	}
	n := repository.Note{
		ID:         uuid.NewString(),
		RequestID:  id,
		UserID:     actor.UserID,
		AuthorRole: role,
		Note:       text,
		CreatedAt:  s.now(),
	}
	if err := s.notes.Insert(ctx, n); err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}
	s.publish("request_notes", realtime.ActionInsert, n.ID, req)
	return &n, nil
}

// StatusCounts feeds the board header and the requests_by_status gauge.
func (s *RequestService) StatusCounts(ctx context.Context) (map[string]int, error) {
	counts, err := s.requests.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}
	s.metrics.SetStatusCounts(counts)
	return counts, nil
}
