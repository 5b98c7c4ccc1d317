package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/database/dbtest"
	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/geo"
	"github.com/jask/aquaflow/internal/llm"
	"github.com/jask/aquaflow/internal/notify"
	"github.com/jask/aquaflow/internal/realtime"
	"github.com/jask/aquaflow/internal/storage"
)

var (
	admin    = Actor{UserID: "admin-1", Role: repository.RoleAdmin}
	customer = Actor{UserID: "cust-1", Role: repository.RoleCustomer}
	stranger = Actor{UserID: "cust-2", Role: repository.RoleCustomer}
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Email
	fail bool
}

func (m *recordingMailer) Send(_ context.Context, e notify.Email) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", errors.New("smtp down")
	}
	m.sent = append(m.sent, e)
	return "id", nil
}

func (m *recordingMailer) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, e := range m.sent {
		out = append(out, e.Subject)
	}
	return out
}

type stubGeocoder struct {
	err error
}

func (g stubGeocoder) Geocode(_ context.Context, address string) (geo.Result, error) {
	if g.err != nil {
		return geo.Result{}, g.err
	}
	return geo.Result{Lat: 49.9, Lng: -119.5, FormattedAddress: address + ", Kelowna, BC"}, nil
}

type failingProvider struct{}

func (failingProvider) FollowUp(context.Context, llm.FollowUpRequest) (llm.FollowUpResponse, error) {
	return llm.FollowUpResponse{}, errors.New("model offline")
}

func (failingProvider) Triage(context.Context, llm.TriageRequest) (llm.TriageResponse, error) {
	return llm.TriageResponse{}, errors.New("model offline")
}

type harness struct {
	svc      *Services
	hub      *realtime.Hub
	mailer   *recordingMailer
	notifier *notify.Notifier
	store    *storage.FS
	now      time.Time
	deps     Deps
}

func newHarness(t *testing.T, tweak ...func(*Deps)) *harness {
	t.Helper()
	db := dbtest.Open(t)
	store, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		hub:    realtime.NewHub(256),
		mailer: &recordingMailer{},
		store:  store,
		now:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.notifier = notify.New(notify.Options{
		Mailer:   h.mailer,
		BaseURL:  "https://portal.example",
		Audit:    repository.NewEmailAuditRepo(db),
		Profiles: repository.NewProfileRepo(db),
	})
	// drain async sends before the database closes
	t.Cleanup(h.notifier.Wait)

	h.deps = Deps{
		DB:            db,
		Store:         store,
		Notifier:      h.notifier,
		Hub:           h.hub,
		LLM:           llm.NewHeuristicProvider(),
		Logger:        zap.NewNop(),
		Now:           func() time.Time { return h.now },
		FollowUpAfter: 72 * time.Hour,
	}
	for _, fn := range tweak {
		fn(&h.deps)
	}
	h.svc = New(h.deps)

	profiles := repository.NewProfileRepo(db)
	for _, p := range []repository.Profile{
		{UserID: admin.UserID, Name: "Admin", Email: "admin@aquaflow.example", Role: repository.RoleAdmin},
		{UserID: customer.UserID, Name: "Pat", Email: "pat@example.com", Role: repository.RoleCustomer},
	} {
		p.CreatedAt, p.UpdatedAt = h.now, h.now
		require.NoError(t, profiles.Upsert(context.Background(), p))
	}
	return h
}

func (h *harness) submit(t *testing.T, actor Actor, mutate ...func(*SubmitInput)) *repository.Request {
	t.Helper()
	in := SubmitInput{
		CustomerName:       "Pat Customer",
		ServiceAddress:     "12 Lakeshore Rd",
		ContactInfo:        "pat@example.com",
		ProblemCategory:    "leak_repair",
		PropertyType:       "Residential",
		ProblemDescription: "Kitchen sink drips constantly",
		PreferredTiming:    "this week",
		Answers:            []repository.Answer{{Question: "Where is the leak?", Answer: "Under the sink"}},
	}
	for _, fn := range mutate {
		fn(&in)
	}
	req, err := h.svc.Requests.Submit(context.Background(), actor, in)
	require.NoError(t, err)
	return req
}

func (h *harness) quote(t *testing.T, requestID string, cents int64) *repository.Quote {
	t.Helper()
	q, err := h.svc.Quotes.Create(context.Background(), admin, requestID, QuoteInput{Details: "Replace trap", AmountCents: cents})
	require.NoError(t, err)
	return q
}

func (h *harness) status(t *testing.T, id string) string {
	t.Helper()
	req, err := h.svc.Requests.Get(context.Background(), admin, id)
	require.NoError(t, err)
	return req.Status
}

func (h *harness) advance(t *testing.T, id string, statuses ...string) {
	t.Helper()
	for _, st := range statuses {
		_, err := h.svc.Requests.UpdateStatus(context.Background(), admin, id, st, nil)
		require.NoError(t, err)
	}
}

// newInterleavedHarness returns a harness plus an arm func. An armed func
// runs once inside the next clock read, which services take after their
// checks and before their transaction, so it stands in for a competing
// writer that lands in that window.
func newInterleavedHarness(t *testing.T) (*harness, func(func())) {
	t.Helper()
	var next func()
	h := newHarness(t, func(d *Deps) {
		clock := d.Now
		d.Now = func() time.Time {
			if fn := next; fn != nil {
				next = nil
				fn()
			}
			return clock()
		}
	})
	return h, func(fn func()) { next = fn }
}
