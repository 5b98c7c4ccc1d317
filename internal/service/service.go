// Package service implements request intake, quoting, invoicing and the
// admin operations on top of the repositories.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/database"
	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/geo"
	"github.com/jask/aquaflow/internal/llm"
	"github.com/jask/aquaflow/internal/metrics"
	"github.com/jask/aquaflow/internal/notify"
	"github.com/jask/aquaflow/internal/pricing"
	"github.com/jask/aquaflow/internal/realtime"
	"github.com/jask/aquaflow/internal/storage"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
)

// ValidationError reports a bad input field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// Actor is the authenticated caller.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == repository.RoleAdmin }

func (a Actor) requireAdmin() error {
	if !a.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

// Deps are the collaborators shared by every service. Store, Notifier, Hub,
// Geo, LLM and Metrics are optional.
type Deps struct {
	DB       *sql.DB
	Store    *storage.FS
	Notifier *notify.Notifier
	Hub      realtime.Publisher
	Geo      geo.Geocoder
	LLM      llm.Provider
	Tax      pricing.TaxPolicy
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Now      func() time.Time

	// FollowUpAfter is the quiet period before a quoted request is chased.
	FollowUpAfter time.Duration
	Production    bool
}

// Services bundles every service built over one set of Deps.
type Services struct {
	Requests    *RequestService
	Quotes      *QuoteService
	Attachments *AttachmentService
	Triage      *TriageService
	FollowUps   *FollowUpService
	Invoices    *InvoiceService
	Profiles    *ProfileService
	Maintenance *MaintenanceService
}

func New(d Deps) *Services {
	b := newBase(d)
	return &Services{
		Requests:    &RequestService{base: b},
		Quotes:      &QuoteService{base: b},
		Attachments: &AttachmentService{base: b},
		Triage:      &TriageService{base: b},
		FollowUps:   &FollowUpService{base: b, after: d.FollowUpAfter},
		Invoices:    &InvoiceService{base: b},
		Profiles:    &ProfileService{base: b},
		Maintenance: &MaintenanceService{base: b, production: d.Production},
	}
}

type base struct {
	db          *sql.DB
	requests    *repository.RequestRepo
	quotes      *repository.QuoteRepo
	notes       *repository.NoteRepo
	attachments *repository.AttachmentRepo
	invoices    *repository.InvoiceRepo
	profiles    *repository.ProfileRepo

	store    *storage.FS
	notifier *notify.Notifier
	hub      realtime.Publisher
	geo      geo.Geocoder
	llm      llm.Provider
	tax      pricing.TaxPolicy
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func newBase(d Deps) *base {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := d.Now
	if now == nil {
		now = database.Now
	}
	tax := d.Tax
	if tax == (pricing.TaxPolicy{}) {
		tax = pricing.DefaultPolicy()
	}
	return &base{
		db:          d.DB,
		requests:    repository.NewRequestRepo(d.DB),
		quotes:      repository.NewQuoteRepo(d.DB),
		notes:       repository.NewNoteRepo(d.DB),
		attachments: repository.NewAttachmentRepo(d.DB),
		invoices:    repository.NewInvoiceRepo(d.DB),
		profiles:    repository.NewProfileRepo(d.DB),
		store:       d.Store,
		notifier:    d.Notifier,
		hub:         d.Hub,
		geo:         d.Geo,
		llm:         d.LLM,
		tax:         tax,
		metrics:     d.Metrics,
		log:         log.Named("service"),
		now:         now,
	}
}

// loadVisible returns the request when the actor owns it or is an admin.
// Requests the actor may not see are reported as missing.
func (b *base) loadVisible(ctx context.Context, actor Actor, id string) (*repository.Request, error) {
	req, err := b.requests.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil || (!actor.IsAdmin() && req.UserID != actor.UserID) {
		return nil, ErrNotFound
	}
	return req, nil
}

func (b *base) loadRequest(ctx context.Context, id string) (*repository.Request, error) {
	req, err := b.requests.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}
	return req, nil
}

// withProfile attaches the owner's profile so notifications can address it.
func (b *base) withProfile(ctx context.Context, req *repository.Request) {
	if req.Profile != nil {
		return
	}
	p, err := b.profiles.Get(ctx, req.UserID)
	if err != nil {
		b.log.Warn("load profile", zap.String("user_id", req.UserID), zap.Error(err))
		return
	}
	req.Profile = p
}

func (b *base) publish(table, action, id string, req *repository.Request) {
	if b.hub == nil {
		return
	}
	ev := realtime.Event{Table: table, Action: action, ID: id}
	if req != nil {
		ev.RequestID = req.ID
		ev.OwnerID = req.UserID
	}
	b.hub.Publish(ev)
}

func (b *base) notify(ctx context.Context, name string, fn func(context.Context, *notify.Notifier) error) {
	if b.notifier == nil {
		return
	}
	n := b.notifier
	n.Go(ctx, name, func(ctx context.Context) error { return fn(ctx, n) })
}

func (b *base) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return database.WithTx(ctx, b.db, fn)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// conflictIfNoRows reports a conditional update that matched nothing: the
// row moved on after it was read.
func conflictIfNoRows(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s changed concurrently", ErrConflict, what)
	}
	return err
}

func notFoundIfNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
