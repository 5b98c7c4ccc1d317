// Package api serves the customer portal and admin dashboard over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/metrics"
	"github.com/jask/aquaflow/internal/ratelimit"
	"github.com/jask/aquaflow/internal/realtime"
	"github.com/jask/aquaflow/internal/service"
)

const DefaultAddr = ":8080"

// Options wires the server. Metrics and Limiter may be nil.
type Options struct {
	Addr        string
	Services    *service.Services
	Hub         *realtime.Hub
	Metrics     *metrics.Metrics
	Limiter     *ratelimit.Limiter
	Logger      *zap.Logger
	JWTSecret   string
	CORSOrigins []string
	// AdminIDs are always treated as admins regardless of their profile.
	AdminIDs []string
}

type Server struct {
	httpServer *http.Server
	svc        *service.Services
	hub        *realtime.Hub
	metrics    *metrics.Metrics
	limiter    *ratelimit.Limiter
	log        *zap.Logger
	secret     []byte
	origins    map[string]bool
	admins     map[string]bool
	keepalive  time.Duration

	// streams ends SSE and WebSocket handlers when the server shuts down.
	streams      context.Context
	closeStreams context.CancelFunc
}

func New(o Options) *Server {
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		svc:       o.Services,
		hub:       o.Hub,
		metrics:   o.Metrics,
		limiter:   o.Limiter,
		log:       log.Named("api"),
		secret:    []byte(o.JWTSecret),
		origins:   make(map[string]bool, len(o.CORSOrigins)),
		admins:    make(map[string]bool, len(o.AdminIDs)),
		keepalive: 20 * time.Second,
	}
	s.streams, s.closeStreams = context.WithCancel(context.Background())
	for _, origin := range o.CORSOrigins {
		s.origins[origin] = true
	}
	for _, id := range o.AdminIDs {
		s.admins[id] = true
	}
	if len(s.secret) == 0 {
		s.log.Warn("jwt secret is not set; authenticated routes will reject every request")
	}
	s.httpServer = &http.Server{
		Addr:              o.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpServer.RegisterOnShutdown(s.closeStreams)
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(s.observe)
	r.Use(s.cors)

	r.Get("/api/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Get("/api/intake/categories", s.handleCategories)
	r.With(s.rateLimit).Post("/api/requests/gpt-follow-up", s.handleFollowUpQuestions)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/api/requests/submit", s.handleSubmit)
		r.Post("/api/requests/attachments", s.handleUpload)
		r.Get("/api/requests", s.handleListRequests)
		r.Route("/api/requests/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRequest)
			r.Patch("/", s.handleUpdateDetails)
			r.Patch("/status", s.handleUpdateStatus)
			r.Patch("/viewed", s.handleMarkViewed)
			r.Patch("/complete", s.handleComplete)
			r.Post("/notes", s.handleAddNote)
			r.Post("/quotes", s.handleCreateQuote)
			r.Put("/quotes/{quoteID}", s.handleUpdateQuote)
			r.Delete("/quotes/{quoteID}", s.handleDeleteQuote)
			r.Post("/quotes/{quoteID}/accept", s.handleAcceptQuote)
		})
		r.Get("/api/storage-object/{attachmentID}", s.handleDownload)

		r.Post("/api/triage/{requestID}", s.handleTriage)
		r.Post("/api/follow-up/send", s.handleFollowUpSweep)
		r.Post("/api/admin/cleanup-test-data", s.handleCleanup)

		r.Post("/api/invoices", s.handleCreateInvoice)
		r.Get("/api/invoices", s.handleListInvoices)
		r.Get("/api/invoices/{id}", s.handleGetInvoice)
		r.Put("/api/invoices/{id}", s.handleUpdateInvoice)
		r.Patch("/api/invoices/{id}/paid", s.handleMarkPaid)

		r.Get("/api/profile", s.handleGetProfile)
		r.Post("/api/profile", s.handleCreateProfile)
		r.Put("/api/profile", s.handleUpdateProfile)

		r.Get("/api/events", s.handleEvents)
		r.Get("/api/ws", s.handleWebSocket)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorStatus(w, http.StatusNotFound, "route not found", nil)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down within five seconds.
func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
