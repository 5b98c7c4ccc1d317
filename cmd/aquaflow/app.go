package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/config"
	"github.com/jask/aquaflow/internal/database"
	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/geo"
	"github.com/jask/aquaflow/internal/llm"
	"github.com/jask/aquaflow/internal/metrics"
	"github.com/jask/aquaflow/internal/notify"
	"github.com/jask/aquaflow/internal/pricing"
	"github.com/jask/aquaflow/internal/realtime"
	"github.com/jask/aquaflow/internal/secrets"
	"github.com/jask/aquaflow/internal/service"
	"github.com/jask/aquaflow/internal/storage"
)

// app is everything a command needs once the database is open.
type app struct {
	db       *sql.DB
	hub      *realtime.Hub
	metrics  *metrics.Metrics
	notifier *notify.Notifier
	svc      *service.Services
}

func openDB(ctx context.Context, c config.Config) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(c.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(c.Database.Path); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(c.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.SeedDefaults(ctx, db, c.Admins.UserIDs); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}
	return db, nil
}

func newApp(ctx context.Context, c config.Config, log *zap.Logger) (*app, error) {
	db, err := openDB(ctx, c)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewFS(c.Server.StorageDir)
	if err != nil {
		db.Close()
		return nil, err
	}
	keys := openKeyStore(log)

	a := &app{
		db:      db,
		hub:     realtime.NewHub(1024),
		metrics: metrics.New(),
	}
	a.notifier = notify.New(notify.Options{
		Mailer:       mailer(c, keys, log),
		SMS:          smsSender(c, keys, log),
		SMSEnabled:   c.Notify.SMS.Enabled,
		DefaultAdmin: c.Notify.SMS.DefaultAdmin,
		BaseURL:      c.Server.BaseURL,
		Audit:        repository.NewEmailAuditRepo(db),
		Profiles:     repository.NewProfileRepo(db),
		Metrics:      a.metrics,
		Logger:       log,
	})

	var geocoder geo.Geocoder
	if k := resolveKey(keys, "google_maps", "GOOGLE_MAPS_API_KEY", c.Geo.APIKey); k != "" {
		geocoder = geo.NewGoogleGeocoder(k)
	}
	provider, err := llmProvider(c, keys, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	a.svc = service.New(service.Deps{
		DB:       db,
		Store:    store,
		Notifier: a.notifier,
		Hub:      a.hub,
		Geo:      geocoder,
		LLM:      provider,
		Tax: pricing.TaxPolicy{
			GST:        c.Tax.GST,
			PST:        c.Tax.PST,
			PSTOnLabor: c.Tax.PSTOnLabor,
		},
		Metrics:       a.metrics,
		Logger:        log,
		FollowUpAfter: c.FollowUp.After,
		Production:    c.Server.Production,
	})
	return a, nil
}

// Close waits for queued notifications before closing the database.
func (a *app) Close() {
	a.notifier.Wait()
	_ = a.db.Close()
}

func openKeyStore(log *zap.Logger) *secrets.Store {
	s, err := secrets.Default()
	if err != nil {
		log.Debug("key store unavailable", zap.Error(err))
		return nil
	}
	return s
}

// resolveKey prefers the environment, then the key store, then config.
func resolveKey(keys *secrets.Store, provider, env, fromConfig string) string {
	if env != "" {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	if keys != nil {
		if k, err := keys.Get(provider); err == nil {
			return k
		}
	}
	return strings.TrimSpace(fromConfig)
}

func llmProvider(c config.Config, keys *secrets.Store, log *zap.Logger) (llm.Provider, error) {
	name := strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if name == "heuristic" {
		return llm.NewHeuristicProvider(), nil
	}
	env := strings.TrimSpace(c.LLM.APIKeyEnv)
	if env == "" {
		env = strings.ToUpper(name) + "_API_KEY"
	}
	key := resolveKey(keys, name, env, c.LLM.APIKey)
	if key == "" {
		log.Warn("no llm api key configured; using heuristic provider", zap.String("provider", name))
		return llm.NewHeuristicProvider(), nil
	}
	prompts, err := llm.DefaultPrompts()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	switch name {
	case "openai":
		return llm.NewOpenAIProvider(key, c.LLM.Model, c.LLM.TriageModel, prompts), nil
	case "gemini":
		return llm.NewGeminiProvider(key, c.LLM.Model, prompts), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
}

func mailer(c config.Config, keys *secrets.Store, log *zap.Logger) notify.Mailer {
	if !c.Notify.Email.Enabled {
		return notify.NewLogMailer(log)
	}
	key := resolveKey(keys, "resend", "RESEND_API_KEY", c.Notify.Email.APIKey)
	if key == "" {
		log.Warn("email enabled without a resend key; logging emails instead")
		return notify.NewLogMailer(log)
	}
	return notify.NewResendMailer(key, c.Notify.Email.From)
}

func smsSender(c config.Config, keys *secrets.Store, log *zap.Logger) notify.SMSSender {
	if !c.Notify.SMS.Enabled {
		return notify.NewLogSMS(log)
	}
	token := resolveKey(keys, "twilio", "TWILIO_AUTH_TOKEN", c.Notify.SMS.AuthToken)
	if c.Notify.SMS.AccountSID == "" || token == "" {
		log.Warn("sms enabled without twilio credentials; logging texts instead")
		return notify.NewLogSMS(log)
	}
	return notify.NewTwilioSender(c.Notify.SMS.AccountSID, token, c.Notify.SMS.From)
}
