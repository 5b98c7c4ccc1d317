// Package notify sends customer emails and admin text messages when
// requests change.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/metrics"
	"github.com/jask/aquaflow/internal/pricing"
)

const (
	auditSent   = "sent"
	auditError  = "error"
	auditFailed = "failed"

	asyncTimeout = 30 * time.Second
)

// Options wires a Notifier. Nil Mailer/SMS fall back to the log senders.
type Options struct {
	Mailer       Mailer
	SMS          SMSSender
	SMSEnabled   bool
	DefaultAdmin string
	BaseURL      string
	Audit        *repository.EmailAuditRepo
	Profiles     *repository.ProfileRepo
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

type Notifier struct {
	mailer       Mailer
	sms          SMSSender
	smsDryRun    SMSSender
	smsEnabled   bool
	defaultAdmin string
	baseURL      string
	audit        *repository.EmailAuditRepo
	profiles     *repository.ProfileRepo
	metrics      *metrics.Metrics
	log          *zap.Logger
	now          func() time.Time

	wg sync.WaitGroup
}

func New(o Options) *Notifier {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	n := &Notifier{
		mailer:       o.Mailer,
		sms:          o.SMS,
		smsEnabled:   o.SMSEnabled,
		defaultAdmin: o.DefaultAdmin,
		baseURL:      strings.TrimRight(o.BaseURL, "/"),
		audit:        o.Audit,
		profiles:     o.Profiles,
		metrics:      o.Metrics,
		log:          log.Named("notify"),
		now:          func() time.Time { return time.Now().UTC() },
	}
	if n.mailer == nil {
		n.mailer = NewLogMailer(n.log)
	}
	n.smsDryRun = NewLogSMS(n.log)
	if n.sms == nil {
		n.sms = n.smsDryRun
	}
	return n
}

// Go runs fn in the background with a context detached from ctx's
// cancellation. Errors are logged only.
func (n *Notifier) Go(ctx context.Context, name string, fn func(context.Context) error) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), asyncTimeout)
		defer cancel()
		if err := fn(runCtx); err != nil {
			n.log.Warn("notification failed", zap.String("kind", name), zap.Error(err))
		}
	}()
}

// Wait blocks until every notification started with Go has finished.
func (n *Notifier) Wait() { n.wg.Wait() }

// RequestLink is the portal deep link for a request.
func (n *Notifier) RequestLink(requestID string) string {
	return fmt.Sprintf("%s/#/requests/%s", n.baseURL, requestID)
}

func (n *Notifier) RequestSubmitted(ctx context.Context, req repository.Request) error {
	return n.emailCustomer(ctx, req, SubjectSubmitted, "submitted", emailData{
		Category: humanCategory(req.ProblemCategory),
	})
}

func (n *Notifier) StatusUpdated(ctx context.Context, req repository.Request) error {
	return n.emailCustomer(ctx, req, SubjectStatus, "status", emailData{Status: req.Status})
}

func (n *Notifier) QuoteAdded(ctx context.Context, req repository.Request, q repository.Quote) error {
	return n.emailCustomer(ctx, req, SubjectQuote, "quote", emailData{Amount: pricing.FormatCents(q.TotalCents)})
}

func (n *Notifier) QuoteFollowUp(ctx context.Context, req repository.Request) error {
	name := "there"
	if req.Profile != nil && strings.TrimSpace(req.Profile.Name) != "" {
		name = req.Profile.Name
	} else if strings.TrimSpace(req.CustomerName) != "" {
		name = req.CustomerName
	}
	subject := fmt.Sprintf(subjectFollowUp, humanCategory(req.ProblemCategory))
	return n.emailCustomer(ctx, req, subject, "followup", emailData{Name: name})
}

// AdminNewRequest texts every admin about a fresh submission.
func (n *Notifier) AdminNewRequest(ctx context.Context, req repository.Request) error {
	body := fmt.Sprintf("New Quote Request!\nID: %s\nType: %s\nFrom: %s\nAddress: %s\nLink: %s",
		req.ID, humanCategory(req.ProblemCategory), req.CustomerName, req.ServiceAddress, n.RequestLink(req.ID))
	return n.textAdmins(ctx, body)
}

// AdminQuoteAccepted texts every admin that a customer accepted a quote.
func (n *Notifier) AdminQuoteAccepted(ctx context.Context, req repository.Request, q repository.Quote) error {
	customer := req.CustomerName
	if req.Profile != nil && req.Profile.Name != "" {
		customer = req.Profile.Name
	}
	body := fmt.Sprintf("Quote ACCEPTED!\nID: %s\nAmount: %s\nFor: %s\nCustomer: %s\nLink: %s",
		req.ID, pricing.FormatCents(q.TotalCents), humanCategory(req.ProblemCategory), customer, n.RequestLink(req.ID))
	return n.textAdmins(ctx, body)
}

// RecipientEmail prefers the profile email and falls back to contact info
// when it parses as an address.
func RecipientEmail(req repository.Request) string {
	if req.Profile != nil && strings.TrimSpace(req.Profile.Email) != "" {
		return strings.TrimSpace(req.Profile.Email)
	}
	if addr, err := mail.ParseAddress(strings.TrimSpace(req.ContactInfo)); err == nil {
		return addr.Address
	}
	return ""
}

func (n *Notifier) emailCustomer(ctx context.Context, req repository.Request, subject, tmpl string, data emailData) error {
	to := RecipientEmail(req)
	if to == "" {
		n.log.Debug("no recipient email", zap.String("request_id", req.ID))
		return nil
	}
	data.RequestID = req.ID
	data.Link = n.RequestLink(req.ID)
	text, html, err := render(tmpl, data)
	if err != nil {
		return err
	}

	msgID, sendErr := n.mailer.Send(ctx, Email{To: to, Subject: subject, HTML: html, Text: text})
	n.metrics.Notification("email", sendErr)
	n.recordAudit(ctx, req.ID, to, subject, msgID, sendErr)
	if sendErr != nil {
		return fmt.Errorf("send %q: %w", tmpl, sendErr)
	}
	n.log.Info("email sent", zap.String("request_id", req.ID), zap.String("template", tmpl))
	return nil
}

func (n *Notifier) recordAudit(ctx context.Context, requestID, to, subject, msgID string, sendErr error) {
	if n.audit == nil {
		return
	}
	a := repository.EmailAudit{
		ID:        uuid.NewString(),
		RequestID: &requestID,
		Recipient: to,
		Subject:   subject,
		Status:    auditSent,
		CreatedAt: n.now(),
	}
	if msgID != "" {
		a.MessageID = &msgID
		a.ProviderResponse = fmt.Sprintf(`{"id":%q}`, msgID)
	}
	if sendErr != nil {
		var perr *ProviderError
		if errors.As(sendErr, &perr) {
			a.Status = auditError
			a.ProviderResponse = perr.Body
		} else {
			a.Status = auditFailed
			a.ProviderResponse = sendErr.Error()
		}
	}
	if err := n.audit.Insert(ctx, a); err != nil {
		n.log.Warn("email audit insert failed", zap.String("request_id", requestID), zap.Error(err))
	}
}

// AdminPhones returns the normalized, deduplicated admin numbers, or the
// configured default when no admin has one.
func (n *Notifier) AdminPhones(ctx context.Context) ([]string, error) {
	var raw []string
	if n.profiles != nil {
		admins, err := n.profiles.ListByRole(ctx, repository.RoleAdmin)
		if err != nil {
			return nil, fmt.Errorf("list admins: %w", err)
		}
		for _, a := range admins {
			raw = append(raw, a.Phone)
		}
	}
	phones := uniquePhones(raw)
	if len(phones) == 0 && n.defaultAdmin != "" {
		phones = uniquePhones([]string{n.defaultAdmin})
	}
	return phones, nil
}

// textAdmins fans body out to every admin phone. With SMS disabled the
// recipients are still resolved but only logged.
func (n *Notifier) textAdmins(ctx context.Context, body string) error {
	sender := n.sms
	if !n.smsEnabled {
		sender = n.smsDryRun
	}
	phones, err := n.AdminPhones(ctx)
	if err != nil {
		return err
	}
	if len(phones) == 0 {
		n.log.Warn("no admin phone numbers configured")
		return nil
	}

	var g errgroup.Group
	g.SetLimit(4)
	for _, phone := range phones {
		g.Go(func() error {
			err := sender.Send(ctx, phone, body)
			if !n.smsEnabled {
				return nil
			}
			n.metrics.Notification("sms", err)
			if err != nil {
				n.log.Warn("sms send failed", zap.Error(err))
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("admin sms: %w", err)
	}
	if n.smsEnabled {
		n.log.Info("admin sms sent", zap.Int("recipients", len(phones)))
	}
	return nil
}
