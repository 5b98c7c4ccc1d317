package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const resendEndpoint = "https://api.resend.com/emails"

// Email is one outbound message. HTML is required; Text is the plain fallback.
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers an email and returns the provider message ID.
type Mailer interface {
	Send(ctx context.Context, e Email) (string, error)
}

// ProviderError is a non-2xx reply from an outbound provider.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.Status, e.Body)
}

// ResendMailer posts to the Resend email API.
type ResendMailer struct {
	apiKey   string
	from     string
	endpoint string
	client   *http.Client
}

type ResendOption func(*ResendMailer)

func WithResendEndpoint(u string) ResendOption {
	return func(m *ResendMailer) { m.endpoint = u }
}

func WithResendClient(c *http.Client) ResendOption {
	return func(m *ResendMailer) { m.client = c }
}

func NewResendMailer(apiKey, from string, opts ...ResendOption) *ResendMailer {
	m := &ResendMailer{
		apiKey:   apiKey,
		from:     from,
		endpoint: resendEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

func (m *ResendMailer) Send(ctx context.Context, e Email) (string, error) {
	if m.apiKey == "" {
		return "", fmt.Errorf("resend: api key not configured")
	}
	body, err := json.Marshal(resendPayload{
		From:    m.from,
		To:      []string{e.To},
		Subject: e.Subject,
		HTML:    e.HTML,
		Text:    e.Text,
	})
	if err != nil {
		return "", fmt.Errorf("resend: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("resend: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resend: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return "", &ProviderError{Provider: "resend", Status: resp.StatusCode, Body: string(raw)}
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("resend: decode: %w", err)
	}
	return out.ID, nil
}

// LogMailer records sends in the log instead of delivering them.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, e Email) (string, error) {
	m.log.Info("email disabled, not sent", zap.String("subject", e.Subject))
	return "", nil
}
