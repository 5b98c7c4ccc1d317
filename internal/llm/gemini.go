package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiProvider calls Gemini through the genai SDK with a JSON response type.
type GeminiProvider struct {
	apiKey  string
	model   string
	baseURL string
	prompts *Prompts

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiProvider(apiKey, model string, prompts *Prompts) *GeminiProvider {
	return &GeminiProvider{apiKey: strings.TrimSpace(apiKey), model: strings.TrimSpace(model), prompts: prompts}
}

// WithBaseURL points the client at another endpoint.
func (g *GeminiProvider) WithBaseURL(u string) *GeminiProvider {
	g.baseURL = u
	g.client = nil
	return g
}

func (g *GeminiProvider) ensureClient(ctx context.Context) error {
	if g.apiKey == "" {
		return ErrNoAPIKey
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return nil
	}
	cfg := &genai.ClientConfig{APIKey: g.apiKey, Backend: genai.BackendGeminiAPI}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("gemini: client: %w", err)
	}
	g.client = c
	return nil
}

func (g *GeminiProvider) FollowUp(ctx context.Context, req FollowUpRequest) (FollowUpResponse, error) {
	var out FollowUpResponse
	if err := g.generate(ctx, PromptFollowUp, req, &out); err != nil {
		return FollowUpResponse{}, err
	}
	out.Normalize()
	return out, nil
}

func (g *GeminiProvider) Triage(ctx context.Context, req TriageRequest) (TriageResponse, error) {
	var out TriageResponse
	if err := g.generate(ctx, PromptTriage, req, &out); err != nil {
		return TriageResponse{}, err
	}
	out.Normalize()
	return out, nil
}

func (g *GeminiProvider) generate(ctx context.Context, name string, data, out interface{}) error {
	if err := g.ensureClient(ctx); err != nil {
		return err
	}
	prompt, err := g.prompts.Get(name)
	if err != nil {
		return err
	}
	system, user, err := prompt.Render(data)
	if err != nil {
		return err
	}
	timeout := prompt.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model := g.model
	if model == "" {
		model = defaultGeminiModel
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr(float32(prompt.Temperature)),
	}
	if prompt.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(prompt.MaxTokens)
	}
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(user), cfg)
	if err != nil {
		return fmt.Errorf("gemini: %s: %w", name, err)
	}
	text := resp.Text()
	if text == "" {
		return errors.New("gemini: empty response")
	}
	if err := decodeJSON(text, out); err != nil {
		return fmt.Errorf("gemini: parse %s: %w", name, err)
	}
	return nil
}
