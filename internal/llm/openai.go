package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider calls the Chat Completions API in JSON mode.
type OpenAIProvider struct {
	apiKey      string
	model       string
	triageModel string
	opts        []option.RequestOption
	prompts     *Prompts

	mu     sync.Mutex
	client *openai.Client
}

// NewOpenAIProvider builds a provider. Empty models fall back to the prompt
// defaults. Extra options (base URL, HTTP client) are passed to the SDK.
func NewOpenAIProvider(apiKey, model, triageModel string, prompts *Prompts, opts ...option.RequestOption) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:      strings.TrimSpace(apiKey),
		model:       strings.TrimSpace(model),
		triageModel: strings.TrimSpace(triageModel),
		opts:        opts,
		prompts:     prompts,
	}
}

func (p *OpenAIProvider) ensureClient() error {
	if p.apiKey == "" {
		return ErrNoAPIKey
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		opts := append([]option.RequestOption{option.WithAPIKey(p.apiKey), option.WithMaxRetries(1)}, p.opts...)
		c := openai.NewClient(opts...)
		p.client = &c
	}
	return nil
}

func (p *OpenAIProvider) FollowUp(ctx context.Context, req FollowUpRequest) (FollowUpResponse, error) {
	var out FollowUpResponse
	if err := p.complete(ctx, PromptFollowUp, p.model, req, &out); err != nil {
		return FollowUpResponse{}, err
	}
	out.Normalize()
	return out, nil
}

func (p *OpenAIProvider) Triage(ctx context.Context, req TriageRequest) (TriageResponse, error) {
	var out TriageResponse
	if err := p.complete(ctx, PromptTriage, p.triageModel, req, &out); err != nil {
		return TriageResponse{}, err
	}
	out.Normalize()
	return out, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, name, model string, data, out interface{}) error {
	if err := p.ensureClient(); err != nil {
		return err
	}
	prompt, err := p.prompts.Get(name)
	if err != nil {
		return err
	}
	system, user, err := prompt.Render(data)
	if err != nil {
		return err
	}
	if model == "" {
		model = prompt.Model
	}
	timeout := prompt.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(prompt.Temperature),
	}
	if prompt.MaxTokens > 0 {
		params.MaxTokens = openai.Int(prompt.MaxTokens)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openai: %s: %w", name, err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("openai: empty response")
	}
	if err := decodeJSON(resp.Choices[0].Message.Content, out); err != nil {
		return fmt.Errorf("openai: parse %s: %w", name, err)
	}
	return nil
}
