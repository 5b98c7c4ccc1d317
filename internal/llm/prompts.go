package llm

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

const (
	PromptFollowUp = "follow_up"
	PromptTriage   = "analyze_request"
)

// Prompt is one named entry of prompts.yaml.
type Prompt struct {
	Model       string        `yaml:"model"`
	MaxTokens   int64         `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	System      string        `yaml:"system"`
	User        string        `yaml:"user"`

	system *template.Template
	user   *template.Template
}

// Prompts is the parsed template set.
type Prompts struct {
	byName map[string]*Prompt
}

var (
	defaultPromptsOnce sync.Once
	defaultPrompts     *Prompts
	defaultPromptsErr  error
)

// DefaultPrompts parses the embedded prompts.yaml once.
func DefaultPrompts() (*Prompts, error) {
	defaultPromptsOnce.Do(func() {
		defaultPrompts, defaultPromptsErr = ParsePrompts(promptsYAML)
	})
	return defaultPrompts, defaultPromptsErr
}

// ParsePrompts decodes a YAML document of named prompts and compiles their templates.
func ParsePrompts(data []byte) (*Prompts, error) {
	raw := map[string]*Prompt{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	funcs := template.FuncMap{"inc": func(i int) int { return i + 1 }}
	for name, p := range raw {
		var err error
		if p.system, err = template.New(name + ".system").Funcs(funcs).Parse(p.System); err != nil {
			return nil, fmt.Errorf("prompt %s system: %w", name, err)
		}
		if p.user, err = template.New(name + ".user").Funcs(funcs).Parse(p.User); err != nil {
			return nil, fmt.Errorf("prompt %s user: %w", name, err)
		}
	}
	return &Prompts{byName: raw}, nil
}

// Get returns the named prompt.
func (ps *Prompts) Get(name string) (*Prompt, error) {
	p, ok := ps.byName[name]
	if !ok {
		return nil, fmt.Errorf("prompt %q not defined", name)
	}
	return p, nil
}

// Render executes both templates against data.
func (p *Prompt) Render(data interface{}) (system, user string, err error) {
	var sb, ub bytes.Buffer
	if err := p.system.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render system: %w", err)
	}
	if err := p.user.Execute(&ub, data); err != nil {
		return "", "", fmt.Errorf("render user: %w", err)
	}
	return strings.TrimSpace(sb.String()), strings.TrimSpace(ub.String()), nil
}
