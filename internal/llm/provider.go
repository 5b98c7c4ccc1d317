package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoAPIKey is returned by remote providers when no key is configured.
var ErrNoAPIKey = errors.New("llm: api key not configured")

// Provider defines the model calls used by services.
type Provider interface {
	FollowUp(ctx context.Context, req FollowUpRequest) (FollowUpResponse, error)
	Triage(ctx context.Context, req TriageRequest) (TriageResponse, error)
}

// QA is one intake question and answer.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type FollowUpRequest struct {
	Category    string `json:"category"`
	Description string `json:"problem_description"`
	Answers     []QA   `json:"clarifyingAnswers"`
}

type FollowUpResponse struct {
	RequiresFollowUp bool     `json:"requiresFollowUp"`
	Questions        []string `json:"questions"`
}

// TriageRequest carries the request fields plus the precomputed scores.
type TriageRequest struct {
	RequestID       string `json:"id"`
	Category        string `json:"problem_category"`
	IsEmergency     bool   `json:"is_emergency"`
	PropertyType    string `json:"property_type"`
	PreferredTiming string `json:"preferred_timing"`
	ServiceAddress  string `json:"service_address"`
	Description     string `json:"problem_description"`
	AdditionalNotes string `json:"additional_notes"`
	Answers         []QA   `json:"answers"`
	ComplexityScore int    `json:"complexity_score"`
	UrgencyScore    int    `json:"urgency_score"`
}

type Expertise struct {
	SkillLevel        string   `json:"skill_level"`
	SpecializedSkills []string `json:"specialized_skills"`
	Reasoning         string   `json:"reasoning"`
}

type TriageResponse struct {
	Summary                  string    `json:"triage_summary"`
	PriorityScore            int       `json:"priority_score"`
	PriorityExplanation      string    `json:"priority_explanation"`
	ProfitabilityScore       int       `json:"profitability_score"`
	ProfitabilityExplanation string    `json:"profitability_explanation"`
	RequiredExpertise        Expertise `json:"required_expertise"`
}

// Normalize clamps scores into 1..10 and the skill level into the known set.
func (r *TriageResponse) Normalize() {
	r.PriorityScore = clampScore(r.PriorityScore)
	r.ProfitabilityScore = clampScore(r.ProfitabilityScore)
	switch lvl := strings.ToLower(strings.TrimSpace(r.RequiredExpertise.SkillLevel)); lvl {
	case "apprentice", "journeyman", "master":
		r.RequiredExpertise.SkillLevel = lvl
	default:
		r.RequiredExpertise.SkillLevel = "journeyman"
	}
}

// Normalize drops blank questions and clears the list when no follow-up is required.
func (r *FollowUpResponse) Normalize() {
	if !r.RequiresFollowUp {
		r.Questions = []string{}
		return
	}
	out := make([]string, 0, len(r.Questions))
	for _, q := range r.Questions {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	r.Questions = out
}

// decodeJSON tolerates fenced code blocks and leading prose around the object.
func decodeJSON(text string, v interface{}) error {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

func clampScore(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}
