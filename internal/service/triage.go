package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/llm"
	"github.com/jask/aquaflow/internal/realtime"
)

// ErrTriageUnavailable wraps provider failures so the API can answer 502.
var ErrTriageUnavailable = errors.New("triage provider unavailable")

var baseComplexity = map[string]int{
	"leak_repair":          5,
	"water_heater":         7,
	"water_heater_install": 7,
	"pipe_installation":    7,
	"drain_cleaning":       3,
	"fixture_install":      3,
	"gas_line_services":    10,
	"perimeter_drains":     8,
	"main_line_repair":     10,
	"emergency_service":    8,
	"bathroom_reno":        9,
	"other":                5,
}

var timingUrgency = map[string]int{
	"today":     9,
	"tomorrow":  8,
	"this week": 7,
	"next week": 5,
	"asap":      8,
	"soon":      6,
	"flexible":  3,
}

// ComplexityScore rates the job 1..10 from its category, scaled up for
// awkward locations mentioned in the notes.
func ComplexityScore(category, locationNotes string) int {
	score, ok := baseComplexity[category]
	if !ok {
		score = 5
	}
	mult := 1.0
	loc := strings.ToLower(locationNotes)
	switch {
	case strings.Contains(loc, "basement") || strings.Contains(loc, "crawlspace"):
		mult = 1.2
	case strings.Contains(loc, "attic") || strings.Contains(loc, "under house"):
		mult = 1.3
	}
	return min(10, int(math.Round(float64(score)*mult)))
}

// UrgencyScore rates how soon the customer needs someone on site.
func UrgencyScore(emergency bool, timing, description string) int {
	if emergency {
		return 10
	}
	score, ok := timingUrgency[strings.ToLower(strings.TrimSpace(timing))]
	if !ok {
		score = 4
	}
	d := strings.ToLower(description)
	if strings.Contains(d, "flooding") || strings.Contains(d, "no water") || strings.Contains(d, "burst") {
		score += 2
	}
	return min(10, score)
}

type TriageService struct {
	*base
}

// Run scores the request, asks the model for a priority and profitability
// assessment and stores the result.
func (s *TriageService) Run(ctx context.Context, actor Actor, requestID string) (*repository.Request, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	if s.llm == nil {
		return nil, fmt.Errorf("%w: no provider configured", ErrTriageUnavailable)
	}
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	complexity := ComplexityScore(req.ProblemCategory, req.AdditionalNotes)
	urgency := UrgencyScore(req.IsEmergency, req.PreferredTiming, req.ProblemDescription)
	answers := make([]llm.QA, 0, len(req.Answers))
	for _, a := range req.Answers {
		answers = append(answers, llm.QA{Question: a.Question, Answer: a.Answer})
	}

	resp, err := s.llm.Triage(ctx, llm.TriageRequest{
		RequestID:       req.ID,
		Category:        req.ProblemCategory,
		IsEmergency:     req.IsEmergency,
		PropertyType:    req.PropertyType,
		PreferredTiming: req.PreferredTiming,
		ServiceAddress:  req.ServiceAddress,
		Description:     req.ProblemDescription,
		AdditionalNotes: req.AdditionalNotes,
		Answers:         answers,
		ComplexityScore: complexity,
		UrgencyScore:    urgency,
	})
	s.metrics.LLMCall("triage", err)
	if err != nil {
		s.log.Warn("triage failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrTriageUnavailable, err)
	}
	resp.Normalize()

	t := repository.Triage{
		Summary:                  resp.Summary,
		PriorityScore:            resp.PriorityScore,
		PriorityExplanation:      resp.PriorityExplanation,
		ProfitabilityScore:       resp.ProfitabilityScore,
		ProfitabilityExplanation: resp.ProfitabilityExplanation,
		RequiredExpertise: &repository.Expertise{
			SkillLevel:        resp.RequiredExpertise.SkillLevel,
			SpecializedSkills: resp.RequiredExpertise.SpecializedSkills,
			Reasoning:         resp.RequiredExpertise.Reasoning,
		},
		ComplexityScore: complexity,
		UrgencyScore:    urgency,
		TriagedAt:       s.now(),
	}
	if t.RequiredExpertise.SpecializedSkills == nil {
		t.RequiredExpertise.SpecializedSkills = []string{}
	}
	if err := s.requests.SaveTriage(ctx, requestID, t); err != nil {
		return nil, fmt.Errorf("save triage: %w", notFoundIfNoRows(err))
	}
	req.Triage = &t
	req.UpdatedAt = t.TriagedAt
	s.log.Info("request triaged", zap.String("request_id", requestID),
		zap.Int("priority", t.PriorityScore), zap.Int("profitability", t.ProfitabilityScore))
	s.publish("requests", realtime.ActionUpdate, req.ID, req)
	return req, nil
}
