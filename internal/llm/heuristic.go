package llm

import (
	"context"
	"fmt"
	"strings"
)

// HeuristicProvider answers without a network call. It is used when no API
// key is configured and keeps the intake and triage flows usable offline.
type HeuristicProvider struct{}

func NewHeuristicProvider() *HeuristicProvider { return &HeuristicProvider{} }

var skillKeywords = []struct {
	keywords []string
	skill    string
}{
	{[]string{"gas"}, "gas fitting"},
	{[]string{"sewer", "main line", "excavat"}, "excavation"},
	{[]string{"water heater", "tank", "tankless"}, "water heater installation"},
	{[]string{"drain", "clog", "backup"}, "drain cleaning"},
	{[]string{"solder", "copper"}, "soldering"},
	{[]string{"pex", "repipe"}, "PEX repiping"},
	{[]string{"camera", "inspect"}, "camera inspection"},
}

// FollowUp asks about location when a leak is described without one, and a
// general clarifier otherwise.
func (h *HeuristicProvider) FollowUp(ctx context.Context, req FollowUpRequest) (FollowUpResponse, error) {
	if err := ctx.Err(); err != nil {
		return FollowUpResponse{}, err
	}
	text := strings.ToLower(req.Description)
	for _, qa := range req.Answers {
		text += " " + strings.ToLower(qa.Answer)
	}

	var questions []string
	if containsAny(text, "leak", "drip", "water") && !containsAny(text, "kitchen", "bathroom", "basement", "ceiling", "wall", "sink", "outside") {
		questions = append(questions, "Where in the property is the water coming from?")
	}
	if containsAny(text, "intermittent", "sometimes", "strange", "weird", "noise") {
		questions = append(questions, "When does the problem happen, and how long does it last each time?")
	}
	if len(questions) == 0 && len(strings.Fields(text)) < 8 {
		questions = append(questions, "Can you describe the problem in a little more detail, including which fixtures are affected?")
	}
	out := FollowUpResponse{RequiresFollowUp: len(questions) > 0, Questions: questions}
	out.Normalize()
	return out, nil
}

// Triage derives priority from urgency and profitability from complexity.
func (h *HeuristicProvider) Triage(ctx context.Context, req TriageRequest) (TriageResponse, error) {
	if err := ctx.Err(); err != nil {
		return TriageResponse{}, err
	}
	text := strings.ToLower(req.Description + " " + req.AdditionalNotes)

	profit := req.ComplexityScore
	if req.IsEmergency {
		profit++
	}
	if strings.EqualFold(req.PropertyType, "Commercial") {
		profit++
	}

	level := "apprentice"
	switch {
	case req.ComplexityScore >= 9:
		level = "master"
	case req.ComplexityScore >= 6:
		level = "journeyman"
	}
	var skills []string
	for _, sk := range skillKeywords {
		if containsAny(text+" "+strings.ReplaceAll(req.Category, "_", " "), sk.keywords...) {
			skills = append(skills, sk.skill)
		}
	}
	if skills == nil {
		skills = []string{}
	}

	out := TriageResponse{
		Summary:                  summarize(req),
		PriorityScore:            req.UrgencyScore,
		PriorityExplanation:      fmt.Sprintf("Urgency assessed at %d/10 from the emergency flag and requested timing.", req.UrgencyScore),
		ProfitabilityScore:       profit,
		ProfitabilityExplanation: fmt.Sprintf("Job complexity %d/10 indicates the expected size of the work.", req.ComplexityScore),
		RequiredExpertise: Expertise{
			SkillLevel:        level,
			SpecializedSkills: skills,
			Reasoning:         fmt.Sprintf("Complexity %d/10 for a %s job.", req.ComplexityScore, strings.ReplaceAll(req.Category, "_", " ")),
		},
	}
	out.Normalize()
	return out, nil
}

func summarize(req TriageRequest) string {
	desc := strings.TrimSpace(req.Description)
	if i := strings.IndexAny(desc, ".!?\n"); i > 0 {
		desc = desc[:i]
	}
	if len(desc) > 140 {
		desc = desc[:140] + "..."
	}
	prefix := strings.ReplaceAll(req.Category, "_", " ")
	if req.IsEmergency {
		prefix = "EMERGENCY " + prefix
	}
	if desc == "" {
		return prefix
	}
	return prefix + ": " + desc
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
