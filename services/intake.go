package services

import (
	"fmt"
	"strings"
	"time"
)

// IntakeAlternative is one option the user is weighing
type IntakeAlternative struct {
	Name        string `json:"name" validate:"required,min=2"`
	Description string `json:"description" validate:"required,min=5"`
}

// IntakeCriterion is an evaluation criterion with a 1-10 weight
type IntakeCriterion struct {
	Name   string `json:"name" validate:"required,min=2"`
	Weight int    `json:"weight" validate:"required,min=1,max=10"`
}

// IntakeForm is the strategic-decision intake submission a session is
// created from. The assembled system prompt and the raw form are both
// persisted on the session.
type IntakeForm struct {
	DecisionContext    string              `json:"decision_context" validate:"required,min=10"`
	Timeline           string              `json:"timeline" validate:"required,oneof=urgent 2-4-weeks 1-2-months flexible"`
	PersonalContext    string              `json:"personal_context,omitempty"`
	Alternatives       []IntakeAlternative `json:"alternatives" validate:"required,min=2,dive"`
	Criteria           []IntakeCriterion   `json:"criteria" validate:"required,min=1,dive"`
	MissingInformation string              `json:"missing_information" validate:"required,min=5"`
}

func formatTimeline(timeline string) string {
	switch timeline {
	case "urgent":
		return "URGENT (immediate decision)"
	case "2-4-weeks":
		return "2-4 weeks"
	case "1-2-months":
		return "1-2 months"
	case "flexible":
		return "Flexible timeline"
	}
	return timeline
}

func formatAlternatives(alternatives []IntakeAlternative) string {
	parts := make([]string, 0, len(alternatives))
	for i, alt := range alternatives {
		parts = append(parts, fmt.Sprintf("%d. **%s**\n   %s", i+1, alt.Name, alt.Description))
	}
	return strings.Join(parts, "\n\n")
}

func formatCriteria(criteria []IntakeCriterion) string {
	total := 0
	for _, crit := range criteria {
		total += crit.Weight
	}
	parts := make([]string, 0, len(criteria))
	for i, crit := range criteria {
		percent := 0
		if total > 0 {
			percent = int(float64(crit.Weight)/float64(total)*100 + 0.5)
		}
		parts = append(parts, fmt.Sprintf("%d. **%s** (Weight: %d/10 - %d%% importance)", i+1, crit.Name, crit.Weight, percent))
	}
	return strings.Join(parts, "\n")
}

// BuildDecisionPrompt assembles the system prompt for the strategic decision
// agent from a validated intake form.
func BuildDecisionPrompt(form IntakeForm) string {
	var b strings.Builder

	b.WriteString("You are the **Strategic Decision Architect**, an expert in strategic analysis and business decision making. Your mission is to help this entrepreneur make the best possible decision using proven strategic decision frameworks.\n\n")

	b.WriteString("## DECISION CONTEXT\n\n")
	b.WriteString(fmt.Sprintf("**Situation:** %s\n\n", form.DecisionContext))
	b.WriteString(fmt.Sprintf("**Decision timeline:** %s\n\n", formatTimeline(form.Timeline)))
	if form.PersonalContext != "" {
		b.WriteString(fmt.Sprintf("**Additional personal context:** %s\n\n", form.PersonalContext))
	}

	b.WriteString("## ALTERNATIVES TO EVALUATE\n\n")
	b.WriteString(formatAlternatives(form.Alternatives))
	b.WriteString("\n\n## EVALUATION CRITERIA\n\n")
	b.WriteString(formatCriteria(form.Criteria))

	b.WriteString("\n\n## MISSING INFORMATION\n\n")
	b.WriteString(fmt.Sprintf("**Data the user still needs:** %s\n\n", form.MissingInformation))

	b.WriteString(`## YOUR MISSION

Deliver a complete strategic analysis covering:

1. **SITUATION ANALYSIS**: context, urgency, critical success factors, risks and opportunities.
2. **DECISION MATRIX**: score every alternative against every criterion using the specified weights and rank the alternatives objectively.
3. **DEEP STRATEGIC ANALYSIS**: detailed pros and cons of the top 2 alternatives, scenario analysis, short- and long-term impact.
4. **EXECUTIVE RECOMMENDATION**: your final recommendation with justification, an implementation plan with concrete next steps, and key metrics to monitor.
5. **MISSING INFORMATION MANAGEMENT**: prioritize what to obtain first, suggest how, and propose contingent decisions meanwhile.

Structure your answer in an executive, clear, actionable way.`)

	return b.String()
}

// BuildSessionTitle derives a short session title from the decision context.
// Truncation counts runes, not bytes, so accented text cannot be cut
// mid-character.
func BuildSessionTitle(form IntakeForm) string {
	context := []rune(strings.TrimSpace(form.DecisionContext))
	if len(context) > 50 {
		return fmt.Sprintf("Decision: %s...", string(context[:50]))
	}
	return fmt.Sprintf("Decision: %s", string(context))
}

// BuildIntakeMetadata captures form shape for tracking
func BuildIntakeMetadata(form IntakeForm, promptLength int) map[string]interface{} {
	return map[string]interface{}{
		"alternatives_count":   len(form.Alternatives),
		"criteria_count":       len(form.Criteria),
		"timeline":             form.Timeline,
		"has_personal_context": form.PersonalContext != "",
		"prompt_length":        promptLength,
		"submitted_at":         time.Now().UTC().Format(time.RFC3339),
	}
}
