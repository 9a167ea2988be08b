package services

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func sampleIntakeForm() IntakeForm {
	return IntakeForm{
		DecisionContext: "Whether to expand into the Mexican market next quarter",
		Timeline:        "2-4-weeks",
		PersonalContext: "First international expansion",
		Alternatives: []IntakeAlternative{
			{Name: "Expand now", Description: "Open a Mexico City office this quarter"},
			{Name: "Wait a year", Description: "Consolidate the domestic market first"},
		},
		Criteria: []IntakeCriterion{
			{Name: "Cost", Weight: 5},
			{Name: "Speed to market", Weight: 5},
		},
		MissingInformation: "Local regulatory requirements",
	}
}

func TestBuildDecisionPrompt(t *testing.T) {
	form := sampleIntakeForm()
	prompt := BuildDecisionPrompt(form)

	for _, want := range []string{
		"Strategic Decision Architect",
		form.DecisionContext,
		"2-4 weeks",
		form.PersonalContext,
		"1. **Expand now**",
		"2. **Wait a year**",
		"**Cost** (Weight: 5/10 - 50% importance)",
		form.MissingInformation,
		"DECISION MATRIX",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildDecisionPromptOmitsEmptyPersonalContext(t *testing.T) {
	form := sampleIntakeForm()
	form.PersonalContext = ""

	if strings.Contains(BuildDecisionPrompt(form), "Additional personal context") {
		t.Error("empty personal context must not appear in the prompt")
	}
}

func TestBuildSessionTitle(t *testing.T) {
	form := sampleIntakeForm()
	form.DecisionContext = "Short context"
	if got := BuildSessionTitle(form); got != "Decision: Short context" {
		t.Errorf("unexpected title %q", got)
	}

	form.DecisionContext = strings.Repeat("x", 80)
	got := BuildSessionTitle(form)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("long context must be truncated with ellipsis, got %q", got)
	}
	if len(got) != len("Decision: ")+50+3 {
		t.Errorf("unexpected truncated length %d", len(got))
	}
}

func TestBuildSessionTitleTruncatesOnRuneBoundary(t *testing.T) {
	form := sampleIntakeForm()
	form.DecisionContext = strings.Repeat("ñ", 60)

	got := BuildSessionTitle(form)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated title is not valid UTF-8: %q", got)
	}
	if want := "Decision: " + strings.Repeat("ñ", 50) + "..."; got != want {
		t.Errorf("title = %q, want %q", got, want)
	}
}

func TestBuildIntakeMetadata(t *testing.T) {
	form := sampleIntakeForm()
	meta := BuildIntakeMetadata(form, 1234)

	if meta["alternatives_count"] != 2 {
		t.Errorf("alternatives_count = %v", meta["alternatives_count"])
	}
	if meta["criteria_count"] != 2 {
		t.Errorf("criteria_count = %v", meta["criteria_count"])
	}
	if meta["timeline"] != "2-4-weeks" {
		t.Errorf("timeline = %v", meta["timeline"])
	}
	if meta["has_personal_context"] != true {
		t.Errorf("has_personal_context = %v", meta["has_personal_context"])
	}
	if meta["prompt_length"] != 1234 {
		t.Errorf("prompt_length = %v", meta["prompt_length"])
	}
}

func TestFormatTimelineUnknownPassesThrough(t *testing.T) {
	if got := formatTimeline("someday"); got != "someday" {
		t.Errorf("unknown timeline must pass through, got %q", got)
	}
}
