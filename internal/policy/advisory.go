package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hochfrequenz/worksim/internal/domain"
	"github.com/hochfrequenz/worksim/internal/history"
	"github.com/hochfrequenz/worksim/internal/persona"
)

// TextGenerator is the advisory service boundary: one prompt in, one text
// completion out. Implementations must honor ctx cancellation.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AdvisoryConfig tunes the advisory strategy.
type AdvisoryConfig struct {
	HistoryWindow int // recent entries included in the prompt
}

// Advisory consults an external text-generation service for contextual
// action proposals. A malformed or out-of-vocabulary proposal is an error
// of this strategy, never a fatal condition.
type Advisory struct {
	gen  TextGenerator
	hist int
}

// NewAdvisory creates the strategy.
func NewAdvisory(gen TextGenerator, cfg AdvisoryConfig) *Advisory {
	hist := cfg.HistoryWindow
	if hist <= 0 {
		hist = 5
	}
	return &Advisory{gen: gen, hist: hist}
}

// proposal is the structured action the service must answer with.
type proposal struct {
	Action          string `json:"action"`
	Target          string `json:"target"`
	DurationMinutes int    `json:"duration_minutes"`
	Reasoning       string `json:"reasoning"`
}

// Decide implements Strategy.
func (a *Advisory) Decide(ctx context.Context, p *persona.Persona, now time.Time, h *history.Log) (domain.ActionRequest, error) {
	raw, err := a.gen.Generate(ctx, a.buildPrompt(p, now, h))
	if err != nil {
		return domain.ActionRequest{}, fmt.Errorf("advisory call: %w", err)
	}

	prop, err := parseProposal(raw)
	if err != nil {
		return domain.ActionRequest{}, err
	}

	kind := domain.ActionKind(prop.Action)
	if !domain.ValidKind(kind) {
		return domain.ActionRequest{}, fmt.Errorf("advisory proposed unknown action %q", prop.Action)
	}
	if !p.AllowedKinds()[kind] {
		return domain.ActionRequest{}, fmt.Errorf("advisory proposed %q, not in persona vocabulary", prop.Action)
	}

	duration := prop.DurationMinutes
	if duration < 1 {
		duration = 5
	}
	if duration > 60 {
		duration = 60
	}

	reason := prop.Reasoning
	if reason == "" {
		reason = "advisory proposal"
	}

	return domain.NewActionRequest(kind, prop.Target, duration, reason, domain.SourceAdvisory, now), nil
}

// parseProposal strips optional markdown code fences and decodes the JSON
// proposal object.
func parseProposal(raw string) (*proposal, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.Index(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var prop proposal
	if err := json.Unmarshal([]byte(text), &prop); err != nil {
		return nil, fmt.Errorf("malformed advisory response: %w", err)
	}
	if prop.Action == "" {
		return nil, fmt.Errorf("advisory response missing action")
	}
	return &prop, nil
}

func (a *Advisory) buildPrompt(p *persona.Persona, now time.Time, h *history.Log) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are simulating %s, a %s at work.\n\n", p.Name, p.Role)
	fmt.Fprintf(&b, "Current time: %s (%s)\n\n", now.Format("15:04"), now.Weekday())

	b.WriteString("Recent actions:\n")
	recent := h.Recent(a.hist)
	if len(recent) == 0 {
		b.WriteString("None yet (just started)\n")
	}
	for _, e := range recent {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", e.Request.Kind, e.Request.Target, e.Request.Reason)
	}

	b.WriteString("\nWorker's typical environment:\n")
	if len(p.Applications) > 0 {
		fmt.Fprintf(&b, "- Primary apps: %s\n", strings.Join(p.Applications, ", "))
	}
	if len(p.Sites) > 0 {
		fmt.Fprintf(&b, "- Typical websites: %s\n", strings.Join(p.Sites, ", "))
	}
	if len(p.DocumentTasks) > 0 {
		fmt.Fprintf(&b, "- Document tasks: %s\n", strings.Join(p.DocumentTasks, ", "))
	}

	b.WriteString("\nAvailable action types:\n")
	for kind := range p.AllowedKinds() {
		fmt.Fprintf(&b, "- %s\n", kind)
	}

	fmt.Fprintf(&b, `
Based on the time, recent activity, and what a %s would realistically do
next, decide the next action. Consider natural task flow rather than random
switching.

Respond with ONLY a JSON object (no markdown, no explanation):
{"action": "...", "target": "...", "duration_minutes": N, "reasoning": "brief explanation"}`, p.Role)

	return b.String()
}
