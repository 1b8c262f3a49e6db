package intent

import (
	"fmt"
	"strings"
	"time"
)

// Tier names one stage of resolution.
type Tier string

const (
	TierDirectMatch     Tier = "direct_match"
	TierAIIntent        Tier = "ai_intent"
	TierPatternFallback Tier = "pattern_fallback"
	TierGenericResponse Tier = "generic_response"
)

// Outcome is what happened when a tier was attempted.
type Outcome string

const (
	OutcomeMatched    Outcome = "matched"
	OutcomeFailed     Outcome = "failed"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeUnresolved Outcome = "unresolved"
)

// Step records one tier attempt.
type Step struct {
	Tier      Tier    `json:"tier"`
	Outcome   Outcome `json:"outcome"`
	ElapsedMs int64   `json:"elapsedMs"`
	Rule      string  `json:"rule,omitempty"`
	Action    string  `json:"action,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Trace lists every tier attempted for one command, in order.
type Trace []Step

func (t *Trace) add(tier Tier, outcome Outcome, start time.Time, fill func(*Step)) {
	s := Step{Tier: tier, Outcome: outcome, ElapsedMs: time.Since(start).Milliseconds()}
	if fill != nil {
		fill(&s)
	}
	*t = append(*t, s)
}

func (t *Trace) skip(tier Tier) {
	*t = append(*t, Step{Tier: tier, Outcome: OutcomeSkipped})
}

// Tiers returns the tier names in attempt order.
func (t Trace) Tiers() []string {
	out := make([]string, len(t))
	for i, s := range t {
		out[i] = string(s.Tier)
	}
	return out
}

// Attempted reports whether tier ran (was not skipped).
func (t Trace) Attempted(tier Tier) bool {
	for _, s := range t {
		if s.Tier == tier && s.Outcome != OutcomeSkipped {
			return true
		}
	}
	return false
}

// String renders the trace compactly, e.g.
// "direct_match:unresolved -> ai_intent:matched(search_companies)".
func (t Trace) String() string {
	parts := make([]string, 0, len(t))
	for _, s := range t {
		p := fmt.Sprintf("%s:%s", s.Tier, s.Outcome)
		switch {
		case s.Rule != "":
			p += "(" + s.Rule + ")"
		case s.Action != "":
			p += "(" + s.Action + ")"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " -> ")
}

// Payload returns the trace as plain maps for telemetry.
func (t Trace) Payload() []map[string]any {
	out := make([]map[string]any, len(t))
	for i, s := range t {
		m := map[string]any{
			"tier":      string(s.Tier),
			"outcome":   string(s.Outcome),
			"elapsedMs": s.ElapsedMs,
		}
		if s.Rule != "" {
			m["rule"] = s.Rule
		}
		if s.Action != "" {
			m["action"] = s.Action
		}
		if s.Error != "" {
			m["error"] = s.Error
		}
		out[i] = m
	}
	return out
}
