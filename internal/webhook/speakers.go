package webhook

import (
	"regexp"
	"strings"

	"call-scoring-go/internal/types"
)

// Speaker identification is a cascade: explicit payload fields, then
// regex heuristics over speaker labels and segment text, then a
// positional fallback (first unique speaker is the agent, second the
// customer). All three stages are deterministic.

var (
	agentLabelRe    = regexp.MustCompile(`(?i)\b(agent|rep|representative|operator|advisor|support)\b`)
	customerLabelRe = regexp.MustCompile(`(?i)\b(customer|caller|client|member|user)\b`)

	// "my name is Maria", "this is John from Acme"
	introRe = regexp.MustCompile(`(?i)\b(?:my name is|this is|you're speaking with)\s+([A-Z][a-zA-Z]+)`)
	// agent-side openings
	agentPhraseRe = regexp.MustCompile(`(?i)(how (?:can|may) i help|thank you for calling|calling from|this call may be recorded)`)
)

func identifySpeakers(b *TranscriptionBody, segments []types.Segment) (agent, customer string) {
	agent = b.AgentName
	customer = b.CustomerName
	if agent != "" && customer != "" {
		return agent, customer
	}

	labels := speakerLabels(segments)

	// label heuristics: a speaker literally labelled "Agent"/"Customer"
	for _, l := range labels {
		if agent == "" && agentLabelRe.MatchString(l) {
			agent = l
		}
		if customer == "" && customerLabelRe.MatchString(l) && !agentLabelRe.MatchString(l) {
			customer = l
		}
	}

	// text heuristics: an intro line on an agent-sounding turn names the agent
	if agent == "" || customer == "" {
		for _, s := range segments {
			m := introRe.FindStringSubmatch(s.Text)
			if m == nil {
				continue
			}
			if agentPhraseRe.MatchString(s.Text) {
				if agent == "" {
					agent = m[1]
				}
			} else if customer == "" {
				customer = m[1]
			}
		}
	}

	// positional fallback
	if agent == "" && len(labels) > 0 {
		agent = labels[0]
	}
	if customer == "" {
		for _, l := range labels {
			if l != agent {
				customer = l
				break
			}
		}
	}
	return agent, customer
}

// speakerLabels returns distinct speaker labels in order of first
// appearance.
func speakerLabels(segments []types.Segment) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range segments {
		l := strings.TrimSpace(s.Speaker)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
