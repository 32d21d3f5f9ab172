package scoring

import (
	"fmt"
	"strings"

	"call-scoring-go/internal/types"
)

// Placeholder defaults. Missing call fields render as these, never as
// empty strings, so prompts stay well-formed.
const (
	defaultAgentName  = "Unknown Agent"
	defaultCustomer   = "Unknown Customer"
	defaultTranscript = "No transcription available"
	defaultSummary    = "No summary available"
	defaultTopics     = "None"
)

// RenderPrompt substitutes the fixed placeholder set of a user prompt
// template from the call's fields.
func RenderPrompt(template string, call *types.Call) string {
	replacer := strings.NewReplacer(
		"{transcription}", orDefault(call.Transcript, defaultTranscript),
		"{agent_name}", orDefault(call.AgentName, defaultAgentName),
		"{customer_name}", orDefault(call.CustomerName, defaultCustomer),
		"{duration}", fmt.Sprintf("%d seconds", call.DurationSeconds),
		"{summary}", orDefault(call.Summary, defaultSummary),
		"{topics}", orDefault(strings.Join(call.Topics, ", "), defaultTopics),
		"{sentiment}", orDefault(call.SentimentLabel, types.SentimentNeutral),
		"{satisfaction_score}", fmt.Sprintf("%.1f", call.SatisfactionScore),
	)
	return replacer.Replace(template)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
