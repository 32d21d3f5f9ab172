package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"call-scoring-go/internal/types"
)

func defs() []types.KPIDefinition {
	return []types.KPIDefinition{
		{Key: "empathy", Weight: 50, MinValue: 0, MaxValue: 10},
		{Key: "resolution", Weight: 30, MinValue: 0, MaxValue: 10},
		{Key: "compliance", Weight: 20, MinValue: 0, MaxValue: 10},
	}
}

func TestClamp(t *testing.T) {
	t.Run("out-of-range values clamp instead of rejecting", func(t *testing.T) {
		out := Clamp(types.ScoreMap{"empathy": 12, "resolution": -3}, defs())
		assert.Equal(t, 10.0, out["empathy"])
		assert.Equal(t, 0.0, out["resolution"])
	})

	t.Run("in-range values pass through", func(t *testing.T) {
		out := Clamp(types.ScoreMap{"empathy": 7.5}, defs())
		assert.Equal(t, 7.5, out["empathy"])
	})

	t.Run("unknown keys are dropped", func(t *testing.T) {
		out := Clamp(types.ScoreMap{"empathy": 5, "invented": 9}, defs())
		assert.NotContains(t, out, "invented")
		assert.Len(t, out, 1)
	})
}

func TestOverall(t *testing.T) {
	t.Run("weighted average over all keys", func(t *testing.T) {
		scores := types.ScoreMap{"empathy": 8, "resolution": 6, "compliance": 10}
		// (8*50 + 6*30 + 10*20) / 100 = 7.8
		assert.InDelta(t, 7.8, Overall(scores, defs()), 0.001)
	})

	t.Run("missing keys renormalize the denominator", func(t *testing.T) {
		scores := types.ScoreMap{"empathy": 8, "compliance": 10}
		// (8*50 + 10*20) / 70 = 8.571...
		assert.InDelta(t, 8.5714, Overall(scores, defs()), 0.001)
	})

	t.Run("empty scores yield zero", func(t *testing.T) {
		assert.Zero(t, Overall(types.ScoreMap{}, defs()))
	})
}

func TestRenderPrompt(t *testing.T) {
	template := "Call by {agent_name} with {customer_name} ({duration}).\n" +
		"Sentiment: {sentiment}, satisfaction {satisfaction_score}.\n" +
		"Topics: {topics}\nSummary: {summary}\n---\n{transcription}"

	t.Run("substitutes call fields", func(t *testing.T) {
		call := &types.Call{
			AgentName:         "Maria",
			CustomerName:      "Jones",
			DurationSeconds:   120,
			Transcript:        "hello",
			Summary:           "billing question",
			Topics:            types.StringList{"billing", "refund"},
			SentimentLabel:    types.SentimentPositive,
			SatisfactionScore: 8.5,
		}
		out := RenderPrompt(template, call)
		assert.Contains(t, out, "Call by Maria with Jones (120 seconds).")
		assert.Contains(t, out, "Sentiment: positive, satisfaction 8.5.")
		assert.Contains(t, out, "Topics: billing, refund")
		assert.Contains(t, out, "Summary: billing question")
		assert.Contains(t, out, "---\nhello")
	})

	t.Run("missing fields render documented defaults", func(t *testing.T) {
		out := RenderPrompt(template, &types.Call{})
		assert.Contains(t, out, "Unknown Agent")
		assert.Contains(t, out, "Unknown Customer")
		assert.Contains(t, out, "No transcription available")
		assert.Contains(t, out, "No summary available")
		assert.Contains(t, out, "Topics: None")
		assert.Contains(t, out, "Sentiment: neutral")
		assert.NotContains(t, out, "{")
	})
}
