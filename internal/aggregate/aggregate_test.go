package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"call-scoring-go/internal/types"
)

func TestCompute(t *testing.T) {
	t.Run("composite index and grade", func(t *testing.T) {
		var calls []types.Call
		labels := []string{
			types.SentimentPositive, types.SentimentPositive, types.SentimentPositive,
			types.SentimentPositive, types.SentimentPositive, types.SentimentPositive,
			types.SentimentNeutral, types.SentimentNeutral,
			types.SentimentNegative, types.SentimentNegative,
		}
		for _, label := range labels {
			calls = append(calls, types.Call{
				AgentID:        "agent-1",
				SentimentLabel: label,
				SentimentScore: 60, // averages to 6.0 on the 0-10 scale
				RecoveryRate:   75,
			})
		}

		m := Compute("co-1", "agent-1", calls)
		assert.Equal(t, 10, m.TotalCalls)
		assert.InDelta(t, 60.0, m.CSAT, 0.001)
		assert.InDelta(t, 75.0, m.RecoveryRate, 0.001)
		assert.InDelta(t, 6.0, m.AverageSentiment, 0.001)
		// 0.5*60 + 0.35*75 + 0.15*60 = 65.25
		assert.InDelta(t, 65.25, m.CompositePerformanceIndex, 0.001)
		assert.Equal(t, "B-", m.PerformanceGrade)
	})

	t.Run("averages and resolution rate", func(t *testing.T) {
		yes, no := true, false
		calls := []types.Call{
			{DurationSeconds: 100, Cost: 2, SatisfactionScore: 8, Resolved: &yes},
			{DurationSeconds: 200, Cost: 4, SatisfactionScore: 6, Resolved: &no},
			{DurationSeconds: 300, Cost: 6, SatisfactionScore: 7},
		}
		m := Compute("co-1", "agent-1", calls)
		assert.InDelta(t, 200.0, m.AverageDuration, 0.001)
		assert.InDelta(t, 4.0, m.AverageCost, 0.001)
		assert.InDelta(t, 7.0, m.AverageSatisfaction, 0.001)
		// resolution over calls with a known flag only
		assert.InDelta(t, 50.0, m.ResolutionRate, 0.001)
	})

	t.Run("recovery falls back to sample derivation", func(t *testing.T) {
		calls := []types.Call{
			{Sentiments: types.SampleList{
				{Score: 0.2, TimeRange: "00:00-00:05"},
				{Score: 0.8, TimeRange: "00:05-00:10"},
			}},
		}
		m := Compute("co-1", "agent-1", calls)
		assert.InDelta(t, 100.0, m.RecoveryRate, 0.001)
	})

	t.Run("top five topics by frequency", func(t *testing.T) {
		calls := []types.Call{
			{Topics: types.StringList{"billing", "refund", "billing"}},
			{Topics: types.StringList{"billing", "delivery", "warranty", "upgrade", "cancel", "refund"}},
		}
		m := Compute("co-1", "agent-1", calls)
		assert.Len(t, m.TopTopics, 5)
		assert.Equal(t, "billing", m.TopTopics[0])
		assert.Equal(t, "refund", m.TopTopics[1])
	})

	t.Run("sentiment distribution counts labels", func(t *testing.T) {
		calls := []types.Call{
			{SentimentLabel: types.SentimentPositive},
			{SentimentLabel: types.SentimentPositive},
			{SentimentLabel: types.SentimentNegative},
			{}, // unlabelled call excluded
		}
		m := Compute("co-1", "agent-1", calls)
		assert.Equal(t, 2, m.SentimentDistribution[types.SentimentPositive])
		assert.Equal(t, 1, m.SentimentDistribution[types.SentimentNegative])
		assert.InDelta(t, 66.666, m.CSAT, 0.01)
	})
}

func TestCPI(t *testing.T) {
	assert.InDelta(t, 65.25, CPI(60, 75, 6.0), 0.001)
	assert.InDelta(t, 100.0, CPI(100, 100, 10), 0.001)
	assert.Zero(t, CPI(0, 0, 0))
}

func TestGrade(t *testing.T) {
	tests := []struct {
		cpi  float64
		want string
	}{
		{95, "A+"}, {90, "A+"},
		{89.99, "A"}, {85, "A"},
		{82, "A-"}, {80, "A-"},
		{78, "B+"}, {75, "B+"},
		{72, "B"}, {70, "B"},
		{65.25, "B-"}, {65, "B-"},
		{62, "C+"}, {60, "C+"},
		{57, "C"}, {55, "C"},
		{52, "C-"}, {50, "C-"},
		{49.99, "D"}, {0, "D"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Grade(tt.cpi), "cpi %.2f", tt.cpi)
	}
}
