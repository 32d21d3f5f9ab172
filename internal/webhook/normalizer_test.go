package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-scoring-go/internal/apperr"
)

const nestedPayload = `{
	"event": "call.completed",
	"payload": {
		"transcription": {
			"call_id": "ext-123",
			"campaign_id": "camp-1",
			"campaign_type": "sales",
			"timestamp": "2026-03-01T10:00:00Z",
			"segments": [
				{"speaker": "Agent Maria", "text": "Thank you for calling Acme, how can I help you today?", "start": 0, "end": 6.2},
				{"speaker": "Mr. Jones", "text": "My order never arrived and I am quite upset.", "start": 6.2, "end": 12.4},
				{"speaker": "Agent Maria", "text": "I completely understand, let me fix that for you.", "start": 12.4, "end": 17.6}
			],
			"sentiments": [
				{"score": 0.2, "time_range": "00:00-00:09"},
				{"score": 0.8, "time_range": "00:09-00:18"}
			],
			"topics": ["delivery", "refund"],
			"cost": 1.25
		}
	}
}`

const flatPayload = `{
	"call_id": "legacy-9",
	"agent_name": "Sam",
	"customer_name": "Priya",
	"segments": [
		{"speaker": "A", "text": "hello", "start": 0, "end": 3.4},
		{"speaker": "B", "text": "hi", "start": 3.4, "end": 5.6}
	],
	"text": "hello hi"
}`

const testPayload = `{
	"call_id": "test-42",
	"transcript": "Agent: all sorted. Customer: thanks!",
	"sentiment_score": 82.0,
	"satisfaction_score": 8.5,
	"recovery_rate": 90.0,
	"resolved": true
}`

func TestParsePayload(t *testing.T) {
	t.Run("nested envelope", func(t *testing.T) {
		raw, err := ParsePayload([]byte(nestedPayload))
		require.NoError(t, err)
		assert.Equal(t, ShapeNested, raw.Shape)
		assert.Equal(t, "ext-123", raw.Body.ExternalID())
		assert.Len(t, raw.Body.Segments, 3)
	})

	t.Run("flat legacy", func(t *testing.T) {
		raw, err := ParsePayload([]byte(flatPayload))
		require.NoError(t, err)
		assert.Equal(t, ShapeFlat, raw.Shape)
	})

	t.Run("pre-extracted test shape", func(t *testing.T) {
		raw, err := ParsePayload([]byte(testPayload))
		require.NoError(t, err)
		assert.Equal(t, ShapeTest, raw.Shape)
	})

	t.Run("kpi fields alone are usable", func(t *testing.T) {
		raw, err := ParsePayload([]byte(`{"call_id": "k1", "sentiment_score": 80.0, "satisfaction_score": 7.5, "resolved": true}`))
		require.NoError(t, err)
		assert.Equal(t, ShapeTest, raw.Shape)
	})

	t.Run("rejects payload with no usable fields", func(t *testing.T) {
		_, err := ParsePayload([]byte(`{"event": "call.completed", "foo": "bar"}`))
		assert.ErrorIs(t, err, apperr.ErrMalformedPayload)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		_, err := ParsePayload([]byte(`{nope`))
		assert.ErrorIs(t, err, apperr.ErrMalformedPayload)
	})
}

func TestNormalize(t *testing.T) {
	t.Run("nested payload end to end", func(t *testing.T) {
		call, err := Normalize("co-1", []byte(nestedPayload))
		require.NoError(t, err)

		assert.Equal(t, "co-1", call.CompanyID)
		assert.Equal(t, "ext-123", call.ExternalID)
		assert.Equal(t, "sales", call.CampaignType)
		// last segment ends at 17.6 -> rounds to 18
		assert.Equal(t, 18, call.DurationSeconds)
		assert.Equal(t, []string{"delivery", "refund"}, []string(call.Topics))
		assert.JSONEq(t, nestedPayload, string(call.RawPayload))

		// derived metrics attached together
		assert.Greater(t, call.SentimentScore, 0.0)
		assert.Equal(t, 100.0, call.RecoveryRate)
	})

	t.Run("duration is zero without segments", func(t *testing.T) {
		call, err := Normalize("co-1", []byte(`{"call_id": "x", "text": "short call"}`))
		require.NoError(t, err)
		assert.Zero(t, call.DurationSeconds)
		assert.Equal(t, "short call", call.Transcript)
	})

	t.Run("transcript joins segments when text missing", func(t *testing.T) {
		call, err := Normalize("co-1", []byte(`{
			"call_id": "y",
			"segments": [
				{"speaker": "Agent", "text": "hello", "start": 0, "end": 2},
				{"speaker": "Customer", "text": "hi there", "start": 2, "end": 4}
			]
		}`))
		require.NoError(t, err)
		assert.Equal(t, "Agent: hello\nCustomer: hi there", call.Transcript)
	})

	t.Run("test shape keeps pre-computed metrics", func(t *testing.T) {
		call, err := Normalize("co-1", []byte(testPayload))
		require.NoError(t, err)
		assert.Equal(t, 82.0, call.SentimentScore)
		assert.Equal(t, 8.5, call.SatisfactionScore)
		assert.Equal(t, 90.0, call.RecoveryRate)
		require.NotNil(t, call.Resolved)
		assert.True(t, *call.Resolved)
	})

	t.Run("kpi fields without transcript normalize", func(t *testing.T) {
		call, err := Normalize("co-1", []byte(`{"call_id": "k2", "sentiment_score": 80.0, "resolved": false}`))
		require.NoError(t, err)
		assert.Equal(t, 80.0, call.SentimentScore)
		assert.Empty(t, call.Transcript)
		require.NotNil(t, call.Resolved)
		assert.False(t, *call.Resolved)
	})

	t.Run("external id falls back to generated id", func(t *testing.T) {
		call, err := Normalize("co-1", []byte(`{"text": "anonymous call"}`))
		require.NoError(t, err)
		assert.Equal(t, call.ID, call.ExternalID)
	})
}

func TestIdentifySpeakers(t *testing.T) {
	t.Run("explicit fields win", func(t *testing.T) {
		call, err := Normalize("co-1", []byte(flatPayload))
		require.NoError(t, err)
		assert.Equal(t, "Sam", call.AgentName)
		assert.Equal(t, "Priya", call.CustomerName)
	})

	t.Run("speaker labels", func(t *testing.T) {
		call, err := Normalize("co-1", []byte(`{
			"call_id": "z",
			"segments": [
				{"speaker": "Support Rep", "text": "hello", "start": 0, "end": 2},
				{"speaker": "Caller", "text": "hi", "start": 2, "end": 4}
			]
		}`))
		require.NoError(t, err)
		assert.Equal(t, "Support Rep", call.AgentName)
		assert.Equal(t, "Caller", call.CustomerName)
	})

	t.Run("intro phrase names the agent", func(t *testing.T) {
		call, err := Normalize("co-1", []byte(nestedPayload))
		require.NoError(t, err)
		// label heuristic matches "Agent Maria" first
		assert.Equal(t, "Agent Maria", call.AgentName)
		assert.Equal(t, "Mr. Jones", call.CustomerName)
	})

	t.Run("positional fallback", func(t *testing.T) {
		call, err := Normalize("co-1", []byte(`{
			"call_id": "p",
			"segments": [
				{"speaker": "Speaker 1", "text": "hello there", "start": 0, "end": 2},
				{"speaker": "Speaker 2", "text": "hi", "start": 2, "end": 4},
				{"speaker": "Speaker 1", "text": "goodbye", "start": 4, "end": 6}
			]
		}`))
		require.NoError(t, err)
		assert.Equal(t, "Speaker 1", call.AgentName)
		assert.Equal(t, "Speaker 2", call.CustomerName)
	})
}
