package webhook

import (
	"encoding/json"
	"time"

	"call-scoring-go/internal/apperr"
)

// PayloadShape discriminates the webhook variants the provider sends.
type PayloadShape string

const (
	// ShapeNested is the current envelope: {event, payload:{transcription:{...}}}
	ShapeNested PayloadShape = "nested"
	// ShapeFlat is the legacy variant with top-level segments/text.
	ShapeFlat PayloadShape = "flat"
	// ShapeTest is the simplified shape carrying pre-computed KPI fields.
	ShapeTest PayloadShape = "test"
)

// RawPayload is the discriminated result of parsing one webhook body.
// Exactly one of the variant fields is set, per Shape.
type RawPayload struct {
	Shape PayloadShape
	Body  *TranscriptionBody
	Raw   json.RawMessage // verbatim copy for provenance
}

// TranscriptionBody is the field set shared by all payload shapes once
// the envelope is peeled off. Unknown fields are ignored.
type TranscriptionBody struct {
	CallID       string `json:"call_id"`
	ID           string `json:"id"`
	CompanyID    string `json:"company_id"`
	CampaignID   string `json:"campaign_id"`
	CampaignType string `json:"campaign_type"`

	AgentID      string `json:"agent_id"`
	AgentName    string `json:"agent_name"`
	CustomerName string `json:"customer_name"`

	Timestamp string  `json:"timestamp"`
	Text      string  `json:"text"`
	Summary   string  `json:"summary"`
	Cost      float64 `json:"cost"`

	Segments   []SegmentPayload   `json:"segments"`
	Sentiments []SentimentPayload `json:"sentiments"`
	Topics     []string           `json:"topics"`

	// Pre-computed fields, present only in the test shape.
	Transcript        string   `json:"transcript"`
	SentimentScore    *float64 `json:"sentiment_score"`
	SatisfactionScore *float64 `json:"satisfaction_score"`
	RecoveryRate      *float64 `json:"recovery_rate"`
	Resolved          *bool    `json:"resolved"`
}

type SegmentPayload struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

type SentimentPayload struct {
	Score     float64 `json:"score"`
	Label     string  `json:"label"`
	TimeRange string  `json:"time_range"`
}

type nestedEnvelope struct {
	Event   string `json:"event"`
	Payload *struct {
		Transcription *TranscriptionBody `json:"transcription"`
	} `json:"payload"`
}

// ParsePayload tries the known shapes in order (nested envelope, flat
// legacy, pre-extracted test) and returns a discriminated RawPayload.
// A body with no segments, no text and no pre-computed KPI fields is
// malformed.
func ParsePayload(data []byte) (*RawPayload, error) {
	var env nestedEnvelope
	if err := json.Unmarshal(data, &env); err == nil &&
		env.Payload != nil && env.Payload.Transcription != nil {
		body := env.Payload.Transcription
		if usable(body) {
			return &RawPayload{Shape: ShapeNested, Body: body, Raw: data}, nil
		}
	}

	var flat TranscriptionBody
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, apperr.Wrap(apperr.ErrMalformedPayload, "invalid json")
	}

	if len(flat.Segments) > 0 || flat.Text != "" {
		return &RawPayload{Shape: ShapeFlat, Body: &flat, Raw: data}, nil
	}
	if hasPrecomputed(&flat) {
		return &RawPayload{Shape: ShapeTest, Body: &flat, Raw: data}, nil
	}
	return nil, apperr.Wrap(apperr.ErrMalformedPayload, "no segments, text or kpi fields")
}

func usable(b *TranscriptionBody) bool {
	return len(b.Segments) > 0 || b.Text != "" || hasPrecomputed(b)
}

func hasPrecomputed(b *TranscriptionBody) bool {
	return b.SentimentScore != nil || b.SatisfactionScore != nil ||
		b.RecoveryRate != nil || b.Resolved != nil
}

// ParsedTimestamp returns the payload timestamp, or now when absent or
// unparsable.
func (b *TranscriptionBody) ParsedTimestamp() time.Time {
	if b.Timestamp == "" {
		return time.Now().UTC()
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, b.Timestamp); err == nil {
			return ts
		}
	}
	return time.Now().UTC()
}

// ExternalID returns the provider call identifier, whichever field
// carried it.
func (b *TranscriptionBody) ExternalID() string {
	if b.CallID != "" {
		return b.CallID
	}
	return b.ID
}
