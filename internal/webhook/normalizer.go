// Package webhook turns heterogeneous provider payloads into the one
// canonical Call record the rest of the pipeline consumes. Everything
// here is a pure function of the payload bytes.
package webhook

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"call-scoring-go/internal/callmetrics"
	"call-scoring-go/internal/types"
)

// Normalize parses one webhook body and produces the canonical Call,
// with derived metrics already attached. companyID is the authenticated
// tenant the webhook arrived for; a company id inside the payload wins
// only when the caller passes none.
func Normalize(companyID string, data []byte) (*types.Call, error) {
	raw, err := ParsePayload(data)
	if err != nil {
		return nil, err
	}
	b := raw.Body

	if companyID == "" {
		companyID = b.CompanyID
	}

	call := &types.Call{
		ID:           uuid.New().String(),
		ExternalID:   b.ExternalID(),
		CompanyID:    companyID,
		CampaignID:   b.CampaignID,
		CampaignType: b.CampaignType,
		AgentID:      b.AgentID,
		Timestamp:    b.ParsedTimestamp(),
		Summary:      b.Summary,
		Topics:       types.StringList(b.Topics),
		Cost:         b.Cost,
		RawPayload:   raw.Raw,
		CreatedAt:    time.Now().UTC(),
	}
	if call.ExternalID == "" {
		call.ExternalID = call.ID
	}

	for _, s := range b.Segments {
		call.Segments = append(call.Segments, types.Segment(s))
	}
	for _, s := range b.Sentiments {
		call.Sentiments = append(call.Sentiments, types.SentimentSample(s))
	}

	call.Transcript = transcriptOf(b)
	call.DurationSeconds = durationOf(call.Segments)
	call.AgentName, call.CustomerName = identifySpeakers(b, call.Segments)

	attachDerived(call, raw)
	return call, nil
}

// attachDerived recomputes every derived field in one place. The test
// shape carries pre-computed values which win over derivation.
func attachDerived(call *types.Call, raw *RawPayload) {
	m := callmetrics.Derive(call.Sentiments)
	call.SentimentScore = m.SentimentScore
	call.SentimentLabel = m.Label
	call.RecoveryRate = m.RecoveryRate
	call.SatisfactionScore = m.Satisfaction
	call.Resolved = raw.Body.Resolved

	if raw.Shape != ShapeTest {
		return
	}
	b := raw.Body
	if b.SentimentScore != nil {
		call.SentimentScore = *b.SentimentScore
		call.SentimentLabel = callmetrics.LabelForScore(*b.SentimentScore / 100)
	}
	if b.SatisfactionScore != nil {
		call.SatisfactionScore = *b.SatisfactionScore
	}
	if b.RecoveryRate != nil {
		call.RecoveryRate = *b.RecoveryRate
	}
}

// durationOf is the end time of the last segment, rounded to whole
// seconds; 0 when there are no segments.
func durationOf(segments []types.Segment) int {
	if len(segments) == 0 {
		return 0
	}
	end := 0.0
	for _, s := range segments {
		if s.End > end {
			end = s.End
		}
	}
	return int(math.Round(end))
}

func transcriptOf(b *TranscriptionBody) string {
	if b.Transcript != "" {
		return b.Transcript
	}
	if b.Text != "" {
		return b.Text
	}
	var sb strings.Builder
	for i, s := range b.Segments {
		if i > 0 {
			sb.WriteString("\n")
		}
		if s.Speaker != "" {
			fmt.Fprintf(&sb, "%s: %s", s.Speaker, s.Text)
		} else {
			sb.WriteString(s.Text)
		}
	}
	return sb.String()
}
