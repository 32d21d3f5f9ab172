package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Segment is one speaker turn inside a call transcript.
type Segment struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// SentimentSample is one provider-supplied sentiment reading over a
// time range of the call, score in [0,1].
type SentimentSample struct {
	Score     float64 `json:"score"`
	Label     string  `json:"label,omitempty"`
	TimeRange string  `json:"time_range,omitempty"` // "MM:SS-MM:SS"
}

// Call is the canonical record one webhook normalizes into.
// Derived fields (DurationSeconds, SentimentScore, SentimentLabel,
// RecoveryRate, SatisfactionScore, Resolved) are always recomputed
// together, never patched individually.
type Call struct {
	ID           string `json:"id" db:"id"`
	ExternalID   string `json:"external_id" db:"external_id"`
	CompanyID    string `json:"company_id" db:"company_id"`
	CampaignID   string `json:"campaign_id,omitempty" db:"campaign_id"`
	CampaignType string `json:"campaign_type,omitempty" db:"campaign_type"`
	AgentID      string `json:"agent_id,omitempty" db:"agent_id"`
	AgentName    string `json:"agent_name,omitempty" db:"agent_name"`
	CustomerName string `json:"customer_name,omitempty" db:"customer_name"`

	Timestamp       time.Time   `json:"timestamp" db:"call_timestamp"`
	DurationSeconds int         `json:"duration_seconds" db:"duration_seconds"`
	Transcript      string      `json:"transcript" db:"transcript"`
	Summary         string      `json:"summary,omitempty" db:"summary"`
	Segments        SegmentList `json:"segments" db:"segments"`
	Sentiments      SampleList  `json:"sentiment_samples" db:"sentiment_samples"`
	Topics          StringList  `json:"topics" db:"topics"`
	Cost            float64     `json:"cost" db:"cost"`

	// Derived metrics, attached before persistence.
	SentimentScore    float64 `json:"sentiment_score" db:"sentiment_score"`       // 0-100
	SentimentLabel    string  `json:"sentiment_label" db:"sentiment_label"`       // positive|neutral|negative
	RecoveryRate      float64 `json:"recovery_rate" db:"recovery_rate"`           // 0-100
	SatisfactionScore float64 `json:"satisfaction_score" db:"satisfaction_score"` // 0-10
	Resolved          *bool   `json:"resolved,omitempty" db:"resolved"`

	// Verbatim provider payload, kept for audit and re-processing.
	RawPayload json.RawMessage `json:"raw_payload,omitempty" db:"raw_payload"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Sentiment label buckets shared by derivation and aggregation.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// SegmentList stores segments as a JSONB column.
type SegmentList []Segment

func (l SegmentList) Value() (driver.Value, error) { return jsonValue(l) }
func (l *SegmentList) Scan(src interface{}) error  { return jsonScan(src, l) }

// SampleList stores sentiment samples as a JSONB column.
type SampleList []SentimentSample

func (l SampleList) Value() (driver.Value, error) { return jsonValue(l) }
func (l *SampleList) Scan(src interface{}) error  { return jsonScan(src, l) }

// StringList stores a string slice as a JSONB column.
type StringList []string

func (l StringList) Value() (driver.Value, error) { return jsonValue(l) }
func (l *StringList) Scan(src interface{}) error  { return jsonScan(src, l) }

// ScoreMap stores per-KPI scores as a JSONB column.
type ScoreMap map[string]float64

func (m ScoreMap) Value() (driver.Value, error) { return jsonValue(m) }
func (m *ScoreMap) Scan(src interface{}) error  { return jsonScan(src, m) }

// CountMap stores label counts as a JSONB column.
type CountMap map[string]int

func (m CountMap) Value() (driver.Value, error) { return jsonValue(m) }
func (m *CountMap) Scan(src interface{}) error  { return jsonScan(src, m) }

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func jsonScan(src, dest interface{}) error {
	if src == nil {
		return nil
	}
	switch s := src.(type) {
	case []byte:
		return json.Unmarshal(s, dest)
	case string:
		return json.Unmarshal([]byte(s), dest)
	default:
		return fmt.Errorf("unsupported scan type %T", src)
	}
}
