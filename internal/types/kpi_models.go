package types

import (
	"database/sql/driver"
	"time"
)

// --------------------------------------------
// Dashboard configuration
// --------------------------------------------

// KPIDefinition is one weighted KPI inside a dashboard type.
type KPIDefinition struct {
	ID              string  `json:"id" db:"id"`
	DashboardTypeID string  `json:"dashboard_type_id" db:"dashboard_type_id"`
	Key             string  `json:"key" db:"kpi_key"`
	DisplayName     string  `json:"display_name" db:"display_name"`
	Weight          float64 `json:"weight" db:"weight"` // 0-100, sums to 100 per type
	MinValue        float64 `json:"min_value" db:"min_value"`
	MaxValue        float64 `json:"max_value" db:"max_value"`
	WarnThreshold   float64 `json:"warn_threshold" db:"warn_threshold"`
	GoodThreshold   float64 `json:"good_threshold" db:"good_threshold"`
}

// KPIRange bounds one key in an LLM profile's output schema.
type KPIRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// RangeMap stores the output schema as a JSONB column.
type RangeMap map[string]KPIRange

func (m RangeMap) Value() (driver.Value, error) { return jsonValue(m) }
func (m *RangeMap) Scan(src interface{}) error  { return jsonScan(src, m) }

// LLMProfile is one scoring-prompt configuration. Exactly one profile
// is active per dashboard type; activating a new one deactivates the
// prior, history is append-only.
type LLMProfile struct {
	ID              string   `json:"id" db:"id"`
	DashboardTypeID string   `json:"dashboard_type_id" db:"dashboard_type_id"`
	SystemPrompt    string   `json:"system_prompt" db:"system_prompt"`
	UserPrompt      string   `json:"user_prompt" db:"user_prompt"` // template with {placeholders}
	Model           string   `json:"model" db:"model"`
	Temperature     float64  `json:"temperature" db:"temperature"`
	MaxTokens       int      `json:"max_tokens" db:"max_tokens"`
	OutputSchema    RangeMap `json:"output_schema" db:"output_schema"`
	Active          bool     `json:"active" db:"active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DashboardType is a company-scoped scoring configuration: 8 weighted
// KPIs plus one active LLM profile, optionally limited to a campaign type.
type DashboardType struct {
	ID                 string  `json:"id" db:"id"`
	CompanyID          string  `json:"company_id" db:"company_id"`
	InternalName       string  `json:"internal_name" db:"internal_name"` // unique per company
	DisplayName        string  `json:"display_name" db:"display_name"`
	CampaignTypeFilter *string `json:"campaign_type_filter,omitempty" db:"campaign_type_filter"` // nil = all campaigns
	IsDefault          bool    `json:"is_default" db:"is_default"`
	Active             bool    `json:"active" db:"active"`

	KPIs    []KPIDefinition `json:"kpis" db:"-"`
	Profile *LLMProfile     `json:"llm_profile,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// KPIDefinitionsPerType is the fixed KPI count every dashboard type carries.
const KPIDefinitionsPerType = 8

// AppliesTo reports whether this type scores calls of the given campaign type.
func (d *DashboardType) AppliesTo(campaignType string) bool {
	if d.CampaignTypeFilter == nil || *d.CampaignTypeFilter == "" {
		return true
	}
	return *d.CampaignTypeFilter == campaignType
}

// --------------------------------------------
// Scoring results
// --------------------------------------------

// KPIScore statuses. A (call, dashboard type) pair with any persisted
// row counts as attempted; Errored rows are only reprocessed by
// deliberate operator action.
const (
	ScoreStatusScored  = "scored"
	ScoreStatusErrored = "errored"
)

// KPIScore is the per-call, per-dashboard-type scoring result.
type KPIScore struct {
	ID              string   `json:"id" db:"id"`
	CallID          string   `json:"call_id" db:"call_id"`
	DashboardTypeID string   `json:"dashboard_type_id" db:"dashboard_type_id"`
	Scores          ScoreMap `json:"scores" db:"scores"`
	OverallScore    float64  `json:"overall_score" db:"overall_score"`
	Status          string   `json:"status" db:"status"`
	Scorer          string   `json:"scorer,omitempty" db:"scorer"` // llm|rules
	ErrorMessage    string   `json:"error_message,omitempty" db:"error_message"`
	ProcessingMs    int64    `json:"processing_time_ms" db:"processing_time_ms"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// --------------------------------------------
// Agent rollup
// --------------------------------------------

// AgentMetric is the materialized per-agent projection, fully
// recomputed on each update.
type AgentMetric struct {
	CompanyID string `json:"company_id" db:"company_id"`
	AgentID   string `json:"agent_id" db:"agent_id"`
	AgentName string `json:"agent_name,omitempty" db:"agent_name"`

	TotalCalls          int     `json:"total_calls" db:"total_calls"`
	AverageDuration     float64 `json:"average_duration" db:"average_duration"`
	AverageSentiment    float64 `json:"average_sentiment" db:"average_sentiment"` // 0-10
	AverageCost         float64 `json:"average_cost" db:"average_cost"`
	AverageSatisfaction float64 `json:"average_satisfaction" db:"average_satisfaction"`
	ResolutionRate      float64 `json:"resolution_rate" db:"resolution_rate"` // 0-100
	RecoveryRate        float64 `json:"recovery_rate" db:"recovery_rate"`     // 0-100
	CSAT                float64 `json:"csat" db:"csat"`                       // 0-100

	CompositePerformanceIndex float64 `json:"composite_performance_index" db:"composite_performance_index"`
	PerformanceGrade          string  `json:"performance_grade" db:"performance_grade"`

	TopTopics             StringList `json:"top_topics" db:"top_topics"`
	SentimentDistribution CountMap   `json:"sentiment_distribution" db:"sentiment_distribution"`

	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}
