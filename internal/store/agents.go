package store

import (
	"context"
	"database/sql"

	"call-scoring-go/internal/apperr"
	"call-scoring-go/internal/types"
)

// AgentMetricRepository persists the materialized per-agent projection.
type AgentMetricRepository struct {
	db DBTX
}

func NewAgentMetricRepository(db DBTX) *AgentMetricRepository {
	return &AgentMetricRepository{db: db}
}

const agentMetricColumns = `
	company_id, agent_id, agent_name, total_calls,
	average_duration, average_sentiment, average_cost, average_satisfaction,
	resolution_rate, recovery_rate, csat,
	composite_performance_index, performance_grade,
	top_topics, sentiment_distribution, last_updated`

// Upsert replaces the agent's row wholesale; the rollup always
// recomputes every field.
func (r *AgentMetricRepository) Upsert(ctx context.Context, m *types.AgentMetric) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO agent_metrics (`+agentMetricColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (company_id, agent_id) DO UPDATE SET
			agent_name = EXCLUDED.agent_name,
			total_calls = EXCLUDED.total_calls,
			average_duration = EXCLUDED.average_duration,
			average_sentiment = EXCLUDED.average_sentiment,
			average_cost = EXCLUDED.average_cost,
			average_satisfaction = EXCLUDED.average_satisfaction,
			resolution_rate = EXCLUDED.resolution_rate,
			recovery_rate = EXCLUDED.recovery_rate,
			csat = EXCLUDED.csat,
			composite_performance_index = EXCLUDED.composite_performance_index,
			performance_grade = EXCLUDED.performance_grade,
			top_topics = EXCLUDED.top_topics,
			sentiment_distribution = EXCLUDED.sentiment_distribution,
			last_updated = EXCLUDED.last_updated`,
		m.CompanyID, m.AgentID, m.AgentName, m.TotalCalls,
		m.AverageDuration, m.AverageSentiment, m.AverageCost, m.AverageSatisfaction,
		m.ResolutionRate, m.RecoveryRate, m.CSAT,
		m.CompositePerformanceIndex, m.PerformanceGrade,
		m.TopTopics, m.SentimentDistribution, m.LastUpdated,
	)
	return apperr.Wrap(err, "upsert agent metric")
}

// Get returns one agent's metrics.
func (r *AgentMetricRepository) Get(ctx context.Context, companyID, agentID string) (*types.AgentMetric, error) {
	m := &types.AgentMetric{}
	err := r.db.GetContext(ctx, m,
		`SELECT `+agentMetricColumns+` FROM agent_metrics WHERE company_id = $1 AND agent_id = $2`,
		companyID, agentID)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(err, "get agent metric")
	}
	return m, nil
}

// ListByCompany returns all agent metrics for a company, best first.
func (r *AgentMetricRepository) ListByCompany(ctx context.Context, companyID string) ([]types.AgentMetric, error) {
	var out []types.AgentMetric
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+agentMetricColumns+` FROM agent_metrics
		 WHERE company_id = $1
		 ORDER BY composite_performance_index DESC`,
		companyID)
	if err != nil {
		return nil, apperr.Wrap(err, "list agent metrics")
	}
	return out, nil
}
