package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"call-scoring-go/internal/apperr"
	"call-scoring-go/internal/types"
)

// CallRepository persists canonical calls.
type CallRepository struct {
	db DBTX
}

func NewCallRepository(db DBTX) *CallRepository {
	return &CallRepository{db: db}
}

const callColumns = `
	id, external_id, company_id, campaign_id, campaign_type,
	agent_id, agent_name, customer_name,
	call_timestamp, duration_seconds, transcript, summary,
	segments, sentiment_samples, topics, cost,
	sentiment_score, sentiment_label, recovery_rate, satisfaction_score,
	resolved, raw_payload, created_at`

// Create inserts the call, idempotent on (company_id, external_id).
// It returns the stored call and whether this delivery created it;
// a redelivered webhook returns the original row untouched.
func (r *CallRepository) Create(ctx context.Context, c *types.Call) (*types.Call, bool, error) {
	query := `
		INSERT INTO calls (` + callColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (company_id, external_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		c.ID, c.ExternalID, c.CompanyID, c.CampaignID, c.CampaignType,
		c.AgentID, c.AgentName, c.CustomerName,
		c.Timestamp, c.DurationSeconds, c.Transcript, c.Summary,
		c.Segments, c.Sentiments, c.Topics, c.Cost,
		c.SentimentScore, c.SentimentLabel, c.RecoveryRate, c.SatisfactionScore,
		c.Resolved, []byte(c.RawPayload), c.CreatedAt,
	)
	if err != nil {
		return nil, false, apperr.Wrap(err, "insert call")
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return c, true, nil
	}
	existing, err := r.GetByExternalID(ctx, c.CompanyID, c.ExternalID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID retrieves one call.
func (r *CallRepository) GetByID(ctx context.Context, id string) (*types.Call, error) {
	c := &types.Call{}
	err := r.db.GetContext(ctx, c, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(err, "get call by id")
	}
	return c, nil
}

// GetByExternalID retrieves a call by its provider identifier.
func (r *CallRepository) GetByExternalID(ctx context.Context, companyID, externalID string) (*types.Call, error) {
	c := &types.Call{}
	err := r.db.GetContext(ctx, c,
		`SELECT `+callColumns+` FROM calls WHERE company_id = $1 AND external_id = $2`,
		companyID, externalID)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(err, "get call by external id")
	}
	return c, nil
}

// ListFilter narrows List results; zero values mean "any".
type ListFilter struct {
	AgentID      string
	CampaignType string
	From         time.Time
	To           time.Time
	Limit        int
}

// List returns a company's calls, newest first.
func (r *CallRepository) List(ctx context.Context, companyID string, f ListFilter) ([]types.Call, error) {
	where := []string{"company_id = $1"}
	args := []interface{}{companyID}

	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.AgentID != "" {
		add("agent_id = $%d", f.AgentID)
	}
	if f.CampaignType != "" {
		add("campaign_type = $%d", f.CampaignType)
	}
	if !f.From.IsZero() {
		add("call_timestamp >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("call_timestamp <= $%d", f.To)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM calls WHERE %s ORDER BY call_timestamp DESC LIMIT %d`,
		callColumns, strings.Join(where, " AND "), limit)

	var out []types.Call
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, apperr.Wrap(err, "list calls")
	}
	return out, nil
}

// ListByAgent returns every call for one agent, for rollup recomputes.
func (r *CallRepository) ListByAgent(ctx context.Context, companyID, agentID string) ([]types.Call, error) {
	var out []types.Call
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+callColumns+` FROM calls
		 WHERE company_id = $1 AND agent_id = $2
		 ORDER BY call_timestamp ASC`,
		companyID, agentID)
	if err != nil {
		return nil, apperr.Wrap(err, "list calls by agent")
	}
	return out, nil
}

// CompanyIDs returns every company with at least one call, for the
// nightly full rollup.
func (r *CallRepository) CompanyIDs(ctx context.Context) ([]string, error) {
	var out []string
	err := r.db.SelectContext(ctx, &out, `SELECT DISTINCT company_id FROM calls`)
	if err != nil {
		return nil, apperr.Wrap(err, "list company ids")
	}
	return out, nil
}

// AgentIDs returns the distinct agent ids with at least one call.
func (r *CallRepository) AgentIDs(ctx context.Context, companyID string) ([]string, error) {
	var out []string
	err := r.db.SelectContext(ctx, &out,
		`SELECT DISTINCT agent_id FROM calls WHERE company_id = $1 AND agent_id <> ''`,
		companyID)
	if err != nil {
		return nil, apperr.Wrap(err, "list agent ids")
	}
	return out, nil
}

// ScoringPair is one unit of scoring work.
type ScoringPair struct {
	CallID          string `db:"call_id"`
	DashboardTypeID string `db:"dashboard_type_id"`
}

// ListUnscoredPairs finds (call, dashboard type) pairs with no KPIScore
// row yet: every active type of the call's company whose campaign
// filter matches. This scan is what makes a crash between ingestion
// and scoring recoverable.
func (r *CallRepository) ListUnscoredPairs(ctx context.Context, limit int) ([]ScoringPair, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT c.id AS call_id, d.id AS dashboard_type_id
		FROM calls c
		JOIN dashboard_types d
		  ON d.company_id = c.company_id
		 AND d.active
		 AND (d.campaign_type_filter IS NULL
		      OR d.campaign_type_filter = ''
		      OR d.campaign_type_filter = c.campaign_type)
		WHERE NOT EXISTS (
			SELECT 1 FROM kpi_scores s
			WHERE s.call_id = c.id AND s.dashboard_type_id = d.id
		)
		ORDER BY c.created_at ASC
		LIMIT $1
	`
	var out []ScoringPair
	if err := r.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, apperr.Wrap(err, "list unscored pairs")
	}
	return out, nil
}
