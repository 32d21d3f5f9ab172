package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"call-scoring-go/internal/apperr"
	"call-scoring-go/internal/types"
)

// DashboardRepository persists dashboard types with their KPI
// definitions and LLM profile history. It takes the pool rather than
// DBTX because create/activate span transactions.
type DashboardRepository struct {
	db *sqlx.DB
}

func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// Create inserts the type, its KPI definitions and (optionally) an
// initial active LLM profile in one transaction. Weight validation
// happens in the registry before this is called.
func (r *DashboardRepository) Create(ctx context.Context, d *types.DashboardType) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(err, "begin create dashboard type")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dashboard_types
			(id, company_id, internal_name, display_name, campaign_type_filter,
			 is_default, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.CompanyID, d.InternalName, d.DisplayName, d.CampaignTypeFilter,
		d.IsDefault, d.Active, d.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrapf(apperr.ErrAlreadyExists, "dashboard type %q", d.InternalName)
		}
		return apperr.Wrap(err, "insert dashboard type")
	}

	for _, k := range d.KPIs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO kpi_definitions
				(id, dashboard_type_id, kpi_key, display_name, weight,
				 min_value, max_value, warn_threshold, good_threshold)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			k.ID, d.ID, k.Key, k.DisplayName, k.Weight,
			k.MinValue, k.MaxValue, k.WarnThreshold, k.GoodThreshold,
		)
		if err != nil {
			return apperr.Wrapf(err, "insert kpi definition %q", k.Key)
		}
	}

	if d.Profile != nil {
		if err := insertProfile(ctx, tx, d.Profile); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertProfile(ctx context.Context, tx *sqlx.Tx, p *types.LLMProfile) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO llm_profiles
			(id, dashboard_type_id, system_prompt, user_prompt, model,
			 temperature, max_tokens, output_schema, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.DashboardTypeID, p.SystemPrompt, p.UserPrompt, p.Model,
		p.Temperature, p.MaxTokens, p.OutputSchema, p.Active, p.CreatedAt,
	)
	return apperr.Wrap(err, "insert llm profile")
}

// ClearDefault demotes a company's current default type, if any. The
// registry calls this before creating a new default, so at most one
// type per company carries the flag.
func (r *DashboardRepository) ClearDefault(ctx context.Context, companyID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE dashboard_types SET is_default = false WHERE company_id = $1 AND is_default`,
		companyID)
	return apperr.Wrap(err, "clear default dashboard type")
}

// ActivateProfile appends a new profile and deactivates the prior
// active one. History rows are never deleted.
func (r *DashboardRepository) ActivateProfile(ctx context.Context, p *types.LLMProfile) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(err, "begin activate profile")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE llm_profiles SET active = false WHERE dashboard_type_id = $1 AND active`,
		p.DashboardTypeID)
	if err != nil {
		return apperr.Wrap(err, "deactivate prior profile")
	}

	p.Active = true
	if err := insertProfile(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByID loads one dashboard type hydrated with its KPI definitions
// and active profile.
func (r *DashboardRepository) GetByID(ctx context.Context, id string) (*types.DashboardType, error) {
	d := &types.DashboardType{}
	err := r.db.GetContext(ctx, d, `
		SELECT id, company_id, internal_name, display_name, campaign_type_filter,
		       is_default, active, created_at
		FROM dashboard_types WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(err, "get dashboard type")
	}
	if err := r.hydrate(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ApplicableTypes returns the company's active types whose campaign
// filter is null/empty or equals campaignType, fully hydrated. An
// empty slice means "nothing to score", not an error.
func (r *DashboardRepository) ApplicableTypes(ctx context.Context, companyID, campaignType string) ([]types.DashboardType, error) {
	var out []types.DashboardType
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, company_id, internal_name, display_name, campaign_type_filter,
		       is_default, active, created_at
		FROM dashboard_types
		WHERE company_id = $1
		  AND active
		  AND (campaign_type_filter IS NULL
		       OR campaign_type_filter = ''
		       OR campaign_type_filter = $2)
		ORDER BY is_default DESC, internal_name ASC`,
		companyID, campaignType)
	if err != nil {
		return nil, apperr.Wrap(err, "list applicable types")
	}
	for i := range out {
		if err := r.hydrate(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *DashboardRepository) hydrate(ctx context.Context, d *types.DashboardType) error {
	err := r.db.SelectContext(ctx, &d.KPIs, `
		SELECT id, dashboard_type_id, kpi_key, display_name, weight,
		       min_value, max_value, warn_threshold, good_threshold
		FROM kpi_definitions
		WHERE dashboard_type_id = $1
		ORDER BY kpi_key ASC`, d.ID)
	if err != nil {
		return apperr.Wrap(err, "load kpi definitions")
	}

	p := &types.LLMProfile{}
	err = r.db.GetContext(ctx, p, `
		SELECT id, dashboard_type_id, system_prompt, user_prompt, model,
		       temperature, max_tokens, output_schema, active, created_at
		FROM llm_profiles
		WHERE dashboard_type_id = $1 AND active
		ORDER BY created_at DESC
		LIMIT 1`, d.ID)
	if err == sql.ErrNoRows {
		d.Profile = nil
		return nil
	}
	if err != nil {
		return apperr.Wrap(err, "load active llm profile")
	}
	d.Profile = p
	return nil
}
