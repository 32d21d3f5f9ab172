package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"call-scoring-go/internal/apperr"
	"call-scoring-go/internal/types"
)

// ScoreRepository persists KPI scores with at-most-once semantics per
// (call, dashboard type) pair.
type ScoreRepository struct {
	db DBTX
}

func NewScoreRepository(db DBTX) *ScoreRepository {
	return &ScoreRepository{db: db}
}

const scoreColumns = `
	id, call_id, dashboard_type_id, scores, overall_score, status,
	scorer, error_message, processing_time_ms, created_at`

// Insert writes the score unless the pair already has a row. The
// unique constraint on (call_id, dashboard_type_id) makes racing
// attempts converge on the first writer; the loser gets inserted=false
// and no error.
func (r *ScoreRepository) Insert(ctx context.Context, s *types.KPIScore) (inserted bool, err error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO kpi_scores (`+scoreColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (call_id, dashboard_type_id) DO NOTHING`,
		s.ID, s.CallID, s.DashboardTypeID, s.Scores, s.OverallScore, s.Status,
		s.Scorer, s.ErrorMessage, s.ProcessingMs, s.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, apperr.Wrap(err, "insert kpi score")
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ReplaceErrored overwrites an Errored row with a fresh attempt. This
// is the deliberate-reprocess path only; Scored rows are never touched.
func (r *ScoreRepository) ReplaceErrored(ctx context.Context, s *types.KPIScore) (replaced bool, err error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE kpi_scores
		SET scores = $3, overall_score = $4, status = $5, scorer = $6,
		    error_message = $7, processing_time_ms = $8, created_at = $9
		WHERE call_id = $1 AND dashboard_type_id = $2 AND status = $10`,
		s.CallID, s.DashboardTypeID, s.Scores, s.OverallScore, s.Status,
		s.Scorer, s.ErrorMessage, s.ProcessingMs, s.CreatedAt,
		types.ScoreStatusErrored,
	)
	if err != nil {
		return false, apperr.Wrap(err, "replace errored kpi score")
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Get retrieves the score for one pair.
func (r *ScoreRepository) Get(ctx context.Context, callID, dashboardTypeID string) (*types.KPIScore, error) {
	s := &types.KPIScore{}
	err := r.db.GetContext(ctx, s,
		`SELECT `+scoreColumns+` FROM kpi_scores WHERE call_id = $1 AND dashboard_type_id = $2`,
		callID, dashboardTypeID)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(err, "get kpi score")
	}
	return s, nil
}

// ListForCall returns every score row of one call.
func (r *ScoreRepository) ListForCall(ctx context.Context, callID string) ([]types.KPIScore, error) {
	var out []types.KPIScore
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+scoreColumns+` FROM kpi_scores WHERE call_id = $1 ORDER BY created_at ASC`,
		callID)
	if err != nil {
		return nil, apperr.Wrap(err, "list scores for call")
	}
	return out, nil
}

// ListScored returns Scored rows for one dashboard type of a company
// inside a time window, for the aggregates read API.
func (r *ScoreRepository) ListScored(ctx context.Context, companyID, dashboardTypeID string, from, to time.Time) ([]types.KPIScore, error) {
	query := `
		SELECT ` + prefixed("s", scoreColumns) + `
		FROM kpi_scores s
		JOIN calls c ON c.id = s.call_id
		WHERE c.company_id = $1
		  AND s.dashboard_type_id = $2
		  AND s.status = $3
	`
	args := []interface{}{companyID, dashboardTypeID, types.ScoreStatusScored}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND c.call_timestamp >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND c.call_timestamp <= $%d", len(args))
	}
	query += ` ORDER BY s.created_at ASC`

	var out []types.KPIScore
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, apperr.Wrap(err, "list scored")
	}
	return out, nil
}

// ListErrored returns Errored rows of a company, for operator review
// and reprocessing.
func (r *ScoreRepository) ListErrored(ctx context.Context, companyID string) ([]types.KPIScore, error) {
	var out []types.KPIScore
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+prefixed("s", scoreColumns)+`
		FROM kpi_scores s
		JOIN calls c ON c.id = s.call_id
		WHERE c.company_id = $1 AND s.status = $2
		ORDER BY s.created_at ASC`,
		companyID, types.ScoreStatusErrored)
	if err != nil {
		return nil, apperr.Wrap(err, "list errored")
	}
	return out, nil
}
