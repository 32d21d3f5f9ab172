package scoring

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"call-scoring-go/internal/apperr"
	"call-scoring-go/internal/logger"
	"call-scoring-go/internal/types"
)

// CallSource loads calls for scoring. *store.CallRepository implements it.
type CallSource interface {
	GetByID(ctx context.Context, id string) (*types.Call, error)
}

// ScoreStore persists scoring results. *store.ScoreRepository implements it.
type ScoreStore interface {
	Get(ctx context.Context, callID, dashboardTypeID string) (*types.KPIScore, error)
	Insert(ctx context.Context, s *types.KPIScore) (bool, error)
	ReplaceErrored(ctx context.Context, s *types.KPIScore) (bool, error)
}

// TypeSource resolves dashboard types. *registry.Registry implements it.
type TypeSource interface {
	ApplicableTypes(ctx context.Context, companyID, campaignType string) ([]types.DashboardType, error)
	GetByID(ctx context.Context, id string) (*types.DashboardType, error)
}

// Engine drives the per-pair state machine:
// Unscored -> Scoring -> {Scored | Errored}. A pair with any persisted
// row is never re-entered except through the deliberate reprocess
// path, and the unique constraint on (call_id, dashboard_type_id)
// backstops races under at-least-once redelivery.
type Engine struct {
	calls    CallSource
	scores   ScoreStore
	registry TypeSource
	llm      Scorer
	rules    Scorer
	log      *logrus.Entry

	// sem bounds concurrent scoring across every entry point: the
	// webhook's inline kick, the periodic scan and operator reprocess
	// all draw from the same pool.
	sem chan struct{}

	// onScored fires after a Scored row lands for a call with a known
	// agent; wiring points it at the aggregation service.
	onScored func(ctx context.Context, call *types.Call)
}

func NewEngine(calls CallSource, scores ScoreStore, reg TypeSource, llm, rules Scorer, workers int) *Engine {
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		calls:    calls,
		scores:   scores,
		registry: reg,
		llm:      llm,
		rules:    rules,
		log:      logger.Component("scoring-engine"),
		sem:      make(chan struct{}, workers),
	}
}

// OnScored registers the post-score hook.
func (e *Engine) OnScored(fn func(ctx context.Context, call *types.Call)) {
	e.onScored = fn
}

// ScoreCall scores one call against every applicable dashboard type.
// Types are mutually independent, so they run concurrently; a failure
// on one pair never aborts the others. An empty applicable set means
// nothing to score.
func (e *Engine) ScoreCall(ctx context.Context, call *types.Call) error {
	applicable, err := e.registry.ApplicableTypes(ctx, call.CompanyID, call.CampaignType)
	if err != nil {
		return err
	}
	if len(applicable) == 0 {
		e.log.WithField("call_id", call.ID).Debug("no applicable dashboard types")
		return nil
	}

	var wg sync.WaitGroup
	for i := range applicable {
		dt := &applicable[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.ScorePair(ctx, call, dt, false); err != nil {
				e.log.WithError(err).WithFields(logrus.Fields{
					"call_id":        call.ID,
					"dashboard_type": dt.InternalName,
				}).Error("score pair failed to persist")
			}
		}()
	}
	wg.Wait()
	return nil
}

// ScorePair runs one (call, dashboard type) pair to a terminal row.
// Scorer failures persist an Errored row so the pair is marked
// attempted; the returned error covers persistence problems only.
func (e *Engine) ScorePair(ctx context.Context, call *types.Call, dt *types.DashboardType, reprocess bool) (*types.KPIScore, error) {
	if !reprocess {
		if existing, err := e.scores.Get(ctx, call.ID, dt.ID); err == nil {
			return existing, nil
		} else if !apperr.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}

	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	log := e.log.WithFields(logrus.Fields{
		"call_id":        call.ID,
		"dashboard_type": dt.InternalName,
	})

	start := time.Now()
	raw, scorerName, scoreErr := e.runScorer(ctx, call, dt, log)

	score := &types.KPIScore{
		ID:              uuid.New().String(),
		CallID:          call.ID,
		DashboardTypeID: dt.ID,
		Scorer:          scorerName,
		ProcessingMs:    time.Since(start).Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	}
	if scoreErr != nil {
		score.Status = types.ScoreStatusErrored
		score.ErrorMessage = scoreErr.Error()
		log.WithError(scoreErr).Warn("scoring attempt errored")
	} else {
		score.Scores = Clamp(raw, dt.KPIs)
		score.OverallScore = Overall(score.Scores, dt.KPIs)
		score.Status = types.ScoreStatusScored
	}

	if err := e.persist(ctx, score, reprocess); err != nil {
		return nil, err
	}

	if score.Status == types.ScoreStatusScored {
		log.WithFields(logrus.Fields{
			"overall_score": score.OverallScore,
			"scorer":        score.Scorer,
			"duration_ms":   score.ProcessingMs,
		}).Info("pair scored")
		if call.AgentID != "" && e.onScored != nil {
			e.onScored(ctx, call)
		}
	}
	return score, nil
}

// runScorer picks the LLM path when a profile is configured and falls
// back to rules when the LLM is effectively unconfigured (no profile,
// no API URL, or the stored key fails to decrypt).
func (e *Engine) runScorer(ctx context.Context, call *types.Call, dt *types.DashboardType, log *logrus.Entry) (types.ScoreMap, string, error) {
	if dt.Profile != nil {
		raw, err := e.llm.Score(ctx, call, dt)
		if err == nil {
			return raw, e.llm.Name(), nil
		}
		if apperr.Is(err, apperr.ErrLLMNotConfigured) || apperr.Is(err, apperr.ErrDecryptionFailure) {
			log.WithError(err).Warn("llm unavailable, using rule-based scorer")
		} else {
			return nil, e.llm.Name(), err
		}
	}
	raw, err := e.rules.Score(ctx, call, dt)
	return raw, e.rules.Name(), err
}

func (e *Engine) persist(ctx context.Context, score *types.KPIScore, reprocess bool) error {
	if reprocess {
		replaced, err := e.scores.ReplaceErrored(ctx, score)
		if err != nil {
			return err
		}
		if !replaced {
			// pair was never errored (or already rescored); keep the row that won
			existing, err := e.scores.Get(ctx, score.CallID, score.DashboardTypeID)
			if err != nil {
				return err
			}
			*score = *existing
		}
		return nil
	}

	inserted, err := e.scores.Insert(ctx, score)
	if err != nil {
		return err
	}
	if !inserted {
		// lost the race to a concurrent attempt; converge on its row
		existing, err := e.scores.Get(ctx, score.CallID, score.DashboardTypeID)
		if err != nil {
			return err
		}
		*score = *existing
	}
	return nil
}

// Reprocess is the operator action on an Errored pair: a fresh attempt
// replaces the errored row. A pair with no row is NotFound; a Scored
// row stands unchanged, without spending a scorer call on it.
func (e *Engine) Reprocess(ctx context.Context, callID, dashboardTypeID string) (*types.KPIScore, error) {
	existing, err := e.scores.Get(ctx, callID, dashboardTypeID)
	if err != nil {
		return nil, err
	}
	if existing.Status != types.ScoreStatusErrored {
		return existing, nil
	}

	call, err := e.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	dt, err := e.registry.GetByID(ctx, dashboardTypeID)
	if err != nil {
		return nil, err
	}
	return e.ScorePair(ctx, call, dt, true)
}
