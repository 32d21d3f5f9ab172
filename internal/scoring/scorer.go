// Package scoring computes per-call KPI scores for every applicable
// dashboard type, through an LLM-backed scorer or a rule-based
// fallback implementing the same interface.
package scoring

import (
	"context"

	"call-scoring-go/internal/types"
)

// Scorer produces raw per-KPI scores for one call against one
// dashboard type. Implementations return only the keys they can
// score; the engine clamps values and weights the overall score over
// the keys actually present.
type Scorer interface {
	Name() string
	Score(ctx context.Context, call *types.Call, dt *types.DashboardType) (types.ScoreMap, error)
}

// Scorer names recorded on persisted score rows.
const (
	ScorerLLM   = "llm"
	ScorerRules = "rules"
)

// Clamp forces each returned value into its KPI definition's range.
// Keys without a definition are dropped; out-of-range values are
// clamped, never rejected.
func Clamp(scores types.ScoreMap, defs []types.KPIDefinition) types.ScoreMap {
	byKey := map[string]types.KPIDefinition{}
	for _, d := range defs {
		byKey[d.Key] = d
	}
	out := types.ScoreMap{}
	for key, v := range scores {
		def, ok := byKey[key]
		if !ok {
			continue
		}
		if v < def.MinValue {
			v = def.MinValue
		}
		if v > def.MaxValue {
			v = def.MaxValue
		}
		out[key] = v
	}
	return out
}

// Overall is the weighted average over the keys present, so a response
// missing some KPIs degrades gracefully instead of zeroing the score.
func Overall(scores types.ScoreMap, defs []types.KPIDefinition) float64 {
	var weighted, totalWeight float64
	for _, d := range defs {
		v, ok := scores[d.Key]
		if !ok {
			continue
		}
		weighted += v * d.Weight
		totalWeight += d.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weighted / totalWeight
}
