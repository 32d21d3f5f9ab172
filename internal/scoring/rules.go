package scoring

import (
	"context"
	"regexp"
	"strings"

	"call-scoring-go/internal/types"
)

// RuleScorer is the deterministic fallback: keyword and phrase
// heuristics over the transcript produce a small set of named signals
// in [0,1], which are mapped onto KPI definitions by key and scaled
// into each definition's range. It substitutes for the LLM path when
// no profile is configured or the API key cannot be decrypted, and is
// independently testable.
type RuleScorer struct{}

func NewRuleScorer() *RuleScorer { return &RuleScorer{} }

func (s *RuleScorer) Name() string { return ScorerRules }

var (
	empathyRe = regexp.MustCompile(`(?i)\b(i understand|i'm sorry|i apologi[sz]e|i hear you|that must be|completely understand|i appreciate)\b`)
	promiseRe = regexp.MustCompile(`(?i)\b(i will pay|promise to pay|set up a payment|payment plan|pay by|arrange(?:d)? (?:a )?payment)\b`)
	riskRe    = regexp.MustCompile(`(?i)\b(lawsuit|attorney|lawyer|complaint|regulator|harass|threaten|record(?:ing)? this call without)\b`)
	resolveRe = regexp.MustCompile(`(?i)\b(resolved|fixed|sorted|all set|taken care of|issue is closed|that solves)\b`)
	politeRe  = regexp.MustCompile(`(?i)\b(please|thank you|thanks|you're welcome|have a (?:good|great|nice) day)\b`)
)

// Signal names a KPI key is matched against.
const (
	signalEmpathy    = "empathy"
	signalPromise    = "promise"
	signalCompliance = "compliance"
	signalResolution = "resolution"
	signalPoliteness = "politeness"
	signalSentiment  = "sentiment"
)

func (s *RuleScorer) Score(_ context.Context, call *types.Call, dt *types.DashboardType) (types.ScoreMap, error) {
	signals := s.signals(call)

	out := types.ScoreMap{}
	for _, d := range dt.KPIs {
		sig := signalFor(d.Key)
		out[d.Key] = d.MinValue + (d.MaxValue-d.MinValue)*signals[sig]
	}
	return out, nil
}

// signals derives all heuristic signals from one call.
func (s *RuleScorer) signals(call *types.Call) map[string]float64 {
	text := call.Transcript
	turns := len(call.Segments)
	if turns == 0 {
		turns = 1
	}

	sentiment := call.SentimentScore / 100
	signals := map[string]float64{
		signalEmpathy:    density(empathyRe, text, turns),
		signalPromise:    density(promiseRe, text, turns),
		signalResolution: density(resolveRe, text, turns),
		signalPoliteness: density(politeRe, text, turns),
		signalSentiment:  sentiment,
	}
	// compliance starts clean and loses ground per risk phrase
	signals[signalCompliance] = 1 - density(riskRe, text, turns)

	// resolution flag from derivation trumps phrase matching
	if call.Resolved != nil && *call.Resolved {
		signals[signalResolution] = 1
	}
	return signals
}

// density converts a match count into [0,1], saturating at one match
// per four speaker turns.
func density(re *regexp.Regexp, text string, turns int) float64 {
	matches := len(re.FindAllStringIndex(text, -1))
	saturation := float64(turns)/4 + 1
	d := float64(matches) / saturation
	if d > 1 {
		d = 1
	}
	return d
}

// signalFor maps a KPI key onto the signal that scores it; keys with
// no recognizable hint fall back to the sentiment signal.
func signalFor(key string) string {
	k := strings.ToLower(key)
	switch {
	case strings.Contains(k, "empath"):
		return signalEmpathy
	case strings.Contains(k, "promise") || strings.Contains(k, "payment") || strings.Contains(k, "collect"):
		return signalPromise
	case strings.Contains(k, "complian") || strings.Contains(k, "risk"):
		return signalCompliance
	case strings.Contains(k, "resol") || strings.Contains(k, "outcome"):
		return signalResolution
	case strings.Contains(k, "polite") || strings.Contains(k, "courtesy") || strings.Contains(k, "professional"):
		return signalPoliteness
	default:
		return signalSentiment
	}
}
