// Package callmetrics derives quantitative conversation metrics from a
// call's sentiment samples. Pure and synchronous; the normalizer
// attaches the output to the Call before persistence.
package callmetrics

import (
	"regexp"
	"sort"
	"strconv"

	"call-scoring-go/internal/types"
)

// Bucket thresholds for a [0,1] sentiment score.
const (
	negativeBelow = 0.4
	positiveAbove = 0.6
)

var negativeLabels = map[string]bool{
	"negative": true, "angry": true, "frustrated": true, "upset": true,
}

var positiveLabels = map[string]bool{
	"positive": true, "happy": true, "satisfied": true, "pleased": true,
}

// Metrics is the derived-field bundle recomputed together.
type Metrics struct {
	SentimentScore float64 // 0-100, time-weighted
	Label          string  // majority vote
	RecoveryRate   float64 // 0-100
	Satisfaction   float64 // 0-10
}

// Derive computes all conversation metrics from the sentiment samples.
func Derive(samples []types.SentimentSample) Metrics {
	score := TimeWeightedSentiment(samples)
	return Metrics{
		SentimentScore: score,
		Label:          MajorityLabel(samples),
		RecoveryRate:   RecoveryRate(samples),
		Satisfaction:   score / 10,
	}
}

// TimeWeightedSentiment averages sample scores weighted by the duration
// each sample covers (minimum 1 second when the range is unparsable),
// normalized to [0,100]. Falls back to the unweighted mean when no
// range parses at all.
func TimeWeightedSentiment(samples []types.SentimentSample) float64 {
	if len(samples) == 0 {
		return 0
	}

	anyParsed := false
	var weighted, totalWeight float64
	for _, s := range samples {
		w := 1.0
		if start, end, ok := ParseTimeRange(s.TimeRange); ok {
			anyParsed = true
			if d := end - start; d > 1 {
				w = d
			}
		}
		weighted += s.Score * w
		totalWeight += w
	}

	if !anyParsed {
		sum := 0.0
		for _, s := range samples {
			sum += s.Score
		}
		return sum / float64(len(samples)) * 100
	}
	return weighted / totalWeight * 100
}

// RecoveryRate is the percentage of negative moments immediately
// followed by a positive one (one-step lookahead over chronologically
// sorted samples). 100 when there are no negative samples.
func RecoveryRate(samples []types.SentimentSample) float64 {
	sorted := chronological(samples)

	negatives, recovered := 0, 0
	for i, s := range sorted {
		if !isNegative(s) {
			continue
		}
		negatives++
		if i+1 < len(sorted) && isPositive(sorted[i+1]) {
			recovered++
		}
	}
	if negatives == 0 {
		return 100
	}
	return float64(recovered) / float64(negatives) * 100
}

// MajorityLabel buckets every sample and returns the most common
// bucket; ties resolve to neutral.
func MajorityLabel(samples []types.SentimentSample) string {
	if len(samples) == 0 {
		return types.SentimentNeutral
	}
	counts := map[string]int{}
	for _, s := range samples {
		counts[bucket(s)]++
	}
	pos, neu, neg := counts[types.SentimentPositive], counts[types.SentimentNeutral], counts[types.SentimentNegative]
	switch {
	case pos > neu && pos > neg:
		return types.SentimentPositive
	case neg > neu && neg > pos:
		return types.SentimentNegative
	default:
		return types.SentimentNeutral
	}
}

// LabelForScore buckets a single [0,1] score.
func LabelForScore(score float64) string {
	switch {
	case score < negativeBelow:
		return types.SentimentNegative
	case score > positiveAbove:
		return types.SentimentPositive
	default:
		return types.SentimentNeutral
	}
}

func bucket(s types.SentimentSample) string {
	if isNegative(s) {
		return types.SentimentNegative
	}
	if isPositive(s) {
		return types.SentimentPositive
	}
	return types.SentimentNeutral
}

func isNegative(s types.SentimentSample) bool {
	return s.Score < negativeBelow || negativeLabels[s.Label]
}

func isPositive(s types.SentimentSample) bool {
	return s.Score > positiveAbove || positiveLabels[s.Label]
}

// chronological returns the samples stable-sorted by parsed range
// start; samples without a parsable range sort as 0, keeping their
// original relative order.
func chronological(samples []types.SentimentSample) []types.SentimentSample {
	type keyed struct {
		sample types.SentimentSample
		start  float64
	}
	keyedSamples := make([]keyed, len(samples))
	for i, s := range samples {
		start, _, _ := ParseTimeRange(s.TimeRange)
		keyedSamples[i] = keyed{sample: s, start: start}
	}
	sort.SliceStable(keyedSamples, func(i, j int) bool {
		return keyedSamples[i].start < keyedSamples[j].start
	})
	sorted := make([]types.SentimentSample, len(samples))
	for i, k := range keyedSamples {
		sorted[i] = k.sample
	}
	return sorted
}

var timeRangeRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})-(\d{1,2}):(\d{2})$`)

// ParseTimeRange parses "MM:SS-MM:SS" into start/end seconds.
func ParseTimeRange(r string) (start, end float64, ok bool) {
	m := timeRangeRe.FindStringSubmatch(r)
	if m == nil {
		return 0, 0, false
	}
	sm, _ := strconv.Atoi(m[1])
	ss, _ := strconv.Atoi(m[2])
	em, _ := strconv.Atoi(m[3])
	es, _ := strconv.Atoi(m[4])
	start = float64(sm*60 + ss)
	end = float64(em*60 + es)
	if end < start {
		return 0, 0, false
	}
	return start, end, true
}
