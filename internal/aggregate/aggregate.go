// Package aggregate maintains the per-agent rollup: full recompute
// over all of an agent's calls into one AgentMetric row, so partial
// failure histories can never leave the projection inconsistent.
package aggregate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"call-scoring-go/internal/callmetrics"
	"call-scoring-go/internal/logger"
	"call-scoring-go/internal/store"
	"call-scoring-go/internal/types"
)

// Composite Performance Index weights.
const (
	cpiCSATWeight      = 0.50
	cpiRecoveryWeight  = 0.35
	cpiSentimentWeight = 0.15
)

const topTopicCount = 5

type Service struct {
	calls   *store.CallRepository
	metrics *store.AgentMetricRepository
	log     *logrus.Entry

	// one mutex per (company, agent): rollup must serialize with
	// itself per agent, while different agents recompute concurrently.
	locks sync.Map
}

func NewService(calls *store.CallRepository, metrics *store.AgentMetricRepository) *Service {
	return &Service{
		calls:   calls,
		metrics: metrics,
		log:     logger.Component("aggregate"),
	}
}

// Recompute rebuilds one agent's metrics from scratch. Agents with
// zero qualifying calls are skipped, never written as zeroed rows.
func (s *Service) Recompute(ctx context.Context, companyID, agentID string) error {
	if agentID == "" {
		return nil
	}
	mu := s.lockFor(companyID, agentID)
	mu.Lock()
	defer mu.Unlock()

	agentCalls, err := s.calls.ListByAgent(ctx, companyID, agentID)
	if err != nil {
		return err
	}
	if len(agentCalls) == 0 {
		s.log.WithField("agent_id", agentID).Debug("no qualifying calls, skipping rollup")
		return nil
	}

	metric := Compute(companyID, agentID, agentCalls)
	if err := s.metrics.Upsert(ctx, metric); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"agent_id":    agentID,
		"total_calls": metric.TotalCalls,
		"cpi":         metric.CompositePerformanceIndex,
		"grade":       metric.PerformanceGrade,
	}).Info("agent metrics recomputed")
	return nil
}

// RecomputeCompany rebuilds every agent of a company, the on-demand
// "recompute all" path.
func (s *Service) RecomputeCompany(ctx context.Context, companyID string) error {
	agentIDs, err := s.calls.AgentIDs(ctx, companyID)
	if err != nil {
		return err
	}
	for _, agentID := range agentIDs {
		if err := s.Recompute(ctx, companyID, agentID); err != nil {
			s.log.WithError(err).WithField("agent_id", agentID).Error("agent recompute failed")
		}
	}
	return nil
}

func (s *Service) lockFor(companyID, agentID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(companyID+"/"+agentID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Compute derives the full metric set from an agent's calls. Pure.
func Compute(companyID, agentID string, calls []types.Call) *types.AgentMetric {
	var (
		durationSum, sentimentSum, costSum, satisfactionSum float64
		recoverySum                                         float64
		recoveryCount                                       int
		resolvedTrue, resolvedKnown                         int
		labelled, positive                                  int
	)
	topicCounts := map[string]int{}
	distribution := types.CountMap{}
	agentName := ""

	for _, c := range calls {
		durationSum += float64(c.DurationSeconds)
		sentimentSum += c.SentimentScore
		costSum += c.Cost
		satisfactionSum += c.SatisfactionScore
		if c.AgentName != "" {
			agentName = c.AgentName
		}

		rate := c.RecoveryRate
		if rate == 0 && len(c.Sentiments) > 0 {
			rate = callmetrics.RecoveryRate(c.Sentiments)
		}
		if len(c.Sentiments) > 0 || c.RecoveryRate > 0 {
			recoverySum += rate
			recoveryCount++
		}

		if c.Resolved != nil {
			resolvedKnown++
			if *c.Resolved {
				resolvedTrue++
			}
		}

		if c.SentimentLabel != "" {
			labelled++
			distribution[c.SentimentLabel]++
			if c.SentimentLabel == types.SentimentPositive {
				positive++
			}
		}
		for _, t := range c.Topics {
			topicCounts[t]++
		}
	}

	n := float64(len(calls))
	metric := &types.AgentMetric{
		CompanyID:             companyID,
		AgentID:               agentID,
		AgentName:             agentName,
		TotalCalls:            len(calls),
		AverageDuration:       durationSum / n,
		AverageSentiment:      sentimentSum / n / 10, // 0-10 scale
		AverageCost:           costSum / n,
		AverageSatisfaction:   satisfactionSum / n,
		TopTopics:             topTopics(topicCounts),
		SentimentDistribution: distribution,
		LastUpdated:           time.Now().UTC(),
	}
	if resolvedKnown > 0 {
		metric.ResolutionRate = float64(resolvedTrue) / float64(resolvedKnown) * 100
	}
	if recoveryCount > 0 {
		metric.RecoveryRate = recoverySum / float64(recoveryCount)
	}
	if labelled > 0 {
		metric.CSAT = float64(positive) / float64(labelled) * 100
	}

	metric.CompositePerformanceIndex = CPI(metric.CSAT, metric.RecoveryRate, metric.AverageSentiment)
	metric.PerformanceGrade = Grade(metric.CompositePerformanceIndex)
	return metric
}

// CPI is 0.50*CSAT + 0.35*RecoveryRate + 0.15*(AverageSentiment*10),
// with AverageSentiment on a 0-10 scale.
func CPI(csat, recoveryRate, averageSentiment float64) float64 {
	return cpiCSATWeight*csat + cpiRecoveryWeight*recoveryRate + cpiSentimentWeight*averageSentiment*10
}

// Grade maps a CPI onto the letter ladder.
func Grade(cpi float64) string {
	switch {
	case cpi >= 90:
		return "A+"
	case cpi >= 85:
		return "A"
	case cpi >= 80:
		return "A-"
	case cpi >= 75:
		return "B+"
	case cpi >= 70:
		return "B"
	case cpi >= 65:
		return "B-"
	case cpi >= 60:
		return "C+"
	case cpi >= 55:
		return "C"
	case cpi >= 50:
		return "C-"
	default:
		return "D"
	}
}

func topTopics(counts map[string]int) types.StringList {
	type tc struct {
		topic string
		count int
	}
	var arr []tc
	for t, c := range counts {
		arr = append(arr, tc{t, c})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].count != arr[j].count {
			return arr[i].count > arr[j].count
		}
		return arr[i].topic < arr[j].topic
	})
	var out types.StringList
	for i := 0; i < len(arr) && i < topTopicCount; i++ {
		out = append(out, arr[i].topic)
	}
	return out
}
