// Package worker runs the asynchronous half of the pipeline: a
// periodic scan for unscored (call, dashboard type) pairs feeding a
// bounded scoring pool, plus a nightly full agent-metric recompute.
// Stages hand off through persisted state only, so a crash between
// ingestion and scoring is recovered by the next scan.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"call-scoring-go/internal/aggregate"
	"call-scoring-go/internal/config"
	"call-scoring-go/internal/logger"
	"call-scoring-go/internal/registry"
	"call-scoring-go/internal/scoring"
	"call-scoring-go/internal/store"
	"call-scoring-go/internal/types"
)

type Scanner struct {
	calls    *store.CallRepository
	registry *registry.Registry
	engine   *scoring.Engine
	agg      *aggregate.Service
	cfg      config.ScoringConfig
	log      *logrus.Entry

	// one in-flight scan per process
	scanning atomic.Bool
}

func NewScanner(calls *store.CallRepository, reg *registry.Registry, engine *scoring.Engine, agg *aggregate.Service, cfg config.ScoringConfig) *Scanner {
	return &Scanner{
		calls:    calls,
		registry: reg,
		engine:   engine,
		agg:      agg,
		cfg:      cfg,
		log:      logger.Component("scan-worker"),
	}
}

// Start wires the scan and the nightly rollup into a cron runner and
// starts it. The returned cron is stopped by the caller on shutdown.
func (s *Scanner) Start(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.ScanInterval), func() {
		if err := s.Scan(ctx); err != nil {
			s.log.WithError(err).Error("scan failed")
		}
	})
	if err != nil {
		return nil, err
	}
	_, err = c.AddFunc("@daily", func() {
		if err := s.RecomputeAll(ctx); err != nil {
			s.log.WithError(err).Error("nightly rollup failed")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	s.log.WithField("interval", s.cfg.ScanInterval.String()).Info("scan worker started")
	return c, nil
}

// Scan performs one pass over unscored pairs. A scan already in flight
// makes this a no-op; pairs run concurrently, with actual scoring
// bounded by the engine's worker pool, so one hung LLM call never
// blocks unrelated pairs.
func (s *Scanner) Scan(ctx context.Context) error {
	if !s.scanning.CompareAndSwap(false, true) {
		s.log.Debug("scan already in flight, skipping")
		return nil
	}
	defer s.scanning.Store(false)

	pairs, err := s.calls.ListUnscoredPairs(ctx, s.cfg.ScanLimit)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return nil
	}
	s.log.WithField("pairs", len(pairs)).Info("scoring unscored pairs")

	// dashboard types repeat across pairs; hydrate each once per scan
	dtCache := map[string]*types.DashboardType{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, pair := range pairs {
		wg.Add(1)
		go func(p store.ScoringPair) {
			defer wg.Done()

			call, err := s.calls.GetByID(ctx, p.CallID)
			if err != nil {
				s.log.WithError(err).WithField("call_id", p.CallID).Error("load call failed")
				return
			}

			mu.Lock()
			dt, ok := dtCache[p.DashboardTypeID]
			if !ok {
				dt, err = s.registry.GetByID(ctx, p.DashboardTypeID)
				if err == nil {
					dtCache[p.DashboardTypeID] = dt
				}
			}
			mu.Unlock()
			if err != nil {
				s.log.WithError(err).WithField("dashboard_type_id", p.DashboardTypeID).Error("load dashboard type failed")
				return
			}

			if _, err := s.engine.ScorePair(ctx, call, dt, false); err != nil {
				s.log.WithError(err).WithField("call_id", p.CallID).Error("score pair failed")
			}
		}(pair)
	}
	wg.Wait()
	return nil
}

// RecomputeAll rebuilds agent metrics for every company with calls.
func (s *Scanner) RecomputeAll(ctx context.Context) error {
	companies, err := s.calls.CompanyIDs(ctx)
	if err != nil {
		return err
	}
	for _, companyID := range companies {
		if err := s.agg.RecomputeCompany(ctx, companyID); err != nil {
			s.log.WithError(err).WithField("company_id", companyID).Error("company rollup failed")
		}
	}
	return nil
}
