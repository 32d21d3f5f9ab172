// Package registry manages per-company dashboard-type configuration:
// weighted KPI definitions plus the active LLM scoring profile. Weight
// validation happens here, at write time, so invalid configuration
// never reaches the scoring engine.
package registry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"call-scoring-go/internal/apperr"
	"call-scoring-go/internal/logger"
	"call-scoring-go/internal/types"
)

// WeightTolerance is the allowed drift of the KPI weight sum from 100.
const WeightTolerance = 0.01

// DashboardStore is the persistence contract the registry drives.
// *store.DashboardRepository implements it.
type DashboardStore interface {
	Create(ctx context.Context, d *types.DashboardType) error
	ClearDefault(ctx context.Context, companyID string) error
	ActivateProfile(ctx context.Context, p *types.LLMProfile) error
	GetByID(ctx context.Context, id string) (*types.DashboardType, error)
	ApplicableTypes(ctx context.Context, companyID, campaignType string) ([]types.DashboardType, error)
}

type Registry struct {
	repo DashboardStore
	log  *logrus.Entry
}

func New(repo DashboardStore) *Registry {
	return &Registry{
		repo: repo,
		log:  logger.Component("registry"),
	}
}

// Create validates and persists a new dashboard type with its KPI
// definitions and optional initial LLM profile.
func (r *Registry) Create(ctx context.Context, d *types.DashboardType) error {
	if err := Validate(d); err != nil {
		return err
	}

	now := time.Now().UTC()
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.Active = true
	d.CreatedAt = now
	for i := range d.KPIs {
		if d.KPIs[i].ID == "" {
			d.KPIs[i].ID = uuid.New().String()
		}
		d.KPIs[i].DashboardTypeID = d.ID
	}
	if d.Profile != nil {
		if d.Profile.ID == "" {
			d.Profile.ID = uuid.New().String()
		}
		d.Profile.DashboardTypeID = d.ID
		d.Profile.Active = true
		d.Profile.CreatedAt = now
	}

	// at most one default type per company: making this one the
	// default demotes the prior holder
	if d.IsDefault {
		if err := r.repo.ClearDefault(ctx, d.CompanyID); err != nil {
			return err
		}
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{
		"dashboard_type": d.InternalName,
		"company_id":     d.CompanyID,
	}).Info("dashboard type created")
	return nil
}

// ActivateProfile appends a new LLM profile for a type and retires the
// current one.
func (r *Registry) ActivateProfile(ctx context.Context, p *types.LLMProfile) error {
	if p.DashboardTypeID == "" {
		return fmt.Errorf("llm profile missing dashboard type id")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()
	if err := r.repo.ActivateProfile(ctx, p); err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{
		"dashboard_type_id": p.DashboardTypeID,
		"model":             p.Model,
	}).Info("llm profile activated")
	return nil
}

// ApplicableTypes is the read contract the scoring engine consumes:
// active types matching the call's campaign type, hydrated with KPI
// definitions and active profile. Empty means nothing to score.
func (r *Registry) ApplicableTypes(ctx context.Context, companyID, campaignType string) ([]types.DashboardType, error) {
	return r.repo.ApplicableTypes(ctx, companyID, campaignType)
}

// GetByID loads one hydrated dashboard type.
func (r *Registry) GetByID(ctx context.Context, id string) (*types.DashboardType, error) {
	return r.repo.GetByID(ctx, id)
}

// Validate enforces the dashboard-type invariants: exactly 8 KPI
// definitions with distinct keys and value ranges, weights summing to
// 100 within tolerance.
func Validate(d *types.DashboardType) error {
	if d.CompanyID == "" || d.InternalName == "" {
		return fmt.Errorf("dashboard type requires company id and internal name")
	}
	if len(d.KPIs) != types.KPIDefinitionsPerType {
		return apperr.Wrapf(apperr.ErrWeightConfiguration,
			"expected %d kpi definitions, got %d", types.KPIDefinitionsPerType, len(d.KPIs))
	}

	sum := 0.0
	keys := map[string]bool{}
	for _, k := range d.KPIs {
		if k.Key == "" {
			return apperr.Wrap(apperr.ErrWeightConfiguration, "kpi definition missing key")
		}
		if keys[k.Key] {
			return apperr.Wrapf(apperr.ErrWeightConfiguration, "duplicate kpi key %q", k.Key)
		}
		keys[k.Key] = true
		if k.Weight < 0 || k.Weight > 100 {
			return apperr.Wrapf(apperr.ErrWeightConfiguration, "kpi %q weight %.2f out of range", k.Key, k.Weight)
		}
		if k.MinValue >= k.MaxValue {
			return apperr.Wrapf(apperr.ErrWeightConfiguration, "kpi %q has empty value range", k.Key)
		}
		sum += k.Weight
	}
	if math.Abs(sum-100) > WeightTolerance {
		return apperr.Wrapf(apperr.ErrWeightConfiguration, "weights sum to %.2f", sum)
	}
	return nil
}
