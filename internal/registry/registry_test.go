package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-scoring-go/internal/apperr"
	"call-scoring-go/internal/types"
)

// fakeStore is an in-memory DashboardStore.
type fakeStore struct {
	created       []*types.DashboardType
	clearedFor    []string
	clearDefaults int
}

func (f *fakeStore) Create(_ context.Context, d *types.DashboardType) error {
	f.created = append(f.created, d)
	return nil
}

func (f *fakeStore) ClearDefault(_ context.Context, companyID string) error {
	f.clearDefaults++
	f.clearedFor = append(f.clearedFor, companyID)
	for _, d := range f.created {
		if d.CompanyID == companyID {
			d.IsDefault = false
		}
	}
	return nil
}

func (f *fakeStore) ActivateProfile(_ context.Context, _ *types.LLMProfile) error { return nil }

func (f *fakeStore) GetByID(_ context.Context, _ string) (*types.DashboardType, error) {
	return nil, apperr.ErrNotFound
}

func (f *fakeStore) ApplicableTypes(_ context.Context, _, _ string) ([]types.DashboardType, error) {
	return nil, nil
}

func validType() *types.DashboardType {
	dt := &types.DashboardType{
		CompanyID:    "co-1",
		InternalName: "collections_default",
		DisplayName:  "Collections",
	}
	for i := 0; i < types.KPIDefinitionsPerType; i++ {
		dt.KPIs = append(dt.KPIs, types.KPIDefinition{
			Key:         fmt.Sprintf("kpi_%d", i),
			DisplayName: fmt.Sprintf("KPI %d", i),
			Weight:      12.5,
			MinValue:    0,
			MaxValue:    10,
		})
	}
	return dt
}

func TestValidate(t *testing.T) {
	t.Run("accepts weights summing to 100", func(t *testing.T) {
		assert.NoError(t, Validate(validType()))
	})

	t.Run("accepts sum within tolerance", func(t *testing.T) {
		dt := validType()
		dt.KPIs[0].Weight = 12.505
		dt.KPIs[1].Weight = 12.495
		assert.NoError(t, Validate(dt))
	})

	t.Run("rejects sum outside tolerance", func(t *testing.T) {
		dt := validType()
		dt.KPIs[0].Weight = 13.0
		assert.ErrorIs(t, Validate(dt), apperr.ErrWeightConfiguration)
	})

	t.Run("rejects wrong kpi count", func(t *testing.T) {
		dt := validType()
		dt.KPIs = dt.KPIs[:7]
		assert.ErrorIs(t, Validate(dt), apperr.ErrWeightConfiguration)
	})

	t.Run("rejects duplicate keys", func(t *testing.T) {
		dt := validType()
		dt.KPIs[1].Key = dt.KPIs[0].Key
		assert.ErrorIs(t, Validate(dt), apperr.ErrWeightConfiguration)
	})

	t.Run("rejects empty value range", func(t *testing.T) {
		dt := validType()
		dt.KPIs[2].MaxValue = dt.KPIs[2].MinValue
		assert.ErrorIs(t, Validate(dt), apperr.ErrWeightConfiguration)
	})

	t.Run("rejects missing company or name", func(t *testing.T) {
		dt := validType()
		dt.CompanyID = ""
		assert.Error(t, Validate(dt))
	})
}

func TestCreate(t *testing.T) {
	t.Run("rejects invalid weights before persisting", func(t *testing.T) {
		fs := &fakeStore{}
		dt := validType()
		dt.KPIs[0].Weight = 99
		assert.ErrorIs(t, New(fs).Create(context.Background(), dt), apperr.ErrWeightConfiguration)
		assert.Empty(t, fs.created)
	})

	t.Run("new default demotes the prior default", func(t *testing.T) {
		fs := &fakeStore{}
		reg := New(fs)

		first := validType()
		first.IsDefault = true
		require.NoError(t, reg.Create(context.Background(), first))

		second := validType()
		second.InternalName = "collections_v2"
		second.IsDefault = true
		require.NoError(t, reg.Create(context.Background(), second))

		assert.Equal(t, []string{"co-1", "co-1"}, fs.clearedFor)
		defaults := 0
		for _, d := range fs.created {
			if d.IsDefault {
				defaults++
			}
		}
		assert.Equal(t, 1, defaults)
		assert.True(t, second.IsDefault)
	})

	t.Run("non-default type leaves the default alone", func(t *testing.T) {
		fs := &fakeStore{}
		require.NoError(t, New(fs).Create(context.Background(), validType()))
		assert.Zero(t, fs.clearDefaults)
	})

	t.Run("fills ids and activates", func(t *testing.T) {
		fs := &fakeStore{}
		dt := validType()
		require.NoError(t, New(fs).Create(context.Background(), dt))
		assert.NotEmpty(t, dt.ID)
		assert.True(t, dt.Active)
		for _, k := range dt.KPIs {
			assert.Equal(t, dt.ID, k.DashboardTypeID)
		}
	})
}

func TestAppliesTo(t *testing.T) {
	sales := "sales"
	empty := ""

	t.Run("nil filter applies to every campaign type", func(t *testing.T) {
		dt := &types.DashboardType{CampaignTypeFilter: nil}
		assert.True(t, dt.AppliesTo("sales"))
		assert.True(t, dt.AppliesTo(""))
	})

	t.Run("empty filter applies to every campaign type", func(t *testing.T) {
		dt := &types.DashboardType{CampaignTypeFilter: &empty}
		assert.True(t, dt.AppliesTo("support"))
	})

	t.Run("set filter applies only to its campaign type", func(t *testing.T) {
		dt := &types.DashboardType{CampaignTypeFilter: &sales}
		assert.True(t, dt.AppliesTo("sales"))
		assert.False(t, dt.AppliesTo("support"))
		assert.False(t, dt.AppliesTo(""))
	})
}
