package entitlement_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/entitlement"
)

func testPlans() []entitlement.Plan {
	return []entitlement.Plan{
		{
			ID:         "price_free",
			Name:       "Free",
			UsageLimit: 100,
			SoftLimit:  110,
			Features:   map[string]any{"api": false},
			RateTier:   "free",
			Active:     true,
		},
		{
			ID:         "price_pro_monthly",
			Name:       "Pro",
			UsageLimit: 10000,
			SoftLimit:  12000,
			Features:   map[string]any{"api": true},
			RateTier:   "pro",
			Active:     true,
		},
		{
			ID:         "price_trial",
			Name:       "Trial",
			UsageLimit: 1000,
			SoftLimit:  1100,
			RateTier:   "free",
			TrialDays:  14,
			Active:     true,
		},
		{
			ID:       "price_legacy",
			Name:     "Legacy",
			Active:   false,
			RateTier: "free",
		},
	}
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg, err := entitlement.NewRegistry(context.Background(), entitlement.NewMemorySource(testPlans()...))
	require.NoError(t, err)

	plan, err := reg.Resolve("price_pro_monthly")
	require.NoError(t, err)
	assert.Equal(t, "Pro", plan.Name)
	assert.Equal(t, int64(10000), plan.UsageLimit)

	_, err = reg.Resolve("price_unknown")
	assert.ErrorIs(t, err, entitlement.ErrPlanNotFound)

	_, err = reg.Resolve("price_legacy")
	assert.ErrorIs(t, err, entitlement.ErrPlanNotFound, "inactive plans must not resolve")
}

func TestRegistryRejectsInconsistentPlans(t *testing.T) {
	t.Parallel()

	src := entitlement.NewMemorySource(entitlement.Plan{
		ID:         "price_bad",
		UsageLimit: 100,
		SoftLimit:  50, // grace ceiling below the limit
		Active:     true,
	})

	_, err := entitlement.NewRegistry(context.Background(), src)
	assert.ErrorIs(t, err, entitlement.ErrInvalidPlanConfiguration)
}

func TestMemorySourcePanicsWithoutPlans(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { entitlement.NewMemorySource() })
}

func TestYAMLSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
plans:
  - id: price_free
    name: Free
    usage_limit: 100
    soft_limit: 110
    rate_tier: free
    active: true
    features:
      api: false
  - id: price_pro_monthly
    name: Pro
    usage_limit: -1
    rate_tier: pro
    active: true
    features:
      api: true
`), 0o600))

	reg, err := entitlement.NewRegistry(context.Background(), entitlement.NewYAMLSource(path))
	require.NoError(t, err)

	plan, err := reg.Resolve("price_pro_monthly")
	require.NoError(t, err)
	assert.Equal(t, entitlement.Unlimited, plan.UsageLimit)
	assert.Equal(t, true, plan.Features["api"])
}

func TestYAMLSourceMissingFile(t *testing.T) {
	t.Parallel()

	_, err := entitlement.NewRegistry(context.Background(), entitlement.NewYAMLSource("/nonexistent/plans.yaml"))
	assert.ErrorIs(t, err, entitlement.ErrFailedToLoadPlans)
}

func TestYAMLSourceEmptyCatalog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plans: []\n"), 0o600))

	_, err := entitlement.NewRegistry(context.Background(), entitlement.NewYAMLSource(path))
	assert.ErrorIs(t, err, entitlement.ErrFailedToLoadPlans)
}
