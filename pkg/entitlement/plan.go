package entitlement

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Plan describes a product plan's entitlement defaults. The ID should match
// the billing provider's price ID so webhook payloads map to plans directly.
type Plan struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	UsageLimit int64          `yaml:"usage_limit"` // -1 means unlimited
	SoftLimit  int64          `yaml:"soft_limit"`  // grace ceiling above usage_limit; 0 means none
	Features   map[string]any `yaml:"features"`
	RateTier   string         `yaml:"rate_tier"`  // named rate-limit tier for this plan's API traffic
	TrialDays  int            `yaml:"trial_days"` // free-trial length applied to grants without an explicit valid_until
	Active     bool           `yaml:"active"`     // inactive plans reject new grants but keep existing rows valid
}

// PlanSource defines how plans are loaded into the registry.
type PlanSource interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// Registry is the read-only plan catalog. Plans are loaded once at startup;
// catalog CRUD lives outside this core.
type Registry struct {
	plans map[string]Plan
}

// NewRegistry loads and validates plans from the source.
func NewRegistry(ctx context.Context, src PlanSource) (*Registry, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	for planID, plan := range plans {
		if plan.ID != planID {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", planID, plan.ID))
		}
		if plan.SoftLimit != 0 && plan.UsageLimit != Unlimited && plan.SoftLimit < plan.UsageLimit {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s: soft_limit %d below usage_limit %d", planID, plan.SoftLimit, plan.UsageLimit))
		}
	}

	return &Registry{plans: plans}, nil
}

// Resolve returns the active plan for planID, or ErrPlanNotFound.
func (r *Registry) Resolve(planID string) (Plan, error) {
	plan, ok := r.plans[planID]
	if !ok || !plan.Active {
		return Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

type memorySource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewMemorySource returns an in-memory PlanSource with a copy of the given
// plans. Panics if no plans are provided: a registry without plans would
// reject every grant.
func NewMemorySource(plans ...Plan) PlanSource {
	if len(plans) == 0 {
		panic("at least one plan is required")
	}

	plansCopy := make(map[string]Plan, len(plans))
	for _, plan := range plans {
		plan.Features = maps.Clone(plan.Features)
		plansCopy[plan.ID] = plan
	}

	return &memorySource{plans: plansCopy}
}

// Load returns a copy of all plans so callers cannot mutate source state.
func (s *memorySource) Load(ctx context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plansCopy := make(map[string]Plan, len(s.plans))
	for id, plan := range s.plans {
		plan.Features = maps.Clone(plan.Features)
		plansCopy[id] = plan
	}
	return plansCopy, nil
}

type yamlSource struct {
	path string
}

// NewYAMLSource returns a PlanSource reading a YAML plan catalog file with a
// top-level "plans" list.
func NewYAMLSource(path string) PlanSource {
	return &yamlSource{path: path}
}

func (s *yamlSource) Load(ctx context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if len(doc.Plans) == 0 {
		return nil, fmt.Errorf("no plans defined in %s", s.path)
	}

	plans := make(map[string]Plan, len(doc.Plans))
	for _, plan := range doc.Plans {
		plans[plan.ID] = plan
	}
	return plans, nil
}
