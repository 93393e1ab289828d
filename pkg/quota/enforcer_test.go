package quota

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/plans"
	"github.com/voceacampusului/vocea/pkg/projects"
)

type staticResolver struct {
	tier plans.Tier
	err  error
}

func (r staticResolver) Resolve(ctx context.Context, userID string) (plans.Tier, error) {
	return r.tier, r.err
}

// memoryProjects mirrors the locked check-and-insert of the Postgres store.
type memoryProjects struct {
	mu      sync.Mutex
	active  map[string]int
	created []*projects.Project
}

func newMemoryProjects() *memoryProjects {
	return &memoryProjects{active: make(map[string]int)}
}

func (m *memoryProjects) CountActive(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[userID], nil
}

func (m *memoryProjects) CreateWithinLimit(ctx context.Context, p *projects.Project, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit != plans.Unlimited && m.active[p.UserID] >= limit {
		return &projects.LimitExceededError{Active: m.active[p.UserID], Limit: limit}
	}
	m.active[p.UserID]++
	p.IsActive = true
	m.created = append(m.created, p)
	return nil
}

func newTestEnforcer(tier plans.Tier, store ProjectStore) *Enforcer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewEnforcer(staticResolver{tier: tier}, plans.DefaultCatalog(), store, Config{}, nil, logger)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name          string
		limit, active int
		wantAllowed   bool
		wantRemaining int
	}{
		{"basic", 0, 0, false, 0},
		{"bronze empty", 2, 0, true, 2},
		{"bronze one left", 2, 1, true, 1},
		{"bronze full", 2, 2, false, 0},
		{"over limit after downgrade", 2, 4, false, 0},
		{"premium", 4, 3, true, 1},
		{"gold", plans.Unlimited, 1000, true, plans.Unlimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.limit, tt.active)
			assert.Equal(t, tt.wantAllowed, d.Allowed)
			assert.Equal(t, tt.wantRemaining, d.Remaining)
		})
	}
}

func TestQuotaMonotonicity(t *testing.T) {
	// For every tier and every active count: remaining never negative,
	// allowed iff remaining > 0, and Gold always allowed.
	catalog := plans.DefaultCatalog()
	for _, tier := range plans.Tiers() {
		for active := 0; active <= 10; active++ {
			d := Evaluate(catalog.QuotaFor(tier), active)
			if tier == plans.TierGold {
				assert.True(t, d.Allowed)
				continue
			}
			assert.GreaterOrEqual(t, d.Remaining, 0)
			assert.Equal(t, d.Remaining > 0, d.Allowed)
			assert.Equal(t, max(catalog.QuotaFor(tier)-active, 0), d.Remaining)
		}
	}
}

func TestCanCreateProject(t *testing.T) {
	store := newMemoryProjects()
	store.active["u1"] = 1

	d, err := newTestEnforcer(plans.TierBronze, store).CanCreateProject(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, plans.TierBronze, d.Tier)
	assert.Equal(t, 2, d.Limit)
}

func TestCanCreateProjectBronzeAtLimit(t *testing.T) {
	store := newMemoryProjects()
	store.active["u1"] = 2

	d, err := newTestEnforcer(plans.TierBronze, store).CanCreateProject(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestCanCreateProjectResolverError(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	e := NewEnforcer(staticResolver{err: apperrors.NotFound("USER_NOT_FOUND", "user not found")},
		plans.DefaultCatalog(), newMemoryProjects(), Config{}, nil, logger)

	_, err := e.CanCreateProject(context.Background(), "ghost")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCreateProjectBasicDenied(t *testing.T) {
	store := newMemoryProjects()
	_, err := newTestEnforcer(plans.TierBasic, store).CreateProject(context.Background(), "u1",
		&projects.CreateRequest{Title: "Meditatii"})

	assert.True(t, apperrors.IsForbidden(err))
	assert.Equal(t, CodeQuotaExceeded, apperrors.CodeOf(err))
	assert.Empty(t, store.created)
}

func TestCreateProjectDefaultsExpiry(t *testing.T) {
	store := newMemoryProjects()
	e := newTestEnforcer(plans.TierPremium, store)
	fixed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	p, err := e.CreateProject(context.Background(), "u1", &projects.CreateRequest{Title: "Meditatii"})
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(DefaultProjectLifetime), p.ExpiresAt)
	assert.NotEmpty(t, p.ID)
	assert.True(t, p.IsActive)
}

func TestCreateProjectRejectsPastExpiry(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	_, err := newTestEnforcer(plans.TierGold, newMemoryProjects()).CreateProject(context.Background(), "u1",
		&projects.CreateRequest{Title: "Meditatii", ExpiresAt: &past})
	assert.True(t, apperrors.IsValidation(err))
}

func TestCreateProjectStoreError(t *testing.T) {
	e := newTestEnforcer(plans.TierGold, failingProjects{})
	_, err := e.CreateProject(context.Background(), "u1", &projects.CreateRequest{Title: "Meditatii"})
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
}

type failingProjects struct{}

func (failingProjects) CountActive(ctx context.Context, userID string) (int, error) {
	return 0, errors.New("down")
}

func (failingProjects) CreateWithinLimit(ctx context.Context, p *projects.Project, limit int) error {
	return errors.New("down")
}

func TestConcurrentCreatesNeverExceedQuota(t *testing.T) {
	store := newMemoryProjects()
	e := newTestEnforcer(plans.TierPremium, store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.CreateProject(context.Background(), "u1", &projects.CreateRequest{Title: "Meditatii"})
		}()
	}
	wg.Wait()

	assert.Len(t, store.created, 4)
	d, err := e.CanCreateProject(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}
