package routing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"innerchat/models"
	"innerchat/providers"
)

type fakeProvider struct {
	mu      sync.Mutex
	fail    map[string]bool
	calls   []string
	healthy bool
}

func (f *fakeProvider) TranslateRequest(ctx context.Context, req *providers.UnifiedRequest, d *models.Deployment) (*providers.ProviderRequest, error) {
	return &providers.ProviderRequest{URL: d.ID, Body: req}, nil
}

func (f *fakeProvider) Execute(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.URL)
	if f.fail[req.URL] {
		return nil, errors.New("connection refused")
	}
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{{"message": map[string]string{"role": "assistant", "content": "from " + req.URL}}},
	})
	return &providers.ProviderResponse{StatusCode: 200, Body: body}, nil
}

func (f *fakeProvider) TranslateResponse(ctx context.Context, resp *providers.ProviderResponse, d *models.Deployment) (*providers.UnifiedResponse, error) {
	var out providers.UnifiedResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *fakeProvider) ValidateConfig(d *models.Deployment) error { return nil }

func (f *fakeProvider) HealthCheck(ctx context.Context, d *models.Deployment) error {
	if !f.healthy {
		return errors.New("down")
	}
	return nil
}

func (f *fakeProvider) GetInfo() providers.ProviderInfo { return providers.ProviderInfo{Name: "fake"} }

func newTestRouter(strategy RoutingStrategy, fp *fakeProvider, deployments ...*models.Deployment) *Router {
	r := NewRouter(strategy)
	r.RegisterModel(&models.Model{ID: "gpt-4o"})
	r.RegisterProvider(models.ProviderOpenAI, fp)
	for _, d := range deployments {
		r.RegisterDeployment(d)
	}
	return r
}

func dep(id string, priority, weight int) *models.Deployment {
	return &models.Deployment{
		ID:       id,
		ModelID:  "gpt-4o",
		Provider: models.ProviderOpenAI,
		Priority: priority,
		Weight:   weight,
		Status:   models.DeploymentStatus{Available: true, Healthy: true},
		Tags:     map[string]string{},
	}
}

func TestRouteRequest_PriorityPicksLowest(t *testing.T) {
	r := newTestRouter(StrategyPriority, &fakeProvider{}, dep("b", 2, 1), dep("a", 1, 1))

	decision, err := r.RouteRequest(context.Background(), "gpt-4o", &RequestContext{RequestID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "a", decision.Primary.ID)
	assert.Empty(t, decision.Fallbacks)
}

func TestRouteRequest_RoundRobinCycles(t *testing.T) {
	r := newTestRouter(StrategyRoundRobin, &fakeProvider{}, dep("a", 1, 1), dep("b", 1, 1))

	var picked []string
	for i := 0; i < 4; i++ {
		decision, err := r.RouteRequest(context.Background(), "gpt-4o", &RequestContext{})
		require.NoError(t, err)
		picked = append(picked, decision.Primary.ID)
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, picked)
}

func TestRouteRequest_LeastCostUsesTag(t *testing.T) {
	cheap := dep("cheap", 5, 1)
	cheap.Tags["cost_per_1k"] = "0.1"
	pricey := dep("pricey", 1, 1)
	pricey.Tags["cost_per_1k"] = "2.5"
	r := newTestRouter(StrategyLeastCost, &fakeProvider{}, pricey, cheap)

	decision, err := r.RouteRequest(context.Background(), "gpt-4o", &RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, "cheap", decision.Primary.ID)
}

func TestRouteRequest_ResolvesProviderModelID(t *testing.T) {
	d := dep("a", 1, 1)
	d.ProviderModelID = "gpt-4o-2024-08-06"
	r := newTestRouter(StrategyPriority, &fakeProvider{}, d)

	decision, err := r.RouteRequest(context.Background(), "gpt-4o-2024-08-06", &RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", decision.ModelID)
}

func TestRouteRequest_UnknownModel(t *testing.T) {
	r := newTestRouter(StrategyPriority, &fakeProvider{}, dep("a", 1, 1))
	_, err := r.RouteRequest(context.Background(), "nope", &RequestContext{})
	assert.Error(t, err)
}

func TestRouteRequest_SkipsUnavailable(t *testing.T) {
	down := dep("a", 1, 1)
	down.Status.Available = false
	r := newTestRouter(StrategyPriority, &fakeProvider{}, down)

	_, err := r.RouteRequest(context.Background(), "gpt-4o", &RequestContext{})
	assert.True(t, errors.Is(err, ErrNoDeployment))
}

func TestExecuteRequest_NoFallbackByDefault(t *testing.T) {
	fp := &fakeProvider{fail: map[string]bool{"a": true}}
	r := newTestRouter(StrategyPriority, fp, dep("a", 1, 1), dep("b", 2, 1))

	decision, err := r.RouteRequest(context.Background(), "gpt-4o", &RequestContext{})
	require.NoError(t, err)

	_, used, err := r.ExecuteRequest(context.Background(), &providers.UnifiedRequest{}, decision)
	require.Error(t, err)
	assert.Equal(t, "a", used.ID)
	assert.Equal(t, []string{"a"}, fp.calls)
}

func TestExecuteRequest_FallbackWhenEnabled(t *testing.T) {
	fp := &fakeProvider{fail: map[string]bool{"a": true}}
	r := newTestRouter(StrategyPriority, fp, dep("a", 1, 1), dep("b", 2, 1))
	r.SetFallback(true, 2)

	decision, err := r.RouteRequest(context.Background(), "gpt-4o", &RequestContext{})
	require.NoError(t, err)

	resp, used, err := r.ExecuteRequest(context.Background(), &providers.UnifiedRequest{}, decision)
	require.NoError(t, err)
	assert.Equal(t, "b", used.ID)
	assert.Equal(t, "from b", resp.Content())
}

func TestExecuteRequest_RecordsMetrics(t *testing.T) {
	fp := &fakeProvider{fail: map[string]bool{}}
	r := newTestRouter(StrategyPriority, fp, dep("a", 1, 1))

	decision, err := r.RouteRequest(context.Background(), "gpt-4o", &RequestContext{})
	require.NoError(t, err)
	_, _, err = r.ExecuteRequest(context.Background(), &providers.UnifiedRequest{}, decision)
	require.NoError(t, err)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(1), snap[0].Metrics.SuccessRequests)
	assert.Equal(t, "closed", snap[0].Tags["circuit"])
}

func TestHealthChecker_MarksUnavailableAfterThreeFailures(t *testing.T) {
	fp := &fakeProvider{healthy: false}
	r := newTestRouter(StrategyPriority, fp, dep("a", 1, 1))
	hc := NewHealthChecker(r, time.Hour, time.Second)

	for i := 0; i < 3; i++ {
		hc.CheckAll(context.Background())
	}
	snap := r.Snapshot()
	assert.False(t, snap[0].Status.Available)
	assert.False(t, r.Healthy())

	fp.healthy = true
	hc.CheckAll(context.Background())
	assert.True(t, r.Healthy())
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("a", 2, time.Minute)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, "open", cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, "half_open", cb.State())
	assert.False(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, "closed", cb.State())
	assert.True(t, cb.Allow())
}

func TestParseStrategy(t *testing.T) {
	assert.Equal(t, StrategyWeighted, ParseStrategy("weighted"))
	assert.Equal(t, StrategyPriority, ParseStrategy("bogus"))
}

func TestRouteRequest_RecoversAfterTransientFailures(t *testing.T) {
	fp := &fakeProvider{fail: map[string]bool{"a": true}}
	r := newTestRouter(StrategyPriority, fp, dep("a", 1, 1))
	ctx := context.Background()

	fail := func() {
		decision, err := r.RouteRequest(ctx, "gpt-4o", &RequestContext{})
		require.NoError(t, err)
		_, _, err = r.ExecuteRequest(ctx, &providers.UnifiedRequest{}, decision)
		require.Error(t, err)
	}

	// Below the breaker threshold the deployment stays routable.
	for i := 0; i < 3; i++ {
		fail()
	}
	_, err := r.RouteRequest(ctx, "gpt-4o", &RequestContext{})
	require.NoError(t, err)

	fp.mu.Lock()
	fp.fail["a"] = false
	fp.mu.Unlock()

	decision, err := r.RouteRequest(ctx, "gpt-4o", &RequestContext{})
	require.NoError(t, err)
	resp, _, err := r.ExecuteRequest(ctx, &providers.UnifiedRequest{}, decision)
	require.NoError(t, err)
	assert.Equal(t, "from a", resp.Content())
	assert.Zero(t, r.Snapshot()[0].Status.ConsecutiveFails)
}

func TestRouteRequest_CircuitCooldownReadmitsDeployment(t *testing.T) {
	fp := &fakeProvider{fail: map[string]bool{"a": true}}
	r := newTestRouter(StrategyPriority, fp, dep("a", 1, 1))
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0)
	r.circuitBreakers["a"].now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		decision, err := r.RouteRequest(ctx, "gpt-4o", &RequestContext{})
		require.NoError(t, err)
		_, _, err = r.ExecuteRequest(ctx, &providers.UnifiedRequest{}, decision)
		require.Error(t, err)
	}
	_, err := r.RouteRequest(ctx, "gpt-4o", &RequestContext{})
	require.ErrorIs(t, err, ErrNoDeployment)
	assert.Equal(t, "open", r.Snapshot()[0].Tags["circuit"])

	fp.mu.Lock()
	fp.fail["a"] = false
	fp.mu.Unlock()
	now = now.Add(time.Hour)

	decision, err := r.RouteRequest(ctx, "gpt-4o", &RequestContext{})
	require.NoError(t, err)
	_, _, err = r.ExecuteRequest(ctx, &providers.UnifiedRequest{}, decision)
	require.NoError(t, err)
	assert.Equal(t, "closed", r.Snapshot()[0].Tags["circuit"])

	_, err = r.RouteRequest(ctx, "gpt-4o", &RequestContext{})
	assert.NoError(t, err)
}
