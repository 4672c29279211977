package routing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"innerchat/models"
	"innerchat/providers"
)

// ErrNoDeployment is returned when a model has nothing healthy to route to.
var ErrNoDeployment = errors.New("no available deployment")

// Router picks a deployment for each completion and executes it.
type Router struct {
	models      map[string]*models.Model
	deployments map[string]*models.Deployment
	strategy    RoutingStrategy

	// Fallback deployments are only tried when explicitly enabled.
	fallbackEnabled bool
	maxFallbacks    int

	Providers map[models.ProviderType]providers.Provider

	mu              sync.RWMutex
	roundRobinIndex map[string]int
	circuitBreakers map[string]*CircuitBreaker
}

type RoutingStrategy string

const (
	StrategyRoundRobin   RoutingStrategy = "round_robin"
	StrategyWeighted     RoutingStrategy = "weighted"
	StrategyLeastLatency RoutingStrategy = "least_latency"
	StrategyLeastCost    RoutingStrategy = "least_cost"
	StrategyPriority     RoutingStrategy = "priority"
)

// ParseStrategy maps a config value to a strategy, defaulting to priority.
func ParseStrategy(s string) RoutingStrategy {
	switch RoutingStrategy(s) {
	case StrategyRoundRobin, StrategyWeighted, StrategyLeastLatency, StrategyLeastCost, StrategyPriority:
		return RoutingStrategy(s)
	default:
		return StrategyPriority
	}
}

func NewRouter(strategy RoutingStrategy) *Router {
	return &Router{
		models:          make(map[string]*models.Model),
		deployments:     make(map[string]*models.Deployment),
		Providers:       make(map[models.ProviderType]providers.Provider),
		strategy:        strategy,
		maxFallbacks:    3,
		roundRobinIndex: make(map[string]int),
		circuitBreakers: make(map[string]*CircuitBreaker),
	}
}

// SetFallback controls whether failed requests move on to other deployments.
func (r *Router) SetFallback(enabled bool, max int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbackEnabled = enabled
	if max > 0 {
		r.maxFallbacks = max
	}
}

func (r *Router) Strategy() RoutingStrategy { return r.strategy }

func (r *Router) RegisterModel(model *models.Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model.ID] = model
}

func (r *Router) RegisterDeployment(deployment *models.Deployment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deployments[deployment.ID] = deployment

	if model, exists := r.models[deployment.ModelID]; exists && !contains(model.Deployments, deployment.ID) {
		model.Deployments = append(model.Deployments, deployment.ID)
	}

	r.circuitBreakers[deployment.ID] = NewCircuitBreaker(deployment.ID, 5, 60*time.Second)
}

func (r *Router) RegisterProvider(providerType models.ProviderType, provider providers.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Providers[providerType] = provider
}

// Provider returns the implementation registered for a provider type.
func (r *Router) Provider(providerType models.ProviderType) (providers.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.Providers[providerType]
	return p, ok
}

// RouteRequest decides which deployment serves modelID. modelID may also be
// a provider model ID.
func (r *Router) RouteRequest(ctx context.Context, modelID string, reqCtx *RequestContext) (*RoutingDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	model, exists := r.models[modelID]
	if !exists {
		for _, deployment := range r.deployments {
			if deployment.ProviderModelID == modelID {
				model = r.models[deployment.ModelID]
				if model != nil {
					break
				}
			}
		}
		if model == nil {
			return nil, fmt.Errorf("model not found: %s", modelID)
		}
	}

	available := r.getAvailableDeployments(model.Deployments)
	if len(available) == 0 {
		return nil, fmt.Errorf("%w for model %s", ErrNoDeployment, model.ID)
	}

	primary := r.selectDeployment(available, model)

	var fallbacks []*models.Deployment
	if r.fallbackEnabled {
		fallbacks = r.selectFallbacks(available, primary)
	}

	return &RoutingDecision{
		RequestID: reqCtx.RequestID,
		ModelID:   model.ID,
		Primary:   primary,
		Fallbacks: fallbacks,
		Strategy:  r.strategy,
		Timestamp: time.Now(),
	}, nil
}

// getAvailableDeployments must be called with r.mu held.
func (r *Router) getAvailableDeployments(ids []string) []*models.Deployment {
	var available []*models.Deployment
	for _, id := range ids {
		deployment, exists := r.deployments[id]
		if !exists {
			continue
		}
		// Request failures only reach the circuit breaker; Available is owned
		// by the health checker.
		if !deployment.Status.Available {
			continue
		}
		if cb, exists := r.circuitBreakers[id]; exists && !cb.Allow() {
			continue
		}
		available = append(available, deployment)
	}
	sort.Slice(available, func(i, j int) bool { return available[i].ID < available[j].ID })
	return available
}

func (r *Router) selectDeployment(deployments []*models.Deployment, model *models.Model) *models.Deployment {
	switch r.strategy {
	case StrategyRoundRobin:
		index := r.roundRobinIndex[model.ID] % len(deployments)
		r.roundRobinIndex[model.ID] = index + 1
		return deployments[index]
	case StrategyWeighted:
		return selectWeighted(deployments)
	case StrategyLeastLatency:
		return selectLeastLatency(deployments)
	case StrategyLeastCost:
		return selectLeastCost(deployments, model)
	default:
		return selectPriority(deployments)
	}
}

func selectWeighted(deployments []*models.Deployment) *models.Deployment {
	total := 0
	for _, d := range deployments {
		total += d.Weight
	}
	if total <= 0 {
		return deployments[0]
	}

	pick := rand.Intn(total)
	cumulative := 0
	for _, d := range deployments {
		cumulative += d.Weight
		if pick < cumulative {
			return d
		}
	}
	return deployments[len(deployments)-1]
}

func selectPriority(deployments []*models.Deployment) *models.Deployment {
	best := deployments[0]
	for _, d := range deployments[1:] {
		if d.Priority < best.Priority {
			best = d
		}
	}
	return best
}

// selectLeastLatency prefers measured deployments; unmeasured ones count as slowest.
func selectLeastLatency(deployments []*models.Deployment) *models.Deployment {
	var best *models.Deployment
	for _, d := range deployments {
		if d.Metrics.AverageLatency <= 0 {
			continue
		}
		if best == nil || d.Metrics.AverageLatency < best.Metrics.AverageLatency {
			best = d
		}
	}
	if best == nil {
		return selectPriority(deployments)
	}
	return best
}

// selectLeastCost reads a "cost_per_1k" tag and falls back to the model price.
func selectLeastCost(deployments []*models.Deployment, model *models.Model) *models.Deployment {
	modelCost := model.Capabilities.InputCost + model.Capabilities.OutputCost
	cost := func(d *models.Deployment) float64 {
		if v, err := strconv.ParseFloat(d.Tags["cost_per_1k"], 64); err == nil {
			return v
		}
		return modelCost
	}

	best := deployments[0]
	for _, d := range deployments[1:] {
		if c, b := cost(d), cost(best); c < b || (c == b && d.Priority < best.Priority) {
			best = d
		}
	}
	return best
}

func (r *Router) selectFallbacks(deployments []*models.Deployment, primary *models.Deployment) []*models.Deployment {
	ordered := make([]*models.Deployment, 0, len(deployments))
	for _, d := range deployments {
		if d.ID != primary.ID {
			ordered = append(ordered, d)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })
	if len(ordered) > r.maxFallbacks {
		ordered = ordered[:r.maxFallbacks]
	}
	return ordered
}

// ExecuteRequest runs the request on the primary and, if enabled, the fallbacks.
// It returns the response and the deployment that produced it.
func (r *Router) ExecuteRequest(ctx context.Context, req *providers.UnifiedRequest, decision *RoutingDecision) (*providers.UnifiedResponse, *models.Deployment, error) {
	resp, err := r.tryDeployment(ctx, req, decision.Primary)
	if err == nil {
		return resp, decision.Primary, nil
	}
	lastErr := err

	for _, fallback := range decision.Fallbacks {
		if ctx.Err() != nil {
			break
		}
		resp, err = r.tryDeployment(ctx, req, fallback)
		if err == nil {
			return resp, fallback, nil
		}
		lastErr = err
	}

	return nil, decision.Primary, fmt.Errorf("all deployments failed: %w", lastErr)
}

func (r *Router) tryDeployment(ctx context.Context, req *providers.UnifiedRequest, deployment *models.Deployment) (*providers.UnifiedResponse, error) {
	provider, exists := r.Provider(deployment.Provider)
	if !exists {
		r.recordFailure(deployment.ID, 0)
		return nil, fmt.Errorf("provider not found: %s", deployment.Provider)
	}

	start := time.Now()
	providerReq, err := provider.TranslateRequest(ctx, req, deployment)
	if err != nil {
		return nil, fmt.Errorf("failed to translate request: %w", err)
	}

	providerResp, err := provider.Execute(ctx, providerReq)
	if err != nil {
		r.recordFailure(deployment.ID, time.Since(start))
		return nil, fmt.Errorf("failed to execute request on %s: %w", deployment.ID, err)
	}

	unified, err := provider.TranslateResponse(ctx, providerResp, deployment)
	if err != nil {
		r.recordFailure(deployment.ID, time.Since(start))
		return nil, fmt.Errorf("failed to translate response from %s: %w", deployment.ID, err)
	}

	r.recordSuccess(deployment.ID, time.Since(start), unified.Usage)
	return unified, nil
}

func (r *Router) recordSuccess(deploymentID string, latency time.Duration, usage providers.Usage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, exists := r.deployments[deploymentID]; exists {
		d.Status.ConsecutiveFails = 0
		d.Status.LastSuccessful = time.Now()
		d.Metrics.SuccessRequests++
		d.Metrics.TotalRequests++
		d.Metrics.InputTokens += int64(usage.PromptTokens)
		d.Metrics.OutputTokens += int64(usage.CompletionTokens)
		observeLatency(d, latency)
	}
	if cb, exists := r.circuitBreakers[deploymentID]; exists {
		cb.RecordSuccess()
	}
}

func (r *Router) recordFailure(deploymentID string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, exists := r.deployments[deploymentID]; exists {
		d.Status.ConsecutiveFails++
		d.Metrics.FailedRequests++
		d.Metrics.TotalRequests++
		if latency > 0 {
			observeLatency(d, latency)
		}
	}
	if cb, exists := r.circuitBreakers[deploymentID]; exists {
		cb.RecordFailure()
	}
}

// observeLatency keeps an exponential moving average in milliseconds.
func observeLatency(d *models.Deployment, latency time.Duration) {
	ms := float64(latency.Milliseconds())
	if d.Metrics.AverageLatency == 0 {
		d.Metrics.AverageLatency = ms
		return
	}
	d.Metrics.AverageLatency = d.Metrics.AverageLatency*0.9 + ms*0.1
}

// Snapshot returns copies of all deployments sorted by ID, with the circuit
// state in the "circuit" tag.
func (r *Router) Snapshot() []models.Deployment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Deployment, 0, len(r.deployments))
	for id, d := range r.deployments {
		cp := *d
		cp.Tags = make(map[string]string, len(d.Tags)+1)
		for k, v := range d.Tags {
			cp.Tags[k] = v
		}
		if cb, ok := r.circuitBreakers[id]; ok {
			cp.Tags["circuit"] = cb.State()
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Healthy reports whether at least one deployment is available.
func (r *Router) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.deployments {
		if d.Status.Available && d.Status.Healthy {
			return true
		}
	}
	return false
}

type RoutingDecision struct {
	RequestID string               `json:"request_id"`
	ModelID   string               `json:"model_id"`
	Primary   *models.Deployment   `json:"primary"`
	Fallbacks []*models.Deployment `json:"fallbacks"`
	Strategy  RoutingStrategy      `json:"strategy"`
	Timestamp time.Time            `json:"timestamp"`
}

type RequestContext struct {
	RequestID string
	ModelID   string
	SessionID string
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
