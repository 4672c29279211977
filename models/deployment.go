package models

import (
	"sort"
	"sync"
	"time"
)

// Deployment is one concrete endpoint that serves a model.
type Deployment struct {
	ID      string `json:"id" yaml:"id"`
	ModelID string `json:"model_id" yaml:"model_id"`

	Provider        ProviderType `json:"provider" yaml:"provider"`
	ProviderModelID string       `json:"provider_model_id" yaml:"provider_model_id"`

	Endpoint EndpointConfig `json:"endpoint" yaml:"endpoint"`

	Priority int `json:"priority" yaml:"priority"` // lower wins
	Weight   int `json:"weight" yaml:"weight"`

	// Runtime state, owned by the router.
	Status  DeploymentStatus  `json:"status"`
	Metrics DeploymentMetrics `json:"metrics"`

	Tags      map[string]string `json:"tags" yaml:"tags"`
	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
}

// ProviderType selects the providers.Provider implementation.
type ProviderType string

const (
	// ProviderOpenAI posts raw JSON to a complete chat-completions URL.
	ProviderOpenAI ProviderType = "openai"
	// ProviderOneAPI talks to a one-api style gateway.
	ProviderOneAPI ProviderType = "oneapi"
	// ProviderOpenAISDK goes through the go-openai client.
	ProviderOpenAISDK ProviderType = "openai_sdk"
)

type EndpointConfig struct {
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`

	Auth AuthConfig `json:"auth" yaml:"auth"`

	CustomHeaders map[string]string `json:"custom_headers,omitempty" yaml:"custom_headers,omitempty"`
}

type AuthType string

const (
	AuthAPIKey AuthType = "api_key"
	AuthNone   AuthType = "none"
)

type AuthConfig struct {
	Type   AuthType `json:"type" yaml:"type"`
	APIKey string   `json:"-"` // never serialize
}

type DeploymentStatus struct {
	Available        bool          `json:"available"`
	Healthy          bool          `json:"healthy"`
	LastHealthCheck  time.Time     `json:"last_health_check"`
	LastSuccessful   time.Time     `json:"last_successful"`
	ConsecutiveFails int           `json:"consecutive_fails"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	ResponseTime     time.Duration `json:"response_time"`
}

type DeploymentMetrics struct {
	TotalRequests   int64   `json:"total_requests"`
	SuccessRequests int64   `json:"success_requests"`
	FailedRequests  int64   `json:"failed_requests"`
	AverageLatency  float64 `json:"average_latency"` // milliseconds
	InputTokens     int64   `json:"input_tokens"`
	OutputTokens    int64   `json:"output_tokens"`
}

// DeploymentRegistry keeps the configured deployments. Live status is read
// from the router, not from here.
type DeploymentRegistry struct {
	mu          sync.RWMutex
	deployments map[string]*Deployment
}

func NewDeploymentRegistry() *DeploymentRegistry {
	return &DeploymentRegistry{
		deployments: make(map[string]*Deployment),
	}
}

func (r *DeploymentRegistry) Register(deployment *Deployment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deployments[deployment.ID] = deployment
}

func (r *DeploymentRegistry) Get(id string) (*Deployment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	deployment, exists := r.deployments[id]
	return deployment, exists
}

// GetByModel returns the deployments serving modelID, sorted by ID.
func (r *DeploymentRegistry) GetByModel(modelID string) []*Deployment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []*Deployment
	for _, deployment := range r.deployments {
		if deployment.ModelID == modelID {
			list = append(list, deployment)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (r *DeploymentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.deployments)
}
