package models

import (
	"sort"
	"sync"
	"time"
)

// Model is a logical completion model that personas are answered with.
// One model can be served by several deployments.
type Model struct {
	ID      string `json:"id" yaml:"id"` // e.g. "gpt-4o"
	Name    string `json:"name" yaml:"name"`
	Family  string `json:"family" yaml:"family"` // gpt, claude, llama...
	Version string `json:"version" yaml:"version"`

	Capabilities ModelCapabilities `json:"capabilities" yaml:"capabilities"`

	Deployments []string `json:"deployments" yaml:"deployments"`

	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
	Tags      map[string]string `json:"tags" yaml:"tags"`
}

// ModelCapabilities describes the limits a persona reply has to fit in.
type ModelCapabilities struct {
	MaxTokens     int `json:"max_tokens" yaml:"max_tokens"`
	ContextWindow int `json:"context_window" yaml:"context_window"`

	// Cost per 1k tokens, used by the least_cost strategy.
	InputCost  float64 `json:"input_cost" yaml:"input_cost"`
	OutputCost float64 `json:"output_cost" yaml:"output_cost"`

	Languages []string `json:"languages" yaml:"languages"`
}

// ModelRegistry is the lookup table behind /v1/models.
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*Model),
	}
}

func (r *ModelRegistry) Register(model *Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model.ID] = model
}

func (r *ModelRegistry) Get(id string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	model, exists := r.models[id]
	return model, exists
}

// List returns the registered models sorted by ID.
func (r *ModelRegistry) List() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*Model, 0, len(r.models))
	for _, model := range r.models {
		list = append(list, model)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
