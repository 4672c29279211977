package main

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"innerchat/models"
	"innerchat/providers"
)

// ModelResponse for API responses
type ModelResponse struct {
	ID           string                   `json:"id"`
	Object       string                   `json:"object"`
	Name         string                   `json:"name"`
	Family       string                   `json:"family"`
	Capabilities models.ModelCapabilities `json:"capabilities"`
	Deployments  []string                 `json:"deployments"`
	Created      int64                    `json:"created"`
	OwnedBy      string                   `json:"owned_by"`
}

// DeploymentResponse for API responses
type DeploymentResponse struct {
	ID              string                   `json:"id"`
	ModelID         string                   `json:"model_id"`
	Provider        string                   `json:"provider"`
	ProviderModelID string                   `json:"provider_model_id"`
	Priority        int                      `json:"priority"`
	Weight          int                      `json:"weight"`
	Status          models.DeploymentStatus  `json:"status"`
	Metrics         models.DeploymentMetrics `json:"metrics"`
	Tags            map[string]string        `json:"tags"`
	ProviderInfo    *providers.ProviderInfo  `json:"provider_info,omitempty"`
}

func ownedBy(family string) string {
	switch family {
	case "gpt":
		return "openai"
	case "claude":
		return "anthropic"
	case "llama":
		return "meta"
	default:
		return "organization"
	}
}

func toModelResponse(model *models.Model) ModelResponse {
	return ModelResponse{
		ID:           model.ID,
		Object:       "model",
		Name:         model.Name,
		Family:       model.Family,
		Capabilities: model.Capabilities,
		Deployments:  model.Deployments,
		Created:      model.CreatedAt.Unix(),
		OwnedBy:      ownedBy(model.Family),
	}
}

func toDeploymentResponse(d models.Deployment) DeploymentResponse {
	resp := DeploymentResponse{
		ID:              d.ID,
		ModelID:         d.ModelID,
		Provider:        string(d.Provider),
		ProviderModelID: d.ProviderModelID,
		Priority:        d.Priority,
		Weight:          d.Weight,
		Status:          d.Status,
		Metrics:         d.Metrics,
		Tags:            d.Tags,
	}
	if p, ok := modelRouter.Provider(d.Provider); ok {
		info := p.GetInfo()
		resp.ProviderInfo = &info
	}
	return resp
}

// handleListModels handles GET /v1/models
func handleListModels(w http.ResponseWriter, r *http.Request) {
	allModels := modelRegistry.List()
	data := make([]ModelResponse, 0, len(allModels))
	for _, model := range allModels {
		data = append(data, toModelResponse(model))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   data,
	})
}

// handleGetModel handles GET /v1/models/{model}
func handleGetModel(w http.ResponseWriter, r *http.Request) {
	model, exists := modelRegistry.Get(mux.Vars(r)["model"])
	if !exists {
		writeError(w, http.StatusNotFound, "model not found")
		return
	}
	writeJSON(w, http.StatusOK, toModelResponse(model))
}

// handleListDeployments handles GET /v1/deployments?model=&status=healthy
func handleListDeployments(w http.ResponseWriter, r *http.Request) {
	modelID := r.URL.Query().Get("model")
	status := r.URL.Query().Get("status")

	data := make([]DeploymentResponse, 0)
	for _, d := range modelRouter.Snapshot() {
		if modelID != "" && d.ModelID != modelID {
			continue
		}
		if status == "healthy" && !(d.Status.Available && d.Status.Healthy) {
			continue
		}
		data = append(data, toDeploymentResponse(d))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   data,
	})
}

// handleGetDeployment handles GET /v1/deployments/{deployment}
func handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["deployment"]
	for _, d := range modelRouter.Snapshot() {
		if d.ID == id {
			writeJSON(w, http.StatusOK, toDeploymentResponse(d))
			return
		}
	}
	writeError(w, http.StatusNotFound, "deployment not found")
}

// handleRouterHealth handles GET /v1/health
func handleRouterHealth(w http.ResponseWriter, r *http.Request) {
	status := GetRouterStatus()
	status["timestamp"] = time.Now().Unix()
	writeJSON(w, http.StatusOK, status)
}
