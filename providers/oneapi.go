package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"innerchat/models"
)

// OneAPIProvider talks to a one-api style gateway that fronts several vendors.
type OneAPIProvider struct {
	client *http.Client
}

func NewOneAPIProvider() *OneAPIProvider {
	return &OneAPIProvider{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *OneAPIProvider) TranslateRequest(ctx context.Context, req *UnifiedRequest, deployment *models.Deployment) (*ProviderRequest, error) {
	// "openai:gpt-4o" -> "gpt-4o"; the gateway channel picks the vendor.
	modelName := deployment.ProviderModelID
	if colonIdx := strings.Index(modelName, ":"); colonIdx != -1 {
		modelName = modelName[colonIdx+1:]
	}

	return &ProviderRequest{
		URL:     strings.TrimRight(deployment.Endpoint.BaseURL, "/") + "/v1/chat/completions",
		Method:  http.MethodPost,
		Headers: bearerHeaders(deployment),
		Body:    completionBody(modelName, req),
		Timeout: deployment.Endpoint.Timeout,
	}, nil
}

func (o *OneAPIProvider) Execute(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	return postJSON(ctx, o.client, req)
}

func (o *OneAPIProvider) TranslateResponse(ctx context.Context, resp *ProviderResponse, deployment *models.Deployment) (*UnifiedResponse, error) {
	return decodeCompletion(resp, deployment)
}

func (o *OneAPIProvider) ValidateConfig(deployment *models.Deployment) error {
	if deployment.Endpoint.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if deployment.ProviderModelID == "" {
		return fmt.Errorf("provider model ID is required")
	}
	if deployment.Endpoint.Auth.Type == models.AuthAPIKey && deployment.Endpoint.Auth.APIKey == "" {
		return fmt.Errorf("API key is required but not provided")
	}
	return nil
}

func (o *OneAPIProvider) HealthCheck(ctx context.Context, deployment *models.Deployment) error {
	return probe(ctx, o, deployment)
}

func (o *OneAPIProvider) GetInfo() ProviderInfo {
	return ProviderInfo{
		Name:           "OneAPI Gateway",
		Version:        "1.0",
		RequiresAuth:   true,
		MaxRequestSize: 4 * 1024 * 1024,
	}
}
