package providers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"innerchat/models"
)

// BaselineOpenAICompatibilityProvider posts straight to an OpenAI-compatible
// endpoint. BaseURL is the complete URL, no path is appended.
type BaselineOpenAICompatibilityProvider struct {
	client *http.Client
}

func NewBaselineOpenAICompatibilityProvider() *BaselineOpenAICompatibilityProvider {
	return NewBaselineOpenAICompatibilityProviderWithClient(&http.Client{Timeout: 30 * time.Second})
}

// NewBaselineOpenAICompatibilityProviderWithClient lets tests point the
// provider at an httptest server.
func NewBaselineOpenAICompatibilityProviderWithClient(client *http.Client) *BaselineOpenAICompatibilityProvider {
	return &BaselineOpenAICompatibilityProvider{client: client}
}

func (b *BaselineOpenAICompatibilityProvider) TranslateRequest(ctx context.Context, req *UnifiedRequest, deployment *models.Deployment) (*ProviderRequest, error) {
	return &ProviderRequest{
		URL:     deployment.Endpoint.BaseURL,
		Method:  http.MethodPost,
		Headers: bearerHeaders(deployment),
		Body:    completionBody(deployment.ProviderModelID, req),
		Timeout: deployment.Endpoint.Timeout,
	}, nil
}

func (b *BaselineOpenAICompatibilityProvider) Execute(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	return postJSON(ctx, b.client, req)
}

func (b *BaselineOpenAICompatibilityProvider) TranslateResponse(ctx context.Context, resp *ProviderResponse, deployment *models.Deployment) (*UnifiedResponse, error) {
	unified, err := decodeCompletion(resp, deployment)
	if err != nil {
		return nil, err
	}
	unified.Metadata["baseline_mode"] = true
	return unified, nil
}

func (b *BaselineOpenAICompatibilityProvider) ValidateConfig(deployment *models.Deployment) error {
	url := deployment.Endpoint.BaseURL
	if url == "" {
		return fmt.Errorf("base URL is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("baseline mode requires a complete endpoint URL (e.g. https://api.openai.com/v1/chat/completions), got %q", url)
	}
	if deployment.ProviderModelID == "" {
		return fmt.Errorf("provider model ID is required")
	}
	if deployment.Endpoint.Auth.Type == models.AuthAPIKey && deployment.Endpoint.Auth.APIKey == "" {
		// Local OpenAI-compatible servers usually take no key.
		log.Printf("[BaselineOpenAI] Warning: API key is empty for deployment %s", deployment.ID)
	}
	return nil
}

func (b *BaselineOpenAICompatibilityProvider) HealthCheck(ctx context.Context, deployment *models.Deployment) error {
	return probe(ctx, b, deployment)
}

func (b *BaselineOpenAICompatibilityProvider) GetInfo() ProviderInfo {
	return ProviderInfo{
		Name:           "Baseline OpenAI Compatibility",
		Version:        "1.0",
		RequiresAuth:   false,
		MaxRequestSize: 4 * 1024 * 1024,
	}
}

// probe sends a one-token completion and expects a 2xx reply.
func probe(ctx context.Context, p Provider, deployment *models.Deployment) error {
	req := &UnifiedRequest{
		Model:     deployment.ProviderModelID,
		Messages:  []Message{{Role: "user", Content: "Hi"}},
		MaxTokens: 1,
	}

	providerReq, err := p.TranslateRequest(ctx, req, deployment)
	if err != nil {
		return fmt.Errorf("health check translation failed: %w", err)
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := p.Execute(healthCtx, providerReq)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
