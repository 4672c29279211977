package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"innerchat/models"
)

// OpenAISDKProvider calls the chat-completions API through go-openai.
// BaseURL is the API root (e.g. https://api.openai.com/v1); the client adds
// /chat/completions itself.
type OpenAISDKProvider struct {
	httpClient *http.Client
}

func NewOpenAISDKProvider() *OpenAISDKProvider {
	return NewOpenAISDKProviderWithClient(&http.Client{Timeout: 30 * time.Second})
}

func NewOpenAISDKProviderWithClient(client *http.Client) *OpenAISDKProvider {
	return &OpenAISDKProvider{httpClient: client}
}

func (p *OpenAISDKProvider) TranslateRequest(ctx context.Context, req *UnifiedRequest, deployment *models.Deployment) (*ProviderRequest, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		})
	}

	temperature := float32(req.Temperature)
	if temperature == 0 {
		// go-openai omits a zero temperature from the JSON body.
		temperature = math.SmallestNonzeroFloat32
	}

	body := openai.ChatCompletionRequest{
		Model:       deployment.ProviderModelID,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        float32(req.TopP),
		Stop:        req.Stop,
		User:        req.User,
	}

	return &ProviderRequest{
		URL:     strings.TrimRight(deployment.Endpoint.BaseURL, "/"),
		Method:  http.MethodPost,
		Headers: bearerHeaders(deployment),
		Body:    body,
		Timeout: deployment.Endpoint.Timeout,
	}, nil
}

func (p *OpenAISDKProvider) Execute(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	body, ok := req.Body.(openai.ChatCompletionRequest)
	if !ok {
		return nil, fmt.Errorf("openai_sdk: unexpected request body %T", req.Body)
	}

	token := strings.TrimPrefix(req.Headers["Authorization"], "Bearer ")
	cfg := openai.DefaultConfig(token)
	cfg.BaseURL = req.URL
	cfg.HTTPClient = p.httpClient
	client := openai.NewClientWithConfig(cfg)

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	resp, err := client.CreateChatCompletion(ctx, body)
	if err != nil {
		// Upstream HTTP errors carry a status; keep them as a response so the
		// router treats them like the raw providers do.
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
			raw, _ := json.Marshal(map[string]string{"error": apiErr.Message})
			return &ProviderResponse{StatusCode: apiErr.HTTPStatusCode, Body: raw}, nil
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
			raw, _ := json.Marshal(map[string]string{"error": reqErr.Error()})
			return &ProviderResponse{StatusCode: reqErr.HTTPStatusCode, Body: raw}, nil
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sdk response: %w", err)
	}
	return &ProviderResponse{StatusCode: http.StatusOK, Body: raw}, nil
}

func (p *OpenAISDKProvider) TranslateResponse(ctx context.Context, resp *ProviderResponse, deployment *models.Deployment) (*UnifiedResponse, error) {
	unified, err := decodeCompletion(resp, deployment)
	if err != nil {
		return nil, err
	}
	unified.Metadata["sdk"] = "go-openai"
	return unified, nil
}

func (p *OpenAISDKProvider) ValidateConfig(deployment *models.Deployment) error {
	if deployment.Endpoint.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if strings.HasSuffix(strings.TrimRight(deployment.Endpoint.BaseURL, "/"), "/chat/completions") {
		return fmt.Errorf("openai_sdk expects the API root, not the completions URL: %s", deployment.Endpoint.BaseURL)
	}
	if deployment.ProviderModelID == "" {
		return fmt.Errorf("provider model ID is required")
	}
	return nil
}

func (p *OpenAISDKProvider) HealthCheck(ctx context.Context, deployment *models.Deployment) error {
	return probe(ctx, p, deployment)
}

func (p *OpenAISDKProvider) GetInfo() ProviderInfo {
	return ProviderInfo{
		Name:           "OpenAI SDK (go-openai)",
		Version:        "1.0",
		RequiresAuth:   true,
		MaxRequestSize: 4 * 1024 * 1024,
	}
}
