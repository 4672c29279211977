package providers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"innerchat/models"
)

// Provider adapts one upstream completion API to the unified format.
type Provider interface {
	// TranslateRequest converts a unified request to the provider format.
	TranslateRequest(ctx context.Context, req *UnifiedRequest, deployment *models.Deployment) (*ProviderRequest, error)

	// Execute sends the request. A non-2xx status is not an error here.
	Execute(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)

	// TranslateResponse converts the provider reply to the unified format.
	TranslateResponse(ctx context.Context, resp *ProviderResponse, deployment *models.Deployment) (*UnifiedResponse, error)

	ValidateConfig(deployment *models.Deployment) error

	HealthCheck(ctx context.Context, deployment *models.Deployment) error

	GetInfo() ProviderInfo
}

var (
	// ErrUpstreamStatus is returned for a non-2xx provider reply.
	ErrUpstreamStatus = errors.New("upstream returned non-success status")
	// ErrMalformedResponse is returned when the provider body is not a completion.
	ErrMalformedResponse = errors.New("malformed provider response")
)

// UnifiedRequest is the OpenAI-shaped request every provider accepts.
type UnifiedRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	User        string    `json:"user,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type UnifiedResponse struct {
	ID       string                 `json:"id"`
	Object   string                 `json:"object"`
	Created  int64                  `json:"created"`
	Model    string                 `json:"model"`
	Choices  []Choice               `json:"choices"`
	Usage    Usage                  `json:"usage"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Content returns the text of the first choice, or "".
func (r *UnifiedResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderRequest is what a provider puts on the wire.
type ProviderRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    interface{}
	Timeout time.Duration
}

type ProviderResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       json.RawMessage
}

// OK reports whether the status code is 2xx.
func (r *ProviderResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type ProviderInfo struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	RequiresAuth   bool   `json:"requires_auth"`
	MaxRequestSize int    `json:"max_request_size"`
}
