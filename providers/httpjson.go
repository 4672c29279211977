package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"innerchat/models"
)

// maxResponseBytes caps how much of a provider reply is read.
const maxResponseBytes = 4 * 1024 * 1024

// postJSON marshals req.Body, sends it and reads the raw reply. The body is
// returned as-is so that malformed JSON is reported by TranslateResponse.
func postJSON(ctx context.Context, client *http.Client, req *ProviderRequest) (*ProviderResponse, error) {
	jsonBody, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &ProviderResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       body,
	}, nil
}

// decodeCompletion turns an OpenAI-compatible reply into a UnifiedResponse.
func decodeCompletion(resp *ProviderResponse, deployment *models.Deployment) (*UnifiedResponse, error) {
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %d from %s: %s", ErrUpstreamStatus, resp.StatusCode, deployment.ID, truncate(string(resp.Body), 200))
	}

	var unified UnifiedResponse
	if err := json.Unmarshal(resp.Body, &unified); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if unified.Metadata == nil {
		unified.Metadata = make(map[string]interface{})
	}
	unified.Metadata["deployment_id"] = deployment.ID
	unified.Metadata["provider"] = string(deployment.Provider)
	unified.Metadata["provider_model"] = deployment.ProviderModelID

	return &unified, nil
}

// completionBody builds the OpenAI chat-completions payload.
func completionBody(model string, req *UnifiedRequest) map[string]interface{} {
	body := map[string]interface{}{
		"model":       model,
		"messages":    req.Messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.TopP > 0 {
		body["top_p"] = req.TopP
	}
	if len(req.Stop) > 0 {
		body["stop"] = req.Stop
	}
	if req.User != "" {
		body["user"] = req.User
	}
	return body
}

func bearerHeaders(deployment *models.Deployment) map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if deployment.Endpoint.Auth.Type != models.AuthNone && deployment.Endpoint.Auth.APIKey != "" {
		headers["Authorization"] = "Bearer " + deployment.Endpoint.Auth.APIKey
	}
	for k, v := range deployment.Endpoint.CustomHeaders {
		headers[k] = v
	}
	return headers
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
