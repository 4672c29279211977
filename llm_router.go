package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"innerchat/providers"
	"innerchat/relay"
	"innerchat/routing"
)

// routerCompleter sends relay requests through the model router.
type routerCompleter struct {
	router  *routing.Router
	timeout time.Duration
}

func newRouterCompleter(router *routing.Router) *routerCompleter {
	return &routerCompleter{router: router, timeout: 30 * time.Second}
}

func (c *routerCompleter) Complete(ctx context.Context, req *providers.UnifiedRequest) (*relay.Completion, error) {
	info := relay.CallInfoFrom(ctx)
	reqCtx := &routing.RequestContext{
		RequestID: info.RequestID,
		ModelID:   req.Model,
		SessionID: info.SessionID,
	}

	decision, err := c.router.RouteRequest(ctx, req.Model, reqCtx)
	if err != nil {
		beacon("llm_error", map[string]interface{}{
			"type":       "routing_error",
			"error":      err.Error(),
			"model":      req.Model,
			"request_id": info.RequestID,
		})
		return nil, fmt.Errorf("routing failed: %w", err)
	}

	if debugMode {
		log.Printf("[LLMRouter] Selected deployment: %s (provider: %s, model: %s)",
			decision.Primary.ID, decision.Primary.Provider, decision.Primary.ProviderModelID)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, used, err := c.router.ExecuteRequest(ctx, req, decision)
	completion := &relay.Completion{
		Model:      decision.ModelID,
		Deployment: used.ID,
		Provider:   string(used.Provider),
	}
	if err != nil {
		beacon("llm_error", map[string]interface{}{
			"type":       "execution_error",
			"error":      err.Error(),
			"model":      decision.ModelID,
			"deployment": used.ID,
			"request_id": info.RequestID,
		})
		return completion, err
	}

	completion.Content = resp.Content()
	completion.Usage = resp.Usage
	return completion, nil
}
