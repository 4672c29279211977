package main

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"innerchat/conversation"
	"innerchat/models"
	"innerchat/personas"
	"innerchat/providers"
	"innerchat/relay"
	"innerchat/routing"
)

// stubCompleter answers every request with content, or fails with err.
type stubCompleter struct {
	mu      sync.Mutex
	content string
	err     error
	reqs    []*providers.UnifiedRequest
}

func (s *stubCompleter) Complete(ctx context.Context, req *providers.UnifiedRequest) (*relay.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &relay.Completion{Content: s.content, Model: req.Model, Deployment: "stub", Provider: "stub"}, nil
}

func (s *stubCompleter) last() *providers.UnifiedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reqs) == 0 {
		return nil
	}
	return s.reqs[len(s.reqs)-1]
}

func (s *stubCompleter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

// setupGlobals points the shared service state at c and returns the HTTP handler.
func setupGlobals(t *testing.T, c relay.Completer) http.Handler {
	t.Helper()

	personaCatalog = personas.Default()
	personaRelay = relay.New(c, relay.Options{Model: "gpt-4o"})
	dnsRelay = relay.New(c, relay.Options{Model: "gpt-4o", MaxTokens: 200})
	sessionManager = conversation.NewManager(personaCatalog, personaRelay, conversation.Options{})

	modelRouter = routing.NewRouter(routing.StrategyPriority)
	modelRegistry = models.NewModelRegistry()
	deploymentRegistry = models.NewDeploymentRegistry()
	healthChecker = nil
	auditStore = nil

	limiter = newIPLimiter(1000, 1000, time.Minute)

	return newHTTPHandler()
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// newDebateManager returns a manager over the current globals with debate on
// and a fixed seed.
func newDebateManager() *conversation.Manager {
	return conversation.NewManager(personaCatalog, personaRelay, conversation.Options{
		Debate: true,
		Rand:   rand.New(rand.NewSource(1)),
	})
}
