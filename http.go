package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"innerchat/conversation"
	"innerchat/personas"
	"innerchat/relay"
)

// Shared service state, set up in main.
var (
	personaCatalog *personas.Catalog
	personaRelay   *relay.Relay
	sessionManager *conversation.Manager
)

const maxBodyBytes = 1 << 20

// newHTTPHandler wires every HTTP route.
func newHTTPHandler() http.Handler {
	r := mux.NewRouter()
	r.Use(requestMiddleware, rateLimitMiddleware)

	r.HandleFunc("/", handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/routing_table", handleRoutingTable).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)
	api.HandleFunc("/chat", handleChat).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/personas", handlePersonas).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sessions", handleCreateSession).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}", handleGetSession).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sessions/{id}", handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/persona", handleSelectPersona).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/group", handleEnterGroup).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/reset", handleResetSession).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/messages", handleSendMessage).Methods(http.MethodPost, http.MethodOptions)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(corsMiddleware)
	v1.HandleFunc("/models", handleListModels).Methods(http.MethodGet, http.MethodOptions)
	v1.HandleFunc("/models/{model}", handleGetModel).Methods(http.MethodGet, http.MethodOptions)
	v1.HandleFunc("/deployments", handleListDeployments).Methods(http.MethodGet, http.MethodOptions)
	v1.HandleFunc("/deployments/{deployment}", handleGetDeployment).Methods(http.MethodGet, http.MethodOptions)
	v1.HandleFunc("/health", handleRouterHealth).Methods(http.MethodGet, http.MethodOptions)

	return r
}

func StartHTTPServer(ctx context.Context, port int, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go shutdownOnDone(ctx, srv)

	log.Printf("[HTTP] Listening on :%d", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func StartHTTPSServer(ctx context.Context, port int, certFile, keyFile string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go shutdownOnDone(ctx, srv)

	log.Printf("[HTTPS] Listening on :%d", port)
	if err := srv.ListenAndServeTLS(certFile, keyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func shutdownOnDone(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[HTTP] Shutdown: %v", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestMiddleware assigns the request ID and emits the request beacons.
func requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := generateRequestID()
		w.Header().Set("X-Request-ID", requestID)
		ctx := relay.WithCallInfo(r.Context(), relay.CallInfo{RequestID: requestID})

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		beacon("request_complete", map[string]interface{}{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rateLimitAllow(r.RemoteAddr) {
			beacon("rate_limit_exceeded", map[string]interface{}{
				"remote_addr": clientIP(r.RemoteAddr),
			})
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'unsafe-inline'; style-src 'unsafe-inline'; object-src 'none'; base-uri 'none'")
	io.WriteString(w, indexHTML)
}

type chatRequest struct {
	Persona  *personas.Persona `json:"persona"`
	Messages []relay.Message   `json:"messages"`
}

// handleChat is the stateless forwarding endpoint: one persona, one reply.
func handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Persona == nil {
		writeError(w, http.StatusBadRequest, "persona is required")
		return
	}

	persona := req.Persona
	if strings.TrimSpace(persona.Name) == "" && persona.ID != "" {
		if p, ok := personaCatalog.Get(persona.ID); ok {
			persona = p
		}
	}
	if strings.TrimSpace(persona.Name) == "" {
		writeError(w, http.StatusBadRequest, "persona name is required")
		return
	}

	info := relay.CallInfoFrom(r.Context())
	info.Mode = "direct"
	reply, err := personaRelay.Ask(relay.WithCallInfo(r.Context(), info), persona, req.Messages)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply.Text})
}

type personaView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Style string `json:"style"`
}

func handlePersonas(w http.ResponseWriter, r *http.Request) {
	list := personaCatalog.List()
	out := make([]personaView, 0, len(list))
	for _, p := range list {
		out = append(out, personaView{ID: p.ID, Name: p.Name, Style: p.Style})
	}
	writeJSON(w, http.StatusOK, out)
}

type messageView struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	HTML     string `json:"html"`
	BotToBot bool   `json:"bot_to_bot,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
}

type sessionView struct {
	ID           string            `json:"id"`
	Mode         conversation.Mode `json:"mode"`
	Persona      *personaView      `json:"persona,omitempty"`
	Messages     []messageView     `json:"messages"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
}

// viewMessages escapes content and highlights persona labels for the UI.
func viewMessages(msgs []conversation.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{
			Role:     m.Role,
			Content:  m.Content,
			HTML:     personaCatalog.Highlight(html.EscapeString(m.Content)),
			BotToBot: m.BotToBot,
			ReplyTo:  m.ReplyTo,
		})
	}
	return out
}

func viewSession(st conversation.State) sessionView {
	v := sessionView{
		ID:           st.ID,
		Mode:         st.Mode,
		Messages:     viewMessages(st.Messages),
		CreatedAt:    st.CreatedAt,
		LastActivity: st.LastActivity,
	}
	if st.Persona != nil {
		v.Persona = &personaView{ID: st.Persona.ID, Name: st.Persona.Name, Style: st.Persona.Style}
	}
	return v
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrNotFound), errors.Is(err, conversation.ErrUnknownPersona):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, conversation.ErrModeLocked), errors.Is(err, conversation.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("[HTTP] Session error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func lookupSession(w http.ResponseWriter, r *http.Request) (*conversation.Session, bool) {
	s, err := sessionManager.Get(mux.Vars(r)["id"])
	if err != nil {
		writeSessionError(w, err)
		return nil, false
	}
	return s, true
}

func handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s := sessionManager.Create()
	if debugMode {
		log.Printf("[Sessions] Created %s (%d active)", s.ID, sessionManager.Len())
	}
	writeJSON(w, http.StatusCreated, viewSession(s.State()))
}

func handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewSession(s.State()))
}

func handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := sessionManager.Delete(mux.Vars(r)["id"]); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleSelectPersona(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}
	var req struct {
		PersonaID string `json:"persona_id"`
	}
	if err := decodeBody(r, &req); err != nil || req.PersonaID == "" {
		writeError(w, http.StatusBadRequest, "persona_id is required")
		return
	}
	if err := s.SelectPersona(req.PersonaID); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(s.State()))
}

func handleEnterGroup(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}
	if err := s.EnterGroup(); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(s.State()))
}

func handleResetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}
	s.Reset()
	writeJSON(w, http.StatusOK, viewSession(s.State()))
}

func handleSendMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	added, err := s.Send(r.Context(), req.Content)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": viewMessages(added),
		"session":  viewSession(s.State()),
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"services": map[string]bool{
			"http":  HTTP_PORT > 0,
			"https": HTTPS_PORT > 0,
			"ssh":   SSH_PORT > 0,
			"dns":   DNS_PORT > 0,
		},
		"ports": map[string]int{
			"http":  HTTP_PORT,
			"https": HTTPS_PORT,
			"ssh":   SSH_PORT,
			"dns":   DNS_PORT,
		},
		"mode":     "production",
		"router":   GetRouterStatus(),
		"personas": personaCatalog.Len(),
		"sessions": sessionManager.Len(),
	}
	if highPortMode {
		health["mode"] = "development"
	}

	auditStatus := map[string]interface{}{"enabled": auditEnabled()}
	if auditStore != nil {
		auditStatus["path"] = auditStore.Path()
		if n, err := auditStore.Count(r.Context()); err == nil {
			auditStatus["records"] = n
		}
	}
	health["audit"] = auditStatus

	if HTTPS_PORT > 0 {
		_, _, found := findSSLCertificates()
		health["ssl_certificates"] = found
	}

	writeJSON(w, http.StatusOK, health)
}
