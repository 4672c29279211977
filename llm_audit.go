package main

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"innerchat/audit"
	"innerchat/relay"
)

var auditStore *audit.Store

// InitAudit opens the audit database unless ENABLE_LLM_AUDIT=false.
func InitAudit() error {
	if !envBool("ENABLE_LLM_AUDIT", true) {
		log.Println("[AUDIT] Audit logging DISABLED")
		return nil
	}

	store, err := audit.Open(envString("AUDIT_DB_PATH", "persona_audit.db"))
	if err != nil {
		return err
	}
	auditStore = store
	return nil
}

func auditEnabled() bool { return auditStore != nil }

// observeCall is the relay observer: it records the call and emits a beacon.
// Only hashes and token counts leave this function.
func observeCall(ctx context.Context, call relay.Call) {
	input, _ := json.Marshal(call.Request.Messages)
	var inputText strings.Builder
	for _, m := range call.Request.Messages {
		inputText.WriteString(m.Content)
		inputText.WriteByte('\n')
	}

	errText := ""
	if call.Reply.Err != nil {
		errText = call.Reply.Err.Error()
	}

	entry := audit.Entry{
		RequestID:    call.Info.RequestID,
		SessionID:    call.Info.SessionID,
		PersonaID:    call.Persona.ID,
		Mode:         call.Info.Mode,
		Timestamp:    call.Started,
		Model:        call.Request.Model,
		Deployment:   call.Reply.Deployment,
		Provider:     call.Reply.Provider,
		InputHash:    audit.Hash(string(input)),
		OutputHash:   audit.Hash(call.Reply.Text),
		InputTokens:  countTokens(inputText.String()),
		OutputTokens: countTokens(call.Reply.Text),
		LatencyMS:    call.Reply.Latency.Milliseconds(),
		Fallback:     call.Reply.Fallback,
		Error:        errText,
	}
	if entry.PersonaID == "" {
		entry.PersonaID = call.Persona.Name
	}

	beacon("persona_reply", map[string]interface{}{
		"request_id":    entry.RequestID,
		"session_id":    entry.SessionID,
		"persona":       entry.PersonaID,
		"mode":          entry.Mode,
		"model":         entry.Model,
		"deployment":    entry.Deployment,
		"input_hash":    entry.InputHash,
		"output_hash":   entry.OutputHash,
		"input_tokens":  entry.InputTokens,
		"output_tokens": entry.OutputTokens,
		"latency_ms":    entry.LatencyMS,
		"fallback":      entry.Fallback,
	})
	if call.Reply.Fallback {
		log.Printf("[Relay] Fallback reply for %s: %v", entry.PersonaID, call.Reply.Err)
	}

	if auditStore == nil {
		return
	}
	// Recorded even when the client has already gone.
	if err := auditStore.Record(context.WithoutCancel(ctx), entry); err != nil {
		log.Printf("[AUDIT] %v", err)
	}
}
