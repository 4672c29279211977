package main

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
)

var debugMode bool

// ServiceConfig holds the completion settings one transport uses.
type ServiceConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// getServiceConfig reads <SERVICE>_PERSONA_* first, then PERSONA_*.
func getServiceConfig(serviceName string) ServiceConfig {
	return ServiceConfig{
		Model:       getServiceModel(serviceName),
		MaxTokens:   getServiceMaxTokens(serviceName),
		Temperature: getServiceTemperature(serviceName),
	}
}

func getServiceModel(serviceName string) string {
	if m := os.Getenv(serviceName + "_PERSONA_MODEL"); m != "" {
		return m
	}
	if m := os.Getenv("PERSONA_MODEL"); m != "" {
		return m
	}
	if m := os.Getenv("MODEL_NAME"); m != "" {
		return m
	}
	return "gpt-4o"
}

func getServiceMaxTokens(serviceName string) int {
	// DNS answers are cut to 500 characters anyway.
	defaults := map[string]int{
		"DNS": 200,
	}

	if v := envInt(serviceName+"_PERSONA_MAX_TOKENS", -1); v >= 0 {
		return v
	}
	if v := envInt("PERSONA_MAX_TOKENS", -1); v >= 0 {
		return v
	}
	return defaults[serviceName]
}

func getServiceTemperature(serviceName string) float64 {
	if v := envFloat(serviceName+"_PERSONA_TEMPERATURE", -1); v >= 0 {
		return v
	}
	return envFloat("PERSONA_TEMPERATURE", 0.8)
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[Config] Ignoring %s=%q: %v", key, v, err)
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[Config] Ignoring %s=%q: %v", key, v, err)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[Config] Ignoring %s=%q: %v", key, v, err)
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[Config] Ignoring %s=%q: %v", key, v, err)
		return def
	}
	return d
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func generateRequestID() string {
	return uuid.New().String()
}

var (
	tokenEncoding     *tiktoken.Tiktoken
	tokenEncodingOnce sync.Once
)

// countTokens uses cl100k_base and falls back to a 4-chars-per-token guess
// when the encoding cannot be loaded.
func countTokens(text string) int {
	if text == "" {
		return 0
	}
	tokenEncodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("[Tokens] Falling back to length estimate: %v", err)
			return
		}
		tokenEncoding = enc
	})
	if tokenEncoding == nil {
		return (len(text) + 3) / 4
	}
	return len(tokenEncoding.Encode(text, nil, nil))
}

// beacon writes one JSON telemetry line.
func beacon(event string, fields map[string]interface{}) {
	payload := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		payload[k] = v
	}
	payload["event"] = event
	payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Beacon] failed to encode %s: %v", event, err)
		return
	}
	log.Printf("[Beacon] %s", data)
}
