package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"innerchat/models"
	"innerchat/routing"
)

func writeConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

const testModels = `
models:
  gpt-4o:
    name: GPT-4o
    family: gpt
    deployments: [primary]
`

const testDeployments = `
deployments:
  primary:
    model_id: gpt-4o
    provider: openai
    provider_model_id: gpt-4o
    priority: 1
    endpoint:
      base_url: ${TEST_API_URL:-https://example.invalid/v1/chat/completions}
      timeout: 12s
      auth:
        type: api_key
        key_env: TEST_PERSONA_KEY
`

const testRouting = `
routing:
  strategy: round_robin
  health_check:
    enabled: true
    interval: 1m
  fallback:
    enabled: true
    max_fallbacks: 1
`

func TestLoadConfigAndBuildRouter(t *testing.T) {
	t.Setenv("TEST_PERSONA_KEY", "sk-abc")
	dir := writeConfigDir(t, map[string]string{
		"models.yaml":      testModels,
		"deployments.yaml": testDeployments,
		"routing.yaml":     testRouting,
	})

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://example.invalid/v1/chat/completions", cfg.Deployments["primary"].Endpoint.BaseURL)

	router, modelRegistry, deploymentRegistry, hc, err := BuildRouter(cfg)
	require.NoError(t, err)
	require.NotNil(t, hc)
	assert.Equal(t, routing.StrategyRoundRobin, router.Strategy())

	_, ok := modelRegistry.Get("gpt-4o")
	assert.True(t, ok)

	d, ok := deploymentRegistry.Get("primary")
	require.True(t, ok)
	assert.Equal(t, models.ProviderOpenAI, d.Provider)
	assert.Equal(t, "sk-abc", d.Endpoint.Auth.APIKey)
	assert.Equal(t, 12*time.Second, d.Endpoint.Timeout)
	assert.Equal(t, 1, d.Weight)
	assert.True(t, d.Status.Available)
}

func TestLoadConfig_UnknownModel(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"models.yaml":      "models: {}\n",
		"deployments.yaml": testDeployments,
		"routing.yaml":     testRouting,
	})
	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestLoadConfig_MissingDir(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestBuildRouter_RejectsUnknownProvider(t *testing.T) {
	cfg := &Config{
		Models: map[string]ModelConfig{"m": {}},
		Deployments: map[string]DeploymentConfig{
			"d": {ModelID: "m", Provider: "carrier-pigeon"},
		},
	}
	_, _, _, _, err := BuildRouter(cfg)
	assert.Error(t, err)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("INNERCHAT_SET", "value")
	assert.Equal(t, "value", ExpandEnv("${INNERCHAT_SET}"))
	assert.Equal(t, "fallback", ExpandEnv("${INNERCHAT_UNSET_VAR:-fallback}"))
	assert.Equal(t, "plain", ExpandEnv("plain"))
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := LoadConfig(".")
	require.NoError(t, err)
	_, _, deployments, _, err := BuildRouter(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, deployments.Len())
}
